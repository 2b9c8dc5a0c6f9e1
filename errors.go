package cookiechain

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why a cookie could not be resolved.
type ErrorKind string

const (
	KindMissingArgument      ErrorKind = "missing-argument"
	KindRequestNotFound      ErrorKind = "request-not-found"
	KindNoResponse           ErrorKind = "no-response"
	KindDependencyFailed     ErrorKind = "dependency-failed"
	KindNoSuccessfulResponse ErrorKind = "no-successful-response"
	KindNoCookies            ErrorKind = "no-cookies"
	KindCookieNotFound       ErrorKind = "cookie-not-found"
)

// Sentinel errors for use with errors.Is.
var (
	ErrMissingArgument      = &Error{Kind: KindMissingArgument}
	ErrRequestNotFound      = &Error{Kind: KindRequestNotFound}
	ErrNoResponse           = &Error{Kind: KindNoResponse}
	ErrDependencyFailed     = &Error{Kind: KindDependencyFailed}
	ErrNoSuccessfulResponse = &Error{Kind: KindNoSuccessfulResponse}
	ErrNoCookies            = &Error{Kind: KindNoCookies}
	ErrCookieNotFound       = &Error{Kind: KindCookieNotFound}
)

// Error is returned by the resolver for every failure it detects itself.
// Store errors are returned wrapped as is.
type Error struct {
	Kind       ErrorKind
	Message    string
	RequestID  string
	CookieName string
	// Names of the cookies present in the response, in header order.
	// Only set for KindCookieNotFound.
	Available []string
	Cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func missingArgument(what string) *Error {
	return &Error{
		Kind:    KindMissingArgument,
		Message: what + " is required",
	}
}

func requestNotFound(requestID string) *Error {
	return &Error{
		Kind:      KindRequestNotFound,
		Message:   fmt.Sprintf("could not find request %q", requestID),
		RequestID: requestID,
	}
}

func noResponse(requestID string) *Error {
	return &Error{
		Kind:      KindNoResponse,
		Message:   fmt.Sprintf("no responses for request %q", requestID),
		RequestID: requestID,
	}
}

func dependencyFailed(requestID string, cause error) *Error {
	return &Error{
		Kind:      KindDependencyFailed,
		Message:   fmt.Sprintf("request %q failed", requestID),
		RequestID: requestID,
		Cause:     cause,
	}
}

func noSuccessfulResponse(requestID string) *Error {
	return &Error{
		Kind:      KindNoSuccessfulResponse,
		Message:   fmt.Sprintf("no successful responses for request %q", requestID),
		RequestID: requestID,
	}
}

func noCookies(requestID string) *Error {
	return &Error{
		Kind:      KindNoCookies,
		Message:   fmt.Sprintf("no cookies in response of request %q", requestID),
		RequestID: requestID,
	}
}

func cookieNotFound(requestID, cookieName string, available []string) *Error {
	return &Error{
		Kind: KindCookieNotFound,
		Message: fmt.Sprintf("no cookie with name %q in response of request %q, choices are %s",
			cookieName, requestID, strings.Join(available, ", ")),
		RequestID:  requestID,
		CookieName: cookieName,
		Available:  available,
	}
}
