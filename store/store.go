// Package store persists request definitions and the responses they produced.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Header is a single header field. Order of headers is significant.
type Header struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Request is a stored request definition.
// URL, header values and body may contain template actions.
type Request struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Method  string   `yaml:"method" json:"method"`
	URL     string   `yaml:"url" json:"url"`
	Headers []Header `yaml:"headers" json:"headers"`
	Body    string   `yaml:"body" json:"body"`
}

// Response is a stored response to a request within an environment.
// A zero StatusCode means the response never completed,
// a non-empty Error means the transport failed.
type Response struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"requestId"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"createdAt"`
	StatusCode  int       `json:"statusCode"`
	Error       string    `json:"error,omitempty"`
	Headers     []Header  `json:"headers"`
}

// HeaderValues returns the values of all headers with the given name,
// compared case-insensitively, in header order.
func (r *Response) HeaderValues(name string) []string {
	values := make([]string, 0)
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// withID returns the response with an id assigned if it has none.
func (r Response) withID() Response {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r
}

// RequestStore stores request definitions.
//
// Implementations must be thread-safe!
type RequestStore interface {
	// Request returns the request with the given id.
	// A missing request is not an error, nil is returned instead.
	Request(ctx context.Context, id string) (*Request, error)
	// PutRequest creates or replaces a request definition.
	PutRequest(ctx context.Context, req Request) error
}

// ResponseStore stores responses per request and environment.
//
// Implementations must be thread-safe!
type ResponseStore interface {
	// LatestResponse returns the most recently created response for the request
	// in the given environment, or nil if there is none.
	LatestResponse(ctx context.Context, requestID, environment string) (*Response, error)
	// PutResponse stores a response. Responses are never replaced.
	PutResponse(ctx context.Context, res Response) error
}

// Store is the combination of both stores, which is what the backends implement.
type Store interface {
	RequestStore
	ResponseStore
	Close() error
}
