// Package cookie extracts cookies from the Set-Cookie headers of a stored response.
package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/always-cache/cookie-chain/store"
)

const setCookieHeader = "set-cookie"

var (
	errMissingEquals = errors.New("missing '=' in name=value pair")
	errEmptyName     = errors.New("empty cookie name")
)

// SetCookieValues returns all Set-Cookie header values in header order.
func SetCookieValues(res *store.Response) []string {
	return res.HeaderValues(setCookieHeader)
}

// Parse parses each value as a single cookie: the name=value pair before the
// first ';' split on its first '='. Attributes are discarded. Values are kept
// as sent, so quotes, backslashes and non-ASCII text survive. Entries without
// '=' or with an empty name are skipped and reported in the returned errors.
func Parse(values []string) ([]*http.Cookie, []error) {
	cookies := make([]*http.Cookie, 0, len(values))
	var errs []error
	for _, v := range values {
		pair, _, _ := strings.Cut(v, ";")
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			errs = append(errs, fmt.Errorf("parse %q: %w", v, errMissingEquals))
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			errs = append(errs, fmt.Errorf("parse %q: %w", v, errEmptyName))
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies, errs
}

// Find returns the first cookie whose name matches exactly.
func Find(cookies []*http.Cookie, name string) (*http.Cookie, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Names returns the cookie names in order, duplicates included.
func Names(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}
