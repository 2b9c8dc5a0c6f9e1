// Package policy decides whether the stored response of a dependent request
// is still usable or the request has to be sent again.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/always-cache/cookie-chain/store"
)

// DefaultMaxAge is the max age in seconds used when none is given.
const DefaultMaxAge = 60

// Trigger determines when a dependent request is sent again.
type Trigger int

const (
	// Never reuses whatever response is stored.
	Never Trigger = iota
	// NoHistory sends only if there is no stored response.
	NoHistory
	// WhenExpired sends if there is no stored response or it is older than the max age.
	WhenExpired
	// Always sends on every evaluation.
	Always
	// Unknown is an unrecognized trigger. It never sends.
	Unknown
)

var triggerNames = map[Trigger]string{
	Never:       "never",
	NoHistory:   "no-history",
	WhenExpired: "when-expired",
	Always:      "always",
}

func (t Trigger) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseTrigger normalizes a trigger name case-insensitively.
// An empty name means Never. Unrecognized names are not an error,
// they return Unknown and false.
func ParseTrigger(name string) (Trigger, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return Never, true
	}
	for t, n := range triggerNames {
		if n == normalized {
			return t, true
		}
	}
	return Unknown, false
}

// Policy is the validated configuration of a single cookie lookup.
type Policy struct {
	// Name of the cookie to extract. Required.
	CookieName string
	Trigger    Trigger
	// Maximum age of the stored response in seconds.
	// Only used with WhenExpired.
	MaxAge float64
}

func (p Policy) String() string {
	if p.Trigger == WhenExpired {
		return fmt.Sprintf("%s (%s, max-age=%g)", p.CookieName, p.Trigger, p.MaxAge)
	}
	return fmt.Sprintf("%s (%s)", p.CookieName, p.Trigger)
}

// Age returns the age of the response in seconds at the given time.
func Age(res *store.Response, now time.Time) float64 {
	return float64(now.Sub(res.CreatedAt).Milliseconds()) / 1000
}

// ShouldResend returns true if the dependent request must be sent again
// before its stored response (if any) is used.
func ShouldResend(last *store.Response, p Policy, now time.Time) bool {
	switch p.Trigger {
	case NoHistory:
		return last == nil
	case WhenExpired:
		return last == nil || Age(last, now) > p.MaxAge
	case Always:
		return true
	default:
		return false
	}
}
