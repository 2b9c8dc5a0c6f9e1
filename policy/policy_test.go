package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/always-cache/cookie-chain/store"
)

var now = time.UnixMilli(1_700_000_000_000)

func responseAged(age time.Duration) *store.Response {
	return &store.Response{CreatedAt: now.Add(-age), StatusCode: 200}
}

func TestParseTrigger(t *testing.T) {
	cases := map[string]Trigger{
		"":               Never,
		"never":          Never,
		"NEVER":          Never,
		"no-history":     NoHistory,
		"No-History":     NoHistory,
		"when-expired":   WhenExpired,
		" When-Expired ": WhenExpired,
		"always":         Always,
		"ALWAYS":         Always,
	}
	for name, want := range cases {
		got, ok := ParseTrigger(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	got, ok := ParseTrigger("sometimes")
	assert.False(t, ok)
	assert.Equal(t, Unknown, got)
}

func TestNeverDoesNotResend(t *testing.T) {
	p := Policy{CookieName: "c", Trigger: Never, MaxAge: 1}
	assert.False(t, ShouldResend(nil, p, now))
	assert.False(t, ShouldResend(responseAged(0), p, now))
	assert.False(t, ShouldResend(responseAged(24*time.Hour), p, now))
}

func TestNoHistory(t *testing.T) {
	p := Policy{CookieName: "c", Trigger: NoHistory}
	assert.True(t, ShouldResend(nil, p, now))
	assert.False(t, ShouldResend(responseAged(24*time.Hour), p, now))
}

func TestWhenExpired(t *testing.T) {
	p := Policy{CookieName: "c", Trigger: WhenExpired, MaxAge: 60}
	assert.True(t, ShouldResend(nil, p, now))
	assert.False(t, ShouldResend(responseAged(59*time.Second), p, now))
	assert.False(t, ShouldResend(responseAged(60*time.Second), p, now), "equal age must not expire")
	assert.True(t, ShouldResend(responseAged(60*time.Second+time.Millisecond), p, now))
	assert.True(t, ShouldResend(responseAged(120*time.Second), p, now))
}

func TestWhenExpiredFractionalMaxAge(t *testing.T) {
	p := Policy{CookieName: "c", Trigger: WhenExpired, MaxAge: 1.5}
	assert.False(t, ShouldResend(responseAged(1500*time.Millisecond), p, now))
	assert.True(t, ShouldResend(responseAged(1501*time.Millisecond), p, now))
}

func TestAlways(t *testing.T) {
	p := Policy{CookieName: "c", Trigger: Always}
	assert.True(t, ShouldResend(nil, p, now))
	assert.True(t, ShouldResend(responseAged(0), p, now))
}

func TestUnknownNeverResends(t *testing.T) {
	p := Policy{CookieName: "c", Trigger: Unknown}
	assert.False(t, ShouldResend(nil, p, now))
	assert.False(t, ShouldResend(responseAged(time.Hour), p, now))
}

func TestAge(t *testing.T) {
	assert.Equal(t, 120.0, Age(responseAged(2*time.Minute), now))
	assert.Equal(t, 0.25, Age(responseAged(250*time.Millisecond), now))
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "session (when-expired, max-age=60)", Policy{"session", WhenExpired, 60}.String())
	assert.Equal(t, "session (always)", Policy{"session", Always, 60}.String())
	assert.Equal(t, "unknown", Unknown.String())
}
