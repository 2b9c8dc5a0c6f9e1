package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/always-cache/cookie-chain/store"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestLoad(t *testing.T) {
	filename := writeConfig(t, `
environment: staging
store: redis
redis:
  addr: redis:6379
requests:
  - id: req_login
    name: Login
    method: POST
    url: https://example.com/login
    body: '{"user":"me"}'
  - id: req_profile
    url: https://example.com/profile
    headers:
      - name: Cookie
        value: 'session={{ cookie "req_login" "session" "when-expired" 300 }}'
`)

	config, err := Load(filename)
	require.NoError(t, err)

	assert.Equal(t, "staging", config.Environment)
	assert.Equal(t, 8080, config.Port, "default port is kept")
	assert.Equal(t, StoreRedis, config.Store)
	assert.Equal(t, "redis:6379", config.Redis.Addr)
	expected := []store.Request{
		{ID: "req_login", Name: "Login", Method: "POST", URL: "https://example.com/login", Body: `{"user":"me"}`},
		{ID: "req_profile", URL: "https://example.com/profile", Headers: []store.Header{
			{Name: "Cookie", Value: `session={{ cookie "req_login" "session" "when-expired" 300 }}`},
		}},
	}
	if diff := cmp.Diff(expected, config.Requests); diff != "" {
		t.Fatalf("Requests mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown store":  "store: mongo",
		"missing id":     "requests:\n  - url: http://x",
		"duplicate id":   "requests:\n  - id: a\n    url: http://x\n  - id: a\n    url: http://y",
		"missing url":    "requests:\n  - id: a",
		"no environment": "environment: ''",
		"bad yaml":       "requests: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatchReloadsRequests(t *testing.T) {
	filename := writeConfig(t, "requests:\n  - id: a\n    url: http://x\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan Config, 4)

	require.NoError(t, Watch(ctx, filename, zerolog.Nop(), func(c Config) { reloaded <- c }))

	// an invalid file is skipped
	require.NoError(t, os.WriteFile(filename, []byte("store: mongo"), 0644))
	time.Sleep(2 * reloadDebounce)
	require.NoError(t, os.WriteFile(filename, []byte("requests:\n  - id: b\n    url: http://y\n"), 0644))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if len(c.Requests) == 1 && c.Requests[0].ID == "b" {
				return
			}
		case <-timeout:
			t.Fatal("config was not reloaded")
		}
	}
}
