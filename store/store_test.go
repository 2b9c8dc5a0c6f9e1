package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rds, err := NewRedisStore(context.Background(), mr.Addr(), "test:")
	require.NoError(t, err)
	stores := map[string]Store{
		"memory": NewMemStore(),
		"sqlite": sqlite,
		"redis":  rds,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestRequestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			req := Request{
				ID:     "req_login",
				Name:   "Login",
				Method: "POST",
				URL:    "https://example.com/login",
				Headers: []Header{
					{Name: "Content-Type", Value: "application/json"},
					{Name: "X-Trace", Value: "1"},
					{Name: "X-Trace", Value: "2"},
				},
				Body: `{"user":"me"}`,
			}
			require.NoError(t, s.PutRequest(ctx, req))

			got, err := s.Request(ctx, "req_login")
			require.NoError(t, err)
			require.NotNil(t, got)
			if diff := cmp.Diff(req, *got); diff != "" {
				t.Fatalf("request mismatch (-want +got):\n%s", diff)
			}

			missing, err := s.Request(ctx, "req_missing")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestPutRequestReplacesHeaders(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutRequest(ctx, Request{ID: "r", Headers: []Header{{"A", "1"}, {"B", "2"}}}))
			require.NoError(t, s.PutRequest(ctx, Request{ID: "r", Headers: []Header{{"C", "3"}}}))

			got, err := s.Request(ctx, "r")
			require.NoError(t, err)
			assert.Equal(t, []Header{{"C", "3"}}, got.Headers)
		})
	}
}

func TestLatestResponse(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			none, err := s.LatestResponse(ctx, "req", "prod")
			require.NoError(t, err)
			assert.Nil(t, none)

			require.NoError(t, s.PutResponse(ctx, Response{
				RequestID: "req", Environment: "prod", CreatedAt: base.Add(2 * time.Second), StatusCode: 200,
				Headers: []Header{{"Set-Cookie", "a=new"}, {"set-cookie", "b=2"}},
			}))
			require.NoError(t, s.PutResponse(ctx, Response{
				RequestID: "req", Environment: "prod", CreatedAt: base, StatusCode: 500,
			}))
			require.NoError(t, s.PutResponse(ctx, Response{
				RequestID: "req", Environment: "staging", CreatedAt: base.Add(time.Hour), Error: "connection refused",
			}))

			got, err := s.LatestResponse(ctx, "req", "prod")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.NotEmpty(t, got.ID)
			assert.Equal(t, 200, got.StatusCode)
			assert.True(t, got.CreatedAt.Equal(base.Add(2*time.Second)), "created at %s", got.CreatedAt)
			assert.Equal(t, []Header{{"Set-Cookie", "a=new"}, {"set-cookie", "b=2"}}, got.Headers)

			staging, err := s.LatestResponse(ctx, "req", "staging")
			require.NoError(t, err)
			require.NotNil(t, staging)
			assert.Equal(t, "connection refused", staging.Error)
			assert.Equal(t, 0, staging.StatusCode)
		})
	}
}

func TestLatestResponseTieBreaksByInsertion(t *testing.T) {
	ctx := context.Background()
	createdAt := time.UnixMilli(1_700_000_000_000)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// the later insert must win whatever its content sorts as
			for _, status := range []int{500, 200, 404} {
				require.NoError(t, s.PutResponse(ctx, Response{
					RequestID: "req", Environment: "prod", CreatedAt: createdAt, StatusCode: status,
				}))
			}

			got, err := s.LatestResponse(ctx, "req", "prod")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 404, got.StatusCode)

			require.NoError(t, s.PutResponse(ctx, Response{
				RequestID: "req", Environment: "prod", CreatedAt: createdAt, StatusCode: 201,
			}))
			got, err = s.LatestResponse(ctx, "req", "prod")
			require.NoError(t, err)
			assert.Equal(t, 201, got.StatusCode)
		})
	}
}

func TestResponsesOfDistinctPairsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	createdAt := time.UnixMilli(1_700_000_000_000)
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.PutResponse(ctx, Response{
				RequestID: "c", Environment: "a:b", CreatedAt: createdAt, StatusCode: 200,
			}))
			require.NoError(t, s.PutResponse(ctx, Response{
				RequestID: "b:c", Environment: "a", CreatedAt: createdAt.Add(time.Second), StatusCode: 500,
			}))

			first, err := s.LatestResponse(ctx, "c", "a:b")
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Equal(t, 200, first.StatusCode)

			second, err := s.LatestResponse(ctx, "b:c", "a")
			require.NoError(t, err)
			require.NotNil(t, second)
			assert.Equal(t, 500, second.StatusCode)
		})
	}
}

func TestHeaderValues(t *testing.T) {
	res := Response{Headers: []Header{
		{"Set-Cookie", "a=1"},
		{"Content-Type", "text/plain"},
		{"SET-COOKIE", "b=2"},
		{"set-cookie", "a=3"},
	}}
	assert.Equal(t, []string{"a=1", "b=2", "a=3"}, res.HeaderValues("set-cookie"))
	assert.Empty(t, res.HeaderValues("x-missing"))
}
