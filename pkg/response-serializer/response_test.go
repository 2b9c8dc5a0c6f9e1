package serializer

import (
	"bufio"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/always-cache/cookie-chain/store"

	"github.com/google/go-cmp/cmp"
)

func TestFromHTTPResponseHeaderOrder(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\n" +
		"X-Trace: 1\r\n" +
		"Set-Cookie: a=1\r\n" +
		"Content-Type: text/plain\r\n" +
		"Set-Cookie: b=2\r\n" +
		"\r\n"

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	createdAt := time.UnixMilli(1_700_000_000_123)

	sRes := FromHTTPResponse(res, createdAt)

	expected := store.Response{
		CreatedAt:  createdAt,
		StatusCode: 200,
		Headers: []store.Header{
			{Name: "Content-Type", Value: "text/plain"},
			{Name: "Set-Cookie", Value: "a=1"},
			{Name: "Set-Cookie", Value: "b=2"},
			{Name: "X-Trace", Value: "1"},
		},
	}
	if diff := cmp.Diff(expected, sRes); diff != "" {
		t.Fatalf("Stored response mismatch (-want +got):\n%s", diff)
	}
}

func TestStoredResponseSerialization(t *testing.T) {
	sRes := store.Response{
		CreatedAt:  time.UnixMilli(1_700_000_000_123),
		StatusCode: 201,
		Headers: []store.Header{
			{Name: "Set-Cookie", Value: "session=abc; Path=/"},
			{Name: "Set-Cookie", Value: "theme=dark"},
		},
	}

	bts, err := StoredResponseToBytes(sRes)
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	if !strings.HasPrefix(string(bts), "HTTP/1.1 201 Created\r\n") {
		t.Fatalf("Wrong status line: %q", bts)
	}

	res2, err := BytesToStoredResponse(bts)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if diff := cmp.Diff(sRes, res2, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("Round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromError(t *testing.T) {
	createdAt := time.Now()
	sRes := FromError(errors.New("connection refused"), createdAt)
	if sRes.Error != "connection refused" || sRes.StatusCode != 0 {
		t.Fatalf("Unexpected response %+v", sRes)
	}

	bts, err := StoredResponseToBytes(sRes)
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	res2, err := BytesToStoredResponse(bts)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if res2.Error != "connection refused" {
		t.Fatalf("Error header lost: %+v", res2)
	}
}
