package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/always-cache/cookie-chain/store"
)

const (
	createdAtHeaderName = "Cookie-Chain-Created-At"
	errorHeaderName     = "Cookie-Chain-Error"
)

// FromHTTPResponse converts a received response to a stored one.
// Header names are sorted, values of the same header keep their order.
// The body is not read.
func FromHTTPResponse(res *http.Response, createdAt time.Time) store.Response {
	return store.Response{
		CreatedAt:  createdAt,
		StatusCode: res.StatusCode,
		Headers:    headersFromHTTP(res.Header),
	}
}

// FromError returns the stored response of a request that could not be sent.
func FromError(err error, createdAt time.Time) store.Response {
	return store.Response{
		CreatedAt: createdAt,
		Error:     err.Error(),
	}
}

// StoredResponseToBytes returns the HTTP/1.1 representation of a stored response.
// The creation time and error, if any, are written as extra headers.
func StoredResponseToBytes(sRes store.Response) ([]byte, error) {
	res := &http.Response{
		StatusCode: sRes.StatusCode,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
	}
	for _, h := range sRes.Headers {
		res.Header.Add(h.Name, h.Value)
	}
	res.Header.Set(createdAtHeaderName, strconv.FormatInt(sRes.CreatedAt.UnixMilli(), 10))
	if sRes.Error != "" {
		res.Header.Set(errorHeaderName, sRes.Error)
	}
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BytesToStoredResponse reads a response written by StoredResponseToBytes.
func BytesToStoredResponse(b []byte) (store.Response, error) {
	sRes := store.Response{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return sRes, err
	}
	defer res.Body.Close()
	createdAt, err := strconv.ParseInt(res.Header.Get(createdAtHeaderName), 10, 64)
	if err != nil {
		return sRes, fmt.Errorf("parse %s: %w", createdAtHeaderName, err)
	}
	sRes.CreatedAt = time.UnixMilli(createdAt)
	sRes.Error = res.Header.Get(errorHeaderName)
	sRes.StatusCode = res.StatusCode
	// delete extra headers
	res.Header.Del(createdAtHeaderName)
	res.Header.Del(errorHeaderName)
	res.Header.Del("Content-Length")
	sRes.Headers = headersFromHTTP(res.Header)
	return sRes, nil
}

func headersFromHTTP(header http.Header) []store.Header {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	headers := make([]store.Header, 0, len(names))
	for _, name := range names {
		for _, v := range header[name] {
			headers = append(headers, store.Header{Name: name, Value: v})
		}
	}
	return headers
}
