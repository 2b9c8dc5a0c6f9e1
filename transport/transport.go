// Package transport sends stored requests over HTTP and persists their responses.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cookiechain "github.com/always-cache/cookie-chain"
	"github.com/always-cache/cookie-chain/chain"
	serializer "github.com/always-cache/cookie-chain/pkg/response-serializer"
	"github.com/always-cache/cookie-chain/render"
	"github.com/always-cache/cookie-chain/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Renderer evaluates the templated fields of a request.
type Renderer interface {
	RenderRequest(ctx context.Context, ec cookiechain.EvalContext, req store.Request) (store.Request, error)
}

type Config struct {
	// Store the responses are saved to.
	Responses store.ResponseStore
	// Environment the responses are saved in.
	Environment string
	// Client used to send requests. Redirects are not followed if nil.
	Client *http.Client
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Clock used for response creation times. Defaults to time.Now.
	Now func() time.Time
}

// HTTPTransport executes requests for one environment.
type HTTPTransport struct {
	responses   store.ResponseStore
	environment string
	client      *http.Client
	renderer    Renderer
	log         zerolog.Logger
	now         func() time.Time
	group       singleflight.Group
}

// New creates a transport. A renderer must be set with SetRenderer before
// requests with template actions are sent.
func New(config Config) *HTTPTransport {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	client := config.Client
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &HTTPTransport{
		responses:   config.Responses,
		environment: config.Environment,
		client:      client,
		log:         logger.With().Str("component", "transport").Str("env", config.Environment).Logger(),
		now:         now,
	}
}

// SetRenderer sets the renderer used for request templates.
// The renderer usually resolves cookies through a resolver using this
// transport, so it can only be set after creation.
func (t *HTTPTransport) SetRenderer(renderer Renderer) {
	t.renderer = renderer
}

// Environment returns the environment responses are saved in.
func (t *HTTPTransport) Environment() string {
	return t.environment
}

// Send renders and executes a top-level request.
func (t *HTTPTransport) Send(ctx context.Context, req *store.Request) (*store.Response, error) {
	return t.Execute(ctx, req, nil)
}

// Execute renders the request within the chain carried in the metadata,
// sends it and saves the response. Transport failures are saved and returned
// as a response with the error set. Concurrent executions of the same request
// within the same chain are coalesced. The shared execution is not cancelled
// with any single caller; each caller stops waiting when its own context is
// done. The client timeout bounds the shared execution.
func (t *HTTPTransport) Execute(ctx context.Context, req *store.Request, meta []chain.Metadata) (*store.Response, error) {
	c := chain.FromMetadata(meta)
	key := t.environment + "\x00" + req.ID + "\x00" + strings.Join(c, "\x00")
	flight := t.group.DoChan(key, func() (any, error) {
		return t.execute(context.WithoutCancel(ctx), req, c)
	})
	select {
	case <-ctx.Done():
		t.log.Trace().Str("request", req.ID).Msg("Stopped waiting for execution")
		return nil, ctx.Err()
	case result := <-flight:
		if result.Err != nil {
			return nil, result.Err
		}
		if result.Shared {
			t.log.Trace().Str("request", req.ID).Msg("Shared response of concurrent execution")
		}
		res := result.Val.(store.Response)
		return &res, nil
	}
}

func (t *HTTPTransport) execute(ctx context.Context, req *store.Request, c chain.Chain) (store.Response, error) {
	log := t.log.With().Str("request", req.ID).Logger()
	ec := cookiechain.EvalContext{
		Environment: t.environment,
		Purpose:     cookiechain.PurposeSend,
		Chain:       c,
	}

	rendered := *req
	if t.renderer != nil {
		var err error
		if rendered, err = t.renderer.RenderRequest(ctx, ec, *req); err != nil {
			return store.Response{}, err
		}
	}

	httpReq, err := newHTTPRequest(ctx, rendered)
	if err != nil {
		return store.Response{}, err
	}

	createdAt := t.now()
	log.Debug().Str("method", httpReq.Method).Str("url", httpReq.URL.String()).Msg("Sending request")
	var res store.Response
	httpRes, err := t.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return store.Response{}, err
		}
		log.Warn().Err(err).Msg("Request failed")
		res = serializer.FromError(err, createdAt)
	} else {
		// only headers are stored
		if _, err := io.Copy(io.Discard, io.LimitReader(httpRes.Body, 1<<20)); err != nil {
			log.Trace().Err(err).Msg("Could not drain response body")
		}
		httpRes.Body.Close()
		res = serializer.FromHTTPResponse(httpRes, createdAt)
		log.Debug().Int("status", res.StatusCode).Msg("Received response")
	}

	res.ID = uuid.NewString()
	res.RequestID = req.ID
	res.Environment = t.environment
	if err := t.responses.PutResponse(ctx, res); err != nil {
		return store.Response{}, fmt.Errorf("save response of %s: %w", req.ID, err)
	}
	return res, nil
}

func newHTTPRequest(ctx context.Context, req store.Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", req.ID, err)
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "host") {
			httpReq.Host = h.Value
			continue
		}
		httpReq.Header.Add(h.Name, h.Value)
	}
	return httpReq, nil
}

var _ cookiechain.Transport = (*HTTPTransport)(nil)
var _ Renderer = (*render.Renderer)(nil)
