// Package render evaluates the templated fields of a request definition.
//
// Templates use text/template syntax with one extra function:
//
//	{{ cookie "<request id>" "<cookie name>" ["<trigger>" [<max age>]] }}
//
// which resolves a cookie from the response of another request.
package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	cookiechain "github.com/always-cache/cookie-chain"
	"github.com/always-cache/cookie-chain/store"

	"github.com/rs/zerolog"
)

// Resolver resolves cookie values for the cookie template function.
type Resolver interface {
	Resolve(ctx context.Context, ec cookiechain.EvalContext, args cookiechain.Args) (string, error)
}

type Renderer struct {
	resolver Resolver
	log      zerolog.Logger
}

// New creates a renderer using the resolver for the cookie function.
func New(resolver Resolver, logger *zerolog.Logger) *Renderer {
	var l zerolog.Logger
	if logger == nil {
		l = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		l = *logger
	}
	return &Renderer{
		resolver: resolver,
		log:      l.With().Str("component", "render").Logger(),
	}
}

// Render evaluates a single templated value.
func (r *Renderer) Render(ctx context.Context, ec cookiechain.EvalContext, text string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("value").
		Option("missingkey=error").
		Funcs(template.FuncMap{"cookie": r.cookieFunc(ctx, ec)}).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	buf := &strings.Builder{}
	if err := tmpl.Execute(buf, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderRequest returns a copy of the request with URL, header values and
// body evaluated. Header names are not templated.
func (r *Renderer) RenderRequest(ctx context.Context, ec cookiechain.EvalContext, req store.Request) (store.Request, error) {
	r.log.Trace().Str("request", req.ID).Strs("chain", ec.Chain).Str("purpose", string(ec.Purpose)).Msg("Rendering request")
	rendered := req
	var err error
	if rendered.URL, err = r.Render(ctx, ec, req.URL); err != nil {
		return req, fmt.Errorf("render url of %s: %w", req.ID, err)
	}
	rendered.Headers = make([]store.Header, 0, len(req.Headers))
	for _, h := range req.Headers {
		value, err := r.Render(ctx, ec, h.Value)
		if err != nil {
			return req, fmt.Errorf("render header %s of %s: %w", h.Name, req.ID, err)
		}
		rendered.Headers = append(rendered.Headers, store.Header{Name: h.Name, Value: value})
	}
	if rendered.Body, err = r.Render(ctx, ec, req.Body); err != nil {
		return req, fmt.Errorf("render body of %s: %w", req.ID, err)
	}
	return rendered, nil
}

func (r *Renderer) cookieFunc(ctx context.Context, ec cookiechain.EvalContext) func(string, string, ...any) (string, error) {
	return func(request, name string, opts ...any) (string, error) {
		args := cookiechain.Args{Request: request, Cookie: name}
		if len(opts) > 2 {
			return "", fmt.Errorf("cookie takes at most 4 arguments, got %d", len(opts)+2)
		}
		if len(opts) > 0 {
			trigger, ok := opts[0].(string)
			if !ok {
				return "", fmt.Errorf("trigger must be a string, got %T", opts[0])
			}
			args.Trigger = trigger
		}
		if len(opts) > 1 {
			maxAge, err := toSeconds(opts[1])
			if err != nil {
				return "", err
			}
			args.MaxAge = &maxAge
		}
		return r.resolver.Resolve(ctx, ec, args)
	}
}

// toSeconds converts a template max age argument to seconds.
func toSeconds(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid max age %q: %w", n, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("max age must be a number, got %T", v)
	}
}
