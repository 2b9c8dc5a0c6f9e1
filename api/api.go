// Package api serves cookie resolutions and request sends over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	cookiechain "github.com/always-cache/cookie-chain"
	resendstatus "github.com/always-cache/cookie-chain/pkg/resend-status"
	serializer "github.com/always-cache/cookie-chain/pkg/response-serializer"
	"github.com/always-cache/cookie-chain/store"
	"github.com/always-cache/cookie-chain/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Config struct {
	Store        store.Store
	Environments *transport.Environments
	// Gatherer exposed on /metrics. Defaults to the default registry.
	Gatherer prometheus.Gatherer
	// Requests per minute and client IP. Zero disables limiting.
	RateLimit int
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

type server struct {
	store        store.Store
	environments *transport.Environments
	log          zerolog.Logger
}

// NewRouter returns the API handler.
func NewRouter(config Config) http.Handler {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &server{
		store:        config.Store,
		environments: config.Environments,
		log:          logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/environments/{env}/requests/{id}", func(r chi.Router) {
		if config.RateLimit > 0 {
			r.Use(httprate.Limit(
				config.RateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Retry-After", "60")
					writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate-limit-exceeded", Detail: "too many requests"})
				}),
			))
		}
		r.Get("/cookies/{name}", s.getCookie)
		r.Post("/send", s.send)
		r.Get("/response", s.getResponse)
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("reqId", middleware.GetReqID(r.Context())).
			Msg("")
	})
}

func (s *server) getCookie(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, "env")
	query := r.URL.Query()
	args := cookiechain.Args{
		Request: chi.URLParam(r, "id"),
		Cookie:  chi.URLParam(r, "name"),
		Trigger: query.Get("trigger"),
	}
	if v := query.Get("maxAge"); v != "" {
		maxAge, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid-argument", Detail: fmt.Sprintf("invalid maxAge %q", v)})
			return
		}
		args.MaxAge = &maxAge
	}
	purpose := cookiechain.Purpose(query.Get("purpose"))
	if purpose == "" {
		purpose = cookiechain.PurposeSend
	}

	ec := cookiechain.EvalContext{Environment: env, Purpose: purpose}
	value, status, err := s.environments.Get(env).Resolver.ResolveWithStatus(r.Context(), ec, args)
	if status.Action != "" {
		w.Header().Set(resendstatus.HeaderName, status.String())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(value))
}

type sendResponse struct {
	ID         string    `json:"id"`
	StatusCode int       `json:"statusCode"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s *server) send(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, "env")
	id := chi.URLParam(r, "id")
	req, err := s.store.Request(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: string(cookiechain.KindRequestNotFound), Detail: fmt.Sprintf("could not find request %q", id)})
		return
	}
	res, err := s.environments.Get(env).Transport.Send(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{
		ID:         res.ID,
		StatusCode: res.StatusCode,
		Error:      res.Error,
		CreatedAt:  res.CreatedAt,
	})
}

func (s *server) getResponse(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, "env")
	id := chi.URLParam(r, "id")
	res, err := s.store.LatestResponse(r.Context(), id, env)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: string(cookiechain.KindNoResponse), Detail: fmt.Sprintf("no responses for request %q", id)})
		return
	}
	bts, err := serializer.StoredResponseToBytes(*res)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "message/http")
	w.Write(bts)
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// statusCode maps resolver errors to response status codes.
func statusCode(kind cookiechain.ErrorKind) int {
	switch kind {
	case cookiechain.KindMissingArgument:
		return http.StatusBadRequest
	case cookiechain.KindRequestNotFound:
		return http.StatusNotFound
	case cookiechain.KindDependencyFailed:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	var e *cookiechain.Error
	if errors.As(err, &e) {
		writeJSON(w, statusCode(e.Kind), errorBody{Error: string(e.Kind), Detail: err.Error()})
		return
	}
	s.log.Error().Err(err).Msg("Request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
