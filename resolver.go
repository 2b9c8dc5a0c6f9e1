package cookiechain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/always-cache/cookie-chain/chain"
	"github.com/always-cache/cookie-chain/cookie"
	resendstatus "github.com/always-cache/cookie-chain/pkg/resend-status"
	"github.com/always-cache/cookie-chain/policy"
	"github.com/always-cache/cookie-chain/store"

	"github.com/rs/zerolog"
)

// Purpose tells why a templated value is being evaluated.
type Purpose string

const (
	// PurposeSend is a real send. Dependent requests may be executed.
	PurposeSend Purpose = "send"
	// PurposePreview renders for display only and must not cause network traffic.
	PurposePreview Purpose = "preview"
)

// EvalContext is the context of one evaluation of a templated value.
type EvalContext struct {
	// Environment the responses are looked up in.
	Environment string
	Purpose     Purpose
	// Dependent requests already being sent within the current top-level render.
	Chain chain.Chain
}

// RequestStore resolves dependent request references.
type RequestStore interface {
	Request(ctx context.Context, id string) (*store.Request, error)
}

// ResponseStore provides the last known response of a request.
type ResponseStore interface {
	LatestResponse(ctx context.Context, requestID, environment string) (*store.Response, error)
}

// Transport executes a dependent request and persists the response itself.
// The metadata must be made available to evaluations nested in the execution.
// A nil response without error means nothing was executed.
type Transport interface {
	Execute(ctx context.Context, req *store.Request, meta []chain.Metadata) (*store.Response, error)
}

type Config struct {
	Requests  RequestStore
	Responses ResponseStore
	// Transport for sending dependent requests again.
	// Resends are skipped if nil.
	Transport Transport
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Optional metrics.
	Metrics *Metrics
	// Clock used for response age. Defaults to time.Now.
	Now func() time.Time
}

// Resolver resolves cookie values from the responses of dependent requests,
// sending the requests again when their stored responses are not usable.
type Resolver struct {
	requests  RequestStore
	responses ResponseStore
	transport Transport
	log       zerolog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// CreateResolver creates a resolver from the given config.
func CreateResolver(config Config) *Resolver {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		requests:  config.Requests,
		responses: config.Responses,
		transport: config.Transport,
		log:       logger.With().Str("component", "resolver").Logger(),
		metrics:   config.Metrics,
		now:       now,
	}
}

// Args are the arguments of a cookie lookup as given by the host,
// before validation.
type Args struct {
	// Id of the dependent request.
	Request string
	// Name of the cookie.
	Cookie string
	// Trigger behavior, case-insensitive. Defaults to "never".
	Trigger string
	// Max age in seconds for "when-expired". Defaults to 60.
	MaxAge *float64
}

// Policy validates the arguments into a policy.
func (a Args) Policy() (policy.Policy, error) {
	if a.Request == "" {
		return policy.Policy{}, missingArgument("dependent request id")
	}
	if a.Cookie == "" {
		return policy.Policy{}, missingArgument("cookie name")
	}
	trigger, _ := policy.ParseTrigger(a.Trigger)
	maxAge := float64(policy.DefaultMaxAge)
	if a.MaxAge != nil {
		maxAge = *a.MaxAge
	}
	return policy.Policy{
		CookieName: a.Cookie,
		Trigger:    trigger,
		MaxAge:     maxAge,
	}, nil
}

// Resolve validates the host arguments and resolves the cookie value.
func (r *Resolver) Resolve(ctx context.Context, ec EvalContext, args Args) (string, error) {
	value, _, err := r.ResolveWithStatus(ctx, ec, args)
	return value, err
}

// ResolveWithStatus is Resolve, also returning how the response was obtained.
func (r *Resolver) ResolveWithStatus(ctx context.Context, ec EvalContext, args Args) (string, resendstatus.Status, error) {
	p, err := args.Policy()
	if err != nil {
		r.metrics.recordResolution(err)
		return "", resendstatus.Status{}, err
	}
	if p.Trigger == policy.Unknown {
		// TODO reject unknown triggers once hosts validate the value before rendering
		r.log.Warn().Str("trigger", args.Trigger).Str("request", args.Request).
			Msg("Unknown trigger behavior, the request will not be sent")
	}
	return r.resolve(ctx, ec, args.Request, p)
}

// ResolveCookie resolves the value of the cookie named by the policy from the
// response of the dependent request ref, sending the request again first if
// the policy says so and the evaluation is a real send.
func (r *Resolver) ResolveCookie(ctx context.Context, ec EvalContext, ref string, p policy.Policy) (string, error) {
	value, _, err := r.resolve(ctx, ec, ref, p)
	return value, err
}

func (r *Resolver) resolve(ctx context.Context, ec EvalContext, ref string, p policy.Policy) (string, resendstatus.Status, error) {
	value, status, err := r.doResolve(ctx, ec, ref, p)
	r.metrics.recordResolution(err)
	return value, status, err
}

func (r *Resolver) doResolve(ctx context.Context, ec EvalContext, ref string, p policy.Policy) (string, resendstatus.Status, error) {
	var status resendstatus.Status
	if ref == "" {
		return "", status, missingArgument("dependent request id")
	}
	if p.CookieName == "" {
		return "", status, missingArgument("cookie name")
	}

	log := r.log.With().
		Str("request", ref).
		Str("cookie", p.CookieName).
		Str("env", ec.Environment).
		Logger()

	req, err := r.requests.Request(ctx, ref)
	if err != nil {
		return "", status, fmt.Errorf("get request %s: %w", ref, err)
	}
	if req == nil {
		return "", status, requestNotFound(ref)
	}

	last, err := r.responses.LatestResponse(ctx, ref, ec.Environment)
	if err != nil {
		return "", status, fmt.Errorf("get latest response for %s: %w", ref, err)
	}

	resend := policy.ShouldResend(last, p, r.now())
	r.metrics.recordDecision(p.Trigger, resend)
	status = resendstatus.New(initialState(last, resend))
	log.Trace().Str("policy", p.String()).Bool("resend", resend).Msg("Resend decided")

	if resend {
		last, err = r.resend(ctx, ec, req, last, &status, log)
		if err != nil {
			return "", status, err
		}
	}
	if last != nil {
		status.Response(policy.Age(last, r.now()))
	}
	log.Debug().Str("status", status.String()).Msg("Dependent response selected")

	value, err := extract(last, ref, p.CookieName, log)
	return value, status, err
}

func initialState(last *store.Response, resend bool) resendstatus.State {
	if last == nil {
		return resendstatus.StateNoPrior
	}
	if resend {
		return resendstatus.StateStale
	}
	return resendstatus.StateFresh
}

// resend executes the dependent request if the evaluation allows it and the
// request is not already in the chain. It returns the response to use,
// which is the last known one if nothing was executed.
func (r *Resolver) resend(
	ctx context.Context, ec EvalContext, req *store.Request, last *store.Response,
	status *resendstatus.Status, log zerolog.Logger,
) (*store.Response, error) {
	if ec.Purpose != PurposeSend {
		log.Trace().Str("purpose", string(ec.Purpose)).Msg("Not sending dependent request outside of send")
		status.Skip(resendstatus.SkipReasonPurpose)
		return last, nil
	}
	if r.transport == nil {
		log.Warn().Msg("No transport configured, using last known response")
		status.Skip(resendstatus.SkipReasonNoTransport)
		return last, nil
	}
	if ec.Chain.Contains(req.ID) {
		log.Debug().Strs("chain", ec.Chain).Msg("Request already in chain, using last known response")
		r.metrics.recordCycleSkip()
		status.Skip(resendstatus.SkipReasonCycle)
		return last, nil
	}

	next := ec.Chain.Append(req.ID)
	status.Resend()
	log.Debug().Strs("chain", next).Msg("Sending dependent request")
	res, err := r.transport.Execute(ctx, req, next.Metadata())
	if err != nil {
		r.metrics.recordExecution("error")
		log.Error().Err(err).Msg("Could not send dependent request")
		return nil, dependencyFailed(req.ID, err)
	}
	if res == nil {
		r.metrics.recordExecution("none")
		log.Debug().Msg("Dependent request produced no response, using last known response")
		return last, nil
	}
	r.metrics.recordExecution("ok")
	return res, nil
}

// extract validates the response and returns the value of the first cookie
// with the given name.
func extract(res *store.Response, ref, cookieName string, log zerolog.Logger) (string, error) {
	if res == nil {
		return "", noResponse(ref)
	}
	if res.Error != "" {
		return "", dependencyFailed(ref, errors.New(res.Error))
	}
	if res.StatusCode == 0 {
		return "", noSuccessfulResponse(ref)
	}

	values := cookie.SetCookieValues(res)
	if len(values) == 0 {
		return "", noCookies(ref)
	}
	cookies, errs := cookie.Parse(values)
	for _, err := range errs {
		log.Warn().Err(err).Msg("Skipping invalid Set-Cookie header")
	}
	c, ok := cookie.Find(cookies, cookieName)
	if !ok {
		return "", cookieNotFound(ref, cookieName, cookie.Names(cookies))
	}
	return c.Value, nil
}
