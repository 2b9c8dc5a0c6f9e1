package transport

import (
	"net/http"
	"sync"
	"time"

	cookiechain "github.com/always-cache/cookie-chain"
	"github.com/always-cache/cookie-chain/render"
	"github.com/always-cache/cookie-chain/store"

	"github.com/rs/zerolog"
)

// Stack is a resolver and the transport it sends with, bound to one environment.
type Stack struct {
	Resolver  *cookiechain.Resolver
	Transport *HTTPTransport
}

type StackConfig struct {
	Store   store.Store
	Client  *http.Client
	Logger  *zerolog.Logger
	Metrics *cookiechain.Metrics
	Now     func() time.Time
}

// NewStack wires a transport, resolver and renderer for the environment.
func NewStack(config StackConfig, environment string) Stack {
	t := New(Config{
		Responses:   config.Store,
		Environment: environment,
		Client:      config.Client,
		Logger:      config.Logger,
		Now:         config.Now,
	})
	resolver := cookiechain.CreateResolver(cookiechain.Config{
		Requests:  config.Store,
		Responses: config.Store,
		Transport: t,
		Logger:    config.Logger,
		Metrics:   config.Metrics,
		Now:       config.Now,
	})
	t.SetRenderer(render.New(resolver, config.Logger))
	return Stack{Resolver: resolver, Transport: t}
}

// Environments creates stacks on first use and keeps them, so concurrent
// sends in an environment share one transport.
type Environments struct {
	config StackConfig
	mutex  sync.Mutex
	stacks map[string]Stack
}

func NewEnvironments(config StackConfig) *Environments {
	return &Environments{
		config: config,
		stacks: make(map[string]Stack),
	}
}

// Get returns the stack of the environment.
func (e *Environments) Get(environment string) Stack {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	stack, ok := e.stacks[environment]
	if !ok {
		stack = NewStack(e.config, environment)
		e.stacks[environment] = stack
	}
	return stack
}
