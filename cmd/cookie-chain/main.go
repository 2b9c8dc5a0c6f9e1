package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	cookiechain "github.com/always-cache/cookie-chain"
	"github.com/always-cache/cookie-chain/api"
	"github.com/always-cache/cookie-chain/config"
	"github.com/always-cache/cookie-chain/store"
	"github.com/always-cache/cookie-chain/transport"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	storeFlag          string
	dbFilenameFlag     string
	redisAddrFlag      string
	environmentFlag    string
	verbosityTraceFlag bool
	logFilenameFlag    string
	rateLimitFlag      int
	resolveFlag        string
	cookieFlag         string
	triggerFlag        string
	maxAgeFlag         float64

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Config file (YAML)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (default from config, 8080)")
	flag.StringVar(&storeFlag, "store", "", "Store backend: memory, sqlite or redis")
	flag.StringVar(&dbFilenameFlag, "db", "", "SQLite DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&redisAddrFlag, "redis", "", "Redis address for the redis store")
	flag.StringVar(&environmentFlag, "env", "", "Environment to resolve in")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
	flag.IntVar(&rateLimitFlag, "rate-limit", 600, "API requests per minute per client IP (0 to disable)")
	flag.StringVar(&resolveFlag, "resolve", "", "Resolve a cookie from the response of this request id, print it and exit")
	flag.StringVar(&cookieFlag, "cookie", "", "Cookie name for -resolve")
	flag.StringVar(&triggerFlag, "trigger", "never", "Resend trigger for -resolve: never, no-history, when-expired or always")
	flag.Float64Var(&maxAgeFlag, "max-age", 60, "Max age in seconds for the when-expired trigger")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout, or stderr when printing a value
	// also output to logfile if specified
	var logOut io.Writer = os.Stdout
	if resolveFlag != "" {
		logOut = os.Stderr
	}
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: logOut})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()
	s, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("Could not open store")
	}
	defer s.Close()

	if !saveRequests(ctx, s, cfg.Requests) {
		log.Fatal().Msg("Could not save requests from config")
	}

	registry := prometheus.NewRegistry()
	envs := transport.NewEnvironments(transport.StackConfig{
		Store:   s,
		Logger:  &log.Logger,
		Metrics: cookiechain.NewMetrics(registry),
	})

	if resolveFlag != "" {
		// os.Exit skips deferred calls
		os.Exit(closeAfter(s, resolve(ctx, envs.Get(cfg.Environment), cfg.Environment)))
	}

	if configFilenameFlag != "" {
		err := config.Watch(ctx, configFilenameFlag, log.Logger, func(c config.Config) {
			saveRequests(ctx, s, c.Requests)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config changes will not be picked up")
		}
	}

	router := api.NewRouter(api.Config{
		Store:        s,
		Environments: envs,
		Gatherer:     registry,
		RateLimit:    rateLimitFlag,
		Logger:       &log.Logger,
	})
	log.Info().Msgf("Listening on port %d (store %s, default environment '%s')", cfg.Port, cfg.Store, cfg.Environment)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// loadConfig reads the config file if given and applies the flags over it.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configFilenameFlag != "" {
		var err error
		if cfg, err = config.Load(configFilenameFlag); err != nil {
			return cfg, err
		}
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if storeFlag != "" {
		cfg.Store = storeFlag
	}
	if dbFilenameFlag != "" {
		cfg.SQLite.Filename = dbFilenameFlag
	}
	if redisAddrFlag != "" {
		cfg.Redis.Addr = redisAddrFlag
	}
	if environmentFlag != "" {
		cfg.Environment = environmentFlag
	}
	return cfg, cfg.Validate()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemStore(), nil
	case config.StoreRedis:
		return store.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Prefix)
	default:
		dbFilename := cfg.SQLite.Filename
		if dbFilename == "memory" {
			dbFilename = ""
		}
		return store.NewSQLiteStore(dbFilename)
	}
}

// saveRequests saves request definitions, reporting whether all were saved.
func saveRequests(ctx context.Context, s store.RequestStore, requests []store.Request) bool {
	ok := true
	for _, req := range requests {
		if err := s.PutRequest(ctx, req); err != nil {
			log.Error().Err(err).Str("request", req.ID).Msg("Could not save request")
			ok = false
		}
	}
	log.Debug().Msgf("Saved %d requests from config", len(requests))
	return ok
}

// closeAfter closes c and passes code through.
func closeAfter(c io.Closer, code int) int {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("Could not close store")
	}
	return code
}

// resolve prints the cookie value and returns the exit code.
func resolve(ctx context.Context, stack transport.Stack, environment string) int {
	maxAge := maxAgeFlag
	ec := cookiechain.EvalContext{Environment: environment, Purpose: cookiechain.PurposeSend}
	value, status, err := stack.Resolver.ResolveWithStatus(ctx, ec, cookiechain.Args{
		Request: resolveFlag,
		Cookie:  cookieFlag,
		Trigger: triggerFlag,
		MaxAge:  &maxAge,
	})
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
		return 1
	}
	log.Debug().Str("status", status.String()).Msg("Resolved")
	color.New(color.FgGreen).Println(value)
	return 0
}
