package main

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"stract/internal/api"
	"stract/internal/cache"
	"stract/internal/config"
	"stract/internal/errors"
	"stract/internal/metrics"
	"stract/internal/orchestrator"
	"stract/internal/paths"
	"stract/internal/slogutil"
	"stract/internal/transport"
)

// lookupClient is the part of the API served from the cache when it is enabled.
type lookupClient interface {
	Autosuggest(ctx context.Context, q string, opts ...transport.CallOption) ([]api.Suggestion, error)
	HostIngoing(ctx context.Context, host string, opts ...transport.CallOption) ([]api.FullEdge, error)
	HostOutgoing(ctx context.Context, host string, opts ...transport.CallOption) ([]api.FullEdge, error)
	PageIngoing(ctx context.Context, page string, opts ...transport.CallOption) ([]api.FullEdge, error)
	PageOutgoing(ctx context.Context, page string, opts ...transport.CallOption) ([]api.FullEdge, error)
	SimilarHosts(ctx context.Context, q api.SimilarHostsQuery, opts ...transport.CallOption) ([]api.ScoredHost, error)
	KnowsHost(ctx context.Context, host string, opts ...transport.CallOption) (api.KnowsHost, error)
	ExploreExport(ctx context.Context, q api.ExploreExportQuery, opts ...transport.CallOption) (string, error)
	HostsExport(ctx context.Context, r api.HostRankings, opts ...transport.CallOption) (string, error)
}

// app bundles everything a command needs. Close releases it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	tracer trace.Tracer
	tr     *transport.Transport
	client *api.Client
	cache  *cache.Cache
	cached *api.CachedClient

	logOut      *os.File
	stopMetrics context.CancelFunc
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.New(errors.ConfigInvalid, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(errors.ConfigInvalid, "invalid config", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	a.logger, a.logOut, err = newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a.tracer = newTracer(cfg)

	a.tr, err = transport.FromConfig(cfg.Backend, a.tracer, a.logger)
	if err != nil {
		a.Close()
		return nil, errors.New(errors.ConfigInvalid, "invalid backend settings", err)
	}
	a.client = api.NewClient(a.tr, a.logger)

	if cfg.Cache.Enabled && !noCache {
		a.openCache()
	}
	a.startMetrics(ctx)

	a.logger.Debug("Client ready", "endpoint", a.tr.BaseURL(), "cache", a.cache != nil)
	return a, nil
}

// openCache enables the response cache. Failure only disables caching.
func (a *app) openCache() {
	path := a.cfg.Cache.Path
	if path == "" {
		p, err := paths.GetCachePath()
		if err != nil {
			a.logger.Warn("Response cache disabled", "error", err)
			return
		}
		path = p
	}

	c, err := cache.Open(path, a.logger)
	if err != nil {
		a.logger.Warn("Response cache disabled", "path", path, "error", err)
		return
	}
	a.cache = c
	a.cached = api.NewCachedClient(a.client, c, api.CacheTTLs{
		Autosuggest: a.cfg.Cache.AutosuggestTTL(),
		Webgraph:    a.cfg.Cache.WebgraphTTL(),
	}, a.logger)
}

func (a *app) startMetrics(ctx context.Context) {
	addr := metricsAddr
	if addr == "" && a.cfg.Metrics.Enabled {
		addr = a.cfg.Metrics.Addr
	}
	if addr == "" {
		return
	}

	mctx, cancel := context.WithCancel(ctx)
	a.stopMetrics = cancel
	go func() {
		if err := metrics.Serve(mctx, addr, a.logger); err != nil {
			a.logger.Warn("Metrics server stopped", "addr", addr, "error", err)
		}
	}()
}

// lookups returns the cached client when caching is on.
func (a *app) lookups() lookupClient {
	if a.cached != nil {
		return a.cached
	}
	return a.client
}

func (a *app) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.FromConfig(a.client, a.cfg.Search, orchestrator.NewHTTPOpticResolver(a.tr), a.tracer, a.logger)
}

func (a *app) Close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Failed to close cache", "error", err)
		}
	}
	if a.logOut != nil {
		_ = a.logOut.Close()
	}
}

// newLogger builds the CLI logger. -v/--quiet win over the configured level.
func newLogger(cfg *config.Config) (*slog.Logger, *os.File, error) {
	cliSet := verbosity > 0 || quiet
	level := slogutil.EffectiveLevel(cfg.Logging.Level, slogutil.LevelFromVerbosity(verbosity, quiet), cliSet)
	logger := slogutil.New(cfg.Logging.Format, os.Stderr, level)

	if logFile == "" {
		return logger, nil, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.New(errors.ConfigInvalid, "cannot open log file", err)
	}
	tee := slogutil.NewTeeHandler(
		logger.Handler(),
		slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	return slog.New(tee), f, nil
}

func newTracer(cfg *config.Config) trace.Tracer {
	if cfg.Tracing.Enabled {
		return otel.Tracer("stract")
	}
	return noop.NewTracerProvider().Tracer("stract")
}
