package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/events"
	"github.com/jonathan/resume-pipeline/internal/generation"
	"github.com/jonathan/resume-pipeline/internal/jobs"
	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/memstore"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/status"
	"github.com/redis/go-redis/v9"
)

// backend is everything the scheduler and the status service read and write
type backend interface {
	jobs.Store
	status.Reader
}

// appOptions selects which parts of the service a command needs
type appOptions struct {
	// pipeline builds the generator and compiler used to run jobs
	pipeline bool
	// migrate applies pending migrations before connecting
	migrate bool
}

// app holds the wired service components for one process
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     backend
	database  *db.DB
	metrics   *observability.Metrics
	publisher events.Publisher
	redis     *redis.Client
	status    *status.Service
	scheduler *jobs.Scheduler
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}

	if err := a.openStore(ctx, opts.migrate); err != nil {
		return nil, err
	}
	if err := a.openEvents(); err != nil {
		a.Close()
		return nil, err
	}

	statusOpts := status.Options{Logger: logger}
	if err := a.openCache(ctx, &statusOpts); err != nil {
		a.Close()
		return nil, err
	}
	a.status = status.NewService(a.store, statusOpts)

	deps := jobs.Deps{
		Store:     a.store,
		Publisher: a.publisher,
		Metrics:   a.metrics,
		Logger:    logger,
	}
	if opts.pipeline {
		if !cfg.HasProviderKey() {
			a.Close()
			return nil, fmt.Errorf("no generation provider is configured with an API key (PROVIDER_ORDER=%s)", strings.Join(cfg.ProviderOrder, ","))
		}
		generator, compiler, err := a.buildPipeline(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Generator, deps.Compiler = generator, compiler
	}

	a.scheduler = jobs.NewScheduler(deps, jobs.Config{
		WorkerID:             workerIdentity(cfg.WorkerID),
		LeaseDuration:        cfg.LeaseDuration,
		MaxAttempts:          cfg.MaxAttempts,
		BackoffBase:          cfg.BackoffBase,
		BackoffMax:           cfg.BackoffMax,
		MinDescriptionLength: cfg.MinDescriptionLength,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context, migrate bool) error {
	if a.cfg.StoreBackend == config.StoreMemory {
		a.logger.Warn("using in-memory store; jobs are lost on exit and not shared between processes")
		a.store = memstore.New()
		return nil
	}

	if migrate {
		if err := db.Migrate(a.cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.database = database
	a.store = database
	a.closers = append(a.closers, func() error { database.Close(); return nil })
	return nil
}

func (a *app) openEvents() error {
	switch a.cfg.EventsBackend {
	case config.EventsNSQ:
		p, err := events.NewNSQPublisher(a.cfg.NSQDAddr, a.cfg.EventsTopic)
		if err != nil {
			return err
		}
		a.publisher = p
	case config.EventsAMQP:
		p, err := events.NewAMQPPublisher(a.cfg.AMQPURL, a.cfg.EventsTopic)
		if err != nil {
			return err
		}
		a.publisher = p
	default:
		a.publisher = events.Noop{}
	}
	a.closers = append(a.closers, a.publisher.Close)
	return nil
}

func (a *app) openCache(ctx context.Context, opts *status.Options) error {
	if a.cfg.RedisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	cache := status.NewRedisCache(client, a.cfg.ArtifactCacheTTL, a.logger)
	if err := cache.Ping(ctx); err != nil {
		// the cache is optional; reads fall through to the store
		a.logger.Warn("artifact cache unavailable", "error", err)
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	opts.Cache = cache
	return nil
}

// buildPipeline creates one provider per configured name that has credentials
func (a *app) buildPipeline(ctx context.Context) (*generation.Orchestrator, *compile.Compiler, error) {
	var providers []generation.Provider
	for _, name := range a.cfg.ProviderOrder {
		client, err := a.newLLMClient(ctx, llm.Provider(name))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s client: %w", name, err)
		}
		if client == nil {
			a.logger.Warn("skipping provider without API key", "provider", name)
			continue
		}
		provider := generation.NewLLMProvider(name, client).WithTier(llm.ModelTier(a.cfg.ModelTier))
		a.closers = append(a.closers, provider.Close)
		providers = append(providers, provider)
	}

	orchestrator, err := generation.New(providers, generation.Options{
		Timeout:  a.cfg.ProviderTimeout,
		Logger:   a.logger,
		Observer: a.metrics,
	})
	if err != nil {
		return nil, nil, err
	}

	compiler := compile.New(compile.Config{
		Command:  a.cfg.LatexCommand,
		Timeout:  a.cfg.CompileTimeout,
		WorkRoot: a.cfg.CompileWorkDir,
	}, a.logger)

	a.logger.Info("pipeline ready",
		"providers", orchestrator.Providers(),
		"compiler", a.cfg.LatexCommand,
		"compile_timeout", a.cfg.CompileTimeout)
	return orchestrator, compiler, nil
}

// newLLMClient returns nil when the provider has no API key
func (a *app) newLLMClient(ctx context.Context, provider llm.Provider) (llm.Client, error) {
	var apiKey, model string
	switch provider {
	case llm.ProviderGemini:
		apiKey, model = a.cfg.GeminiAPIKey, a.cfg.GeminiModel
	case llm.ProviderOpenRouter:
		apiKey, model = a.cfg.OpenRouterAPIKey, a.cfg.OpenRouterModel
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if apiKey == "" {
		return nil, nil
	}

	llmCfg := llm.ConfigFor(provider)
	if model != "" {
		llmCfg = llmCfg.WithModel(llm.ModelTier(a.cfg.ModelTier), model)
	}
	return llm.NewClient(ctx, llmCfg, apiKey, llm.OpenRouterOptions{
		BaseURL:  a.cfg.OpenRouterBaseURL,
		AppTitle: "resume-pipeline",
	})
}

// ready reports whether the store and cache are reachable
func (a *app) ready(ctx context.Context) error {
	if a.database != nil {
		if err := a.database.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error during shutdown", "error", err)
		}
	}
	a.closers = nil
}

// workerIdentity defaults to host-pid so lease owners are traceable
func workerIdentity(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
