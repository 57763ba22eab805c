package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/iamxurulin/xu-AI-Zero/internal/adapters/assets"
	"github.com/iamxurulin/xu-AI-Zero/internal/adapters/cli"
	"github.com/iamxurulin/xu-AI-Zero/internal/adapters/history"
	"github.com/iamxurulin/xu-AI-Zero/internal/codegen"
	"github.com/iamxurulin/xu-AI-Zero/internal/config"
	"github.com/iamxurulin/xu-AI-Zero/internal/core"
	"github.com/iamxurulin/xu-AI-Zero/internal/events"
	"github.com/iamxurulin/xu-AI-Zero/internal/generator"
	"github.com/iamxurulin/xu-AI-Zero/internal/logging"
	"github.com/iamxurulin/xu-AI-Zero/internal/metrics"
	"github.com/iamxurulin/xu-AI-Zero/internal/service/workflow"
	"github.com/iamxurulin/xu-AI-Zero/internal/stream"
	"github.com/iamxurulin/xu-AI-Zero/internal/tools"
	"github.com/iamxurulin/xu-AI-Zero/internal/workerpool"
)

// eventBufferSize is the per-subscriber buffer of the process event bus.
const eventBufferSize = 256

// app holds every long-lived component of one process.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *events.EventBus
	metrics  *metrics.Metrics
	history  core.HistoryStore
	cache    *generator.Cache
	workflow *workflow.Service
}

func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
}

// newApp wires the workflow from configuration.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := newLogger(cfg, logOut)
	m := metrics.New()
	m.SetBuildInfo(appVersion, appCommit)
	bus := events.New(eventBufferSize)

	store, err := history.New(ctx, history.Config{
		Backend:    cfg.History.Backend,
		SQLitePath: cfg.History.SQLitePath,
		RedisURL:   cfg.History.RedisURL,
		Prefix:     cfg.History.RedisPrefix,
		MaxLen:     int(cfg.History.RedisMaxLen),
		TTL:        cfg.History.RedisTTL,
	})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	agent := cli.NewClaudeAgent(cli.AgentConfig{
		Path:    cfg.Agent.Path,
		Model:   cfg.Agent.Model,
		Timeout: cfg.Agent.Timeout,
	}, logger)

	builder := cli.NewNpmBuilder(cli.NpmConfig{
		Path:           cfg.Build.NpmPath,
		InstallTimeout: cfg.Build.InstallTimeout,
		BuildTimeout:   cfg.Build.BuildTimeout,
	}, logger)

	providers := assets.New(assets.Config{
		PexelsAPIKey:      cfg.Assets.PexelsAPIKey,
		PexelsURL:         cfg.Assets.PexelsBaseURL,
		UndrawURL:         cfg.Assets.UndrawBaseURL,
		MermaidURL:        cfg.Assets.MermaidBaseURL,
		LogoURL:           cfg.Assets.LogoBaseURL,
		RequestsPerSecond: cfg.Assets.RequestsPerSecond,
		Timeout:           cfg.Assets.Timeout,
		MaxAttempts:       cfg.Assets.MaxAttempts,
	}, logger)

	cache, err := generator.NewCache(agent, store, generator.Config{
		Capacity:        cfg.Cache.Capacity,
		TTL:             cfg.Cache.TTL,
		IdleTTL:         cfg.Cache.IdleTTL,
		HistoryWindow:   cfg.Cache.HistoryWindow,
		MemoryWindow:    cfg.Cache.MemoryWindow,
		JanitorInterval: cfg.Cache.JanitorInterval,
	},
		generator.WithLogger(logger),
		generator.WithObserver(m.RecordCacheEvent),
		generator.WithEvictionListener(func(key generator.Key, cause generator.EvictCause) {
			bus.Publish(events.NewGeneratorEvictedEvent(key.String(), string(cause)))
		}),
	)
	if err != nil {
		_ = history.Close(store)
		bus.Close()
		return nil, err
	}

	mux := stream.New(codegen.NewRegistry(), tools.NewRegistry(tools.WithLogger(logger.WithComponent("tools"))), store, builder,
		stream.WithTimeout(cfg.Workflow.GenerationTimeout),
		stream.WithEventBus(bus),
		stream.WithLogger(logger.WithComponent("stream")),
	)

	svc, err := workflow.NewService(&workflow.Deps{
		Config: workflow.Config{
			OutputDir:         cfg.Workflow.OutputDir,
			MaxQualityRetries: cfg.Workflow.MaxQualityRetries,
			MaxSteps:          cfg.Workflow.MaxSteps,
		},
		Planner:       agent,
		Images:        providers.Pexels,
		Illustrations: providers.Undraw,
		Diagrams:      providers.Mermaid,
		Logos:         providers.Logos,
		Classifier:    agent,
		Checker:       agent,
		Builder:       builder,
		History:       store,
		Generators:    cache,
		Multiplexer:   mux,
		Pool: workerpool.New(cfg.Collection.Workers, cfg.Collection.QueueSize,
			workerpool.WithPendingObserver(m.SetPoolPending)),
		Bus:     bus,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		_ = history.Close(store)
		bus.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		metrics:  m,
		history:  store,
		cache:    cache,
		workflow: svc,
	}, nil
}

// Close releases the history store and the event bus.
func (a *app) Close() {
	a.cache.Purge()
	if err := history.Close(a.history); err != nil {
		a.logger.Warn("closing history store failed", "error", err)
	}
	a.bus.Close()
}
