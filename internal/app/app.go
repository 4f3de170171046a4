// Package app is the composition root: it wires configuration,
// collaborators, the tool catalog, and the assistant core into one
// container. No business logic lives here, only dependency assembly.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novaops/nova/db"
	"github.com/novaops/nova/internal/assembler"
	"github.com/novaops/nova/internal/assistant"
	"github.com/novaops/nova/internal/collab"
	"github.com/novaops/nova/internal/config"
	"github.com/novaops/nova/internal/executor"
	"github.com/novaops/nova/internal/knowledge"
	"github.com/novaops/nova/internal/router"
	"github.com/novaops/nova/internal/session"
	"github.com/novaops/nova/internal/tool"
)

// App holds every long-lived component of a running nova process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Registry  *tool.Registry
	Executor  *executor.Executor
	Store     session.Store
	Assistant *assistant.Assistant
}

// Setup builds the full application from configuration. The returned
// App owns the database pool; call Close on shutdown.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	connURL := cfg.PostgresConnURL()
	if err := db.Migrate(connURL, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// collaborators
	analytics := collab.NewMetadataStore(pool, logger.With("component", "analytics"))

	var cpOpts []collab.ControlPlaneOption
	if cfg.ControlPlaneInsecure {
		cpOpts = append(cpOpts, collab.WithInsecureTLS())
	}
	control := collab.NewControlPlaneClient(
		cfg.ControlPlaneURL, cfg.ControlPlaneUser, cfg.ControlPlanePassword,
		logger.With("component", "control-plane"), cpOpts...)
	monitoring := collab.NewMonitoringClient(
		cfg.ResolvedMonitoringURL(), cfg.ControlPlaneUser, cfg.ControlPlanePassword,
		logger.With("component", "monitoring"), cpOpts...)

	// tool catalog, frozen for the lifetime of the process
	registry := tool.NewRegistry(logger.With("component", "registry"))
	if err := tool.RegisterBuiltins(registry); err != nil {
		pool.Close()
		return nil, fmt.Errorf("building tool catalog: %w", err)
	}
	registry.Freeze()

	rt, err := router.New(registry, logger.With("component", "router"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating router: %w", err)
	}

	exec, err := executor.New(executor.Config{
		Registry:   registry,
		Analytics:  analytics,
		Control:    control,
		Monitoring: monitoring,
		Timeout:    cfg.ToolTimeout,
		Logger:     logger.With("component", "executor"),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating executor: %w", err)
	}

	corpus, err := loadCorpus(cfg.KnowledgeDir, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	store := newStore(cfg, pool, logger)

	composer, err := newComposer(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	asst, err := assistant.New(assistant.Config{
		Store:        store,
		Registry:     registry,
		Router:       rt,
		Executor:     exec,
		Assembler:    assembler.New(assembler.DefaultPreamble, cfg.ContextBudget, cfg.HistoryTurns, logger.With("component", "assembler")),
		Corpus:       corpus,
		Composer:     composer,
		HistoryTurns: cfg.HistoryTurns,
		Logger:       logger.With("component", "assistant"),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating assistant: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Registry:  registry,
		Executor:  exec,
		Store:     store,
		Assistant: asst,
	}, nil
}

// Close releases the App's resources.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}

// loadCorpus reads the knowledge directory. A missing directory is not
// fatal; the assistant runs with an empty corpus.
func loadCorpus(dir string, logger *slog.Logger) (*knowledge.Corpus, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Warn("knowledge directory not found, starting with empty corpus",
			slog.String("dir", dir))
		return knowledge.NewCorpus(), nil
	}
	corpus, err := knowledge.LoadDir(dir, logger.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("loading knowledge corpus: %w", err)
	}
	return corpus, nil
}

func newStore(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) session.Store {
	if cfg.SessionBackend == config.SessionBackendPostgres {
		return session.NewPostgresStore(pool, logger.With("component", "sessions"))
	}
	return session.NewMemoryStore(logger.With("component", "sessions"))
}

// newComposer builds the optional LLM response composer. An empty model
// name disables it and the assistant falls back to deterministic
// rendering.
func newComposer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (assistant.Composer, error) {
	if cfg.ComposerModel == "" {
		return nil, nil
	}
	composer, err := assistant.NewGenAIComposer(ctx, cfg.ComposerModel, logger.With("component", "composer"))
	if err != nil {
		return nil, fmt.Errorf("creating response composer: %w", err)
	}
	return composer, nil
}
