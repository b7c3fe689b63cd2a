package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"aide/internal/agent"
	"aide/internal/agent/ports"
	"aide/internal/config"
	"aide/internal/connectors"
	"aide/internal/logging"
	"aide/internal/notification"
	"aide/internal/observability"
	"aide/internal/scheduler"
	serverhttp "aide/internal/server/http"
	"aide/internal/taskstore"
	"aide/internal/tools"
	"aide/internal/tools/builtin"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "aide-server",
		Short: "Task-agent execution server",
		Long:  "aide-server runs the assistant's task agent: resumable multi-step runs with tool use, pause/resume for human input, and an HTTP surface for tasks and events.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config file (default ~/.aide-config.json)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := logging.NewComponentLogger("Main")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("provider=%s model=%s host=%s port=%d", cfg.LLMProvider, cfg.LLMModel, cfg.ServerHost, cfg.ServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when a database is configured, in-memory otherwise.
	var (
		taskDir     builtin.TaskDirectory
		eventStore  ports.EventStore
		tokenSource connectors.TokenSource
		notifier    ports.Notifier
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		store := taskstore.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("preparing task schema: %w", err)
		}
		pgTokens := connectors.NewPostgresSource(pool)
		if err := pgTokens.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("preparing token schema: %w", err)
		}
		pgNotifier := notification.NewPostgresNotifier(pool)
		if err := pgNotifier.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("preparing notification schema: %w", err)
		}
		taskDir, eventStore = store, store.Events()
		tokenSource, notifier = pgTokens, pgNotifier
		logger.Info("using Postgres store")
	} else {
		store := taskstore.NewMemoryStore()
		taskDir, eventStore = store, store.Events()
		tokenSource, notifier = connectors.NewMemorySource(), notification.NewMemoryNotifier()
		logger.Warn("no database_url configured, running on in-memory stores")
	}

	tokens := connectors.NewService(tokenSource,
		connectors.WithGoogleCredentials(cfg.GoogleClientID, cfg.GoogleClientSecret))

	metrics := observability.NewRunMetrics()
	registry := tools.NewRegistry(eventStore).WithMetrics(metrics)
	registry.MustRegister(builtin.All(&builtin.Deps{
		Records:      builtin.NewMemoryRecords(),
		Tasks:        taskDir,
		Events:       eventStore,
		Notifier:     notifier,
		Tokens:       tokens,
		TavilyAPIKey: cfg.TavilyAPIKey,
		GitHubToken:  cfg.GitHubToken,
	})...)

	sched := scheduler.New(256)
	engine := agent.NewEngine(agent.Capabilities{
		Tasks:     taskDir.Tasks(),
		Events:    eventStore,
		Tools:     registry,
		Settings:  config.NewStaticSettings(cfg),
		Notifier:  notifier,
		Scheduler: sched,
	}, agent.BudgetsFromConfig(cfg),
		agent.WithMetrics(metrics))
	sched.Start(engine)
	defer sched.Stop()

	server := serverhttp.NewServer(serverhttp.Config{
		Host:           cfg.ServerHost,
		Port:           cfg.ServerPort,
		AllowedOrigins: cfg.AllowedOrigins,
	}, engine, taskDir, eventStore, sched)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
