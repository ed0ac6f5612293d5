package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/flowtrack/internal/config"
	"github.com/mtlprog/flowtrack/internal/database"
	"github.com/mtlprog/flowtrack/internal/handler"
	"github.com/mtlprog/flowtrack/internal/indexsync"
	"github.com/mtlprog/flowtrack/internal/logger"
	"github.com/mtlprog/flowtrack/internal/repository"
	"github.com/mtlprog/flowtrack/internal/search"
)

func main() {
	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	app := &cli.App{
		Name:  "flowtrack",
		Usage: "Event-sourced workflow analytics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   config.DefaultLogFormat,
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:     "database-url",
				Aliases:  []string{"d"},
				Value:    config.DefaultDatabaseURL,
				Usage:    "PostgreSQL database URL",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "elasticsearch-url",
				Value:   config.DefaultElasticsearchURL,
				Usage:   "Elasticsearch URL; search runs degraded when empty",
				EnvVars: []string{"ELASTICSEARCH_URL"},
			},
			&cli.StringFlag{
				Name:    "elasticsearch-api-key",
				Usage:   "Elasticsearch API key",
				EnvVars: []string{"ELASTICSEARCH_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "elasticsearch-username",
				Usage:   "Elasticsearch basic auth username",
				EnvVars: []string{"ELASTICSEARCH_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "elasticsearch-password",
				Usage:   "Elasticsearch basic auth password",
				EnvVars: []string{"ELASTICSEARCH_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "index-prefix",
				Value:   config.DefaultIndexPrefix,
				Usage:   "Prefix of the task and event index names",
				EnvVars: []string{"INDEX_PREFIX"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(logger.ParseLevel(c.String("log-level")), c.String("log-format"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the web server",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   config.DefaultPort,
						Usage:   "HTTP server port",
						EnvVars: []string{"PORT"},
					},
				}, mirrorFlags()...),
				Action: runServe,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the search indices from the primary store",
				Action: runReindex,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "purge-dead-letters",
						Usage: "Delete dead letters recorded before the reindex started",
					},
				},
			},
			{
				Name:  "dead-letters",
				Usage: "Inspect index writes that could not be delivered",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "Print the oldest dead letters",
						Action: runDeadLettersList,
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of entries"},
						},
					},
					{
						Name:   "purge",
						Usage:  "Delete dead letters older than a duration",
						Action: runDeadLettersPurge,
						Flags: []cli.Flag{
							&cli.DurationFlag{Name: "older-than", Value: 0, Usage: "Keep entries newer than this (0 deletes all)"},
						},
					},
				},
			},
		},
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func mirrorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "mirror-workers",
			Value:   config.DefaultMirrorWorkers,
			Usage:   "Goroutines applying index writes",
			EnvVars: []string{"MIRROR_WORKERS"},
		},
		&cli.IntFlag{
			Name:    "mirror-queue-size",
			Value:   config.DefaultMirrorQueueSize,
			Usage:   "Pending index writes before new ones are dead-lettered",
			EnvVars: []string{"MIRROR_QUEUE_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "mirror-timeout",
			Value:   config.DefaultMirrorTimeout,
			Usage:   "Timeout of a single index request",
			EnvVars: []string{"MIRROR_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "mirror-max-attempts",
			Value:   config.DefaultMirrorMaxAttempts,
			Usage:   "Tries per index write, including the first (1 disables retry)",
			EnvVars: []string{"MIRROR_MAX_ATTEMPTS"},
		},
	}
}

// openDatabase connects and applies pending migrations.
func openDatabase(c *cli.Context) (*database.DB, error) {
	db, err := database.New(c.Context, c.String("database-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(c.Context, db.Pool()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// newSearchClient returns nil when no Elasticsearch URL is configured.
func newSearchClient(c *cli.Context) (*search.Client, error) {
	if c.String("elasticsearch-url") == "" {
		return nil, nil
	}
	return search.New(search.Config{
		URL:         c.String("elasticsearch-url"),
		APIKey:      c.String("elasticsearch-api-key"),
		Username:    c.String("elasticsearch-username"),
		Password:    c.String("elasticsearch-password"),
		IndexPrefix: c.String("index-prefix"),
	})
}

func runServe(c *cli.Context) error {
	ctx := c.Context

	port := c.String("port")
	if port == "" {
		port = config.DefaultPort
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := newSearchClient(c)
	if err != nil {
		return err
	}

	// The backend must stay a nil interface when search is not configured.
	var backend indexsync.Backend
	if client != nil {
		backend = client
		if err := client.EnsureIndices(ctx); err != nil {
			slog.Warn("search index not ready, search will run degraded", "error", err)
		}
	} else {
		slog.Warn("elasticsearch not configured, search will run degraded")
	}

	syncer := indexsync.New(backend, repository.NewDeadLetterRepository(db.Pool()), indexsync.Config{
		Workers:          c.Int("mirror-workers"),
		QueueSize:        c.Int("mirror-queue-size"),
		OperationTimeout: c.Duration("mirror-timeout"),
		MaxAttempts:      c.Int("mirror-max-attempts"),
	})
	syncer.Start(context.WithoutCancel(ctx))

	h := handler.New(db.Pool(), syncer)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "server_addr", "http://localhost:"+port, "search_enabled", syncer.Enabled())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
		slog.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.DefaultShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Mirror jobs queued by the last requests are drained after the server stops.
	if err := syncer.Close(shutdownCtx); err != nil {
		slog.Error("index synchronizer did not drain", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
