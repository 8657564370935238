package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/de-tools/market-atlas/pkg/services/collector"
	"github.com/de-tools/market-atlas/pkg/services/config"
	"github.com/de-tools/market-atlas/pkg/services/credentials"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
	"github.com/de-tools/market-atlas/pkg/services/providers"
	"github.com/de-tools/market-atlas/pkg/services/queue"
	"github.com/de-tools/market-atlas/pkg/services/refresh"
	"github.com/de-tools/market-atlas/pkg/services/render"
	"github.com/de-tools/market-atlas/pkg/services/summary"
	"github.com/de-tools/market-atlas/pkg/services/workflow"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/snapshot"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/token"
	workflowstore "github.com/de-tools/market-atlas/pkg/store/duckdb/workflow"
)

// App holds the wired services shared by the web server and the CLI.
type App struct {
	DB        *sql.DB
	Reports   report.Store
	Snapshots snapshot.Store
	Tokens    *credentials.Source
	Collector *collector.Collector
	Engine    *workflow.DefaultEngine
	Queue     queue.Queue
	Refresh   *refresh.Scheduler
	Adapters  []providers.Adapter
}

// NewLogger builds the root logger from the log section of the config.
func NewLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// Build opens the database and wires every service. The caller owns Close.
func Build(ctx context.Context, cfg *config.App) (*App, error) {
	logger := zerolog.Ctx(ctx)

	db, err := duckdb.NewDB(duckdb.Settings{
		DbPath:  cfg.DB.Path,
		Threads: cfg.DB.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB instance: %w", err)
	}

	a := &App{DB: db}
	if err := a.wire(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	names := make([]string, 0, len(a.Adapters))
	for _, ad := range a.Adapters {
		names = append(names, string(ad.Name()))
	}
	logger.Info().
		Str("db", cfg.DB.Path).
		Str("queue", cfg.Queue.Driver).
		Str("sink", cfg.Render.Sink).
		Str("adapters", strings.Join(names, ",")).
		Msg("services wired")
	return a, nil
}

func (a *App) wire(ctx context.Context, cfg *config.App) error {
	var err error
	if a.Reports, err = report.NewStore(a.DB); err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}
	if a.Snapshots, err = snapshot.NewStore(a.DB); err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}
	workflows, err := workflowstore.NewStore(a.DB)
	if err != nil {
		return fmt.Errorf("failed to create workflow store: %w", err)
	}
	tokens, err := token.NewStore(a.DB)
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	a.Tokens = credentials.NewSource(tokens, credentials.DefaultRefreshers(
		cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret,
		cfg.OAuth.MetaClientID, cfg.OAuth.MetaClientSecret,
	))

	profiles, err := config.NewRegistry(cfg.Providers.Profiles)
	if err != nil {
		return fmt.Errorf("failed to load provider profiles: %w", err)
	}
	opts := providers.DefaultClientOptions()
	opts.Timeout = cfg.Collector.AdapterTimeout
	if a.Adapters, err = providers.Build(ctx, providers.DefaultRegistry(), profiles, opts); err != nil {
		return fmt.Errorf("failed to build provider adapters: %w", err)
	}

	a.Collector, err = collector.NewCollector(a.Reports, a.Snapshots, providers.NewSet(a.Adapters...), a.Tokens,
		collector.Config{
			AdapterTimeout: cfg.Collector.AdapterTimeout,
			MaxParallel:    cfg.Collector.MaxParallel,
		})
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}

	sink, err := newSink(ctx, cfg.Render)
	if err != nil {
		return err
	}
	renderer, err := render.NewRenderer(sink)
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	if a.Queue, err = newQueue(cfg); err != nil {
		return err
	}

	a.Engine, err = workflow.NewEngine(workflow.Dependencies{
		DB:        a.DB,
		Reports:   a.Reports,
		Snapshots: a.Snapshots,
		Workflows: workflows,
		Collector: a.Collector,
		Reducer:   kpi.NewReducer(kpi.DefaultRegistry()),
		Renderer:  renderer,
		Summarizer: summary.NewClient(summary.Config{
			Endpoint: cfg.Summary.Endpoint,
			Model:    cfg.Summary.Model,
			APIKey:   cfg.Summary.APIKey,
			Timeout:  cfg.Summary.Timeout,
		}),
		Queue: a.Queue,
	}, workflow.Config{
		MaxCompetitors: cfg.Workflow.MaxCompetitors,
		MaxAttempts:    cfg.Workflow.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to create workflow engine: %w", err)
	}

	if a.Refresh, err = refresh.NewScheduler(a.Reports, a.Engine, cfg.Refresh.Schedule); err != nil {
		return err
	}
	return nil
}

func newSink(ctx context.Context, cfg config.RenderConfig) (render.Sink, error) {
	switch cfg.Sink {
	case "s3":
		client, err := render.NewS3Client(ctx, cfg.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return render.NewS3Sink(client, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return render.NewFileSink(cfg.Dir)
	}
}

func newQueue(cfg *config.App) (queue.Queue, error) {
	switch cfg.Queue.Driver {
	case "amqp":
		q, err := queue.NewAMQPQueue(queue.AMQPConfig{
			URL:         cfg.Queue.AMQPURL,
			Exchange:    cfg.Queue.Exchange,
			Queue:       cfg.Queue.Queue,
			Prefetch:    cfg.Queue.Prefetch,
			Workers:     cfg.Workflow.Workers,
			MaxAttempts: cfg.Workflow.MaxAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect task queue: %w", err)
		}
		return q, nil
	default:
		return queue.NewMemoryQueue(cfg.Workflow.Workers, cfg.Workflow.MaxAttempts), nil
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil && !errors.Is(err, queue.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
