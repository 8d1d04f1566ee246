package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/profilefile"
	"github.com/JonMunkholm/sheetload/internal/runlog"
	"github.com/JonMunkholm/sheetload/internal/sink"
	"github.com/JonMunkholm/sheetload/internal/source"
	"github.com/JonMunkholm/sheetload/internal/trigger"
	"github.com/JonMunkholm/sheetload/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	registry, err := profilefile.LoadRegistry(ctx, cfg.Ingest.ProfilesDir)
	if err != nil {
		slog.Error("failed to load profiles", "error", err)
		os.Exit(1)
	}
	for _, p := range registry.All() {
		slog.Debug("profile registered", "name", p.Name, "prefix", p.InputPrefix, "destination", p.Destination)
	}
	slog.Info("profiles registered", "count", len(registry.All()))

	store := source.NewDirStore(cfg.Ingest.StoreRoot)
	src := source.New(store, source.WithMaxObjectBytes(cfg.Ingest.MaxObjectBytes))

	var opts []core.PipelineOption
	if cfg.Ingest.ReferenceYear > 0 {
		opts = append(opts, core.WithReferenceYear(cfg.Ingest.ReferenceYear))
	}
	pipeline := core.NewPipeline(src, sink.NewPostgres(pool), opts...)

	limiter := core.NewInvocationLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	dispatchOpts := []trigger.DispatcherOption{
		trigger.WithLimiter(limiter),
		trigger.WithTimeout(cfg.Ingest.Timeout),
	}

	deps := web.Deps{Registry: registry, Limiter: limiter}
	var seen trigger.SeenChecker
	if cfg.Ingest.RunLog {
		runs := runlog.New(pool)
		if err := runs.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create run log schema", "error", err)
			os.Exit(1)
		}
		dispatchOpts = append(dispatchOpts, trigger.WithRecorder(runs))
		deps.Runs = runs
		seen = runs
	}

	dispatcher := trigger.NewDispatcher(registry, pipeline, dispatchOpts...)
	deps.Handler = dispatcher

	sweeper := trigger.NewSweeper(store, registry, dispatcher, seen, cfg.Ingest.Container)
	deps.Sweeper = sweeper

	server := web.NewServer(deps, cfg.Server, cfg.Security.TrustedProxies)

	// Background jobs stop on shutdown; runs they started drain through the limiter.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	var jobs sync.WaitGroup

	if cfg.Watch.Enabled {
		watcher := trigger.NewWatcher(store, dispatcher, cfg.Ingest.Container, cfg.Watch.SettleDelay)
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			if err := watcher.Run(jobCtx); err != nil {
				slog.Error("watcher failed", "error", err)
			}
		}()
	}

	if cfg.Sweep.Enabled {
		sched, err := sweeper.Schedule(jobCtx, cfg.Sweep.Schedule)
		if err != nil {
			slog.Error("failed to schedule sweep", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
		slog.Info("sweep scheduled", "schedule", cfg.Sweep.Schedule, "container", cfg.Ingest.Container)

		if cfg.Sweep.OnStart {
			jobs.Add(1)
			go func() {
				defer jobs.Done()
				if _, err := sweeper.Sweep(jobCtx); err != nil {
					slog.Error("startup sweep failed", "error", err)
				}
			}()
		}
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if st := limiter.Status(); st.Active > 0 {
			slog.Info("waiting for runs to complete", "active", st.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}
		jobs.Wait()
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
