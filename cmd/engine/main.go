package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"forgeflow.app/engine/common/id"
	"forgeflow.app/engine/common/logger"
	"forgeflow.app/engine/common/otel"
	"forgeflow.app/engine/core/config"
	"forgeflow.app/engine/core/db"
	"forgeflow.app/engine/internal/engine"
	"forgeflow.app/engine/internal/model"
	"forgeflow.app/engine/internal/status"
	"forgeflow.app/engine/internal/store"
	"forgeflow.app/engine/internal/tracker"
	"forgeflow.app/engine/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ServiceTypeEngine)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
		}
	}()

	logger.Setup(cfg)

	slog.InfoContext(ctx, "engine starting",
		"env", cfg.Env,
		"project_id", cfg.GitLab.ProjectID,
		"iteration_interval", cfg.Engine.IterationInterval,
		"cycle_quota", cfg.Engine.CycleQuota)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	sched, cleanup, err := buildScheduler(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build scheduler", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.InfoContext(ctx, "engine initialized and running")

	for iteration := 1; ; iteration++ {
		report, err := sched.RunCycle(ctx, iteration)
		if err != nil {
			slog.ErrorContext(ctx, "cycle skipped", "iteration", iteration, "error", err)
		} else {
			slog.InfoContext(ctx, "cycle summary",
				"iteration", iteration,
				"processed", report.Processed(),
				"skipped", report.Skipped,
				"elapsed", report.Elapsed)
		}

		select {
		case <-ctx.Done():
			slog.InfoContext(context.Background(), "engine shutdown complete")
			return
		case <-time.After(cfg.Engine.IterationInterval):
		}
	}
}

func buildScheduler(ctx context.Context, cfg config.Config) (*engine.Scheduler, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	tr, err := tracker.NewGitLab(cfg.GitLab)
	if err != nil {
		return nil, cleanup, fmt.Errorf("creating tracker: %w", err)
	}

	var emitter engine.StatusEmitter
	if cfg.Status.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Status.RedisURL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, cleanup, fmt.Errorf("connecting to redis: %w", err)
		}
		cleanups = append(cleanups, func() { _ = redisClient.Close() })
		emitter = status.NewEmitter(redisClient, cfg.Status.Stream)
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Status.Stream)
	}

	var audit engine.AuditStore
	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting to database: %w", err)
		}
		cleanups = append(cleanups, database.Close)
		auditStore := store.NewAuditStore(database)
		if err := auditStore.Migrate(ctx); err != nil {
			return nil, cleanup, err
		}
		audit = auditStore
		slog.InfoContext(ctx, "database connected")
	}

	registry := engine.NewRegistry()
	registry.Register(model.RouteBackend, buildProcessor(cfg.Workers.Backend, cfg.Workers.Dir))
	registry.Register(model.RouteFrontend, buildProcessor(cfg.Workers.Frontend, cfg.Workers.Dir))
	registry.Register(model.RouteArchitecture, buildProcessor(cfg.Workers.Architecture, cfg.Workers.Dir))

	poller := engine.NewCheckPoller(tr, cfg.Engine.CheckInterval, cfg.Engine.CheckTimeout)
	sched := engine.New(engine.Params{
		Tracker:  tr,
		Registry: registry,
		Router:   engine.NewRouter(model.RouteKey(cfg.Engine.DefaultRoute)),
		Driver:   engine.NewDriver(tr, poller),
		Emitter:  emitter,
		Audit:    audit,
		Quota:    cfg.Engine.CycleQuota,
		Pacing:   cfg.Engine.ItemPacing,
	})
	return sched, cleanup, nil
}

func buildProcessor(command, dir string) worker.Processor {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return worker.NewStubProcessor()
	}
	return worker.NewCommandProcessor(fields[0], fields[1:], dir, worker.ExecCommandRunner{})
}

const banner = `
███████╗ ██████╗ ██████╗  ██████╗ ███████╗███████╗██╗      ██████╗ ██╗    ██╗
██╔════╝██╔═══██╗██╔══██╗██╔════╝ ██╔════╝██╔════╝██║     ██╔═══██╗██║    ██║
█████╗  ██║   ██║██████╔╝██║  ███╗█████╗  █████╗  ██║     ██║   ██║██║ █╗ ██║
██╔══╝  ██║   ██║██╔══██╗██║   ██║██╔══╝  ██╔══╝  ██║     ██║   ██║██║███╗██║
██║     ╚██████╔╝██║  ██║╚██████╔╝███████╗██║     ███████╗╚██████╔╝╚███╔███╔╝
╚═╝      ╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝     ╚══════╝ ╚═════╝  ╚══╝╚══╝
`
