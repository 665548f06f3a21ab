package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"therapath.app/insight/common/id"
	"therapath.app/insight/common/llm"
	"therapath.app/insight/common/logger"
	"therapath.app/insight/common/otel"
	"therapath.app/insight/core/config"
	"therapath.app/insight/core/db"
	"therapath.app/insight/internal/cache"
	"therapath.app/insight/internal/engine"
	"therapath.app/insight/internal/fallback"
	"therapath.app/insight/internal/handler"
	"therapath.app/insight/internal/ledger"
	"therapath.app/insight/internal/store"
)

// The worker owns the calendar-driven jobs: the daily insight digest, weekly
// pattern detection, and the monthly progress report. Event-driven tasks run
// inside the ingress server, which owns its own queue.
func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "insight worker starting", "env", cfg.Env)

	// Different node ID than the server so IDs never collide
	if err := id.Init(id.NodeWorker); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.InfoContext(ctx, "redis connected")
	}

	st := store.NewPgStore(database)

	registry := fallback.NewRegistry()
	registerProviders(ctx, registry, cfg)
	slog.InfoContext(ctx, "providers registered", "count", registry.Len())

	respCache := cache.New(cache.Config{TTL: cfg.Cache.TTL, Capacity: cfg.Cache.Capacity}, redisClient)
	costLedger := ledger.New(cfg.Budget.DailyLimitUSD, redisClient)
	executor := fallback.NewExecutor(registry, respCache, costLedger, fallback.Config{
		ProbeTimeout:    cfg.Engine.ProbeTimeout,
		GenerateTimeout: cfg.Engine.GenerateTimeout,
	})

	notifier := engine.NewNotifier()
	notifier.Subscribe(engine.LogListener())
	queue := engine.NewTaskQueue(notifier)

	processor := engine.NewProcessor(queue, notifier, engine.ProcessorConfig{
		PollInterval:   cfg.Engine.PollInterval,
		RetryBaseDelay: cfg.Engine.RetryBaseDelay,
	})
	handler.New(st, executor).RegisterAll(processor)

	scheduler := engine.NewPeriodicScheduler(queue, engine.SchedulerConfig{
		DailyHour:    cfg.Schedule.DailyHour,
		WeeklyDay:    time.Weekday(cfg.Schedule.WeeklyDay),
		WeeklyHour:   cfg.Schedule.WeeklyHour,
		MonthlyHour:  cfg.Schedule.MonthlyHour,
		TickInterval: cfg.Schedule.TickInterval,
		MaxRetries:   cfg.Engine.MaxRetries,
	})

	runCtx, cancel := context.WithCancel(ctx)

	errCh := make(chan error, 2)
	go func() {
		errCh <- processor.Run(runCtx)
	}()
	go func() {
		scheduler.Run(runCtx)
		errCh <- nil
	}()
	go registry.RunHealthLoop(runCtx, cfg.Engine.HealthCheckInterval, cfg.Engine.ProbeTimeout)

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	scheduler.Stop()
	processor.Stop()
	cancel()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "engine error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

func registerProviders(ctx context.Context, registry *fallback.Registry, cfg config.Config) {
	providers := []struct {
		name string
		cfg  config.ProviderConfig
	}{
		{llm.ProviderOpenAI, cfg.OpenAI},
		{llm.ProviderAnthropic, cfg.Anthropic},
		{llm.ProviderGemini, cfg.Gemini},
	}
	for _, p := range providers {
		if !p.cfg.Enabled() {
			continue
		}
		provider, err := llm.New(p.name, llm.Config{
			APIKey:  p.cfg.APIKey,
			BaseURL: p.cfg.BaseURL,
			Model:   p.cfg.Model,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create provider", "provider", p.name, "error", err)
			os.Exit(1)
		}
		registry.Register(provider, p.cfg.Priority, p.cfg.Rate)
		slog.InfoContext(ctx, "provider registered",
			"provider", p.name,
			"model", p.cfg.Model,
			"priority", p.cfg.Priority)
	}
}

const banner = `
therapath insight · worker
`
