package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

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
	"therapath.app/insight/internal/http/middleware"
	httprouter "therapath.app/insight/internal/http/router"
	"therapath.app/insight/internal/ledger"
	"therapath.app/insight/internal/service"
	"therapath.app/insight/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses the OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "insight server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(id.NodeServer); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
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

	// The queue is process-local, so the server runs its own engine for the
	// event-driven tasks it enqueues. Calendar-driven jobs run in the worker.
	registry := fallback.NewRegistry()
	registerProviders(ctx, registry, cfg)

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

	intake := service.NewIntake(queue, cfg.Engine.MaxRetries)

	engineCtx, cancelEngine := context.WithCancel(ctx)
	go func() {
		if err := processor.Run(engineCtx); err != nil {
			slog.ErrorContext(engineCtx, "processor stopped", "error", err)
		}
	}()
	go registry.RunHealthLoop(engineCtx, cfg.Engine.HealthCheckInterval, cfg.Engine.ProbeTimeout)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, st, intake, registry)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	processor.Stop()
	cancelEngine()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
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

func setupRouter(cfg config.Config, st store.Store, intake *service.Intake, registry *fallback.Registry) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span, Recovery catches panics, Logger logs
	// with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, st, intake, registry)

	return router
}

const banner = `
 ┬┌┐┌┌─┐┬┌─┐┬ ┬┌┬┐
 ││││└─┐││ ┬├─┤ │
 ┴┘└┘└─┘┴└─┘┴ ┴ ┴   therapath insight engine
`
