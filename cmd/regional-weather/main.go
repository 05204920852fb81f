package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/regional-weather/internal/api/http"
	"github.com/i474232898/regional-weather/internal/config"
	"github.com/i474232898/regional-weather/internal/logging"
	"github.com/i474232898/regional-weather/internal/metrics"
	"github.com/i474232898/regional-weather/internal/normalize"
	"github.com/i474232898/regional-weather/internal/scheduler"
	"github.com/i474232898/regional-weather/internal/store"
	"github.com/i474232898/regional-weather/internal/tasks"
	"github.com/i474232898/regional-weather/internal/weather"
	"github.com/i474232898/regional-weather/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Regional partition store.
	var (
		partitions weather.Store
		resultRoot string
	)
	switch cfg.StoreBackend {
	case config.StoreMemory:
		partitions = store.NewMemoryStore()
	default:
		fs, err := store.NewFileStore(cfg.DataDir, lg)
		if err != nil {
			lg.WithError(err).Fatal("failed to open partition store")
		}
		partitions = fs
		resultRoot = fs.Root()
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Providers with resilience (backoff + circuit breaker).
	provider, err := providers.Build(cfg.ProviderSettings(), httpClient)
	if err != nil {
		lg.WithError(err).Fatal("failed to configure weather provider")
	}

	ingestor := weather.NewIngestor(partitions, provider, normalize.New(),
		weather.WithFetchTimeout(cfg.FetchTimeout),
		weather.WithConcurrency(cfg.CityConcurrency),
		weather.WithTemperatureRange(cfg.TemperatureRange()),
		weather.WithLogger(lg),
		weather.WithMetrics(m),
	)
	retriever := weather.NewRetriever(partitions, lg, m)

	// Task state lives in Redis when configured so several instances share it.
	var statuses tasks.StatusStore = tasks.NewMemoryStatusStore(cfg.TaskResultTTL)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			lg.WithError(err).WithField("addr", cfg.RedisAddr).Fatal("failed to reach redis")
		}
		statuses = tasks.NewRedisStatusStore(rdb, cfg.TaskResultTTL)
	}

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	gateway := tasks.New(ingestor, statuses, tasks.Options{
		Workers:     cfg.TaskWorkers,
		QueueSize:   cfg.TaskQueueSize,
		MaxAttempts: cfg.TaskMaxAttempts,
		RunTimeout:  cfg.TaskRunTimeout,
		RetryDelay:  time.Second,
	}, lg, m)
	gateway.Start(runCtx)

	// Scheduler that periodically submits the configured cities.
	sched := scheduler.New(cfg.ScheduledCities, cfg.FetchInterval, gateway, lg)
	if err := sched.Start(); err != nil {
		lg.WithError(err).Fatal("failed to start scheduler")
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "regional-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "regional-weather",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// API routes.
	httpapi.RegisterRoutes(app, gateway, retriever, resultRoot)

	go func() {
		lg.WithField("port", cfg.Port).Info("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			lg.WithError(err).Info("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.WithError(err).Warn("error during shutdown")
	}
	sched.Stop()
	stopGateway(gateway, cancelRuns, lg)
}

// stopGateway drains the task queue, cancelling in-flight runs if draining
// takes too long.
func stopGateway(g *tasks.Gateway, cancelRuns context.CancelFunc, lg logrus.FieldLogger) {
	done := make(chan struct{})
	go func() {
		g.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		lg.Warn("task drain timed out; cancelling in-flight runs")
		cancelRuns()
		<-done
	}
}
