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
	"go.uber.org/zap"

	httpapi "github.com/i474232898/weather-monitor/internal/api/http"
	"github.com/i474232898/weather-monitor/internal/config"
	"github.com/i474232898/weather-monitor/internal/logging"
	"github.com/i474232898/weather-monitor/internal/metrics"
	"github.com/i474232898/weather-monitor/internal/scheduler"
	"github.com/i474232898/weather-monitor/internal/store"
	"github.com/i474232898/weather-monitor/internal/store/postgres"
	"github.com/i474232898/weather-monitor/internal/weather"
	"github.com/i474232898/weather-monitor/internal/weather/providers"
)

const serviceName = "weather-monitor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	metrics.Init()

	zone, err := cfg.Source.Location()
	if err != nil {
		lg.Fatal("invalid time zone", zap.Error(err))
	}
	clock := weather.SystemClock{Loc: zone}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres when a DSN is configured, memory otherwise.
	var (
		st         weather.Store
		closeStore = func() {}
	)
	if cfg.Store.DSN != "" {
		pg, err := postgres.NewStore(ctx, postgres.Config{DSN: cfg.Store.DSN, MaxConns: cfg.Store.MaxConns})
		if err != nil {
			lg.Fatal("failed to open postgres store", zap.Error(err))
		}
		st, closeStore = pg, pg.Close
		lg.Info("using postgres store")
	} else {
		st = store.NewMemoryStore()
		lg.Info("using in-memory store")
	}
	defer closeStore()

	// Shared HTTP client for outbound provider calls.
	httpCfg := providers.NewHTTPClientConfig(&http.Client{Timeout: cfg.Source.HTTPTimeout}, cfg.Source.MaxRetries)

	var sources []weather.Source
	for _, name := range cfg.Source.Providers {
		switch name {
		case "openmeteo":
			sources = append(sources, providers.NewOpenMeteoProvider(httpCfg, clock))
		case "weatherapi":
			sources = append(sources, providers.NewWeatherAPIProvider(httpCfg, cfg.Source.WeatherAPIKey, clock))
		case "openweather":
			sources = append(sources, providers.NewOpenWeatherProvider(httpCfg, cfg.Source.OpenWeatherAPIKey, clock))
		}
	}
	var source weather.Source = providers.NewFailover(lg, sources...)

	if cfg.Redis.Addr != "" {
		rdb, err := providers.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Warn("redis unavailable, source cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			source = providers.NewCachedSource(source, rdb, cfg.Redis.TTL, clock, lg)
		}
	}

	opts := []weather.Option{weather.WithClock(clock), weather.WithLogger(lg)}
	if cfg.Geocoder.APIKey != "" {
		opts = append(opts, weather.WithGeocoder(providers.NewGoogleGeocoder(cfg.Geocoder.APIKey)))
	}
	service := weather.NewService(st, source, opts...)

	registry := scheduler.NewRegistry(service, scheduler.Config{
		Interval:     cfg.Sync.Interval,
		CycleTimeout: cfg.Sync.CycleTimeout,
	}, lg)

	// Starts a job for every stored location and keeps the registry in line with the store.
	supervisor := scheduler.NewSupervisor(st, registry, cfg.Sync.ReconcileInterval, lg)
	if err := supervisor.Start(); err != nil {
		lg.Fatal("failed to start supervisor", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler:          httpapi.ErrorHandler(lg),
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
			"jobs":    registry.Len(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	httpapi.RegisterRoutes(app, service, registry, zone)

	go func() {
		lg.Info("http server listening", zap.String("port", cfg.Server.Port))
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			lg.Error("fiber server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("error during http shutdown", zap.Error(err))
	}
	supervisor.Stop()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		lg.Error("sync jobs did not stop in time", zap.Error(err))
	}
	lg.Info("stopped")
}
