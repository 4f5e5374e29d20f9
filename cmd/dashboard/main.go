package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/forecast-dashboard/internal/cache"
	"github.com/kjstillabower/forecast-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/forecast-dashboard/internal/client"
	"github.com/kjstillabower/forecast-dashboard/internal/config"
	"github.com/kjstillabower/forecast-dashboard/internal/health"
	httphandler "github.com/kjstillabower/forecast-dashboard/internal/http"
	"github.com/kjstillabower/forecast-dashboard/internal/models"
	"github.com/kjstillabower/forecast-dashboard/internal/observability"
	"github.com/kjstillabower/forecast-dashboard/internal/service"
	"github.com/kjstillabower/forecast-dashboard/internal/timezone"
)

const breakerComponent = "forecast_api"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the wired process: the router plus what shutdown needs.
type app struct {
	handler http.Handler
	monitor *health.Monitor
	pool    *cache.MemcachedPool
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	a, err := build(cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	a.monitor.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// build wires client, caches, service and router from cfg.
func build(cfg *config.Config, logger *zap.Logger) (*app, error) {
	api, err := client.NewAPIClient(cfg.ForecastAPIURL, cfg.APITimeout)
	if err != nil {
		return nil, fmt.Errorf("forecast client: %w", err)
	}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		IsFailure:        client.IsBreakerFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(breakerComponent, int(to))
			logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	api.SetCircuitBreaker(cb)
	observability.SetCircuitBreakerStateGauge(breakerComponent, int(circuitbreaker.StateClosed))

	a := &app{}
	var locations cache.Cache[models.Location]
	var forecasts cache.Cache[models.ForecastResponse]
	switch cfg.CacheBackend {
	case "memcached":
		a.pool = cache.NewMemcachedPool(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err := a.pool.Ping(); err != nil {
			logger.Warn("memcached unreachable at startup", zap.String("addrs", cfg.MemcachedAddrs), zap.Error(err))
		}
		locations = cache.NewMemcachedCache[models.Location](a.pool, "location:")
		forecasts = cache.NewMemcachedCache[models.ForecastResponse](a.pool, "forecast:")
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		locations = cache.NewInMemoryCache[models.Location](time.Minute)
		forecasts = cache.NewInMemoryCache[models.ForecastResponse](time.Minute)
		logger.Info("cache backend: in_memory")
	}

	opts := service.Options{
		LocationStaleTime: cfg.LocationStaleTime,
		ForecastTTL:       cfg.ForecastTTL,
		CoalesceTimeout:   cfg.CoalesceTimeout,
	}
	if cfg.TimezoneLookup {
		finder, err := timezone.NewFinder()
		if err != nil {
			logger.Warn("timezone lookup disabled", zap.Error(err))
		} else {
			opts.Timezones = finder
		}
	}
	dashboard := service.NewDashboardService(api, locations, forecasts, opts)

	tracker := health.NewTracker()
	a.monitor = health.NewMonitor(health.Config{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
	}, tracker)
	observability.RegisterRateLimitGauges(cfg.OverloadWindow, tracker)

	renderer, err := httphandler.NewRenderer()
	if err != nil {
		return nil, err
	}
	hcfg := httphandler.HandlerConfig{TrustForwardedFor: cfg.TrustForwardedFor, Version: version}
	if a.pool != nil {
		hcfg.CachePing = a.pool.Ping
	}
	if cfg.PrefetchEnabled {
		hcfg.Prefetcher = service.NewPrefetcher(dashboard, logger, cfg.PrefetchTimeout)
		logger.Info("forecast prefetch enabled")
	}
	handler := httphandler.NewHandler(dashboard, a.monitor, renderer, logger, hcfg)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	a.handler = httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		Tracker:        tracker,
		RequestTimeout: cfg.RequestTimeout,
	})
	return a, nil
}
