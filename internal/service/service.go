package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-dashboard/internal/cache"
	"github.com/kjstillabower/forecast-dashboard/internal/client"
	"github.com/kjstillabower/forecast-dashboard/internal/models"
	"github.com/kjstillabower/forecast-dashboard/internal/observability"
	"github.com/kjstillabower/forecast-dashboard/internal/timezone"
	"github.com/kjstillabower/forecast-dashboard/internal/validation"
)

// ErrForecastDisabled is returned by GetForecast when the location gate is closed.
var ErrForecastDisabled = errors.New("forecast disabled: location unresolved")

const (
	cacheTypeLocation = "location"
	cacheTypeForecast = "forecast"

	// DefaultLocationStaleTime is how long a resolved location is reused.
	DefaultLocationStaleTime = 30 * time.Minute
)

// Options tunes DashboardService. Zero values select defaults.
type Options struct {
	// LocationStaleTime is the staleness window for resolved locations.
	LocationStaleTime time.Duration
	// ForecastTTL is how long a forecast query result is reused. Zero disables forecast caching.
	ForecastTTL time.Duration
	// CoalesceTimeout bounds shared upstream fetches. Zero disables coalescing.
	CoalesceTimeout time.Duration
	// Timezones backfills Location.Timezone when the upstream omits it. Optional.
	Timezones timezone.Finder
}

// coordinates identify the forecast queries a visitor last used.
type coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DashboardService resolves visitor locations and forecast series using
// cache-aside lookups keyed the way the page's query keys are built.
type DashboardService struct {
	api       client.WeatherAPI
	locations cache.Cache[models.Location]
	forecasts cache.Cache[models.ForecastResponse]
	opts      Options

	lastCoords        *cache.InMemoryCache[coordinates]
	locationCoalescer *requestCoalescer[models.Location]
	forecastCoalescer *requestCoalescer[models.ForecastResponse]
}

// NewDashboardService wires the service over the upstream API and the two query caches.
func NewDashboardService(api client.WeatherAPI, locations cache.Cache[models.Location], forecasts cache.Cache[models.ForecastResponse], opts Options) *DashboardService {
	if opts.LocationStaleTime <= 0 {
		opts.LocationStaleTime = DefaultLocationStaleTime
	}
	s := &DashboardService{
		api:        api,
		locations:  locations,
		forecasts:  forecasts,
		opts:       opts,
		lastCoords: cache.NewInMemoryCache[coordinates](time.Minute),
	}
	if opts.CoalesceTimeout > 0 {
		s.locationCoalescer = newRequestCoalescer[models.Location](opts.CoalesceTimeout)
		s.forecastCoalescer = newRequestCoalescer[models.ForecastResponse](opts.CoalesceTimeout)
	}
	return s
}

// ResolveLocation returns the visitor's location, reusing a cached value for
// the staleness window. Failures, including coordinates off the globe, yield
// Unresolved and are not cached.
func (s *DashboardService) ResolveLocation(ctx context.Context, visitor string) LocationState {
	key := locationKey(visitor)
	logger := observability.LoggerFromContext(ctx)

	if loc, ok := cacheGet(ctx, s.locations, key, cacheTypeLocation, logger); ok {
		observability.LocationResolutionsTotal.WithLabelValues("resolved").Inc()
		return Resolved(loc)
	}

	fetch := func(fctx context.Context) (models.Location, error) {
		return s.api.GetLocation(fctx, visitor)
	}
	loc, err := coalesce(ctx, s.locationCoalescer, key, cacheTypeLocation, fetch)
	if err == nil {
		err = validation.ValidateCoordinates(loc.Latitude, loc.Longitude)
	}
	if err != nil {
		observability.LocationResolutionsTotal.WithLabelValues("unresolved").Inc()
		if logger != nil {
			logger.Warn("location unresolved", zap.Error(err))
		}
		return Unresolved()
	}

	s.backfillTimezone(&loc, logger)
	cacheSet(ctx, s.locations, key, loc, s.opts.LocationStaleTime, logger)
	s.trackCoordinates(ctx, key, loc, logger)
	observability.LocationResolutionsTotal.WithLabelValues("resolved").Inc()
	return Resolved(loc)
}

// GetForecast returns the forecast series for the resolved location and period.
// Returns ErrForecastDisabled without contacting the upstream when the gate is closed.
func (s *DashboardService) GetForecast(ctx context.Context, state LocationState, period models.Period) (models.ForecastResponse, error) {
	if !state.ForecastEnabled() {
		return models.ForecastResponse{}, ErrForecastDisabled
	}
	lat, lon := state.Location.Latitude, state.Location.Longitude
	key := ForecastKey(lat, lon, period)
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	if cached, ok := cacheGet(ctx, s.forecasts, key, cacheTypeForecast, logger); ok {
		if logger != nil {
			logger.Debug("forecast served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	fetch := func(fctx context.Context) (models.ForecastResponse, error) {
		return s.api.GetForecast(fctx, lat, lon, period)
	}
	resp, err := coalesce(ctx, s.forecastCoalescer, key, cacheTypeForecast, fetch)
	if err != nil {
		return models.ForecastResponse{}, fmt.Errorf("fetch forecast %s: %w", key, err)
	}

	cacheSet(ctx, s.forecasts, key, resp, s.opts.ForecastTTL, logger)
	if logger != nil {
		logger.Debug("forecast served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return resp, nil
}

// ForecastKey builds the query key for a forecast: endpoint, latitude, longitude, period.
func ForecastKey(lat, lon float64, period models.Period) string {
	return strings.Join([]string{
		"/api/forecast",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
		period.String(),
	}, "|")
}

func locationKey(visitor string) string {
	if visitor == "" {
		return "/api/location|-"
	}
	return "/api/location|" + visitor
}

// trackCoordinates invalidates the forecast entries built for the visitor's
// previous coordinates when a fresh location moved them.
func (s *DashboardService) trackCoordinates(ctx context.Context, visitorKey string, loc models.Location, logger *zap.Logger) {
	now := coordinates{Lat: loc.Latitude, Lon: loc.Longitude}
	prev, ok, _ := s.lastCoords.Get(ctx, visitorKey)
	_ = s.lastCoords.Set(ctx, visitorKey, now, s.coordsTTL())
	if !ok || prev == now {
		return
	}
	for _, p := range models.Periods {
		key := ForecastKey(prev.Lat, prev.Lon, p)
		if err := s.forecasts.Delete(ctx, key); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("delete", categorizeCacheError(err)).Inc()
			if logger != nil {
				logger.Warn("forecast invalidation failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	if logger != nil {
		logger.Info("visitor coordinates changed; forecasts invalidated",
			zap.Float64("prev_lat", prev.Lat), zap.Float64("prev_lon", prev.Lon),
			zap.Float64("lat", now.Lat), zap.Float64("lon", now.Lon))
	}
}

// coordsTTL keeps a visitor's coordinates at least as long as the forecasts built from them.
func (s *DashboardService) coordsTTL() time.Duration {
	ttl := 2 * s.opts.LocationStaleTime
	if s.opts.ForecastTTL > ttl {
		ttl = s.opts.ForecastTTL
	}
	return ttl
}

func (s *DashboardService) backfillTimezone(loc *models.Location, logger *zap.Logger) {
	if loc.Timezone != "" || s.opts.Timezones == nil || !loc.HasCoordinates() {
		return
	}
	tz, err := s.opts.Timezones.Timezone(loc.Latitude, loc.Longitude)
	if err != nil {
		if logger != nil {
			logger.Debug("timezone backfill failed", zap.Error(err))
		}
		return
	}
	loc.Timezone = tz
}

// coalesce runs fetch through rc when coalescing is enabled, otherwise directly.
func coalesce[V any](ctx context.Context, rc *requestCoalescer[V], key, cacheType string, fetch func(context.Context) (V, error)) (V, error) {
	if rc == nil {
		return fetch(ctx)
	}
	v, shared, err := rc.GetOrDo(ctx, key, fetch)
	if shared {
		observability.CacheStampedeDetectedTotal.WithLabelValues(cacheType).Inc()
		if err == nil {
			observability.RequestCoalescingHitsTotal.WithLabelValues(cacheType).Inc()
		}
	}
	return v, err
}

func cacheGet[V any](ctx context.Context, c cache.Cache[V], key, cacheType string, logger *zap.Logger) (V, bool) {
	start := time.Now()
	v, ok, err := c.Get(ctx, key)
	d := time.Since(start).Seconds()
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(d)
		if logger != nil {
			logger.Warn("cache get failed", zap.String("cache", cacheType), zap.Error(err))
		}
		return v, false
	case ok:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(d)
		observability.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return v, true
	default:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(d)
		observability.CacheMissesTotal.WithLabelValues(cacheType).Inc()
		return v, false
	}
}

func cacheSet[V any](ctx context.Context, c cache.Cache[V], key string, v V, ttl time.Duration, logger *zap.Logger) {
	start := time.Now()
	if err := c.Set(ctx, key, v, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
