//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-dashboard/internal/cache"
	"github.com/kjstillabower/forecast-dashboard/internal/client"
	"github.com/kjstillabower/forecast-dashboard/internal/models"
	"github.com/kjstillabower/forecast-dashboard/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if FORECAST_API_URL is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiURL := os.Getenv("FORECAST_API_URL")
	if apiURL == "" {
		t.Skip("FORECAST_API_URL not set, skipping integration test")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationService creates a dashboard service against the live API.
// Returns the service, the forecast cache (for test setup) and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.DashboardService, cache.Cache[models.ForecastResponse], func()) {
	api, err := client.NewAPIClient(cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewAPIClient() error = %v", err)
	}

	var locations cache.Cache[models.Location]
	var forecasts cache.Cache[models.ForecastResponse]
	cleanup := func() {}

	if cfg.CacheBackend == "memcached" {
		pool := cache.NewMemcachedPool(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := pool.Ping(); err == nil {
			locations = cache.NewMemcachedCache[models.Location](pool, "it-location:")
			forecasts = cache.NewMemcachedCache[models.ForecastResponse](pool, "it-forecast:")
			cleanup = func() { _ = pool.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	}
	if locations == nil {
		locations = cache.NewInMemoryCache[models.Location](time.Minute)
		forecasts = cache.NewInMemoryCache[models.ForecastResponse](time.Minute)
	}

	svc := service.NewDashboardService(api, locations, forecasts, service.Options{
		ForecastTTL:     5 * time.Minute,
		CoalesceTimeout: 5 * time.Second,
	})
	return svc, forecasts, cleanup
}
