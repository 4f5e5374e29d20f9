//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/forecast-dashboard/internal/models"
)

// TestMemcachedCache_GetSetDelete_Integration verifies round trips against a
// memcached server on localhost.
func TestMemcachedCache_GetSetDelete_Integration(t *testing.T) {
	pool := NewMemcachedPool("localhost:11211", 500*time.Millisecond, 2)
	defer pool.Close()
	if err := pool.Ping(); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}
	c := NewMemcachedCache[models.ForecastResponse](pool, "forecast-test:")

	ctx := context.Background()
	conf := 77.0
	val := models.ForecastResponse{Data: []models.DayPoint{{Date: "2025-01-01", TempMax: 3, TempMin: -2}}, Confidence: &conf}
	if err := c.Set(ctx, "47.6:-122.3:daily", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "47.6:-122.3:daily")
	if err != nil || !ok {
		t.Fatalf("Get() = (_, %v, %v), want hit", ok, err)
	}
	if len(got.Data) != 1 || got.Data[0].TempMin != -2 || got.ConfidenceOrDefault() != 77 {
		t.Errorf("Get() = %+v", got)
	}

	if err := c.Delete(ctx, "47.6:-122.3:daily"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete(ctx, "47.6:-122.3:daily"); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, ok, _ := c.Get(ctx, "47.6:-122.3:daily"); ok {
		t.Error("Get() after Delete ok = true")
	}
}
