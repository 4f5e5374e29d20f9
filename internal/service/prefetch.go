package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-dashboard/internal/models"
	"github.com/kjstillabower/forecast-dashboard/internal/observability"
)

// ForecastFetcher is the part of DashboardService the prefetcher needs.
type ForecastFetcher interface {
	GetForecast(ctx context.Context, state LocationState, period models.Period) (models.ForecastResponse, error)
}

// Prefetcher warms the forecast cache for the periods a visitor has not opened yet,
// so switching tabs is served from cache.
type Prefetcher struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
	timeout time.Duration
}

// NewPrefetcher creates a Prefetcher. timeout bounds one prefetch run.
func NewPrefetcher(fetcher ForecastFetcher, logger *zap.Logger, timeout time.Duration) *Prefetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prefetcher{fetcher: fetcher, logger: logger, timeout: timeout}
}

// Prefetch fetches every period except active concurrently. Returns an aggregated
// error if any period failed. Does nothing when the location gate is closed.
func (p *Prefetcher) Prefetch(ctx context.Context, state LocationState, active models.Period) error {
	if !state.ForecastEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	observability.PrefetchTotal.Inc()

	var wg sync.WaitGroup
	errCh := make(chan error, len(models.Periods))
	for _, period := range models.Periods {
		if period == active {
			continue
		}
		wg.Add(1)
		go func(period models.Period) {
			defer wg.Done()
			if _, err := p.fetcher.GetForecast(ctx, state, period); err != nil {
				errCh <- fmt.Errorf("prefetch %s: %w", period, err)
			}
		}(period)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if p.logger != nil {
		p.logger.Debug("prefetch complete", zap.String("active", active.String()), zap.Int("errors", len(errs)), zap.Duration("duration", time.Since(start)))
	}
	if len(errs) > 0 {
		observability.PrefetchErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// PrefetchAsync runs Prefetch in the background, detached from the request's cancellation.
func (p *Prefetcher) PrefetchAsync(ctx context.Context, state LocationState, active models.Period) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := p.Prefetch(bg, state, active); err != nil && p.logger != nil {
			p.logger.Warn("prefetch failed", zap.Error(err))
		}
	}()
}
