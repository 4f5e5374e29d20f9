package health

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Status values reported by /health.
const (
	StatusHealthy      = "healthy"
	StatusIdle         = "idle"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

// Config holds lifecycle thresholds.
type Config struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
}

// Result is one health evaluation.
type Result struct {
	Status     string
	StatusCode int
	Reason     string
}

// Monitor evaluates process health from the outcome tracker and the shutdown flag.
type Monitor struct {
	cfg          Config
	tracker      *Tracker
	shuttingDown atomic.Bool
	now          func() time.Time
}

// NewMonitor returns a Monitor over tracker.
func NewMonitor(cfg Config, tracker *Tracker) *Monitor {
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	return &Monitor{cfg: cfg, tracker: tracker, now: time.Now}
}

// Tracker returns the outcome tracker the monitor reads from.
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
func (m *Monitor) SetShuttingDown(v bool) {
	m.shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func (m *Monitor) IsShuttingDown() bool {
	return m.shuttingDown.Load()
}

// Evaluate determines the current status.
// Decision order: shutting-down > overloaded > idle > degraded > healthy.
func (m *Monitor) Evaluate() Result {
	if m.IsShuttingDown() {
		return Result{StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	}
	c := m.cfg
	if c.RateLimitRPS > 0 && c.OverloadWindow > 0 && c.OverloadThresholdPct > 0 {
		threshold := float64(c.RateLimitRPS) * c.OverloadWindow.Seconds() * float64(c.OverloadThresholdPct) / 100
		if float64(m.tracker.Requests(c.OverloadWindow)) > threshold {
			return Result{StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if c.IdleWindow > 0 && c.MinimumLifespan > 0 && m.now().Sub(c.StartTime) >= c.MinimumLifespan {
		if m.tracker.Requests(c.IdleWindow) < c.IdleThresholdReqPerMin {
			return Result{StatusIdle, http.StatusOK, "low_traffic"}
		}
	}
	if c.DegradedWindow > 0 && c.DegradedErrorPct > 0 {
		errs, total := m.tracker.ErrorRate(c.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(c.DegradedErrorPct) {
			return Result{StatusDegraded, http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return Result{StatusHealthy, http.StatusOK, ""}
}
