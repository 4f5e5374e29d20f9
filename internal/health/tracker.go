package health

import (
	"sync"
	"time"
)

// retention bounds how long outcome timestamps are kept. Windows longer than
// this undercount.
const retention = 30 * time.Minute

// Tracker maintains sliding windows of request outcome timestamps.
// Single source of truth for overload (Requests, Denials), degraded (ErrorRate)
// and idle (Requests) detection.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	successes []time.Time
	errors    []time.Time
	denials   []time.Time
}

// NewTracker returns an empty Tracker using the wall clock.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordSuccess records a page or panel served without upstream failure.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successes)
}

// RecordError records a request whose upstream fetch failed.
func (t *Tracker) RecordError() {
	t.record(&t.errors)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.denials)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// Requests returns success + error + denied outcomes within the window.
func (t *Tracker) Requests(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successes, cutoff) + countSince(t.errors, cutoff) + countSince(t.denials, cutoff)
}

// Denials returns rate-limit denials within the window.
func (t *Tracker) Denials(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denials, t.now().Add(-window))
}

// ErrorRate returns (errors, total) within the window. Denials are excluded from total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errs := countSince(t.errors, cutoff)
	return errs, errs + countSince(t.successes, cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes = nil
	t.errors = nil
	t.denials = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successes)
	prune(&t.errors)
	prune(&t.denials)
}
