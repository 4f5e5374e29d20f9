package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/forecast-dashboard/internal/health"
	"github.com/kjstillabower/forecast-dashboard/internal/observability"
)

// newLimiter returns a limiter that allows burst requests and then refills too slowly to matter in a test.
func newLimiter(burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Hour), burst)
}

func TestCorrelationIDMiddleware_GeneratesAndPropagates(t *testing.T) {
	var gotID string
	var gotLogger *zap.Logger
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = observability.CorrelationIDFromContext(r.Context())
		gotLogger = observability.LoggerFromContext(r.Context())
	}))

	w := serve(h, http.MethodGet, "/")
	if gotID == "" || w.Header().Get("X-Correlation-ID") != gotID {
		t.Errorf("correlation id = %q, header = %q", gotID, w.Header().Get("X-Correlation-ID"))
	}
	if gotLogger == nil {
		t.Error("request logger not stored in context")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Correlation-ID"); got != "client-provided-id" {
		t.Errorf("X-Correlation-ID = %q, want client-provided-id", got)
	}
}

func TestCorrelationIDMiddleware_LoggerCarriesID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := CorrelationIDMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context()).Info("inside")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("inside").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["correlation_id"]; got != "abc-123" {
		t.Errorf("correlation_id = %v, want abc-123", got)
	}
}

func TestGetRoute_UsesTemplate(t *testing.T) {
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/forecast/panel/{period}", func(w http.ResponseWriter, r *http.Request) {
		got = getRoute(r)
	})
	serve(router, http.MethodGet, "/forecast/panel/weekly")
	if got != "/forecast/panel/{period}" {
		t.Errorf("getRoute() = %q, want template", got)
	}

	named := mux.NewRouter()
	named.NewRoute().Name("/about").Path("/about").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = getRoute(r)
	})
	serve(named, http.MethodGet, "/about")
	if got != "/about" {
		t.Errorf("getRoute() = %q, want /about", got)
	}

	if r := getRoute(httptest.NewRequest(http.MethodGet, "/random/path", nil)); r != "not_found" {
		t.Errorf("getRoute(unmatched) = %q, want not_found", r)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 304: "3xx", 404: "4xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.statusCode != http.StatusServiceUnavailable {
		t.Errorf("statusCode = %d, want 503", rec.statusCode)
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))
	serve(h, http.MethodGet, "/")
	if !ok || time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline = %v (set=%v), want within 50ms", deadline, ok)
	}

	h = TimeoutMiddleware(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	serve(h, http.MethodGet, "/")
	if ok {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestTimeoutMiddleware_CancelsSlowHandler(t *testing.T) {
	var ctxErr error
	h := TimeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			ctxErr = r.Context().Err()
		case <-time.After(time.Second):
		}
	}))
	serve(h, http.MethodGet, "/")
	if ctxErr != context.DeadlineExceeded {
		t.Errorf("ctx error = %v, want DeadlineExceeded", ctxErr)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	tracker := health.NewTracker()
	h := RateLimitMiddleware(newLimiter(2), tracker)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := []int{
		serve(h, http.MethodGet, "/").Code,
		serve(h, http.MethodGet, "/").Code,
		serve(h, http.MethodGet, "/").Code,
	}
	want := []int{200, 200, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, codes[i], want[i])
		}
	}
	if d := tracker.Denials(time.Minute); d != 1 {
		t.Errorf("denials = %d, want 1", d)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	h := RateLimitMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 20; i++ {
		if code := serve(h, http.MethodGet, "/").Code; code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
	}
}
