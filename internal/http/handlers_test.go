package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/forecast-dashboard/internal/health"
	"github.com/kjstillabower/forecast-dashboard/internal/models"
	"github.com/kjstillabower/forecast-dashboard/internal/service"
)

type mockDashboard struct {
	mu        sync.Mutex
	state     service.LocationState
	forecast  models.ForecastResponse
	err       error
	visitors  []string
	periods   []models.Period
	upstreams int
}

func (m *mockDashboard) ResolveLocation(ctx context.Context, visitor string) service.LocationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visitors = append(m.visitors, visitor)
	return m.state
}

// GetForecast mirrors DashboardService's gate so handler tests see the same contract.
func (m *mockDashboard) GetForecast(ctx context.Context, state service.LocationState, period models.Period) (models.ForecastResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods = append(m.periods, period)
	if !state.ForecastEnabled() {
		return models.ForecastResponse{}, service.ErrForecastDisabled
	}
	m.upstreams++
	return m.forecast, m.err
}

type mockPrefetcher struct {
	mu     sync.Mutex
	active []models.Period
}

func (m *mockPrefetcher) PrefetchAsync(ctx context.Context, state service.LocationState, active models.Period) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = append(m.active, active)
}

var seattle = models.Location{City: "Seattle", Latitude: 47.61, Longitude: -122.33, Timezone: "America/Los_Angeles"}

func weekOfForecast() models.ForecastResponse {
	return models.ForecastResponse{Data: []models.DayPoint{
		{Date: "2025-01-06", TempMax: 20, TempMin: 10},
		{Date: "2025-01-07", TempMax: 22, TempMin: 12},
		{Date: "2025-01-08", TempMax: 18, TempMin: 9},
	}}
}

func newTestHandler(t *testing.T, dash Dashboard, logger *zap.Logger, cfg HandlerConfig) (*Handler, *health.Monitor) {
	t.Helper()
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	monitor := health.NewMonitor(health.Config{DegradedWindow: time.Minute, DegradedErrorPct: 50}, health.NewTracker())
	return NewHandler(dash, monitor, renderer, logger, cfg), monitor
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewRenderer_ParsesAllTemplates(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	for _, name := range pageNames {
		if r.pages[name] == nil {
			t.Errorf("page %q not parsed", name)
		}
	}
}

// TestRouter_Pages verifies every path renders exactly one page and that
// unmatched paths render NotFound with 404.
func TestRouter_Pages(t *testing.T) {
	dash := &mockDashboard{state: service.Unresolved()}
	h, monitor := newTestHandler(t, dash, nil, HandlerConfig{})
	router := NewRouter(h, zap.NewNop(), RouterConfig{Tracker: monitor.Tracker()})

	tests := []struct {
		path       string
		wantStatus int
		wantText   string
	}{
		{"/", http.StatusOK, "Weather Dashboard"},
		{"/dashboard", http.StatusOK, "Weather Dashboard"},
		{"/about", http.StatusOK, "<h1>About</h1>"},
		{"/contact", http.StatusOK, "<h1>Contact</h1>"},
		{"/privacy", http.StatusOK, "<h1>Privacy</h1>"},
		{"/forecast", http.StatusOK, "Weather Forecast"},
		{"/nope", http.StatusNotFound, "Page not found"},
		{"/forecast/panel/hourly", http.StatusNotFound, "Page not found"},
		{"/about/team", http.StatusNotFound, "Page not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(router, http.MethodGet, tt.path)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantText) {
				t.Errorf("body missing %q", tt.wantText)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("Content-Type = %q, want text/html", ct)
			}
			if w.Header().Get("X-Correlation-ID") == "" {
				t.Error("X-Correlation-ID header missing")
			}
		})
	}
}

func TestRouter_PageMatchingIsLenient(t *testing.T) {
	dash := &mockDashboard{state: service.Unresolved()}
	h, monitor := newTestHandler(t, dash, nil, HandlerConfig{})
	router := NewRouter(h, zap.NewNop(), RouterConfig{Tracker: monitor.Tracker()})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantText   string
	}{
		{"trailing slash", http.MethodGet, "/about/", http.StatusOK, "<h1>About</h1>"},
		{"mixed case", http.MethodGet, "/About", http.StatusOK, "<h1>About</h1>"},
		{"mixed case with slash", http.MethodGet, "/PRIVACY/", http.StatusOK, "<h1>Privacy</h1>"},
		{"forecast trailing slash", http.MethodGet, "/Forecast/", http.StatusOK, "Weather Forecast"},
		{"head", http.MethodHead, "/contact", http.StatusOK, ""},
		{"post renders not found", http.MethodPost, "/about", http.StatusNotFound, "Page not found"},
		{"delete renders not found", http.MethodDelete, "/", http.StatusNotFound, "Page not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.path)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantText != "" && !strings.Contains(w.Body.String(), tt.wantText) {
				t.Errorf("body missing %q", tt.wantText)
			}
			if w.Header().Get("X-Correlation-ID") == "" {
				t.Error("X-Correlation-ID header missing")
			}
		})
	}
}

func TestForecast_ShellRendersLoadingPanel(t *testing.T) {
	// Arrange
	dash := &mockDashboard{state: service.Resolved(seattle), forecast: weekOfForecast()}
	h, _ := newTestHandler(t, dash, nil, HandlerConfig{})
	router := NewRouter(h, zap.NewNop(), RouterConfig{})

	// Act
	w := serve(router, http.MethodGet, "/forecast?period=monthly")

	// Assert
	body := w.Body.String()
	if !strings.Contains(body, "predictions for Seattle") {
		t.Error("heading does not name the resolved city")
	}
	if !strings.Contains(body, `data-state="loading"`) {
		t.Error("shell panel is not in loading state")
	}
	if !strings.Contains(body, `data-src="/forecast/panel/monthly"`) {
		t.Error("shell does not point at the monthly fragment")
	}
	if !strings.Contains(body, "Loading forecast data...") {
		t.Error("loading copy missing")
	}
	if dash.upstreams != 0 {
		t.Errorf("shell issued %d forecast fetches, want 0", dash.upstreams)
	}
}

func TestForecast_UnknownPeriodFallsBackToDaily(t *testing.T) {
	dash := &mockDashboard{state: service.Unresolved()}
	h, _ := newTestHandler(t, dash, nil, HandlerConfig{})

	w := serve(http.HandlerFunc(h.Forecast), http.MethodGet, "/forecast?period=hourly")

	body := w.Body.String()
	if !strings.Contains(body, `data-src="/forecast/panel/daily"`) {
		t.Error("unknown period did not fall back to daily")
	}
	if !strings.Contains(body, "predictions for your location") {
		t.Error("unresolved heading should read 'your location'")
	}
}

func TestPanel_States(t *testing.T) {
	tests := []struct {
		name      string
		state     service.LocationState
		forecast  models.ForecastResponse
		err       error
		wantState string
		wantText  string
	}{
		{"populated", service.Resolved(seattle), weekOfForecast(), nil, "populated", "Temperature Trend"},
		{"empty data", service.Resolved(seattle), models.ForecastResponse{Data: []models.DayPoint{}}, nil, "empty", "No forecast data available"},
		{"upstream error", service.Resolved(seattle), models.ForecastResponse{}, errors.New("HTTP 502"), "error", "Error loading forecast"},
		{"unresolved location", service.Unresolved(), weekOfForecast(), nil, "empty", "No forecast data available"},
		{"zero coordinates", service.Resolved(models.Location{City: "Null Island"}), weekOfForecast(), nil, "empty", "No forecast data available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dash := &mockDashboard{state: tt.state, forecast: tt.forecast, err: tt.err}
			h, _ := newTestHandler(t, dash, nil, HandlerConfig{})
			router := NewRouter(h, zap.NewNop(), RouterConfig{})

			w := serve(router, http.MethodGet, "/forecast/panel/weekly")

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, `data-state="`+tt.wantState+`"`) {
				t.Errorf("panel state not %q", tt.wantState)
			}
			if !strings.Contains(body, tt.wantText) {
				t.Errorf("body missing %q", tt.wantText)
			}
			if strings.Contains(body, "<html") {
				t.Error("fragment rendered with the page layout")
			}
		})
	}
}

func TestPanel_ErrorHasRetryControl(t *testing.T) {
	dash := &mockDashboard{state: service.Resolved(seattle), err: errors.New("HTTP 500")}
	h, _ := newTestHandler(t, dash, nil, HandlerConfig{})
	router := NewRouter(h, zap.NewNop(), RouterConfig{})

	body := serve(router, http.MethodGet, "/forecast/panel/daily").Body.String()
	if !strings.Contains(body, "Try Again") || !strings.Contains(body, "window.location.reload()") {
		t.Error("error panel lacks the reload control")
	}
}

func TestPanel_PopulatedContent(t *testing.T) {
	resp := models.ForecastResponse{Data: make([]models.DayPoint, 30)}
	for i := range resp.Data {
		resp.Data[i] = models.DayPoint{Date: "2025-01-06", TempMax: 20, TempMin: 10}
	}
	dash := &mockDashboard{state: service.Resolved(seattle), forecast: resp}
	h, _ := newTestHandler(t, dash, nil, HandlerConfig{})
	router := NewRouter(h, zap.NewNop(), RouterConfig{})

	body := serve(router, http.MethodGet, "/forecast/panel/weekly").Body.String()

	if n := strings.Count(body, "High: 20°C • Low: 10°C"); n != 6 {
		t.Errorf("rendered %d day cards, want 6", n)
	}
	if !strings.Contains(body, "15°C") || !strings.Contains(body, "59°F") {
		t.Error("midpoint 15°C / 59°F not rendered")
	}
	if !strings.Contains(body, "Week 1") || !strings.Contains(body, "Week 30") {
		t.Error("weekly axis labels missing")
	}
	if !strings.Contains(body, "weekly temperature forecast with 85% confidence") {
		t.Error("chart description missing default confidence")
	}
	if !strings.Contains(body, "Weekly forecast powered by advanced ML models") {
		t.Error("period line missing")
	}
}

func TestPanel_ForwardsVisitorAddress(t *testing.T) {
	dash := &mockDashboard{state: service.Unresolved()}
	h, _ := newTestHandler(t, dash, nil, HandlerConfig{TrustForwardedFor: true})

	req := httptest.NewRequest(http.MethodGet, "/forecast", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.23, 10.0.0.1")
	h.Forecast(httptest.NewRecorder(), req)

	if len(dash.visitors) != 1 || dash.visitors[0] != "198.51.100.23" {
		t.Errorf("visitors = %v, want [198.51.100.23]", dash.visitors)
	}
}

func TestPanel_PrefetchOnlyWhenPopulated(t *testing.T) {
	prefetch := &mockPrefetcher{}
	dash := &mockDashboard{state: service.Resolved(seattle), forecast: weekOfForecast()}
	h, _ := newTestHandler(t, dash, nil, HandlerConfig{Prefetcher: prefetch})
	router := NewRouter(h, zap.NewNop(), RouterConfig{})

	serve(router, http.MethodGet, "/forecast/panel/yearly")
	dash.err = errors.New("boom")
	serve(router, http.MethodGet, "/forecast/panel/daily")

	if len(prefetch.active) != 1 || prefetch.active[0] != models.PeriodYearly {
		t.Errorf("prefetch calls = %v, want [yearly]", prefetch.active)
	}
}

func TestPanel_LogsUpstreamFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	dash := &mockDashboard{state: service.Resolved(seattle), err: errors.New("HTTP 503")}
	h, monitor := newTestHandler(t, dash, logger, HandlerConfig{})
	router := NewRouter(h, logger, RouterConfig{})

	serve(router, http.MethodGet, "/forecast/panel/daily")

	entries := logs.FilterMessage("forecast fetch failed").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 failure log, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entries[0].Level)
	}
	var hasCorrID bool
	for _, f := range entries[0].Context {
		if f.Key == "correlation_id" && f.String != "" {
			hasCorrID = true
		}
	}
	if !hasCorrID {
		t.Error("failure log lacks correlation_id")
	}
	if errs, _ := monitor.Tracker().ErrorRate(time.Minute); errs != 1 {
		t.Errorf("tracked errors = %d, want 1", errs)
	}
}

func TestRouter_RateLimitedForecast(t *testing.T) {
	dash := &mockDashboard{state: service.Unresolved()}
	h, monitor := newTestHandler(t, dash, nil, HandlerConfig{})
	limiter := newLimiter(1)
	router := NewRouter(h, zap.NewNop(), RouterConfig{Limiter: limiter, Tracker: monitor.Tracker()})

	first := serve(router, http.MethodGet, "/forecast")
	second := serve(router, http.MethodGet, "/forecast")
	about := serve(router, http.MethodGet, "/about")

	if first.Code != http.StatusOK {
		t.Errorf("first status = %d, want 200", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.Code)
	}
	if about.Code != http.StatusOK {
		t.Errorf("/about status = %d, want 200 (not rate limited)", about.Code)
	}
	if d := monitor.Tracker().Denials(time.Minute); d != 1 {
		t.Errorf("tracked denials = %d, want 1", d)
	}
}

func TestHandler_GetHealth(t *testing.T) {
	h, monitor := newTestHandler(t, &mockDashboard{}, nil, HandlerConfig{CachePing: func() error { return errors.New("down") }})

	w := serve(http.HandlerFunc(h.GetHealth), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Status  string            `json:"status"`
		Service string            `json:"service"`
		Checks  map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != health.StatusHealthy || body.Service != "forecast-dashboard" {
		t.Errorf("body = %+v", body)
	}
	if body.Checks["cache"] != "unhealthy" || body.Checks["forecastApi"] != "healthy" {
		t.Errorf("checks = %v", body.Checks)
	}

	monitor.SetShuttingDown(true)
	w = serve(http.HandlerFunc(h.GetHealth), http.MethodGet, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("shutting down status = %d, want 503", w.Code)
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	// Arrange: Set up logger with observer and handler
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	h, monitor := newTestHandler(t, &mockDashboard{}, logger, HandlerConfig{})

	// Act: First call establishes the previous status.
	monitor.Tracker().RecordSuccess()
	monitor.Tracker().RecordSuccess()
	w := serve(http.HandlerFunc(h.GetHealth), http.MethodGet, "/health")

	// Assert: First call should not log transition
	if w.Code != http.StatusOK {
		t.Fatalf("first GetHealth status = %d, want 200", w.Code)
	}
	if logs.Len() != 0 {
		t.Fatalf("first call should not log transition; got %d logs", logs.Len())
	}

	// Act: Breach the error threshold (66% > 50%) and call again
	monitor.Tracker().RecordError()
	monitor.Tracker().RecordError()
	w = serve(http.HandlerFunc(h.GetHealth), http.MethodGet, "/health")

	// Assert: Second call should log transition from healthy to degraded
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("second GetHealth status = %d, want 503", w.Code)
	}
	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 transition log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" || fields["reason"] != "error_rate_breach" {
		t.Errorf("transition fields = %v", fields)
	}

	// Act + Assert: unchanged status does not log again
	serve(http.HandlerFunc(h.GetHealth), http.MethodGet, "/health")
	if logs.Len() != 1 {
		t.Errorf("unchanged status should not log; total logs = %d, want 1", logs.Len())
	}
}
