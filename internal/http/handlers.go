package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/forecast-dashboard/internal/forecast"
	"github.com/kjstillabower/forecast-dashboard/internal/health"
	"github.com/kjstillabower/forecast-dashboard/internal/models"
	"github.com/kjstillabower/forecast-dashboard/internal/observability"
	"github.com/kjstillabower/forecast-dashboard/internal/service"
	"github.com/kjstillabower/forecast-dashboard/internal/validation"
)

// Dashboard is the location and forecast source the page handlers read from.
type Dashboard interface {
	ResolveLocation(ctx context.Context, visitor string) service.LocationState
	GetForecast(ctx context.Context, state service.LocationState, period models.Period) (models.ForecastResponse, error)
}

// Prefetcher warms the periods a visitor has not opened yet.
type Prefetcher interface {
	PrefetchAsync(ctx context.Context, state service.LocationState, active models.Period)
}

// HandlerConfig holds optional handler dependencies.
type HandlerConfig struct {
	// TrustForwardedFor takes the visitor address from X-Forwarded-For. Enable behind a proxy.
	TrustForwardedFor bool
	// Prefetcher, when set, warms the other periods after a populated panel.
	Prefetcher Prefetcher
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dashboard        Dashboard
	monitor          *health.Monitor
	renderer         *Renderer
	logger           *zap.Logger
	cfg              HandlerConfig
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(dashboard Dashboard, monitor *health.Monitor, renderer *Renderer, logger *zap.Logger, cfg HandlerConfig) *Handler {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{
		dashboard: dashboard,
		monitor:   monitor,
		renderer:  renderer,
		logger:    logger,
		cfg:       cfg,
	}
}

type pageData struct {
	Title         string
	Nav           string
	CorrelationID string
}

type tab struct {
	Title  string
	URL    string
	Active bool
}

type forecastPage struct {
	pageData
	Place    string
	Tabs     []tab
	PanelURL string
	Panel    forecast.Panel
}

// Dashboard handles GET / and GET /dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, pageDashboard, h.page(r, "Dashboard", "dashboard"))
}

// About handles GET /about.
func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, pageAbout, h.page(r, "About", "about"))
}

// Contact handles GET /contact.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, pageContact, h.page(r, "Contact", "contact"))
}

// Privacy handles GET /privacy.
func (h *Handler) Privacy(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, pagePrivacy, h.page(r, "Privacy", "privacy"))
}

// NotFound renders the NotFound page for any unmatched path.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusNotFound, pageNotFound, h.page(r, "Not Found", ""))
}

// Forecast handles GET /forecast. It resolves the visitor location and renders
// the page shell with the active panel in its loading state; the panel itself
// is served by Panel.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	period, err := validation.PeriodParam(r.URL.Query().Get("period"))
	if err != nil {
		h.requestLogger(r).Debug("unknown period; using daily", zap.Error(err))
	}
	state := h.dashboard.ResolveLocation(r.Context(), h.visitor(r))
	h.monitor.Tracker().RecordSuccess()

	tabs := make([]tab, 0, len(models.Periods))
	for _, p := range models.Periods {
		tabs = append(tabs, tab{Title: p.Title(), URL: "/forecast?period=" + p.String(), Active: p == period})
	}
	h.renderPage(w, r, http.StatusOK, pageForecast, forecastPage{
		pageData: h.page(r, "Forecast", "forecast"),
		Place:    state.PlaceName(),
		Tabs:     tabs,
		PanelURL: "/forecast/panel/" + period.String(),
		Panel:    forecast.LoadingPanel(period),
	})
}

// Panel handles GET /forecast/panel/{period}. The fragment is always rendered
// in a terminal state: error, empty or populated.
func (h *Handler) Panel(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)
	period, err := models.ParsePeriod(mux.Vars(r)["period"])
	if err != nil {
		h.NotFound(w, r)
		return
	}

	state := h.dashboard.ResolveLocation(r.Context(), h.visitor(r))
	resp, err := h.dashboard.GetForecast(r.Context(), state, period)

	var panel forecast.Panel
	loc := forecast.LoadLocation(state.Timezone())
	switch {
	case errors.Is(err, service.ErrForecastDisabled):
		panel = forecast.BuildPanel(period, nil, nil, loc)
		h.monitor.Tracker().RecordSuccess()
	case err != nil:
		logger.Warn("forecast fetch failed", zap.String("period", period.String()), zap.Error(err))
		panel = forecast.BuildPanel(period, nil, err, loc)
		h.monitor.Tracker().RecordError()
	default:
		panel = forecast.BuildPanel(period, &resp, nil, loc)
		h.monitor.Tracker().RecordSuccess()
		if h.cfg.Prefetcher != nil && panel.State == forecast.StatePopulated {
			h.cfg.Prefetcher.PrefetchAsync(r.Context(), state, period)
		}
	}
	observability.PanelRendersTotal.WithLabelValues(period.String(), string(panel.State)).Inc()

	if err := h.renderer.Panel(w, http.StatusOK, panel); err != nil {
		logger.Error("render panel failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.monitor.Evaluate()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.Status),
			zap.String("reason", result.Reason))
	}
	h.healthStatusPrev = result.Status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"forecastApi": "healthy"}
	if result.Status == health.StatusDegraded {
		checks["forecastApi"] = "unhealthy"
	}
	if h.cfg.CachePing != nil {
		if h.cfg.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.StatusCode, map[string]interface{}{
		"status":    result.Status,
		"service":   observability.ServiceName,
		"version":   h.cfg.Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) page(r *http.Request, title, nav string) pageData {
	return pageData{
		Title:         title,
		Nav:           nav,
		CorrelationID: observability.CorrelationIDFromContext(r.Context()),
	}
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if err := h.renderer.Page(w, status, name, data); err != nil {
		h.requestLogger(r).Error("render page failed", zap.String("page", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// visitor returns the address forwarded to the location endpoint, or "" when
// none can be derived; the upstream then geolocates the connection itself.
func (h *Handler) visitor(r *http.Request) string {
	ip, err := validation.VisitorIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr, h.cfg.TrustForwardedFor)
	if err != nil {
		h.requestLogger(r).Debug("visitor address unavailable", zap.Error(err))
		return ""
	}
	return ip
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	if l := observability.LoggerFromContext(r.Context()); l != nil {
		return l
	}
	if h.logger != nil {
		return h.logger
	}
	return zap.NewNop()
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
