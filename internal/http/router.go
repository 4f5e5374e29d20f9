package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/forecast-dashboard/internal/health"
	"github.com/kjstillabower/forecast-dashboard/internal/observability"
)

// RouterConfig configures the upstream-facing forecast routes.
type RouterConfig struct {
	// Limiter throttles /forecast routes. Nil disables rate limiting.
	Limiter *rate.Limiter
	// Tracker receives rate-limit denials.
	Tracker *health.Tracker
	// RequestTimeout bounds /forecast routes. Zero disables the deadline.
	RequestTimeout time.Duration
}

// NewRouter maps every page path to its handler. Page paths match without
// regard to case or a trailing slash. Unmatched paths and unsupported methods
// render NotFound.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	page(r, "/", http.HandlerFunc(h.Dashboard))
	page(r, "/dashboard", http.HandlerFunc(h.Dashboard))
	page(r, "/about", http.HandlerFunc(h.About))
	page(r, "/contact", http.HandlerFunc(h.Contact))
	page(r, "/privacy", http.HandlerFunc(h.Privacy))

	upstream := func(fn http.HandlerFunc) http.Handler {
		return RateLimitMiddleware(cfg.Limiter, cfg.Tracker)(TimeoutMiddleware(cfg.RequestTimeout)(fn))
	}
	page(r, "/forecast", upstream(h.Forecast))
	r.Handle("/forecast/panel/{period:daily|weekly|monthly|yearly}", upstream(h.Panel)).Methods(http.MethodGet)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// Router middleware only wraps matched routes.
	notFound := CorrelationIDMiddleware(logger)(MetricsMiddleware(http.HandlerFunc(h.NotFound)))
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound
	return r
}

// page registers a GET/HEAD route named after path that matches it case-insensitively,
// with or without a trailing slash.
func page(r *mux.Router, path string, h http.Handler) {
	r.NewRoute().
		Name(path).
		MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
			p := req.URL.Path
			if len(p) > 1 {
				p = strings.TrimSuffix(p, "/")
			}
			return strings.EqualFold(p, path)
		}).
		Methods(http.MethodGet, http.MethodHead).
		Handler(h)
}
