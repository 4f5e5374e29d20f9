package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/forecast-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/forecast-dashboard/internal/models"
	"github.com/kjstillabower/forecast-dashboard/internal/observability"
)

// WeatherAPI is the remote location and forecast API.
type WeatherAPI interface {
	GetLocation(ctx context.Context, visitorIP string) (models.Location, error)
	GetForecast(ctx context.Context, lat, lon float64, period models.Period) (models.ForecastResponse, error)
}

var (
	ErrInvalidBaseURL  = errors.New("invalid base URL")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrDecode          = errors.New("decode response")
	ErrTransport       = errors.New("transport failure")
)

const (
	endpointLocation = "location"
	endpointForecast = "forecast"

	// maxBodyBytes caps upstream payloads. A yearly series is a few KB.
	maxBodyBytes = 4 << 20
)

// APIClient calls the weather API over HTTP. One attempt per call; recovery
// is left to the visitor reloading the page.
type APIClient struct {
	baseURL *url.URL
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewAPIClient returns a client for the API rooted at baseURL (scheme and host, optional path prefix).
func NewAPIClient(baseURL string, timeout time.Duration) (*APIClient, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidBaseURL)
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidBaseURL)
	}
	return &APIClient{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SetCircuitBreaker routes every upstream call through cb.
func (c *APIClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// GetLocation issues GET {base}/api/location. visitorIP, when set, is forwarded
// as X-Forwarded-For so the API geolocates the visitor rather than this server.
func (c *APIClient) GetLocation(ctx context.Context, visitorIP string) (models.Location, error) {
	var loc models.Location
	header := http.Header{}
	if visitorIP != "" {
		header.Set("X-Forwarded-For", visitorIP)
	}
	err := c.do(ctx, endpointLocation, "/api/location", nil, header, &loc)
	if err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

// GetForecast issues GET {base}/api/forecast?lat=&lon=&period=.
func (c *APIClient) GetForecast(ctx context.Context, lat, lon float64, period models.Period) (models.ForecastResponse, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))
	params.Set("period", period.String())

	var resp models.ForecastResponse
	if err := c.do(ctx, endpointForecast, "/api/forecast", params, nil, &resp); err != nil {
		return models.ForecastResponse{}, err
	}
	if resp.Data == nil {
		resp.Data = []models.DayPoint{}
	}
	return resp, nil
}

func (c *APIClient) do(ctx context.Context, endpoint, path string, params url.Values, header http.Header, out interface{}) error {
	call := func() error {
		return c.callAPI(ctx, endpoint, path, params, header, out)
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	return nil
}

func (c *APIClient) callAPI(ctx context.Context, endpoint, path string, params url.Values, header http.Header, out interface{}) error {
	start := time.Now()

	req, err := c.buildRequest(ctx, path, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (c *APIClient) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
}

// IsBreakerFailure reports whether err should count against the circuit breaker.
// 404s describe the request, not upstream health.
func IsBreakerFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound)
}

// formatCoord renders a coordinate the shortest way that round-trips.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
