// Package testhelpers holds fixtures shared by package tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/kjstillabower/forecast-dashboard/internal/models"
)

// FakeUpstream is an in-process stand-in for the weather API's location and forecast endpoints.
type FakeUpstream struct {
	Server *httptest.Server

	mu             sync.Mutex
	location       models.Location
	locationStatus int
	forecast       models.ForecastResponse
	forecastStatus int
	forecastQuery  []string
	forwardedFor   []string

	locationCalls atomic.Int64
	forecastCalls atomic.Int64
}

// NewFakeUpstream starts a server answering GET /api/location and GET /api/forecast with 200s.
// Close it with Server.Close.
func NewFakeUpstream(loc models.Location, forecast models.ForecastResponse) *FakeUpstream {
	f := &FakeUpstream{
		location:       loc,
		locationStatus: http.StatusOK,
		forecast:       forecast,
		forecastStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/location", f.serveLocation)
	mux.HandleFunc("/api/forecast", f.serveForecast)
	f.Server = httptest.NewServer(mux)
	return f
}

// URL returns the base URL to pass to the API client.
func (f *FakeUpstream) URL() string { return f.Server.URL }

// Close shuts the server down.
func (f *FakeUpstream) Close() { f.Server.Close() }

// SetLocationStatus makes /api/location answer with status (no body for non-2xx).
func (f *FakeUpstream) SetLocationStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locationStatus = status
}

// SetForecastStatus makes /api/forecast answer with status (no body for non-2xx).
func (f *FakeUpstream) SetForecastStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forecastStatus = status
}

// LocationCalls returns how many location requests were served.
func (f *FakeUpstream) LocationCalls() int64 { return f.locationCalls.Load() }

// ForecastCalls returns how many forecast requests were served.
func (f *FakeUpstream) ForecastCalls() int64 { return f.forecastCalls.Load() }

// ForecastQueries returns the raw query strings of forecast requests in arrival order.
func (f *FakeUpstream) ForecastQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.forecastQuery...)
}

// ForwardedFor returns the X-Forwarded-For values seen on location requests.
func (f *FakeUpstream) ForwardedFor() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.forwardedFor...)
}

func (f *FakeUpstream) serveLocation(w http.ResponseWriter, r *http.Request) {
	f.locationCalls.Add(1)
	f.mu.Lock()
	f.forwardedFor = append(f.forwardedFor, r.Header.Get("X-Forwarded-For"))
	status, loc := f.locationStatus, f.location
	f.mu.Unlock()
	reply(w, status, loc)
}

func (f *FakeUpstream) serveForecast(w http.ResponseWriter, r *http.Request) {
	f.forecastCalls.Add(1)
	f.mu.Lock()
	f.forecastQuery = append(f.forecastQuery, r.URL.RawQuery)
	status, resp := f.forecastStatus, f.forecast
	f.mu.Unlock()
	reply(w, status, resp)
}

func reply(w http.ResponseWriter, status int, v any) {
	if status < 200 || status > 299 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
