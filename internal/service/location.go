package service

import "github.com/kjstillabower/forecast-dashboard/internal/models"

// defaultPlaceName is shown in the page heading when no city is known.
const defaultPlaceName = "your location"

// LocationState is the visitor location as far as the dashboard knows it.
// A nil Location means resolution failed or has not happened; it is never
// conflated with a location reported at (0,0).
type LocationState struct {
	Location *models.Location
}

// Unresolved returns the state used when the location endpoint failed.
func Unresolved() LocationState {
	return LocationState{}
}

// Resolved wraps a location returned by the upstream.
func Resolved(loc models.Location) LocationState {
	return LocationState{Location: &loc}
}

// IsResolved reports whether the location endpoint returned a value.
func (s LocationState) IsResolved() bool {
	return s.Location != nil
}

// ForecastEnabled reports whether a forecast may be requested: the location is
// resolved and both coordinates are non-zero.
func (s LocationState) ForecastEnabled() bool {
	return s.Location != nil && s.Location.HasCoordinates()
}

// PlaceName returns the city, or "your location" when unknown.
func (s LocationState) PlaceName() string {
	if s.Location != nil && s.Location.City != "" {
		return s.Location.City
	}
	return defaultPlaceName
}

// Timezone returns the location timezone, or "" when unknown.
func (s LocationState) Timezone() string {
	if s.Location == nil {
		return ""
	}
	return s.Location.Timezone
}
