package validation

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/kjstillabower/forecast-dashboard/internal/models"
)

// ErrVisitorIPInvalid is returned when no usable client address can be derived.
var ErrVisitorIPInvalid = errors.New("visitor address is not an IP")

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90] or not a number.
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180] or not a number.
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// PeriodParam parses the ?period= query value. Empty selects daily. Unknown
// values also select daily and return an error wrapping models.ErrInvalidPeriod
// so the caller can log it; the returned period is always usable.
func PeriodParam(raw string) (models.Period, error) {
	if strings.TrimSpace(raw) == "" {
		return models.PeriodDaily, nil
	}
	p, err := models.ParsePeriod(raw)
	if err != nil {
		return models.PeriodDaily, err
	}
	return p, nil
}

// VisitorIP derives the address forwarded to the location endpoint.
// When trustForwarded is set, the left-most X-Forwarded-For entry wins;
// otherwise (or when that entry is not an IP) the host of remoteAddr is used.
func VisitorIP(forwardedFor, remoteAddr string, trustForwarded bool) (string, error) {
	if trustForwarded && forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String(), nil
		}
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return "", fmt.Errorf("%w: %q", ErrVisitorIPInvalid, remoteAddr)
	}
	return ip.String(), nil
}

// ValidateCoordinates checks that lat and lon are finite and on the globe.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: %v", ErrLatitudeOutOfRange, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %v", ErrLongitudeOutOfRange, lon)
	}
	return nil
}
