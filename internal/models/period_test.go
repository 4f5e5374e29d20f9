package models

import (
	"errors"
	"testing"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{"daily", PeriodDaily, false},
		{"Weekly", PeriodWeekly, false},
		{"  MONTHLY ", PeriodMonthly, false},
		{"yearly", PeriodYearly, false},
		{"hourly", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPeriod) {
				t.Errorf("ParsePeriod(%q) error = %v, want ErrInvalidPeriod", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePeriod(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePeriod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPeriod_Title(t *testing.T) {
	if got := PeriodMonthly.Title(); got != "Monthly" {
		t.Errorf("Title() = %q, want Monthly", got)
	}
	if got := Period("").Title(); got != "" {
		t.Errorf("Title() of empty = %q, want empty", got)
	}
}

func TestForecastResponse_ConfidenceOrDefault(t *testing.T) {
	zero := 0.0
	seventy := 70.0
	tests := []struct {
		name string
		conf *float64
		want float64
	}{
		{"absent", nil, 85},
		{"zero", &zero, 85},
		{"present", &seventy, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForecastResponse{Confidence: tt.conf}.ConfidenceOrDefault()
			if got != tt.want {
				t.Errorf("ConfidenceOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocation_HasCoordinates(t *testing.T) {
	tests := []struct {
		loc  Location
		want bool
	}{
		{Location{Latitude: 47.6, Longitude: -122.3}, true},
		{Location{Latitude: 0, Longitude: -122.3}, false},
		{Location{Latitude: 47.6, Longitude: 0}, false},
		{Location{}, false},
	}
	for _, tt := range tests {
		if got := tt.loc.HasCoordinates(); got != tt.want {
			t.Errorf("HasCoordinates(%+v) = %v, want %v", tt.loc, got, tt.want)
		}
	}
}
