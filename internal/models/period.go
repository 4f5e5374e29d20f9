package models

import (
	"errors"
	"fmt"
	"strings"
)

// Period is the forecast time granularity selected by the visitor.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// ErrInvalidPeriod is returned by ParsePeriod for unknown values.
var ErrInvalidPeriod = errors.New("invalid period")

// Periods lists all periods in tab order.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly}

// ParsePeriod parses a case-insensitive period name.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

func (p Period) String() string {
	return string(p)
}

// Title returns the period name with its first letter upper-cased ("Daily").
func (p Period) Title() string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
