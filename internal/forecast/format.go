// Package forecast turns forecast series into the view models the dashboard
// renders: chart points, day cards and the summary block.
package forecast

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/forecast-dashboard/internal/models"
)

const (
	// MaxDayCards is how many entries of a series get an individual card.
	MaxDayCards = 6

	// InvalidDate is rendered in place of a label when a date does not parse.
	InvalidDate = "Invalid Date"
)

// Icon names the glyph shown on a day card.
type Icon string

const (
	IconSun   Icon = "sun"
	IconCloud Icon = "cloud"
	IconRain  Icon = "rain"
)

// Round rounds half up: Round(2.5) == 3, Round(-2.5) == -2. The result stays
// a float64 so magnitudes beyond the int range survive.
func Round(x float64) float64 {
	return math.Floor(x + 0.5)
}

// CelsiusToFahrenheit converts c to Fahrenheit.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FormatNumber renders v with the shortest exact representation: 20, 20.5, -3.25.
// Negative zero renders as 0 and infinities as Infinity. Magnitudes of 1e21 and above, or below 1e-6,
// use exponent form: 5e+29, 1e-7.
func FormatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	if math.IsInf(v, 1) {
		return "Infinity"
	}
	if math.IsInf(v, -1) {
		return "-Infinity"
	}
	if a := math.Abs(v); a >= 1e21 || a < 1e-6 {
		s := strconv.FormatFloat(v, 'e', -1, 64)
		s = strings.Replace(s, "e+0", "e+", 1)
		return strings.Replace(s, "e-0", "e-", 1)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WeatherIcon picks the card icon from a rounded midpoint temperature.
func WeatherIcon(tempC float64) Icon {
	switch {
	case tempC > 25:
		return IconSun
	case tempC > 15:
		return IconCloud
	default:
		return IconRain
	}
}

// date-only forms name a calendar day and are never shifted between zones.
var dateOnlyLayouts = []string{"2006-01-02", "2006-01", "2006"}

var zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}

var localLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05"}

// ParseDate parses an upstream date. Date-only values are returned as the
// calendar day they name. Timestamps with an offset are converted to loc;
// timestamps without one are read in loc. A nil loc means UTC.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateOnlyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AxisLabel returns the chart x-axis label for the entry at index.
// Weekly labels depend on position only.
func AxisLabel(period models.Period, index int, date string, loc *time.Location) string {
	if period == models.PeriodWeekly {
		return "Week " + strconv.Itoa(index+1)
	}
	t, ok := ParseDate(date, loc)
	if !ok {
		return InvalidDate
	}
	switch period {
	case models.PeriodMonthly:
		return t.Format("Jan")
	case models.PeriodYearly:
		return t.Format("2006")
	default:
		return t.Format("Mon")
	}
}

// CardDate formats a day card date as "Jan 2".
func CardDate(date string, loc *time.Location) string {
	t, ok := ParseDate(date, loc)
	if !ok {
		return InvalidDate
	}
	return t.Format("Jan 2")
}

// ChartPoint is one x position of the temperature chart.
type ChartPoint struct {
	Label   string
	TempMax float64
	TempMin float64
}

// ChartData maps a series to chart points, preserving order.
func ChartData(period models.Period, data []models.DayPoint, loc *time.Location) []ChartPoint {
	points := make([]ChartPoint, 0, len(data))
	for i, d := range data {
		points = append(points, ChartPoint{
			Label:   AxisLabel(period, i, d.Date, loc),
			TempMax: Round(d.TempMax),
			TempMin: Round(d.TempMin),
		})
	}
	return points
}

// DayCard is one tile of the forecast grid.
type DayCard struct {
	Date      string
	MidpointC float64
	MidpointF float64
	Icon      Icon
	High      string
	Low       string
}

// DayCards builds cards for at most the first MaxDayCards entries.
func DayCards(data []models.DayPoint, loc *time.Location) []DayCard {
	n := len(data)
	if n > MaxDayCards {
		n = MaxDayCards
	}
	cards := make([]DayCard, 0, n)
	for _, d := range data[:n] {
		mid := d.Midpoint()
		c := Round(mid)
		cards = append(cards, DayCard{
			Date:      CardDate(d.Date, loc),
			MidpointC: c,
			MidpointF: Round(CelsiusToFahrenheit(mid)),
			Icon:      WeatherIcon(c),
			High:      FormatNumber(d.TempMax),
			Low:       FormatNumber(d.TempMin),
		})
	}
	return cards
}

// Summary is the aggregate block below the day cards.
type Summary struct {
	// AverageC is the rounded mean temperature.
	AverageC float64
	// AverageFromMidpoints is set when some entry lacked a temperature reading
	// and the mean was taken over (tempMax+tempMin)/2 instead.
	AverageFromMidpoints bool
	Min                  string
	Max                  string
	Confidence           string
	PeriodLine           string
}

// Summarize aggregates a non-empty series. It returns false for an empty one.
func Summarize(period models.Period, resp models.ForecastResponse) (Summary, bool) {
	if len(resp.Data) == 0 {
		return Summary{}, false
	}
	avg, fromMid := averageTemperature(resp.Data)
	lo, hi := resp.Data[0].TempMin, resp.Data[0].TempMax
	for _, d := range resp.Data[1:] {
		lo = math.Min(lo, d.TempMin)
		hi = math.Max(hi, d.TempMax)
	}
	return Summary{
		AverageC:             Round(avg),
		AverageFromMidpoints: fromMid,
		Min:                  FormatNumber(lo),
		Max:                  FormatNumber(hi),
		Confidence:           FormatNumber(resp.ConfidenceOrDefault()),
		PeriodLine:           period.Title() + " forecast powered by advanced ML models",
	}, true
}

func averageTemperature(data []models.DayPoint) (float64, bool) {
	var sum float64
	for _, d := range data {
		if d.Temperature == nil {
			return averageMidpoint(data), true
		}
		sum += *d.Temperature
	}
	return sum / float64(len(data)), false
}

func averageMidpoint(data []models.DayPoint) float64 {
	var sum float64
	for _, d := range data {
		sum += d.Midpoint()
	}
	return sum / float64(len(data))
}
