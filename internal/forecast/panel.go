package forecast

import (
	"time"

	"github.com/kjstillabower/forecast-dashboard/internal/models"
)

// PanelState is where a period panel sits in loading → {error, empty, populated}.
type PanelState string

const (
	StateLoading   PanelState = "loading"
	StateError     PanelState = "error"
	StateEmpty     PanelState = "empty"
	StatePopulated PanelState = "populated"
)

// Panel is everything one period tab renders.
type Panel struct {
	Period models.Period
	State  PanelState

	// Set only when State is StatePopulated.
	Description string
	Points      []ChartPoint
	Chart       Chart
	Cards       []DayCard
	Summary     Summary
}

// LoadingPanel is the placeholder rendered before the fragment is fetched.
func LoadingPanel(period models.Period) Panel {
	return Panel{Period: period, State: StateLoading}
}

// BuildPanel resolves a fetch outcome into a terminal panel. Any error yields
// StateError; a nil or empty response yields StateEmpty. loc controls how
// timestamps are labelled and may be nil.
func BuildPanel(period models.Period, resp *models.ForecastResponse, err error, loc *time.Location) Panel {
	p := Panel{Period: period}
	switch {
	case err != nil:
		p.State = StateError
		return p
	case resp == nil || len(resp.Data) == 0:
		p.State = StateEmpty
		return p
	}

	p.State = StatePopulated
	p.Description = period.String() + " temperature forecast with " + FormatNumber(resp.ConfidenceOrDefault()) + "% confidence"
	p.Points = ChartData(period, resp.Data, loc)
	p.Chart = NewChart(p.Points)
	p.Cards = DayCards(resp.Data, loc)
	p.Summary, _ = Summarize(period, *resp)
	return p
}

// LoadLocation returns the named zone, or nil when name is empty or unknown.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}
	return loc
}
