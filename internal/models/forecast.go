package models

// DayPoint is one entry of a forecast series. Ordering is chronological and
// significant: position drives chart order and weekly labels.
type DayPoint struct {
	Date    string  `json:"date"`
	TempMax float64 `json:"tempMax"`
	TempMin float64 `json:"tempMin"`
	// Temperature is not part of the documented payload; some upstream builds send it.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Midpoint returns (TempMax+TempMin)/2 in Celsius.
func (d DayPoint) Midpoint() float64 {
	return (d.TempMax + d.TempMin) / 2
}

// DefaultConfidence is shown when the upstream omits confidence or reports zero.
const DefaultConfidence = 85

// ForecastResponse is the payload of GET /api/forecast.
type ForecastResponse struct {
	Data       []DayPoint `json:"data"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// ConfidenceOrDefault returns the reported confidence, or DefaultConfidence when absent or zero.
func (f ForecastResponse) ConfidenceOrDefault() float64 {
	if f.Confidence == nil || *f.Confidence == 0 {
		return DefaultConfidence
	}
	return *f.Confidence
}
