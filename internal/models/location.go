package models

// Location is the visitor location reported by the upstream location endpoint.
type Location struct {
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// HasCoordinates reports whether both coordinates are non-zero.
// The forecast endpoint is only queried for locations that pass this check.
func (l Location) HasCoordinates() bool {
	return l.Latitude != 0 && l.Longitude != 0
}
