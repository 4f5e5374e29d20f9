package forecast

import (
	"math"
	"strconv"
	"strings"
)

const (
	chartWidth     = 800
	chartHeight    = 300
	chartPadLeft   = 44
	chartPadRight  = 16
	chartPadTop    = 16
	chartPadBottom = 32
	maxYTicks      = 6

	// chartLimit bounds values fed to the y scale so the span stays finite.
	chartLimit = 1e300
)

// Tick is a labelled axis position in SVG user units.
type Tick struct {
	Pos   float64
	Label string
}

// Marker is a plotted value with its tooltip.
type Marker struct {
	X, Y  float64
	Title string
}

// Chart is the geometry of the temperature line chart, ready for an SVG template.
type Chart struct {
	Width, Height int
	PlotLeft      float64
	PlotRight     float64
	PlotTop       float64
	PlotBottom    float64

	MaxLine string
	MinLine string

	MaxMarkers []Marker
	MinMarkers []Marker

	XTicks []Tick
	YTicks []Tick
}

// NewChart lays out points on a fixed viewBox. The y range is widened to
// multiples of five around the data.
func NewChart(points []ChartPoint) Chart {
	c := Chart{
		Width:      chartWidth,
		Height:     chartHeight,
		PlotLeft:   chartPadLeft,
		PlotRight:  chartWidth - chartPadRight,
		PlotTop:    chartPadTop,
		PlotBottom: chartHeight - chartPadBottom,
	}
	if len(points) == 0 {
		return c
	}

	lo, hi := points[0].TempMin, points[0].TempMax
	for _, p := range points {
		lo = min(lo, p.TempMin, p.TempMax)
		hi = max(hi, p.TempMin, p.TempMax)
	}
	yMin, yMax, step := yScale(lo, hi)

	x := func(i int) float64 {
		if len(points) == 1 {
			return (c.PlotLeft + c.PlotRight) / 2
		}
		return c.PlotLeft + float64(i)*(c.PlotRight-c.PlotLeft)/float64(len(points)-1)
	}
	y := func(v float64) float64 {
		v = math.Max(yMin, math.Min(yMax, v))
		return c.PlotBottom - (v-yMin)/(yMax-yMin)*(c.PlotBottom-c.PlotTop)
	}

	maxPts := make([]string, 0, len(points))
	minPts := make([]string, 0, len(points))
	for i, p := range points {
		px := x(i)
		c.XTicks = append(c.XTicks, Tick{Pos: px, Label: p.Label})

		hy, ly := y(p.TempMax), y(p.TempMin)
		maxPts = append(maxPts, coord(px, hy))
		minPts = append(minPts, coord(px, ly))
		c.MaxMarkers = append(c.MaxMarkers, Marker{X: px, Y: hy, Title: p.Label + " Max Temp: " + FormatNumber(p.TempMax) + "°C"})
		c.MinMarkers = append(c.MinMarkers, Marker{X: px, Y: ly, Title: p.Label + " Min Temp: " + FormatNumber(p.TempMin) + "°C"})
	}
	c.MaxLine = strings.Join(maxPts, " ")
	c.MinLine = strings.Join(minPts, " ")

	n := int(math.Round((yMax - yMin) / step))
	for i := 0; i <= n; i++ {
		v := yMin + float64(i)*step
		c.YTicks = append(c.YTicks, Tick{Pos: y(v), Label: FormatNumber(v)})
	}
	return c
}

// yScale returns bounds on multiples of five enclosing [lo, hi] and a tick
// step that keeps the tick count at or below maxYTicks. Values beyond
// ±chartLimit are clamped. yMax is always strictly greater than yMin.
func yScale(lo, hi float64) (yMin, yMax, step float64) {
	lo, hi = clampChart(lo), clampChart(hi)
	yMin = math.Floor(lo/5) * 5
	yMax = math.Ceil(hi/5) * 5
	step = 5
	if yMax <= yMin {
		yMax = yMin + step
	}
	if yMax <= yMin {
		// yMin is too large for +5 to register.
		step = math.Abs(yMin)
		yMax = yMin + step
	}
	for (yMax-yMin)/step+1 > maxYTicks {
		step *= 2
	}
	ticks := math.Ceil((yMax - yMin) / step)
	yMax = yMin + ticks*step
	return yMin, yMax, step
}

func clampChart(v float64) float64 {
	return math.Max(-chartLimit, math.Min(chartLimit, v))
}

func coord(x, y float64) string {
	return strconv.FormatFloat(x, 'f', 1, 64) + "," + strconv.FormatFloat(y, 'f', 1, 64)
}
