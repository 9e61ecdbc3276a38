package wunderground

import "fmt"

// Unit selects which measurement family the API returns and which physical
// ranges the converter validates against. The values are the literal codes
// the upstream units= query parameter expects.
type Unit string

const (
	Metric   Unit = "m"
	Imperial Unit = "e"
)

func ParseUnit(s string) (Unit, error) {
	switch s {
	case "m", "metric":
		return Metric, nil
	case "e", "imperial":
		return Imperial, nil
	}
	return "", fmt.Errorf("invalid unit %q (want m, metric, e or imperial)", s)
}

func (u Unit) String() string {
	return string(u)
}

// Block returns the name of the per-unit sub-document in an observation
// payload ("metric" or "imperial").
func (u Unit) Block() string {
	if u == Imperial {
		return "imperial"
	}
	return "metric"
}

// Range is a closed interval of plausible values; both ends are valid.
type Range struct {
	Min, Max float64
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Ranges holds the plausible physical bounds for the unit-dependent
// measurement fields. Bounds are generous world-record envelopes, not
// climatology: they exist to reject corrupted or mis-typed responses, not
// unusual weather.
type Ranges struct {
	Temperature Range // also dewpoint, heat index, wind chill
	WindSpeed   Range // also gust
	Pressure    Range
	PrecipRate  Range
	PrecipTotal Range
	Elevation   Range
}

var (
	metricRanges = Ranges{
		Temperature: Range{-90, 60},     // °C
		WindSpeed:   Range{0, 410},      // km/h
		Pressure:    Range{800, 1100},   // hPa
		PrecipRate:  Range{0, 500},      // mm/h
		PrecipTotal: Range{0, 2000},     // mm
		Elevation:   Range{-450, 9000},  // m
	}
	imperialRanges = Ranges{
		Temperature: Range{-130, 140},    // °F
		WindSpeed:   Range{0, 255},       // mph
		Pressure:    Range{23, 33},       // inHg
		PrecipRate:  Range{0, 20},        // in/h
		PrecipTotal: Range{0, 80},        // in
		Elevation:   Range{-1500, 29600}, // ft
	}
)

// Ranges is pure and total: any Unit value maps to a bounds table, with
// metric as the fallback for the zero value.
func (u Unit) Ranges() Ranges {
	if u == Imperial {
		return imperialRanges
	}
	return metricRanges
}
