package wunderground

import (
	"fmt"
	"math"
	"time"
)

// Unit-independent bounds. Humidity is a percentage everywhere, wind
// direction a compass bearing, UV the WMO index, solar radiation W/m².
var (
	humidityRange = Range{0, 100}
	windDirRange  = Range{0, 360}
	uvRange       = Range{0, 25}
	solarRange    = Range{0, 2000}
)

// Observation is a validated weather reading for one station at one point in
// time. Every populated measurement has already been checked finite and
// inside the plausible range for Unit; callers never re-validate. Nil
// measurements mean the station does not report that sensor.
type Observation struct {
	StationID    string    `json:"stationID"`
	Time         time.Time `json:"time"`
	Unit         Unit      `json:"unit"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	Country      string    `json:"country,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`

	Humidity       *float64 `json:"humidity,omitempty"`
	WindDir        *float64 `json:"winddir,omitempty"`
	UV             *float64 `json:"uv,omitempty"`
	SolarRadiation *float64 `json:"solarRadiation,omitempty"`

	Temp        *float64 `json:"temp,omitempty"`
	Dewpoint    *float64 `json:"dewpt,omitempty"`
	HeatIndex   *float64 `json:"heatIndex,omitempty"`
	WindChill   *float64 `json:"windChill,omitempty"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
	WindGust    *float64 `json:"windGust,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	PrecipRate  *float64 `json:"precipRate,omitempty"`
	PrecipTotal *float64 `json:"precipTotal,omitempty"`
	Elevation   *float64 `json:"elev,omitempty"`
}

// Convert validates a raw observation against the station and unit the
// request was built with and produces the typed domain value.
//
// A payload carrying only the opposite unit's measurement block is rejected:
// it means the request and response disagree about units, and interpreting
// the numbers anyway would mislabel every value. A payload with no block at
// all is fine; the block measurements are simply absent.
func Convert(raw *RawObservation, stationID string, unit Unit) (*Observation, error) {
	if raw.StationID == "" {
		return nil, &ValidationError{Field: "stationID", Reason: "missing"}
	}
	if raw.StationID != stationID {
		return nil, &ValidationError{
			Field:  "stationID",
			Reason: fmt.Sprintf("got %s, requested %s", raw.StationID, stationID),
		}
	}

	ts, err := observationTime(raw)
	if err != nil {
		return nil, err
	}

	obs := &Observation{
		StationID:    raw.StationID,
		Time:         ts,
		Unit:         unit,
		Neighborhood: raw.Neighborhood,
		Country:      raw.Country,
		Lat:          raw.Lat,
		Lon:          raw.Lon,
	}

	v := &validator{}
	obs.Humidity = v.check("humidity", raw.Humidity, humidityRange)
	obs.WindDir = v.check("winddir", raw.WindDir, windDirRange)
	obs.UV = v.check("uv", raw.UV, uvRange)
	obs.SolarRadiation = v.check("solarRadiation", raw.SolarRadiation, solarRange)

	selected, other := raw.block(unit)
	if selected == nil && other != nil {
		return nil, &ValidationError{Field: unit.Block(), Reason: "measurement block missing for requested unit"}
	}
	if selected != nil {
		r := unit.Ranges()
		obs.Temp = v.check("temp", selected.Temp, r.Temperature)
		obs.Dewpoint = v.check("dewpt", selected.Dewpt, r.Temperature)
		obs.HeatIndex = v.check("heatIndex", selected.HeatIndex, r.Temperature)
		obs.WindChill = v.check("windChill", selected.WindChill, r.Temperature)
		obs.WindSpeed = v.check("windSpeed", selected.WindSpeed, r.WindSpeed)
		obs.WindGust = v.check("windGust", selected.WindGust, r.WindSpeed)
		obs.Pressure = v.check("pressure", selected.Pressure, r.Pressure)
		obs.PrecipRate = v.check("precipRate", selected.PrecipRate, r.PrecipRate)
		obs.PrecipTotal = v.check("precipTotal", selected.PrecipTotal, r.PrecipTotal)
		obs.Elevation = v.check("elev", selected.Elev, r.Elevation)
	}

	if v.err != nil {
		return nil, v.err
	}
	return obs, nil
}

// observationTime parses obsTimeUtc, falling back to the epoch field when
// the textual timestamp is absent. The history endpoints omit obsTimeUtc on
// some records, so the fallback keeps both shapes parseable.
func observationTime(raw *RawObservation) (time.Time, error) {
	if raw.ObsTimeUtc != "" {
		ts, err := time.Parse(time.RFC3339, raw.ObsTimeUtc)
		if err != nil {
			return time.Time{}, &ValidationError{
				Field:  "obsTimeUtc",
				Reason: fmt.Sprintf("unparseable timestamp %q", raw.ObsTimeUtc),
			}
		}
		return ts.UTC(), nil
	}
	if raw.Epoch > 0 {
		return time.Unix(raw.Epoch, 0).UTC(), nil
	}
	return time.Time{}, &ValidationError{Field: "obsTimeUtc", Reason: "missing"}
}

// validator records the first out-of-range field. A wildly out-of-range
// value indicates a corrupted or mis-typed response, so it fails the whole
// conversion rather than being clamped or dropped.
type validator struct {
	err error
}

func (v *validator) check(field string, value *float64, r Range) *float64 {
	if value == nil || v.err != nil {
		return value
	}
	if math.IsNaN(*value) || math.IsInf(*value, 0) {
		v.err = &ValidationError{Field: field, Reason: "not a finite number"}
		return nil
	}
	if !r.Contains(*value) {
		v.err = &ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("%g outside [%g, %g]", *value, r.Min, r.Max),
		}
		return nil
	}
	return value
}
