package influx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/pwsbridge/internal/wunderground"
)

// Measurement name every observation point is written under; the station is
// a tag rather than part of the name so a single InfluxQL query can span
// stations.
const Measurement = "weather_underground"

// Point is a single time-series point in InfluxDB line protocol terms.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Time        time.Time
}

// FromObservation maps an observation to a point: station and unit as tags
// (plus neighborhood and country when the station reports them), one field
// per populated measurement, timestamped by the observation's own time.
func FromObservation(obs *wunderground.Observation) Point {
	p := Point{
		Measurement: Measurement,
		Tags: map[string]string{
			"station": obs.StationID,
			"unit":    obs.Unit.String(),
		},
		Fields: map[string]float64{},
		Time:   obs.Time,
	}
	if obs.Neighborhood != "" {
		p.Tags["neighborhood"] = obs.Neighborhood
	}
	if obs.Country != "" {
		p.Tags["country"] = obs.Country
	}

	add := func(name string, v *float64) {
		if v != nil {
			p.Fields[name] = *v
		}
	}
	add("humidity", obs.Humidity)
	add("wind_dir", obs.WindDir)
	add("uv", obs.UV)
	add("solar_radiation", obs.SolarRadiation)
	add("temp", obs.Temp)
	add("dewpt", obs.Dewpoint)
	add("heat_index", obs.HeatIndex)
	add("wind_chill", obs.WindChill)
	add("wind_speed", obs.WindSpeed)
	add("wind_gust", obs.WindGust)
	add("pressure", obs.Pressure)
	add("precip_rate", obs.PrecipRate)
	add("precip_total", obs.PrecipTotal)
	add("elev", obs.Elevation)

	return p
}

// Line encodes the point in InfluxDB line protocol with a nanosecond
// timestamp. Tags and fields are emitted in sorted order so output is
// deterministic. Returns an error when no field is populated, since InfluxDB
// rejects field-less points.
func (p Point) Line() (string, error) {
	if len(p.Fields) == 0 {
		return "", fmt.Errorf("point %s has no fields", p.Measurement)
	}

	var b strings.Builder
	b.WriteString(escapeTag(p.Measurement))

	tags := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		tags = append(tags, k)
	}
	sort.Strings(tags)
	for _, k := range tags {
		b.WriteByte(',')
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(escapeTag(p.Tags[k]))
	}

	fields := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for i, k := range fields {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(',')
		}
		b.WriteString(escapeTag(k))
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(p.Fields[k], 'f', -1, 64))
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(p.Time.UnixNano(), 10))

	return b.String(), nil
}

// escapeTag escapes the characters line protocol reserves in measurement
// names, tag keys/values and field keys.
func escapeTag(s string) string {
	r := strings.NewReplacer(",", `\,`, " ", `\ `, "=", `\=`)
	return r.Replace(s)
}
