package influx

import (
	"strings"
	"testing"
	"time"

	"github.com/lox/pwsbridge/internal/wunderground"
)

func f(v float64) *float64 { return &v }

func TestFromObservation(t *testing.T) {
	obs := &wunderground.Observation{
		StationID:    "IPARIS18204",
		Time:         time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
		Unit:         wunderground.Metric,
		Neighborhood: "Le Marais",
		Country:      "FR",
		Temp:         f(21.5),
		Humidity:     f(55),
	}

	p := FromObservation(obs)

	if p.Measurement != "weather_underground" {
		t.Errorf("Measurement = %q", p.Measurement)
	}
	if p.Tags["station"] != "IPARIS18204" || p.Tags["unit"] != "m" {
		t.Errorf("Tags = %v", p.Tags)
	}
	if p.Tags["neighborhood"] != "Le Marais" {
		t.Errorf("neighborhood tag = %q", p.Tags["neighborhood"])
	}
	if len(p.Fields) != 2 {
		t.Errorf("Fields = %v, want temp and humidity only", p.Fields)
	}
	if p.Fields["temp"] != 21.5 || p.Fields["humidity"] != 55 {
		t.Errorf("Fields = %v", p.Fields)
	}
	if !p.Time.Equal(obs.Time) {
		t.Errorf("Time = %v", p.Time)
	}
}

func TestPointLine(t *testing.T) {
	p := Point{
		Measurement: "weather_underground",
		Tags:        map[string]string{"station": "IPARIS18204", "unit": "m"},
		Fields:      map[string]float64{"temp": 21.5, "humidity": 55},
		Time:        time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	line, err := p.Line()
	if err != nil {
		t.Fatalf("Line: %v", err)
	}

	want := "weather_underground,station=IPARIS18204,unit=m humidity=55,temp=21.5 1672574400000000000"
	if line != want {
		t.Errorf("Line =\n  %s\nwant\n  %s", line, want)
	}
}

func TestPointLineEscaping(t *testing.T) {
	p := Point{
		Measurement: "weather_underground",
		Tags:        map[string]string{"neighborhood": "Le Marais, Paris"},
		Fields:      map[string]float64{"temp": 1},
		Time:        time.Unix(0, 1),
	}

	line, err := p.Line()
	if err != nil {
		t.Fatalf("Line: %v", err)
	}
	if !strings.Contains(line, `neighborhood=Le\ Marais\,\ Paris`) {
		t.Errorf("unescaped tag value in %q", line)
	}
}

func TestPointLineNoFields(t *testing.T) {
	p := Point{Measurement: "weather_underground", Time: time.Now()}
	if _, err := p.Line(); err == nil {
		t.Error("expected error for a point with no fields")
	}
}
