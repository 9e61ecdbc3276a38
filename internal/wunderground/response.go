package wunderground

// Wire schema for the v2/pws/observations/current endpoint. Every
// measurement is a pointer: absent means the station does not report that
// sensor, which is a legitimate state distinct from present-but-invalid.

type currentResponse struct {
	Observations []RawObservation `json:"observations"`
	Errors       []responseError  `json:"errors"`
	Success      *bool            `json:"success"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RawObservation is one element of the upstream observations array, exactly
// as received. It has passed JSON decoding but no semantic validation; it
// must not travel past Convert.
type RawObservation struct {
	StationID      string           `json:"stationID"`
	ObsTimeUtc     string           `json:"obsTimeUtc"`
	ObsTimeLocal   string           `json:"obsTimeLocal"`
	Epoch          int64            `json:"epoch"`
	Neighborhood   string           `json:"neighborhood"`
	Country        string           `json:"country"`
	Lat            *float64         `json:"lat"`
	Lon            *float64         `json:"lon"`
	Humidity       *float64         `json:"humidity"`
	WindDir        *float64         `json:"winddir"`
	UV             *float64         `json:"uv"`
	SolarRadiation *float64         `json:"solarRadiation"`
	QCStatus       int              `json:"qcStatus"`
	Metric         *RawMeasurements `json:"metric"`
	Imperial       *RawMeasurements `json:"imperial"`
}

// RawMeasurements is the unit-specific sub-document of an observation.
type RawMeasurements struct {
	Temp        *float64 `json:"temp"`
	Dewpt       *float64 `json:"dewpt"`
	HeatIndex   *float64 `json:"heatIndex"`
	WindChill   *float64 `json:"windChill"`
	WindSpeed   *float64 `json:"windSpeed"`
	WindGust    *float64 `json:"windGust"`
	Pressure    *float64 `json:"pressure"`
	PrecipRate  *float64 `json:"precipRate"`
	PrecipTotal *float64 `json:"precipTotal"`
	Elev        *float64 `json:"elev"`
}

// block returns the sub-document for the requested unit and the one for the
// opposite unit, either of which may be nil.
func (o *RawObservation) block(unit Unit) (selected, other *RawMeasurements) {
	if unit == Imperial {
		return o.Imperial, o.Metric
	}
	return o.Metric, o.Imperial
}
