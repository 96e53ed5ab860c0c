package mqtmodels

const (
	UnitCelsius = "celsius"
	UnitPercent = "percent"
	UnitPPM     = "ppm"
)

// MetricFamily describes one capped history series
type MetricFamily struct {
	Name       string
	Collection string
	Unit       string
	Value      func(SensorReading) *float64
}

// MetricFamilies lists every per-metric history series in write order
var MetricFamilies = []MetricFamily{
	{Name: "temperature", Collection: "temperature_data", Unit: UnitCelsius, Value: func(r SensorReading) *float64 { return r.Temperature }},
	{Name: "humidity", Collection: "humidity_data", Unit: UnitPercent, Value: func(r SensorReading) *float64 { return r.Humidity }},
	{Name: "soil_moisture", Collection: "soil_moisture_data", Unit: UnitPercent, Value: func(r SensorReading) *float64 { return r.SoilMoisture }},
	{Name: "co2", Collection: "co2_data", Unit: UnitPPM, Value: func(r SensorReading) *float64 { return r.CO2 }},
	{Name: "nh3", Collection: "nh3_data", Unit: UnitPPM, Value: func(r SensorReading) *float64 { return r.NH3 }},
	{Name: "benzene", Collection: "benzene_data", Unit: UnitPPM, Value: func(r SensorReading) *float64 { return r.Benzene }},
	{Name: "smoke", Collection: "smoke_data", Unit: UnitPPM, Value: func(r SensorReading) *float64 { return r.Smoke }},
	{Name: "tds", Collection: "tds_data", Unit: UnitPPM, Value: func(r SensorReading) *float64 { return r.TDS }},
}

// HistoryCollections returns every capped collection name, including the aggregate series
func HistoryCollections() []string {
	out := make([]string, 0, len(MetricFamilies)+1)
	out = append(out, ReadingHistoryCollection)
	for _, f := range MetricFamilies {
		out = append(out, f.Collection)
	}
	return out
}
