// Package classifier derives categorical states from normalized sensor readings.
// Every function is pure and total: unparseable or missing input maps to Unknown.
package classifier

import (
	"fmt"
	"math"
	"strings"

	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
)

const Unknown = "unknown"

const (
	AirGood = "good"
	AirPoor = "poor"
)

const (
	WaterPure       = "Pure Water"
	WaterTap        = "Tap Water"
	WaterSafe       = "Safe Drinking Water"
	WaterModerate   = "Moderate Water Quality"
	WaterFertilizer = "Fertilizer Solution/High TDS"
)

const (
	LightSunrise = "Sunrise"
	LightSunset  = "Sunset"
)

// Gas thresholds in ppm; a reading strictly above any of them is poor.
const (
	CO2Limit     = 1000.0
	NH3Limit     = 25.0
	BenzeneLimit = 5.0
	SmokeLimit   = 50.0
)

// Classify derives every categorical field for a reading
func Classify(r mqtmodels.SensorReading) mqtmodels.Classification {
	return mqtmodels.Classification{
		AirQuality:     AirQuality(r.CO2, r.NH3, r.Benzene, r.Smoke),
		WaterQuality:   WaterQuality(r.TDS),
		LightStatus:    LightStatus(r.Light),
		MotionDetected: MotionDetected(r.Motion),
		MotorOn:        RelayOn(r.Motor),
		HVOn:           RelayOn(r.HV),
		HVAutoOn:       RelayOn(r.HVAuto),
	}
}

// AirQuality is poor as soon as one present gas exceeds its limit, good only
// when all four gases are present and within limits, unknown otherwise.
func AirQuality(co2, nh3, benzene, smoke *float64) string {
	gases := []struct {
		v     *float64
		limit float64
	}{
		{co2, CO2Limit},
		{nh3, NH3Limit},
		{benzene, BenzeneLimit},
		{smoke, SmokeLimit},
	}

	complete := true
	for _, g := range gases {
		if !usable(g.v) {
			complete = false
			continue
		}
		if *g.v > g.limit {
			return AirPoor
		}
	}
	if complete {
		return AirGood
	}
	return Unknown
}

// WaterQuality maps total dissolved solids (ppm) to a tier. Upper bounds are inclusive,
// so anything up to 10 is pure. Negative readings never get here from the bus:
// the normalizer drops TDS below zero as out of range.
func WaterQuality(tds *float64) string {
	if !usable(tds) {
		return Unknown
	}
	switch v := *tds; {
	case v <= 10:
		return WaterPure
	case v <= 300:
		return WaterTap
	case v <= 500:
		return WaterSafe
	case v <= 1000:
		return WaterModerate
	default:
		return WaterFertilizer
	}
}

// LightStatus maps the light sensor code to a label
func LightStatus(code *int) string {
	if code == nil {
		return Unknown
	}
	switch *code {
	case 0:
		return LightSunrise
	case 1:
		return LightSunset
	default:
		return fmt.Sprintf("Light Level: %d", *code)
	}
}

// RelayOn is true only for a case-insensitive "true"
func RelayOn(raw *string) bool {
	return raw != nil && strings.EqualFold(strings.TrimSpace(*raw), "true")
}

// MotionDetected returns nil when motion was not reported
func MotionDetected(raw *string) *bool {
	if raw == nil {
		return nil
	}
	v := strings.TrimSpace(*raw)
	detected := v == "1" || strings.EqualFold(v, "true")
	return &detected
}

func usable(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
