// Package normalizer turns raw bus payloads into typed sensor readings.
//
// Only a payload that is not a JSON object at all is an error. Every field is
// coerced on its own; a field with the wrong type or an implausible value is
// reported as rejected and left absent while the rest of the reading survives.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
)

// Wire keys sent by the field devices
const (
	KeyDeviceID     = "device_id"
	KeyLocation     = "location"
	KeyTemperature  = "temperature"
	KeyHumidity     = "humidity"
	KeySoilMoisture = "soilMoisture"
	KeyMotion       = "motion"
	KeyRain         = "raindata"
	KeyCO2          = "CO2_ppm"
	KeyNH3          = "NH3_ppm"
	KeyBenzene      = "Benzene_ppm"
	KeySmoke        = "Smoke_ppm"
	KeyTDS          = "TDS"
	KeyLight        = "light"
	KeyMotor        = "motor"
	KeyHV           = "hv"
	KeyHVAuto       = "hv_auto"
)

// Older firmware uses snake_case for two fields
var aliases = map[string]string{
	KeySoilMoisture: "soil_moisture",
	KeyRain:         "rain_status",
}

// Plausible physical ranges; values outside are sensor faults.
var (
	temperatureRange = valueRange{-60, 100}
	percentRange     = valueRange{0, 100}
	ppmRange         = valueRange{0, math.MaxFloat64}
)

var ErrNotObject = errors.New("payload is not a JSON object")

// DecodeError means the payload could not be read as structured data
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a wire payload into a string-keyed map. Numbers are kept as json.Number.
func Decode(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &DecodeError{Err: err}
	}
	// anything but EOF after the value, including a stray closing delimiter, is trailing data
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DecodeError{Err: errors.New("trailing data after JSON value")}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &DecodeError{Err: ErrNotObject}
	}
	return m, nil
}

// Parse decodes and normalizes in one step
func Parse(payload []byte, receivedAt time.Time) (mqtmodels.SensorReading, []string, error) {
	raw, err := Decode(payload)
	if err != nil {
		return mqtmodels.SensorReading{}, nil, err
	}
	r, rejected := Normalize(raw, receivedAt)
	return r, rejected, nil
}

// Normalize coerces a decoded payload into a SensorReading stamped with receivedAt.
// It never fails; the second result lists keys that were present but unusable.
func Normalize(raw map[string]any, receivedAt time.Time) (mqtmodels.SensorReading, []string) {
	n := &fieldReader{raw: raw}

	r := mqtmodels.SensorReading{
		DeviceID:   n.identifier(KeyDeviceID, mqtmodels.DefaultDeviceID),
		Location:   n.identifier(KeyLocation, mqtmodels.DefaultLocation),
		ReceivedAt: receivedAt.UTC(),

		Temperature:  n.number(KeyTemperature, temperatureRange),
		Humidity:     n.number(KeyHumidity, percentRange),
		SoilMoisture: n.number(KeySoilMoisture, percentRange),
		Motion:       n.text(KeyMotion),
		RainStatus:   n.text(KeyRain),

		CO2:     n.number(KeyCO2, ppmRange),
		NH3:     n.number(KeyNH3, ppmRange),
		Benzene: n.number(KeyBenzene, ppmRange),
		Smoke:   n.number(KeySmoke, ppmRange),

		TDS:   n.number(KeyTDS, ppmRange),
		Light: n.integer(KeyLight),

		Motor:  n.text(KeyMotor),
		HV:     n.text(KeyHV),
		HVAuto: n.text(KeyHVAuto),
	}

	sort.Strings(n.rejected)
	return r, n.rejected
}

type valueRange struct {
	min, max float64
}

func (v valueRange) contains(x float64) bool {
	return x >= v.min && x <= v.max
}

type fieldReader struct {
	raw      map[string]any
	rejected []string
}

// lookup returns the value for key or its alias; explicit nulls count as absent
func (n *fieldReader) lookup(key string) (string, any, bool) {
	if v, ok := n.raw[key]; ok && v != nil {
		return key, v, true
	}
	if alt, ok := aliases[key]; ok {
		if v, ok := n.raw[alt]; ok && v != nil {
			return alt, v, true
		}
	}
	return "", nil, false
}

func (n *fieldReader) reject(key string) {
	n.rejected = append(n.rejected, key)
}

func (n *fieldReader) identifier(key, fallback string) string {
	k, v, ok := n.lookup(key)
	if !ok {
		return fallback
	}
	s, isString := v.(string)
	s = strings.TrimSpace(s)
	if !isString || s == "" {
		n.reject(k)
		return fallback
	}
	return s
}

func (n *fieldReader) number(key string, bounds valueRange) *float64 {
	k, v, ok := n.lookup(key)
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok || !bounds.contains(f) {
		n.reject(k)
		return nil
	}
	return &f
}

func (n *fieldReader) integer(key string) *int {
	k, v, ok := n.lookup(key)
	if !ok {
		return nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		n.reject(k)
		return nil
	}
	i := int(f)
	return &i
}

// text keeps scalar values verbatim as strings for audit
func (n *fieldReader) text(key string) *string {
	k, v, ok := n.lookup(key)
	if !ok {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case bool:
		s = strconv.FormatBool(t)
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		n.reject(k)
		return nil
	}
	return &s
}

func toFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
