package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
)

var receivedAt = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

func TestDecode_RejectsNonObjects(t *testing.T) {
	payloads := []string{
		``,
		`not json`,
		`[1,2,3]`,
		`"temperature"`,
		`42`,
		`null`,
		`{"temperature": 30`,
		`{"a":1} {"b":2}`,
	}
	for _, p := range payloads {
		_, err := Decode([]byte(p))
		require.Error(t, err, p)

		var decErr *DecodeError
		assert.True(t, errors.As(err, &decErr), p)
	}
}

func TestDecode_RejectsTrailingDelimiters(t *testing.T) {
	for _, p := range []string{`{"a":1}}`, `{"a":1}]`, `{"a":1},`, `{"a":1} x`} {
		_, err := Decode([]byte(p))
		require.Error(t, err, p)
		assert.Contains(t, err.Error(), "trailing data", p)
	}
}

func TestDecode_AllowsTrailingWhitespace(t *testing.T) {
	m, err := Decode([]byte("{\"temperature\": 21}\n\t "))
	require.NoError(t, err)
	assert.Contains(t, m, "temperature")
}

func TestDecode_KeepsNumbersExact(t *testing.T) {
	m, err := Decode([]byte(`{"TDS": 650, "extra": {"nested": true}}`))
	require.NoError(t, err)
	assert.Contains(t, m, "TDS")
	assert.Contains(t, m, "extra")
}

func TestNormalize_EmptyPayloadYieldsDefaults(t *testing.T) {
	r, rejected, err := Parse([]byte(`{}`), receivedAt)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	assert.Equal(t, mqtmodels.SensorReading{
		DeviceID:   mqtmodels.DefaultDeviceID,
		Location:   mqtmodels.DefaultLocation,
		ReceivedAt: receivedAt,
	}, r)
}

func TestNormalize_FullPayload(t *testing.T) {
	payload := `{
		"device_id": "esp32_greenhouse",
		"location": "greenhouse_2",
		"temperature": 30.5,
		"humidity": "61.2",
		"soilMoisture": 0,
		"motion": 1,
		"raindata": "No Rain",
		"CO2_ppm": 420,
		"NH3_ppm": 3.1,
		"Benzene_ppm": 0.4,
		"Smoke_ppm": 12,
		"TDS": 650,
		"light": 1,
		"motor": true,
		"hv": "false",
		"hv_auto": "TRUE",
		"firmware": "1.4.2"
	}`

	r, rejected, err := Parse([]byte(payload), receivedAt)
	require.NoError(t, err)
	assert.Empty(t, rejected)

	assert.Equal(t, "esp32_greenhouse", r.DeviceID)
	assert.Equal(t, "greenhouse_2", r.Location)
	assert.Equal(t, 30.5, *r.Temperature)
	assert.Equal(t, 61.2, *r.Humidity)
	require.NotNil(t, r.SoilMoisture)
	assert.Equal(t, 0.0, *r.SoilMoisture)
	assert.Equal(t, "1", *r.Motion)
	assert.Equal(t, "No Rain", *r.RainStatus)
	assert.Equal(t, 420.0, *r.CO2)
	assert.Equal(t, 650.0, *r.TDS)
	assert.Equal(t, 1, *r.Light)
	assert.Equal(t, "true", *r.Motor)
	assert.Equal(t, "false", *r.HV)
	assert.Equal(t, "TRUE", *r.HVAuto)
}

func TestNormalize_BadFieldsAreDroppedIndividually(t *testing.T) {
	payload := `{
		"temperature": "hot",
		"humidity": 140,
		"CO2_ppm": -5,
		"TDS": "NaN",
		"light": 2.5,
		"motor": {"state": "on"},
		"device_id": "",
		"location": 7,
		"Smoke_ppm": 20
	}`

	r, rejected, err := Parse([]byte(payload), receivedAt)
	require.NoError(t, err)

	assert.Nil(t, r.Temperature)
	assert.Nil(t, r.Humidity)
	assert.Nil(t, r.CO2)
	assert.Nil(t, r.TDS)
	assert.Nil(t, r.Light)
	assert.Nil(t, r.Motor)
	assert.Equal(t, mqtmodels.DefaultDeviceID, r.DeviceID)
	assert.Equal(t, mqtmodels.DefaultLocation, r.Location)

	require.NotNil(t, r.Smoke)
	assert.Equal(t, 20.0, *r.Smoke)

	assert.ElementsMatch(t, []string{
		"CO2_ppm", "TDS", "device_id", "humidity", "light", "location", "motor", "temperature",
	}, rejected)
}

func TestNormalize_NullsAreAbsent(t *testing.T) {
	r, rejected, err := Parse([]byte(`{"temperature": null, "motor": null}`), receivedAt)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Nil(t, r.Temperature)
	assert.Nil(t, r.Motor)
}

func TestNormalize_Aliases(t *testing.T) {
	r, _, err := Parse([]byte(`{"soil_moisture": 44, "rain_status": "Raining"}`), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, 44.0, *r.SoilMoisture)
	assert.Equal(t, "Raining", *r.RainStatus)

	r, _, err = Parse([]byte(`{"soilMoisture": 10, "soil_moisture": 90}`), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, 10.0, *r.SoilMoisture)
}

func TestNormalize_TimestampIsReceiptTime(t *testing.T) {
	local := time.Date(2026, 3, 1, 16, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	r, _, err := Parse([]byte(`{"timestamp": "1999-01-01T00:00:00Z"}`), local)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, r.ReceivedAt.Location())
	assert.True(t, r.ReceivedAt.Equal(local))
}

func TestNormalize_NegativeTDSIsRejected(t *testing.T) {
	r, rejected, err := Parse([]byte(`{"TDS": -3}`), receivedAt)
	require.NoError(t, err)
	assert.Nil(t, r.TDS)
	assert.Equal(t, []string{"TDS"}, rejected)
}
