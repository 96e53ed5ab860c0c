package classifier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func s(v string) *string   { return &v }

func TestWaterQuality_Boundaries(t *testing.T) {
	tests := []struct {
		tds  *float64
		want string
	}{
		{nil, Unknown},
		{f(math.NaN()), Unknown},
		{f(-1), WaterPure},
		{f(0), WaterPure},
		{f(10), WaterPure},
		{f(10.01), WaterTap},
		{f(300), WaterTap},
		{f(300.5), WaterSafe},
		{f(500), WaterSafe},
		{f(500.01), WaterModerate},
		{f(650), WaterModerate},
		{f(1000), WaterModerate},
		{f(1000.01), WaterFertilizer},
		{f(5000), WaterFertilizer},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WaterQuality(tt.tds))
	}
}

func TestAirQuality(t *testing.T) {
	t.Run("single gas over limit is poor", func(t *testing.T) {
		assert.Equal(t, AirPoor, AirQuality(f(1001), nil, nil, nil))
		assert.Equal(t, AirPoor, AirQuality(f(1001), f(0), f(0), f(0)))
		assert.Equal(t, AirPoor, AirQuality(nil, f(25.1), nil, nil))
		assert.Equal(t, AirPoor, AirQuality(nil, nil, f(5.5), nil))
		assert.Equal(t, AirPoor, AirQuality(nil, nil, nil, f(51)))
	})

	t.Run("all present and within limits is good", func(t *testing.T) {
		assert.Equal(t, AirGood, AirQuality(f(400), f(5), f(1), f(10)))
		assert.Equal(t, AirGood, AirQuality(f(1000), f(25), f(5), f(50)))
	})

	t.Run("all absent is unknown", func(t *testing.T) {
		assert.Equal(t, Unknown, AirQuality(nil, nil, nil, nil))
	})

	t.Run("partial within limits is unknown", func(t *testing.T) {
		assert.Equal(t, Unknown, AirQuality(f(400), nil, f(1), f(10)))
	})
}

func TestLightStatus(t *testing.T) {
	assert.Equal(t, Unknown, LightStatus(nil))
	assert.Equal(t, LightSunrise, LightStatus(i(0)))
	assert.Equal(t, LightSunset, LightStatus(i(1)))
	assert.Equal(t, "Light Level: 7", LightStatus(i(7)))
	assert.Equal(t, "Light Level: -2", LightStatus(i(-2)))
}

func TestRelayOn(t *testing.T) {
	assert.True(t, RelayOn(s("true")))
	assert.True(t, RelayOn(s("TRUE")))
	assert.True(t, RelayOn(s("True")))
	assert.False(t, RelayOn(s("1")))
	assert.False(t, RelayOn(s("on")))
	assert.False(t, RelayOn(s("")))
	assert.False(t, RelayOn(nil))
}

func TestMotionDetected(t *testing.T) {
	assert.Nil(t, MotionDetected(nil))
	assert.True(t, *MotionDetected(s("1")))
	assert.True(t, *MotionDetected(s("true")))
	assert.False(t, *MotionDetected(s("0")))
}

func TestClassify(t *testing.T) {
	c := Classify(mqtmodels.SensorReading{
		CO2:   f(1200),
		TDS:   f(650),
		Motor: s("true"),
		HV:    s("false"),
	})

	assert.Equal(t, AirPoor, c.AirQuality)
	assert.Equal(t, WaterModerate, c.WaterQuality)
	assert.Equal(t, Unknown, c.LightStatus)
	assert.Nil(t, c.MotionDetected)
	assert.True(t, c.MotorOn)
	assert.False(t, c.HVOn)
	assert.False(t, c.HVAutoOn)
}
