package mqtmodels

import "time"

const (
	DefaultDeviceID = "esp32_sensor"
	DefaultLocation = "farm_field_1"
)

// Store collection (and Postgres table) names read by the dashboard API.
const (
	LatestCollection         = "sensor_readings"
	ReadingHistoryCollection = "sensor_history"
	RelayLogCollection       = "motor_logs"
)

// SensorReading is one normalized inbound message. A nil metric means the
// device did not report it (or reported garbage), which is not the same as zero.
type SensorReading struct {
	DeviceID   string
	Location   string
	ReceivedAt time.Time

	Temperature  *float64
	Humidity     *float64
	SoilMoisture *float64
	Motion       *string
	RainStatus   *string

	CO2     *float64
	NH3     *float64
	Benzene *float64
	Smoke   *float64

	TDS   *float64
	Light *int

	Motor  *string
	HV     *string
	HVAuto *string
}

// HasRelay reports whether any relay state was present in the message
func (r SensorReading) HasRelay() bool {
	return r.Motor != nil || r.HV != nil || r.HVAuto != nil
}

// Classification holds the categorical fields derived at ingestion time
type Classification struct {
	AirQuality     string
	WaterQuality   string
	LightStatus    string
	MotionDetected *bool
	MotorOn        bool
	HVOn           bool
	HVAutoOn       bool
}

// LatestState is the single current document per (device_id, location).
// Absent metrics are written as null so a replacement never keeps stale values.
type LatestState struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	DeviceID  string    `bson:"device_id" json:"device_id"`
	Location  string    `bson:"location" json:"location"`
	IngestID  string    `bson:"ingest_id" json:"ingest_id"`

	Temperature    *float64 `bson:"temperature" json:"temperature"`
	Humidity       *float64 `bson:"humidity" json:"humidity"`
	Motion         *string  `bson:"motion" json:"motion"`
	MotionDetected *bool    `bson:"motion_detected" json:"motion_detected"`
	SoilMoisture   *float64 `bson:"soil_moisture" json:"soil_moisture"`
	RainStatus     *string  `bson:"rain_status" json:"rain_status"`

	CO2              *float64 `bson:"CO2_ppm" json:"CO2_ppm"`
	NH3              *float64 `bson:"NH3_ppm" json:"NH3_ppm"`
	Benzene          *float64 `bson:"Benzene_ppm" json:"Benzene_ppm"`
	Smoke            *float64 `bson:"Smoke_ppm" json:"Smoke_ppm"`
	AirQualityStatus string   `bson:"air_quality_status" json:"air_quality_status"`

	TDS          *float64 `bson:"TDS" json:"TDS"`
	WaterQuality string   `bson:"water_quality" json:"water_quality"`

	Light       *int   `bson:"light" json:"light"`
	LightStatus string `bson:"light_status" json:"light_status"`

	MotorState  *string `bson:"motor_state" json:"motor_state"`
	MotorOn     bool    `bson:"motor_on" json:"motor_on"`
	HVState     *string `bson:"hv_state" json:"hv_state"`
	HVOn        bool    `bson:"hv_on" json:"hv_on"`
	HVAutoState *string `bson:"hv_auto_state" json:"hv_auto_state"`
	HVAutoOn    bool    `bson:"hv_auto_on" json:"hv_auto_on"`
}

// NewLatestState merges a reading with its classification
func NewLatestState(r SensorReading, c Classification, ingestID string) LatestState {
	return LatestState{
		Timestamp:        r.ReceivedAt,
		DeviceID:         r.DeviceID,
		Location:         r.Location,
		IngestID:         ingestID,
		Temperature:      r.Temperature,
		Humidity:         r.Humidity,
		Motion:           r.Motion,
		MotionDetected:   c.MotionDetected,
		SoilMoisture:     r.SoilMoisture,
		RainStatus:       r.RainStatus,
		CO2:              r.CO2,
		NH3:              r.NH3,
		Benzene:          r.Benzene,
		Smoke:            r.Smoke,
		AirQualityStatus: c.AirQuality,
		TDS:              r.TDS,
		WaterQuality:     c.WaterQuality,
		Light:            r.Light,
		LightStatus:      c.LightStatus,
		MotorState:       r.Motor,
		MotorOn:          c.MotorOn,
		HVState:          r.HV,
		HVOn:             c.HVOn,
		HVAutoState:      r.HVAuto,
		HVAutoOn:         c.HVAutoOn,
	}
}

// HistoryRecord is one point in a per-metric history series
type HistoryRecord struct {
	Value        float64   `bson:"value" json:"value"`
	Unit         string    `bson:"unit" json:"unit"`
	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
	DeviceID     string    `bson:"device_id" json:"device_id"`
	Location     string    `bson:"location" json:"location"`
	WaterQuality string    `bson:"water_quality,omitempty" json:"water_quality,omitempty"`
}

// RelayLog is an append-only audit entry for relay states
type RelayLog struct {
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	DeviceID    string    `bson:"device_id" json:"device_id"`
	Location    string    `bson:"location" json:"location"`
	IngestID    string    `bson:"ingest_id" json:"ingest_id"`
	MotorState  *string   `bson:"motor_state" json:"motor_state"`
	MotorOn     bool      `bson:"motor_on" json:"motor_on"`
	HVState     *string   `bson:"hv_state" json:"hv_state"`
	HVOn        bool      `bson:"hv_on" json:"hv_on"`
	HVAutoState *string   `bson:"hv_auto_state" json:"hv_auto_state"`
	HVAutoOn    bool      `bson:"hv_auto_on" json:"hv_auto_on"`
}

// NewRelayLog builds the audit entry for a reading that carried relay fields
func NewRelayLog(s LatestState) RelayLog {
	return RelayLog{
		Timestamp:   s.Timestamp,
		DeviceID:    s.DeviceID,
		Location:    s.Location,
		IngestID:    s.IngestID,
		MotorState:  s.MotorState,
		MotorOn:     s.MotorOn,
		HVState:     s.HVState,
		HVOn:        s.HVOn,
		HVAutoState: s.HVAutoState,
		HVAutoOn:    s.HVAutoOn,
	}
}
