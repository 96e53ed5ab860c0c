// Package testutil provides in-memory stand-ins for the store and the MQTT client.
package testutil

import (
	"context"
	"sync"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Models"
)

type scope struct {
	device, location string
}

// MemoryRepository implements interfaces.TelemetryRepository with maps.
// Upserts replace by key and capped appends trim immediately, like the real stores.
type MemoryRepository struct {
	mu           sync.Mutex
	historyLimit int
	readingLimit int

	latest   map[scope]mqtmodels.LatestState
	history  map[string]map[scope][]mqtmodels.HistoryRecord
	readings map[scope][]mqtmodels.LatestState
	relays   []mqtmodels.RelayLog

	failures map[string]error
	delay    time.Duration
	calls    []string
	pings    int
	closed   bool
}

func NewMemoryRepository(historyLimit, readingLimit int) *MemoryRepository {
	return &MemoryRepository{
		historyLimit: historyLimit,
		readingLimit: readingLimit,
		latest:       make(map[scope]mqtmodels.LatestState),
		history:      make(map[string]map[scope][]mqtmodels.HistoryRecord),
		readings:     make(map[scope][]mqtmodels.LatestState),
		failures:     make(map[string]error),
	}
}

// FailOn makes every call to op return err; a nil err clears it
func (m *MemoryRepository) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// SetDelay slows down UpsertLatest to simulate a slow store
func (m *MemoryRepository) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MemoryRepository) begin(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	return m.failures[op]
}

func (m *MemoryRepository) EnsureSchema(_ context.Context) error {
	return m.begin("EnsureSchema")
}

func (m *MemoryRepository) UpsertLatest(ctx context.Context, state mqtmodels.LatestState) error {
	if err := m.begin("UpsertLatest"); err != nil {
		return err
	}

	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[scope{state.DeviceID, state.Location}] = state
	return nil
}

func (m *MemoryRepository) AppendHistory(_ context.Context, family mqtmodels.MetricFamily, rec mqtmodels.HistoryRecord) error {
	if err := m.begin("AppendHistory"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := m.history[family.Collection]
	if !ok {
		series = make(map[scope][]mqtmodels.HistoryRecord)
		m.history[family.Collection] = series
	}
	key := scope{rec.DeviceID, rec.Location}
	records := append(series[key], rec)
	if len(records) > m.historyLimit {
		records = records[len(records)-m.historyLimit:]
	}
	series[key] = records
	return nil
}

func (m *MemoryRepository) AppendReadingHistory(_ context.Context, state mqtmodels.LatestState) error {
	if err := m.begin("AppendReadingHistory"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := scope{state.DeviceID, state.Location}
	records := append(m.readings[key], state)
	if len(records) > m.readingLimit {
		records = records[len(records)-m.readingLimit:]
	}
	m.readings[key] = records
	return nil
}

func (m *MemoryRepository) AppendRelayLog(_ context.Context, entry mqtmodels.RelayLog) error {
	if err := m.begin("AppendRelayLog"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays = append(m.relays, entry)
	return nil
}

func (m *MemoryRepository) Ping(_ context.Context) error {
	err := m.begin("Ping")
	m.mu.Lock()
	m.pings++
	m.mu.Unlock()
	return err
}

func (m *MemoryRepository) Close(_ context.Context) error {
	err := m.begin("Close")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return err
}

// Latest returns the current state for a device/location
func (m *MemoryRepository) Latest(deviceID, location string) (mqtmodels.LatestState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.latest[scope{deviceID, location}]
	return s, ok
}

// LatestCount returns the number of latest-state documents
func (m *MemoryRepository) LatestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.latest)
}

// History returns a copy of one series, oldest first
func (m *MemoryRepository) History(collection, deviceID, location string) []mqtmodels.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.history[collection][scope{deviceID, location}]
	return append([]mqtmodels.HistoryRecord(nil), records...)
}

// ReadingHistory returns a copy of the aggregate series, oldest first
func (m *MemoryRepository) ReadingHistory(deviceID, location string) []mqtmodels.LatestState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mqtmodels.LatestState(nil), m.readings[scope{deviceID, location}]...)
}

func (m *MemoryRepository) RelayLogs() []mqtmodels.RelayLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mqtmodels.RelayLog(nil), m.relays...)
}

// Calls returns every operation name in call order
func (m *MemoryRepository) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MemoryRepository) Pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

func (m *MemoryRepository) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
