package liveness

import (
	"context"
	"sync"
	"time"

	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
)

// Store is the part of the repository the monitor exercises
type Store interface {
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
}

// Status is the outcome of the most recent check
type Status struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	SchemaPending       bool      `json:"schema_pending"`
}

// Monitor pings the store on a fixed interval. It keeps the connection from
// idling out and surfaces connectivity; failures are only logged and counted.
// When the store was down at startup it also retries index creation after
// each successful ping until that succeeds once.
type Monitor struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *logger.Logger

	mu     sync.RWMutex
	status Status
}

func NewMonitor(store Store, interval, timeout time.Duration, m *metrics.Metrics, log *logger.Logger) *Monitor {
	return &Monitor{
		store:    store,
		interval: interval,
		timeout:  timeout,
		metrics:  m,
		logger:   log.WithComponent("liveness"),
	}
}

// RequireSchema marks the store schema as not yet ensured
func (m *Monitor) RequireSchema() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.SchemaPending = true
}

// Run checks once immediately, then on every tick until ctx is done. It always returns nil.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Logger.Info().Dur("interval", m.interval).Msg("Liveness monitor started")
	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Liveness monitor stopped")
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one store ping and records the result
func (m *Monitor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := m.store.Ping(ctx)
	elapsed := time.Since(start)

	schemaErr := m.ensureSchema(ctx, err)

	m.mu.Lock()
	m.status.LastCheck = start.UTC()
	if schemaErr == nil && err == nil {
		m.status.SchemaPending = false
	}
	if err != nil {
		m.status.Healthy = false
		m.status.LastError = err.Error()
		m.status.ConsecutiveFailures++
	} else {
		m.status.Healthy = true
		m.status.LastError = ""
		m.status.ConsecutiveFailures = 0
	}
	st := m.status
	m.mu.Unlock()

	if err != nil {
		m.metrics.LivenessChecks.WithLabelValues("error").Inc()
		m.logger.Logger.Warn().Err(err).Int("consecutive_failures", st.ConsecutiveFailures).Msg("Store liveness ping failed")
	} else {
		m.metrics.LivenessChecks.WithLabelValues("ok").Inc()
		m.logger.Logger.Debug().Dur("rtt", elapsed).Msg("Store liveness ping ok")
	}
	return st
}

// ensureSchema retries index creation while it is pending and the ping succeeded.
// It returns nil when nothing was attempted.
func (m *Monitor) ensureSchema(ctx context.Context, pingErr error) error {
	m.mu.RLock()
	pending := m.status.SchemaPending
	m.mu.RUnlock()
	if !pending {
		return nil
	}
	if pingErr != nil {
		return pingErr
	}

	if err := m.store.EnsureSchema(ctx); err != nil {
		m.logger.Logger.Warn().Err(err).Msg("Store schema still not ensured")
		return err
	}
	m.logger.Info("Store schema ensured")
	return nil
}

// Status returns the latest recorded check
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
