package mqtingestor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
)

// Dispatcher is the single consumer between bus transports and the pipeline.
// Messages are processed one at a time in arrival order.
type Dispatcher struct {
	pipeline *Pipeline
	metrics  *metrics.Metrics
	logger   *logger.Logger

	mu        sync.RWMutex
	closed    bool
	abandoned atomic.Bool
	msgCh     chan Inbound
	done      chan struct{}
}

func NewDispatcher(p *Pipeline, buffer int, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		pipeline: p,
		metrics:  m,
		logger:   log.WithComponent("pipeline"),
		msgCh:    make(chan Inbound, buffer),
		done:     make(chan struct{}),
	}
}

// Submit queues a message, blocking while the buffer is full so the
// transport holds the backlog. It returns false once the dispatcher is closed.
func (d *Dispatcher) Submit(in Inbound) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.metrics.MessagesReceived.Inc()
	d.msgCh <- in
	return true
}

// Run consumes until Close is called and the buffer is drained.
// Store writes use a context detached from ctx's cancellation so a shutdown
// lets in-flight writes finish; the repository enforces per-call timeouts.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	writeCtx := context.WithoutCancel(ctx)
	for in := range d.msgCh {
		if d.abandoned.Load() {
			d.metrics.MessagesDropped.WithLabelValues(metrics.ReasonShutdown).Inc()
			continue
		}
		d.handle(writeCtx, in)
	}
	d.logger.Info("Dispatcher drained")
}

// Close stops accepting messages; Run returns after the backlog is processed
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.msgCh)
}

// Wait blocks until Run has returned
func (d *Dispatcher) Wait() {
	<-d.done
}

// WaitContext waits for the backlog to drain or ctx to end. On expiry the
// messages still queued are discarded rather than written; the one in flight
// finishes under its store timeout.
func (d *Dispatcher) WaitContext(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.abandoned.Store(true)
		d.logger.Logger.Warn().
			Int("abandoned", d.Pending()).
			Msg("Shutdown deadline reached, abandoning queued messages")
		return ctx.Err()
	}
}

// Pending is the number of queued messages not yet picked up
func (d *Dispatcher) Pending() int {
	return len(d.msgCh)
}

func (d *Dispatcher) handle(ctx context.Context, in Inbound) {
	start := time.Now()
	out, err := d.pipeline.Process(ctx, in)
	d.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())

	for _, field := range out.Rejected {
		d.metrics.FieldsRejected.WithLabelValues(field).Inc()
	}
	if len(out.Rejected) > 0 {
		d.logger.Logger.Warn().
			Str("device_id", out.State.DeviceID).
			Strs("fields", out.Rejected).
			Msg("Dropped unusable fields from reading")
	}

	if err == nil {
		d.metrics.MessagesProcessed.Inc()
		d.logger.Logger.Debug().
			Str("topic", in.Topic).
			Str("device_id", out.State.DeviceID).
			Str("location", out.State.Location).
			Str("ingest_id", out.State.IngestID).
			Int("writes", out.Writes).
			Msg("Reading stored")
		return
	}

	// Every kind is recoverable per message: the loop always continues.
	switch kind := KindOf(err); kind {
	case KindDecode:
		d.metrics.MessagesDropped.WithLabelValues(metrics.ReasonDecode).Inc()
		d.logger.Logger.Warn().Err(err).Str("topic", in.Topic).Int("bytes", len(in.Payload)).Msg("Dropping undecodable message")
	case KindStore:
		d.metrics.MessagesDropped.WithLabelValues(metrics.ReasonStore).Inc()
		d.logger.Logger.Error().Err(err).
			Str("device_id", out.State.DeviceID).
			Str("location", out.State.Location).
			Int("writes", out.Writes).
			Msg("Store write failed, dropping reading")
	default:
		d.metrics.MessagesDropped.WithLabelValues(metrics.ReasonInternal).Inc()
		d.logger.Logger.Error().Err(err).Str("topic", in.Topic).Msg("Unexpected failure processing message")
	}
}
