package mqtingestor

import (
	"context"
	"sync/atomic"

	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
)

// BusState is the connection lifecycle of a bus client
type BusState int32

const (
	StateDisconnected BusState = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
)

func (s BusState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Subscriber is a bus transport feeding the dispatcher
type Subscriber interface {
	Start(ctx context.Context) error
	Stop()
	State() BusState
}

type stateTracker struct {
	v       atomic.Int32
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func (t *stateTracker) get() BusState {
	return BusState(t.v.Load())
}

func (t *stateTracker) set(s BusState) {
	prev := BusState(t.v.Swap(int32(s)))
	t.metrics.BusState.Set(float64(s))
	if prev != s {
		t.logger.Logger.Info().Str("from", prev.String()).Str("to", s.String()).Msg("Bus state changed")
	}
}
