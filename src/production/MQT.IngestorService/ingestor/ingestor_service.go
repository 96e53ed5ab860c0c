package mqtingestor

import (
	"context"
	"sync"

	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
)

// Ingestor ties a bus transport to the dispatcher
type Ingestor struct {
	sub        Subscriber
	dispatcher *Dispatcher
	logger     *logger.Logger

	mu      sync.Mutex
	started bool
}

func New(sub Subscriber, d *Dispatcher, log *logger.Logger) *Ingestor {
	return &Ingestor{sub: sub, dispatcher: d, logger: log.WithComponent("ingestor")}
}

// Start runs the dispatcher and begins consuming from the bus
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return nil
	}

	go i.dispatcher.Run(ctx)
	if err := i.sub.Start(ctx); err != nil {
		i.dispatcher.Close()
		i.dispatcher.Wait()
		return err
	}
	i.started = true
	return nil
}

// Stop stops accepting bus messages, then waits for queued messages to be
// written until ctx ends; whatever is still queued then is dropped.
// It is a no-op unless Start succeeded.
func (i *Ingestor) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.started {
		return nil
	}
	i.started = false

	i.sub.Stop()
	i.dispatcher.Close()
	i.logger.Logger.Info().Int("queued", i.dispatcher.Pending()).Msg("Bus stopped, draining queued messages")
	return i.dispatcher.WaitContext(ctx)
}

// State reports the bus connection state
func (i *Ingestor) State() BusState {
	return i.sub.State()
}

// IsConnected reports whether the bus is subscribed
func (i *Ingestor) IsConnected() bool {
	return i.sub.State() == StateSubscribed
}

// StateName returns the bus state as reported by the readiness endpoint
func (i *Ingestor) StateName() string {
	return i.sub.State().String()
}
