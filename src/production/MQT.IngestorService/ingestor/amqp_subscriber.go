package mqtingestor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	config "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
)

const amqpConsumerTag = "telemetry-ingestor"

// AMQPSubscriber consumes sensor messages that RabbitMQ's MQTT plugin routes
// onto a topic exchange. It reconnects on a fixed interval after any close.
type AMQPSubscriber struct {
	cfg               config.AMQPConfig
	reconnectInterval time.Duration
	dispatcher        *Dispatcher
	state             stateTracker
	metrics           *metrics.Metrics
	logger            *logger.Logger

	// open dials and starts consuming; replaced in tests
	open func() (<-chan amqp.Delivery, <-chan *amqp.Error, error)

	mu     sync.Mutex
	conn   *amqp.Connection
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAMQPSubscriber(cfg config.AMQPConfig, reconnectInterval time.Duration, d *Dispatcher, m *metrics.Metrics, log *logger.Logger) *AMQPSubscriber {
	l := log.WithComponent("bus")
	s := &AMQPSubscriber{
		cfg:               cfg,
		reconnectInterval: reconnectInterval,
		dispatcher:        d,
		state:             stateTracker{metrics: m, logger: l},
		metrics:           m,
		logger:            l,
	}
	s.open = s.connect
	return s
}

// Start launches the connect/consume loop and returns immediately
func (s *AMQPSubscriber) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.run(runCtx)
	}()
	return nil
}

func (s *AMQPSubscriber) run(ctx context.Context) {
	reconnecting := false
	for ctx.Err() == nil {
		if reconnecting {
			s.state.set(StateReconnecting)
			s.metrics.BusReconnects.Inc()
		} else {
			s.state.set(StateConnecting)
		}

		deliveries, closed, err := s.open()
		if err != nil {
			s.logger.Logger.Error().Err(err).Dur("retry_in", s.reconnectInterval).Msg("RabbitMQ connect failed")
			reconnecting = true
			select {
			case <-ctx.Done():
			case <-time.After(s.reconnectInterval):
			}
			continue
		}

		s.state.set(StateSubscribed)
		s.consume(ctx, deliveries, closed)
		s.state.set(StateDisconnected)
		s.closeConn()
		reconnecting = true
	}
}

func (s *AMQPSubscriber) connect() (<-chan amqp.Delivery, <-chan *amqp.Error, error) {
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	// amq.* exchanges are predeclared by the broker and cannot be redeclared
	if !strings.HasPrefix(s.cfg.Exchange, "amq.") {
		if err := ch.ExchangeDeclare(s.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
	}

	queue, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, s.cfg.RoutingKey, s.cfg.Exchange, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, amqpConsumerTag, false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Logger.Info().
		Str("queue", queue.Name).
		Str("exchange", s.cfg.Exchange).
		Str("routing_key", s.cfg.RoutingKey).
		Msg("Consuming from RabbitMQ")

	return deliveries, conn.NotifyClose(make(chan *amqp.Error, 1)), nil
}

// consume acks each delivery once the dispatcher has accepted it
func (s *AMQPSubscriber) consume(ctx context.Context, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-closed:
			if ok && err != nil {
				s.logger.Logger.Error().Err(err).Msg("RabbitMQ connection lost")
			}
			return
		case d, ok := <-deliveries:
			if !ok {
				s.logger.Logger.Warn().Msg("RabbitMQ delivery channel closed")
				return
			}
			in := Inbound{Topic: d.RoutingKey, Payload: d.Body, ReceivedAt: time.Now().UTC()}
			if s.dispatcher.Submit(in) {
				if err := d.Ack(false); err != nil {
					s.logger.Logger.Warn().Err(err).Msg("Failed to ack delivery")
				}
			} else {
				_ = d.Nack(false, true)
				return
			}
		}
	}
}

func (s *AMQPSubscriber) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && !s.conn.IsClosed() {
		if err := s.conn.Close(); err != nil {
			s.logger.Logger.Warn().Err(err).Msg("Error closing RabbitMQ connection")
		}
	}
	s.conn = nil
}

// Stop ends the consume loop and closes the connection
func (s *AMQPSubscriber) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.closeConn()
	s.state.set(StateDisconnected)
}

func (s *AMQPSubscriber) State() BusState {
	return s.state.get()
}
