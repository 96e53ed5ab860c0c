package mqtingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	config "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.telemetry_ingestor/src/production/MQT.Metrics"
)

// ClientFactory builds the paho client; tests swap in a fake
type ClientFactory func(*mqtt.ClientOptions) mqtt.Client

// MQTTSubscriber consumes the sensor topic through paho with automatic
// reconnect on a fixed interval and re-subscription on every connect.
type MQTTSubscriber struct {
	cfg               config.MQTTConfig
	reconnectInterval time.Duration
	dispatcher        *Dispatcher
	newClient         ClientFactory
	mqttClient        mqtt.Client
	state             stateTracker
	metrics           *metrics.Metrics
	logger            *logger.Logger
}

func NewMQTTSubscriber(cfg config.MQTTConfig, reconnectInterval time.Duration, d *Dispatcher, m *metrics.Metrics, log *logger.Logger) *MQTTSubscriber {
	l := log.WithComponent("bus")
	return &MQTTSubscriber{
		cfg:               cfg,
		reconnectInterval: reconnectInterval,
		dispatcher:        d,
		newClient:         func(o *mqtt.ClientOptions) mqtt.Client { return mqtt.NewClient(o) },
		state:             stateTracker{metrics: m, logger: l},
		metrics:           m,
		logger:            l,
	}
}

// WithClientFactory replaces the paho constructor
func (s *MQTTSubscriber) WithClientFactory(f ClientFactory) *MQTTSubscriber {
	s.newClient = f
	return s
}

// Start begins connecting and returns without waiting for the broker.
// paho keeps retrying the initial connect in the background.
func (s *MQTTSubscriber) Start(_ context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL()).
		SetClientID(s.cfg.ClientID).
		SetOrderMatters(true).
		SetKeepAlive(s.cfg.KeepAlive).
		SetPingTimeout(s.cfg.PingTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(s.reconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(s.reconnectInterval).
		SetCleanSession(false)

	if s.cfg.BrokerUser != "" {
		opts.SetUsername(s.cfg.BrokerUser)
		opts.SetPassword(s.cfg.BrokerPass)
	}

	if s.cfg.UseTLS {
		tlsCfg, err := tlsConfig(s.cfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.state.set(StateDisconnected)
		s.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		s.state.set(StateReconnecting)
		s.metrics.BusReconnects.Inc()
		s.logger.Logger.Info().Str("broker", s.cfg.BrokerURL()).Msg("MQTT reconnecting")
	}
	opts.OnConnect = s.subscribe

	s.state.set(StateConnecting)
	s.mqttClient = s.newClient(opts)
	tk := s.mqttClient.Connect()
	go func() {
		<-tk.Done()
		if err := tk.Error(); err != nil {
			s.logger.Logger.Error().Err(err).Str("broker", s.cfg.BrokerURL()).Msg("MQTT connect failed")
		}
	}()

	return nil
}

// subscribe runs on every (re)connect; a failed subscribe is retried on the reconnect interval
func (s *MQTTSubscriber) subscribe(c mqtt.Client) {
	topic := s.cfg.SubscribeTopic()
	s.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")

	if token := c.Subscribe(topic, 1, s.onMessage); token.Wait() && token.Error() != nil {
		s.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		time.AfterFunc(s.reconnectInterval, func() {
			if c.IsConnected() && s.state.get() != StateSubscribed {
				s.subscribe(c)
			}
		})
		return
	}
	s.state.set(StateSubscribed)
}

func (s *MQTTSubscriber) onMessage(_ mqtt.Client, m mqtt.Message) {
	s.logger.Logger.Debug().Str("topic", m.Topic()).Int("bytes", len(m.Payload())).Msg("Received MQTT message")

	in := Inbound{
		Topic:      m.Topic(),
		Payload:    append([]byte(nil), m.Payload()...),
		ReceivedAt: time.Now().UTC(),
	}
	if !s.dispatcher.Submit(in) {
		s.logger.Logger.Debug().Str("topic", m.Topic()).Msg("Dispatcher closed, ignoring message")
	}
}

// Stop disconnects; the broker keeps undelivered messages for the persistent session
func (s *MQTTSubscriber) Stop() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect(500)
	}
	s.state.set(StateDisconnected)
}

func (s *MQTTSubscriber) State() BusState {
	return s.state.get()
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file %s", caFile)
	}
	cfg.RootCAs = cp
	return cfg, nil
}
