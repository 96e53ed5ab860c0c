package testutil

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FakeMQTTClient implements mqtt.Client in memory and drives the option
// callbacks the way paho does on connect, loss and auto-reconnect.
type FakeMQTTClient struct {
	mu         sync.Mutex
	opts       *mqtt.ClientOptions
	connected  bool
	handlers   map[string]mqtt.MessageHandler
	subscribes int

	connectErr   error
	subscribeErr error
}

// NewFakeMQTTClient matches the ingestor's client factory signature
func NewFakeMQTTClient(opts *mqtt.ClientOptions) *FakeMQTTClient {
	return &FakeMQTTClient{opts: opts, handlers: make(map[string]mqtt.MessageHandler)}
}

// FailConnect makes Connect return err
func (c *FakeMQTTClient) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// FailSubscribe makes Subscribe return err; nil restores success
func (c *FakeMQTTClient) FailSubscribe(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

func (c *FakeMQTTClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *FakeMQTTClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *FakeMQTTClient) Connect() mqtt.Token {
	c.mu.Lock()
	if c.connectErr != nil {
		err := c.connectErr
		c.mu.Unlock()
		return doneToken(err)
	}
	c.connected = true
	c.mu.Unlock()

	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return doneToken(nil)
}

func (c *FakeMQTTClient) Disconnect(_ uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *FakeMQTTClient) Publish(_ string, _ byte, _ bool, _ interface{}) mqtt.Token {
	if !c.IsConnected() {
		return doneToken(errors.New("not connected"))
	}
	return doneToken(nil)
}

func (c *FakeMQTTClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return doneToken(c.subscribeErr)
	}
	c.handlers[topic] = callback
	c.subscribes++
	return doneToken(nil)
}

func (c *FakeMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if tk := c.Subscribe(topic, qos, callback); tk.Error() != nil {
			return tk
		}
	}
	return doneToken(nil)
}

func (c *FakeMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	return doneToken(nil)
}

func (c *FakeMQTTClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *FakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Deliver hands a message to the handler subscribed on topic.
// It reports false when nothing is subscribed or the client is down.
func (c *FakeMQTTClient) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	up := c.connected
	c.mu.Unlock()
	if !ok || !up {
		return false
	}
	h(c, &fakeMessage{topic: topic, payload: payload})
	return true
}

// DropConnection simulates an unexpected network loss
func (c *FakeMQTTClient) DropConnection(err error) {
	c.mu.Lock()
	c.connected = false
	c.handlers = make(map[string]mqtt.MessageHandler)
	c.mu.Unlock()

	if c.opts.OnConnectionLost != nil {
		c.opts.OnConnectionLost(c, err)
	}
	if c.opts.AutoReconnect && c.opts.OnReconnecting != nil {
		c.opts.OnReconnecting(c, c.opts)
	}
}

// Reconnect completes an automatic reconnect, re-running OnConnect
func (c *FakeMQTTClient) Reconnect() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
}

// Subscribes counts successful subscribe calls
func (c *FakeMQTTClient) Subscribes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribes
}

func (c *FakeMQTTClient) Options() *mqtt.ClientOptions {
	return c.opts
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
