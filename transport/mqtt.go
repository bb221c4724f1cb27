package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/pkg/retry"
)

// mqttQoS is at-least-once delivery.
const mqttQoS byte = 1

// MQTTTransport binds the Transport contract to an MQTT broker. Device
// endpoints use it when the broker side of the system speaks MQTT instead
// of NATS. Subscriptions are replayed on every reconnect because the
// session is opened clean.
type MQTTTransport struct {
	brokerURL string
	clientID  string
	username  string
	password  string
	retry     retry.Config
	logger    *slog.Logger

	client mqtt.Client

	mu        sync.Mutex
	connected bool
	subs      map[string]Handler
}

// MQTTOption configures an MQTTTransport.
type MQTTOption func(*MQTTTransport)

// WithMQTTCredentials sets broker authentication.
func WithMQTTCredentials(username, password string) MQTTOption {
	return func(t *MQTTTransport) {
		t.username = username
		t.password = password
	}
}

// WithMQTTRetryConfig overrides the publish retry policy.
func WithMQTTRetryConfig(cfg retry.Config) MQTTOption {
	return func(t *MQTTTransport) {
		t.retry = cfg
	}
}

// WithMQTTLogger sets the logger.
func WithMQTTLogger(logger *slog.Logger) MQTTOption {
	return func(t *MQTTTransport) {
		t.logger = logger
	}
}

// NewMQTT creates a transport connected to brokerURL under clientID.
func NewMQTT(brokerURL, clientID string, opts ...MQTTOption) *MQTTTransport {
	t := &MQTTTransport{
		brokerURL: brokerURL,
		clientID:  clientID,
		logger:    slog.Default().With("component", "mqtt-transport"),
		subs:      make(map[string]Handler),
		retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect opens the broker connection and blocks until it is usable or ctx
// expires.
func (t *MQTTTransport) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(t.brokerURL).
		SetClientID(t.clientID).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second)

	if t.username != "" {
		opts.SetUsername(t.username)
	}
	if t.password != "" {
		opts.SetPassword(t.password)
	}

	opts.OnConnect = func(c mqtt.Client) {
		t.logger.Info("connected to broker", "url", t.brokerURL)
		t.mu.Lock()
		t.connected = true
		subs := make(map[string]Handler, len(t.subs))
		for topic, h := range t.subs {
			subs[topic] = h
		}
		t.mu.Unlock()

		for topic, h := range subs {
			t.resubscribe(c, topic, h)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		t.logger.Warn("broker connection lost", "error", err)
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.WrapTransient(err, "MQTTTransport", "Connect", t.brokerURL)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return errors.WrapTransient(ctx.Err(), "MQTTTransport", "Connect", "connection cancelled")
	}

	t.mu.Lock()
	t.client = client
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *MQTTTransport) resubscribe(c mqtt.Client, topic string, h Handler) {
	wrapped := func(_ mqtt.Client, msg mqtt.Message) {
		msgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h(msgCtx, msg.Payload())
	}
	if token := c.Subscribe(topic, mqttQoS, wrapped); token.Wait() && token.Error() != nil {
		t.logger.Error("resubscribe failed", "topic", topic, "error", token.Error())
	}
}

// Connected reports whether the connection is currently usable.
func (t *MQTTTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && t.client != nil && t.client.IsConnectionOpen()
}

// Publish sends payload to address at QoS 1, retrying transient failures.
func (t *MQTTTransport) Publish(ctx context.Context, address string, payload []byte) error {
	topic := mqttTopic(address)

	err := retry.Do(ctx, t.retry, func() error {
		t.mu.Lock()
		client := t.client
		t.mu.Unlock()

		if client == nil || !client.IsConnectionOpen() {
			return errors.ErrNotConnected
		}

		token := client.Publish(topic, mqttQoS, false, payload)
		select {
		case <-token.Done():
			return token.Error()
		case <-ctx.Done():
			return retry.NonRetryable(ctx.Err())
		}
	})
	if err != nil {
		return errors.WrapTransient(err, "MQTTTransport", "Publish", topic)
	}
	return nil
}

// Subscribe registers handler on address. The subscription survives
// reconnects.
func (t *MQTTTransport) Subscribe(ctx context.Context, address string, handler Handler) error {
	topic := mqttTopic(address)

	t.mu.Lock()
	t.subs[topic] = handler
	client := t.client
	connected := t.connected
	t.mu.Unlock()

	if client == nil || !connected {
		// Deferred until OnConnect replays subscriptions.
		return nil
	}

	wrapped := func(_ mqtt.Client, msg mqtt.Message) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		handler(msgCtx, msg.Payload())
	}

	token := client.Subscribe(topic, mqttQoS, wrapped)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
				"MQTTTransport", "Subscribe", topic)
		}
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "MQTTTransport", "Subscribe", topic)
	}
	return nil
}

// Disconnect flushes in-flight messages and closes the connection.
func (t *MQTTTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.connected = false
	t.mu.Unlock()

	if client == nil {
		return nil
	}

	quiesce := uint(250)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			quiesce = uint(remaining.Milliseconds())
		}
	}
	client.Disconnect(quiesce)
	return nil
}
