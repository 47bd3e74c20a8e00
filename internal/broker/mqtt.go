package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"webdsl/internal/config"
	"webdsl/internal/logging"
)

// MQTT is a paho client. Subscriptions are restored after a reconnect.
type MQTT struct {
	name   string
	client mqtt.Client
	log    *logging.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// NewMQTT connects to the MQTT broker in cfg.
func NewMQTT(ctx context.Context, cfg config.BrokerConfig, log *logging.Logger) (*MQTT, error) {
	m := &MQTT{name: cfg.Name, log: log.With("broker_mqtt"), subs: map[string]Handler{}}

	scheme := "tcp"
	if cfg.SSL {
		scheme = "ssl"
	}
	port := cfg.Port
	if port == 0 {
		port = 1883
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port)).
		SetClientID(fmt.Sprintf("%s-%s", cfg.Name, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(m.resubscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.Warn("connection_lost", logging.Fields{"broker": m.name, "error": err.Error()})
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	if cfg.SSL {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	m.client = mqtt.NewClient(opts)
	if err := wait(ctx, m.client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt %s: %w", cfg.Name, err)
	}
	return m, nil
}

func (m *MQTT) Name() string { return m.name }

func (m *MQTT) Subscribe(ctx context.Context, topic string, h Handler) error {
	m.mu.Lock()
	m.subs[topic] = h
	m.mu.Unlock()
	return wait(ctx, m.client.Subscribe(topic, 0, m.handler(topic, h)))
}

func (m *MQTT) handler(topic string, h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(topic, msg.Payload())
	}
}

func (m *MQTT) resubscribe(c mqtt.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, h := range m.subs {
		tok := c.Subscribe(topic, 0, m.handler(topic, h))
		go func(topic string) {
			if tok.WaitTimeout(10*time.Second) && tok.Error() != nil {
				m.log.Error("resubscribe_failed", tok.Error(), logging.Fields{"broker": m.name, "topic": topic})
			}
		}(topic)
	}
}

func (m *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	return wait(ctx, m.client.Publish(topic, 0, false, payload))
}

func (m *MQTT) Ping(context.Context) error {
	if !m.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
