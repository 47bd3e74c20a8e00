// Package broker connects to the message brokers named in config.yaml and bridges
// their topics to the WebSocket hub.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"webdsl/internal/config"
	"webdsl/internal/logging"
)

// Broker types accepted in config.yaml.
const (
	TypeMQTT  = "MQTT"
	TypeAMQP  = "AMQP"
	TypeRedis = "REDIS"
)

var (
	ErrUnknownBrokerType = errors.New("unknown broker type")
	ErrUnknownBroker     = errors.New("unknown broker")
	ErrEmptyMessage      = errors.New("empty message")
	ErrNotConnected      = errors.New("broker not connected")
)

// Handler receives the raw payload of a message on topic.
type Handler func(topic string, payload []byte)

// Broker is a pub/sub connection. Subscriptions live until Close.
type Broker interface {
	Name() string
	Subscribe(ctx context.Context, topic string, h Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// New connects to the broker described by cfg.
func New(ctx context.Context, cfg config.BrokerConfig, log *logging.Logger) (Broker, error) {
	switch strings.ToUpper(cfg.Type) {
	case TypeMQTT:
		return NewMQTT(ctx, cfg, log)
	case TypeAMQP:
		return NewAMQP(ctx, cfg, log)
	case TypeRedis:
		return NewRedis(ctx, cfg, log)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBrokerType, cfg.Type)
}

// Set holds the connected brokers by name.
type Set struct {
	brokers map[string]Broker
}

// NewSet returns a Set of the given brokers.
func NewSet(brokers ...Broker) *Set {
	s := &Set{brokers: make(map[string]Broker, len(brokers))}
	for _, b := range brokers {
		s.brokers[b.Name()] = b
	}
	return s
}

// Connect builds a Set from every broker in cfgs. A broker that fails to connect is
// logged and left out.
func Connect(ctx context.Context, cfgs []config.BrokerConfig, log *logging.Logger) *Set {
	l := log.With("broker")
	s := NewSet()
	for _, c := range cfgs {
		b, err := New(ctx, c, log)
		if err != nil {
			l.Error("broker_connect_failed", err, logging.Fields{"broker": c.Name, "type": c.Type})
			continue
		}
		l.Info("broker_connected", logging.Fields{"broker": c.Name, "type": strings.ToUpper(c.Type)})
		s.brokers[c.Name] = b
	}
	return s
}

// Get returns the broker called name.
func (s *Set) Get(name string) (Broker, error) {
	b, ok := s.brokers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBroker, name)
	}
	return b, nil
}

// Names lists the brokers in order.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.brokers))
	for n := range s.brokers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Publish encodes msg as JSON and publishes it on topic through the named broker.
func (s *Set) Publish(ctx context.Context, name, topic string, msg map[string]any) error {
	if len(msg) == 0 {
		return ErrEmptyMessage
	}
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrEmptyMessage)
	}
	b, err := s.Get(name)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.Publish(ctx, topic, payload)
}

// Ping checks every broker and returns the failures by name.
func (s *Set) Ping(ctx context.Context) map[string]error {
	failed := map[string]error{}
	for n, b := range s.brokers {
		if err := b.Ping(ctx); err != nil {
			failed[n] = err
		}
	}
	return failed
}

// Close disconnects every broker.
func (s *Set) Close() error {
	var errs []error
	for n, b := range s.brokers {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
