package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"webdsl/internal/config"
	"webdsl/internal/logging"
	"webdsl/pkg/wire"
)

// Broadcaster sends a frame to every connected WebSocket client.
type Broadcaster interface {
	Broadcast(frame []byte)
}

// Drop reasons reported in logs and metrics.
const (
	DropNoAttributes = "no_allowed_attributes"
	DropNoMatch      = "no_allowed_keys"
	DropNotObject    = "not_json_object"
)

// Bridge forwards broker messages to the hub, keeping only the attributes a topic is
// allowed to expose.
type Bridge struct {
	brokers *Set
	topics  []config.TopicConfig
	allowed map[string]map[string]bool
	out     Broadcaster
	log     *logging.Logger

	forwarded *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// NewBridge prepares a bridge for topics. Metrics are registered on reg.
func NewBridge(brokers *Set, topics []config.TopicConfig, out Broadcaster, reg prometheus.Registerer, log *logging.Logger) (*Bridge, error) {
	b := &Bridge{
		brokers: brokers,
		topics:  topics,
		allowed: make(map[string]map[string]bool, len(topics)),
		out:     out,
		log:     log.With("bridge"),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_messages_forwarded_total",
			Help: "Broker messages forwarded to WebSocket clients.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_messages_dropped_total",
			Help: "Broker messages dropped before reaching WebSocket clients.",
		}, []string{"topic", "reason"}),
	}
	for _, tc := range topics {
		set := b.allowed[tc.Topic]
		if set == nil {
			set = map[string]bool{}
			b.allowed[tc.Topic] = set
		}
		for _, a := range tc.Attributes {
			set[a] = true
		}
	}
	for _, c := range []prometheus.Collector{b.forwarded, b.dropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Start subscribes to every configured topic on its broker. A topic whose broker is
// not connected is logged and skipped.
func (b *Bridge) Start(ctx context.Context) error {
	subscribed := 0
	for _, tc := range b.topics {
		br, err := b.brokers.Get(tc.Broker)
		if err != nil {
			b.log.Error("subscribe_skipped", err, logging.Fields{"topic": tc.Topic})
			continue
		}
		if err := br.Subscribe(ctx, tc.Topic, b.Handle); err != nil {
			b.log.Error("subscribe_failed", err, logging.Fields{"topic": tc.Topic, "broker": tc.Broker})
			continue
		}
		b.log.Info("subscribed", logging.Fields{"topic": tc.Topic, "broker": tc.Broker})
		subscribed++
	}
	if subscribed == 0 && len(b.topics) > 0 {
		return fmt.Errorf("no topic could be subscribed (%d configured)", len(b.topics))
	}
	return nil
}

// Handle filters one broker message and broadcasts it as {"<topic>": filtered}.
func (b *Bridge) Handle(topic string, payload []byte) {
	frame, reason := b.Filter(topic, payload)
	if reason != "" {
		b.dropped.WithLabelValues(topic, reason).Inc()
		b.log.Warn("message_dropped", logging.Fields{"topic": topic, "reason": reason})
		return
	}
	b.forwarded.WithLabelValues(topic).Inc()
	b.out.Broadcast(frame)
}

// Filter returns the frame for payload, or the reason it must be dropped.
func (b *Bridge) Filter(topic string, payload []byte) ([]byte, string) {
	allowed := b.allowed[topic]
	if len(allowed) == 0 {
		return nil, DropNoAttributes
	}

	var msg map[string]json.RawMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg == nil {
		return nil, DropNotObject
	}

	filtered := make(map[string]json.RawMessage, len(allowed))
	for k, v := range msg {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil, DropNoMatch
	}

	frame, err := wire.NewFrame(topic, filtered)
	if err != nil {
		return nil, DropNotObject
	}
	return frame, ""
}
