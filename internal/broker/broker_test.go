package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webdsl/internal/config"
	"webdsl/internal/logging"
)

type fakeBroker struct {
	name      string
	subErr    error
	pingErr   error
	mu        sync.Mutex
	handlers  map[string]Handler
	published map[string][]byte
}

func newFake(name string) *fakeBroker {
	return &fakeBroker{name: name, handlers: map[string]Handler{}, published: map[string][]byte{}}
}

func (f *fakeBroker) Name() string { return f.name }
func (f *fakeBroker) Subscribe(_ context.Context, topic string, h Handler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}
func (f *fakeBroker) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = payload
	return nil
}
func (f *fakeBroker) Ping(context.Context) error { return f.pingErr }
func (f *fakeBroker) Close() error              { return nil }

func (f *fakeBroker) deliver(topic string, payload string) {
	f.mu.Lock()
	h := f.handlers[topic]
	f.mu.Unlock()
	h(topic, []byte(payload))
}

type recorder struct {
	mu     sync.Mutex
	frames []string
}

func (r *recorder) Broadcast(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(frame))
}

func quiet() *logging.Logger { return logging.New(io.Discard, time.UTC) }

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), config.BrokerConfig{Name: "x", Type: "kafka"}, quiet())
	assert.ErrorIs(t, err, ErrUnknownBrokerType)
}

func TestSet(t *testing.T) {
	mq := newFake("mq")
	down := newFake("down")
	down.pingErr = ErrNotConnected
	s := NewSet(mq, down)
	ctx := context.Background()

	assert.Equal(t, []string{"down", "mq"}, s.Names())

	require.NoError(t, s.Publish(ctx, "mq", "room/lab", map[string]any{"light": true}))
	assert.JSONEq(t, `{"light":true}`, string(mq.published["room/lab"]))

	assert.ErrorIs(t, s.Publish(ctx, "mq", "room/lab", map[string]any{}), ErrEmptyMessage)
	assert.ErrorIs(t, s.Publish(ctx, "mq", "", map[string]any{"a": 1}), ErrEmptyMessage)
	assert.ErrorIs(t, s.Publish(ctx, "nope", "t", map[string]any{"a": 1}), ErrUnknownBroker)

	failed := s.Ping(ctx)
	assert.Equal(t, map[string]error{"down": ErrNotConnected}, failed)
	assert.NoError(t, s.Close())
}

func newBridge(t *testing.T, brokers *Set, topics []config.TopicConfig) (*Bridge, *recorder) {
	t.Helper()
	rec := &recorder{}
	b, err := NewBridge(brokers, topics, rec, prometheus.NewRegistry(), quiet())
	require.NoError(t, err)
	return b, rec
}

func TestBridge_FiltersAndForwards(t *testing.T) {
	mq := newFake("mq")
	b, rec := newBridge(t, NewSet(mq), []config.TopicConfig{
		{Topic: "sensors/temp", Broker: "mq", Attributes: []string{"value", "unit"}},
		{Topic: "sensors/raw", Broker: "mq"},
	})
	require.NoError(t, b.Start(context.Background()))

	mq.deliver("sensors/temp", `{"value": 21.5, "unit": "C", "secret": "x"}`)
	mq.deliver("sensors/temp", `{"secret": "x"}`)
	mq.deliver("sensors/temp", `[1, 2]`)
	mq.deliver("sensors/temp", `null`)
	mq.deliver("sensors/raw", `{"value": 1}`)

	require.Len(t, rec.frames, 1)
	var frame map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.frames[0]), &frame))
	assert.Equal(t, map[string]map[string]any{
		"sensors/temp": {"value": 21.5, "unit": "C"},
	}, frame)

	assert.Equal(t, float64(1), testutil.ToFloat64(b.forwarded.WithLabelValues("sensors/temp")))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.dropped.WithLabelValues("sensors/temp", DropNoMatch)))
	assert.Equal(t, float64(2), testutil.ToFloat64(b.dropped.WithLabelValues("sensors/temp", DropNotObject)))
	assert.Equal(t, float64(1), testutil.ToFloat64(b.dropped.WithLabelValues("sensors/raw", DropNoAttributes)))
}

func TestBridge_Start(t *testing.T) {
	broken := newFake("broken")
	broken.subErr = errors.New("not authorized")

	b, _ := newBridge(t, NewSet(broken), []config.TopicConfig{
		{Topic: "a", Broker: "broken", Attributes: []string{"x"}},
		{Topic: "b", Broker: "missing", Attributes: []string{"x"}},
	})
	assert.Error(t, b.Start(context.Background()))

	ok := newFake("ok")
	b, _ = newBridge(t, NewSet(ok, broken), []config.TopicConfig{
		{Topic: "a", Broker: "broken", Attributes: []string{"x"}},
		{Topic: "c", Broker: "ok", Attributes: []string{"x"}},
	})
	require.NoError(t, b.Start(context.Background()))
	assert.Contains(t, ok.handlers, "c")

	b, _ = newBridge(t, NewSet(), nil)
	assert.NoError(t, b.Start(context.Background()))
}

func TestNewBridge_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewBridge(NewSet(), nil, &recorder{}, reg, quiet())
	require.NoError(t, err)
	_, err = NewBridge(NewSet(), nil, &recorder{}, reg, quiet())
	assert.Error(t, err)
}
