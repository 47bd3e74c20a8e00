package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"webdsl/internal/config"
	"webdsl/internal/logging"
)

// Redis uses Redis pub/sub channels as topics.
type Redis struct {
	name   string
	client *redis.Client
	log    *logging.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewRedis connects to the Redis server in cfg.
func NewRedis(ctx context.Context, cfg config.BrokerConfig, log *logging.Logger) (*Redis, error) {
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	opts := &redis.Options{
		Addr:     cfg.Host + ":" + strconv.Itoa(port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.SSL {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Name, err)
	}
	return &Redis{name: cfg.Name, client: client, log: log.With("broker_redis")}, nil
}

func (r *Redis) Name() string { return r.name }

func (r *Redis) Subscribe(ctx context.Context, topic string, h Handler) error {
	ps := r.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", topic, err)
	}
	r.mu.Lock()
	r.subs = append(r.subs, ps)
	r.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			h(topic, []byte(msg.Payload))
		}
		r.log.Info("subscription_closed", logging.Fields{"broker": r.name, "topic": topic})
	}()
	return nil
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, topic, payload).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	r.mu.Lock()
	for _, ps := range r.subs {
		_ = ps.Close()
	}
	r.subs = nil
	r.mu.Unlock()
	return r.client.Close()
}
