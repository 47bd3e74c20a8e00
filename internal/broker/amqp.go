package broker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"webdsl/internal/config"
	"webdsl/internal/logging"
)

// DefaultExchange is the topic exchange used when config.yaml names none.
const DefaultExchange = "amq.topic"

// AMQP publishes and consumes through a topic exchange. Every subscription gets its
// own exclusive queue bound with the topic as routing key.
type AMQP struct {
	name     string
	exchange string
	conn     *amqp.Connection
	log      *logging.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

// NewAMQP dials the broker in cfg.
func NewAMQP(_ context.Context, cfg config.BrokerConfig, log *logging.Logger) (*AMQP, error) {
	scheme := "amqp"
	port := cfg.Port
	if cfg.SSL {
		scheme = "amqps"
	}
	if port == 0 {
		port = 5672
		if cfg.SSL {
			port = 5671
		}
	}
	u := url.URL{Scheme: scheme, Host: cfg.Host + ":" + strconv.Itoa(port)}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}

	conn, err := amqp.DialConfig(u.String(), amqp.Config{
		Vhost:     vhost,
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("amqp %s: %w", cfg.Name, err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp %s: %w", cfg.Name, err)
	}

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQP{name: cfg.Name, exchange: exchange, conn: conn, pub: pub, log: log.With("broker_amqp")}, nil
}

func (a *AMQP) Name() string { return a.name }

func (a *AMQP) Subscribe(_ context.Context, topic string, h Handler) error {
	ch, err := a.conn.Channel()
	if err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err == nil {
		err = ch.QueueBind(q.Name, topic, a.exchange, false, nil)
	}
	var deliveries <-chan amqp.Delivery
	if err == nil {
		deliveries, err = ch.Consume(q.Name, "", true, true, false, false, nil)
	}
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqp subscribe %s: %w", topic, err)
	}

	go func() {
		for d := range deliveries {
			h(topic, d.Body)
		}
		a.log.Info("subscription_closed", logging.Fields{"broker": a.name, "topic": topic})
	}()
	return nil
}

func (a *AMQP) Publish(ctx context.Context, topic string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pub.PublishWithContext(ctx, a.exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        payload,
	})
}

func (a *AMQP) Ping(context.Context) error {
	if a.conn.IsClosed() {
		return ErrNotConnected
	}
	return nil
}

func (a *AMQP) Close() error {
	return a.conn.Close()
}
