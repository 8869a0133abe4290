// Package publish forwards delivered events to an AMQP exchange as JSON
// messages.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mrzor/fswatch/internal/event"
)

// DefaultPublishTimeout bounds a single publish.
const DefaultPublishTimeout = 5 * time.Second

// Message is the JSON body of a published event.
type Message struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Path     string    `json:"path"`
	OldPath  string    `json:"old_path,omitempty"`
	PID      uint64    `json:"pid"`
	Sequence int32     `json:"sequence"`
	Overflow bool      `json:"overflow,omitempty"`
	Time     time.Time `json:"time"`
}

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher is an output sink publishing to a fanout exchange. It is safe
// for concurrent use.
type Publisher struct {
	exchange string
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel amqpChannel
	closed  bool
}

// Dial connects to the broker at url and declares the durable fanout
// exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newPublisher(ch, exchange, logger)
	if err != nil {
		_ = ch.Close()   //nolint:errcheck // Best-effort cleanup in error path
		_ = conn.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, err
	}
	p.conn = conn

	p.logger.Info("connected to AMQP broker", "exchange", exchange)
	return p, nil
}

func newPublisher(ch amqpChannel, exchange string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return &Publisher{
		exchange: exchange,
		timeout:  DefaultPublishTimeout,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		channel:  ch,
	}, nil
}

// Name implements output.Sink.
func (p *Publisher) Name() string { return "amqp" }

// Deliver publishes ev. The event type doubles as routing key for consumers
// that rebind the exchange as topic.
func (p *Publisher) Deliver(ev event.Event) error {
	msg := Message{
		ID:       p.newID(),
		Type:     ev.Type.String(),
		Path:     ev.Path,
		OldPath:  ev.OldPath,
		PID:      ev.PID,
		Sequence: ev.Sequence,
		Overflow: ev.Overflow(),
		Time:     p.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("publisher is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		msg.Type,   // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.Time,
			Type:         msg.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.channel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing channel: %w", err))
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
