package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/elys-network/rebal/internal/types"
)

var ErrAMQPNotConnected = errors.New("AMQP connection not initialized")

// PUBLISH_TIMEOUT bounds one publish so a stalled broker cannot hold the caller.
const PUBLISH_TIMEOUT = 5 * time.Second

// Envelope is the message body published for every event.
type Envelope struct {
	Event     string      `json:"event"`
	Basket    string      `json:"basket"`
	Payload   types.Event `json:"payload"`
	Published int64       `json:"published"`
}

// channel is the subset of *amqp.Channel the notifier needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes events as persistent JSON messages on a durable queue.
type AMQPNotifier struct {
	mu       sync.Mutex
	channel  channel
	open     func() (channel, error)
	queue    string
	declared bool
	timeout  time.Duration
}

// DialAMQP connects to url, retrying a few times while the broker starts.
func DialAMQP(url string, maxRetries int, retryDelay time.Duration) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			eventsLogger.Info().Msg("Successfully connected to RabbitMQ")
			return conn, nil
		}
		if i < maxRetries-1 {
			eventsLogger.Warn().Err(err).
				Int("attempt", i+1).
				Int("maxRetries", maxRetries).
				Dur("retryDelay", retryDelay).
				Msg("Failed to connect to RabbitMQ, retrying")
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// NewAMQPNotifier opens a channel on conn for publishing to queue.
func NewAMQPNotifier(conn *amqp.Connection, queue string) (*AMQPNotifier, error) {
	if conn == nil {
		return nil, ErrAMQPNotConnected
	}
	open := func() (channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	ch, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &AMQPNotifier{channel: ch, open: open, queue: queue, timeout: PUBLISH_TIMEOUT}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, ev types.Event) error {
	body, err := json.Marshal(Envelope{
		Event:     ev.EventName(),
		Basket:    ev.BasketRef(),
		Payload:   ev,
		Published: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         ev.EventName(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.publish(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) && n.open != nil {
		eventsLogger.Warn().Str("queue", n.queue).Msg("AMQP channel closed, reopening")
		if reopenErr := n.reopen(); reopenErr != nil {
			return fmt.Errorf("failed to reopen channel: %w", reopenErr)
		}
		err = n.publish(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	eventsLogger.Debug().Str("queue", n.queue).Str("event", ev.EventName()).Msg("Published event")
	return nil
}

// publish declares the queue on first use and sends msg. Callers hold n.mu.
func (n *AMQPNotifier) publish(ctx context.Context, msg amqp.Publishing) error {
	if !n.declared {
		_, err := n.channel.QueueDeclare(
			n.queue,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		n.declared = true
	}

	timeout := n.timeout
	if timeout <= 0 {
		timeout = PUBLISH_TIMEOUT
	}
	pubCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return n.channel.PublishWithContext(pubCtx,
		"",      // exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		msg,
	)
}

// reopen replaces a closed channel. The queue is declared again on the next publish.
func (n *AMQPNotifier) reopen() error {
	ch, err := n.open()
	if err != nil {
		return err
	}
	if n.channel != nil {
		n.channel.Close()
	}
	n.channel = ch
	n.declared = false
	return nil
}

// Close closes the channel. The connection belongs to the caller.
func (n *AMQPNotifier) Close() error {
	if n.channel != nil {
		return n.channel.Close()
	}
	return nil
}
