package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"

	"github.com/iliyamo/tour-booking/internal/logging"
)

// Handler processes one email. A returned error rejects the message
// unless it is retryable (see Retryable).
type Handler func(ctx context.Context, msg EmailMessage) error

// Consumer reads the email queue and hands every message to a Handler.
type Consumer struct {
	url      string
	queue    string
	handler  Handler
	prefetch int
	// RetryDelay is how long a retryable failure holds the consumer back.
	RetryDelay time.Duration
}

func NewConsumer(url, queue string, h Handler) *Consumer {
	if queue == "" {
		queue = DefaultEmailQueue
	}
	return &Consumer{url: url, queue: queue, handler: h, prefetch: 50, RetryDelay: 5 * time.Second}
}

// Retryable reports whether a failure should requeue the message: the
// downstream breaker is open or saturated rather than the message bad.
func Retryable(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			logging.Warn().Err(err).Dur("retry_in", backoff).Msg("consumer: failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Msg("consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		logging.Warn().Err(err).Msg("consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logging.Info().Str("queue", c.queue).Msg("consumer: waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(ctx, d, d.Body)
		}
	}
}

// acknowledger is the part of amqp.Delivery the consumer settles with.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settle runs the handler on body and acks or nacks accordingly.
func (c *Consumer) settle(ctx context.Context, d acknowledger, body []byte) {
	var msg EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logging.Error().Err(err).Msg("consumer: undecodable message dropped")
		_ = d.Nack(false, false)
		return
	}
	err := c.handler(ctx, msg)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case Retryable(err):
		logging.Warn().Err(err).Str("message_id", msg.ID).Msg("consumer: downstream unavailable, requeueing")
		_ = d.Nack(false, true)
		sleep(ctx, c.RetryDelay)
	default:
		logging.Error().Err(err).Str("message_id", msg.ID).Str("kind", msg.Kind).Msg("consumer: handle message failed")
		// Reject without requeue to avoid tight loops.
		_ = d.Nack(false, false)
	}
}

// sleep waits for d or ctx; it reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
