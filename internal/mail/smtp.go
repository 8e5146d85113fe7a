// Package mail delivers queued emails over SMTP behind a circuit breaker.
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	gomail "github.com/wneessen/go-mail"

	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/queue"
)

// Config holds the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// dialer is the part of *gomail.Client the sender uses.
type dialer interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*gomail.Msg) error
}

// Sender turns queue.EmailMessage values into SMTP deliveries.
type Sender struct {
	cfg     Config
	client  dialer
	breaker *gobreaker.CircuitBreaker[any]
}

// NewSender builds an SMTP client for cfg. Authentication is enabled
// only when a username is configured.
func NewSender(cfg Config) (*Sender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return newSender(cfg, c), nil
}

func newSender(cfg Config, c dialer) *Sender {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &Sender{cfg: cfg, client: c, breaker: gobreaker.NewCircuitBreaker[any](settings)}
}

func (s *Sender) build(m queue.EmailMessage) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.AddToFormat(m.ToName, m.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, m.Body)
	if m.ID != "" {
		msg.SetMessageIDWithValue(m.ID)
	}
	return msg, nil
}

// Send delivers one message. Address errors are returned directly;
// delivery errors go through the breaker, so while it is open Send
// fails fast with gobreaker.ErrOpenState.
func (s *Sender) Send(ctx context.Context, m queue.EmailMessage) error {
	msg, err := s.build(m)
	if err != nil {
		metrics.NotificationsFailed.WithLabelValues("deliver").Inc()
		return err
	}
	_, err = s.breaker.Execute(func() (any, error) {
		return nil, s.client.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		metrics.NotificationsFailed.WithLabelValues("deliver").Inc()
		return fmt.Errorf("send %s to %s: %w", m.Kind, m.To, err)
	}
	logging.Ctx(ctx).Info().Str("kind", m.Kind).Str("message_id", m.ID).Msg("email delivered")
	return nil
}

// State exposes the breaker state for health reporting.
func (s *Sender) State() gobreaker.State { return s.breaker.State() }
