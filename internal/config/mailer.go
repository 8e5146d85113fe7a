package config

import (
	"errors"
	"os"
	"time"
)

// MailerConfig is the configuration of the mailer process, which only
// needs the broker and the SMTP relay.
type MailerConfig struct {
	RabbitURL string
	MailQueue string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailFromName string

	BreakerFailures int
	BreakerTimeout  time.Duration
	RetryDelay      time.Duration

	LogLevel  string
	LogFormat string
}

func LoadMailerFromEnv() (MailerConfig, error) {
	var l loader
	cfg := MailerConfig{
		RabbitURL: l.must("RABBITMQ_URL"),
		MailQueue: envStr("MAIL_QUEUE", "notifications.email"),

		SMTPHost:     envStr("SMTP_HOST", "localhost"),
		SMTPPort:     envInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     envStr("MAIL_FROM", "noreply@localhost"),
		MailFromName: envStr("MAIL_FROM_NAME", "Tour Booking"),

		BreakerFailures: envInt("SMTP_BREAKER_FAILURES", 5),
		BreakerTimeout:  envDur("SMTP_BREAKER_TIMEOUT", 30*time.Second),
		RetryDelay:      envDur("MAIL_RETRY_DELAY", 5*time.Second),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),
	}
	if cfg.BreakerFailures < 1 {
		l.errs = append(l.errs, errors.New("SMTP_BREAKER_FAILURES must be positive"))
	}
	return cfg, errors.Join(l.errs...)
}
