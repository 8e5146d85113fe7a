// Command mailer drains the notification queue and delivers each
// message over SMTP.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/mail"
	"github.com/iliyamo/tour-booking/internal/queue"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.LoadMailerFromEnv()
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	sender, err := mail.NewSender(mail.Config{
		Host:            cfg.SMTPHost,
		Port:            cfg.SMTPPort,
		Username:        cfg.SMTPUsername,
		Password:        cfg.SMTPPassword,
		From:            cfg.MailFrom,
		FromName:        cfg.MailFromName,
		BreakerFailures: uint32(cfg.BreakerFailures),
		BreakerTimeout:  cfg.BreakerTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("smtp setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(cfg.RabbitURL, cfg.MailQueue, sender.Send)
	consumer.RetryDelay = cfg.RetryDelay

	logging.Info().Str("queue", cfg.MailQueue).Str("smtp", cfg.SMTPHost).Msg("mailer started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("consumer stopped")
	}
	logging.Info().Msg("mailer stopped")
}
