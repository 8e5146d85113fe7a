// Package notification renders account and booking emails and hands
// them to the broker without blocking the request that caused them.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/queue"
)

// Publisher accepts rendered emails; *queue.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.EmailMessage) error
}

// Notifier implements service.Notifier.
type Notifier struct {
	pub       Publisher
	publicURL string
	timeout   time.Duration
	wg        sync.WaitGroup
}

// New returns a Notifier publishing through pub. publicURL is the
// base of links placed in emails.
func New(pub Publisher, publicURL string) *Notifier {
	return &Notifier{pub: pub, publicURL: strings.TrimRight(publicURL, "/"), timeout: 10 * time.Second}
}

// Wait blocks until in-flight publishes finish.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) send(ctx context.Context, kind string, u model.User, subject, body string) {
	msg := queue.EmailMessage{
		Kind:    kind,
		To:      u.Email,
		ToName:  strings.TrimSpace(u.FirstName + " " + u.LastName),
		Subject: subject,
		Body:    body,
	}
	// Detach from the request so a finished response does not cancel the publish.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		if err := n.pub.Publish(pctx, msg); err != nil {
			metrics.NotificationsFailed.WithLabelValues("publish").Inc()
			logging.Ctx(ctx).Error().Err(err).Str("kind", kind).Uint64("user_id", u.ID).Msg("publish notification failed")
			return
		}
		metrics.NotificationsPublished.WithLabelValues(kind).Inc()
	}()
}

func greeting(u model.User) string {
	if u.FirstName == "" {
		return "Hello,\n\n"
	}
	return "Hello " + u.FirstName + ",\n\n"
}

func describe(r model.Reservation) string {
	return fmt.Sprintf("%d seat(s) for %s starting %s, total price %.2f.",
		r.SeatsNeeded, r.Destination, r.StartDate.Format(model.DateLayout), r.Price)
}

func (n *Notifier) Registered(ctx context.Context, u model.User) {
	n.send(ctx, "registered", u, "Welcome aboard",
		greeting(u)+"your account "+u.Username+" has been created. You can now browse and reserve arrangements.\n")
}

func (n *Notifier) ReservationCreated(ctx context.Context, u model.User, r model.Reservation) {
	n.send(ctx, "reservation_created", u, "Reservation confirmed: "+r.Destination,
		greeting(u)+"your reservation is confirmed: "+describe(r)+"\n")
}

func (n *Notifier) ReservationChanged(ctx context.Context, u model.User, r model.Reservation) {
	n.send(ctx, "reservation_changed", u, "Reservation updated: "+r.Destination,
		greeting(u)+"your reservation now holds "+describe(r)+"\n")
}

func (n *Notifier) ReservationCancelled(ctx context.Context, u model.User, r model.Reservation) {
	n.send(ctx, "reservation_cancelled", u, "Reservation cancelled: "+r.Destination,
		greeting(u)+fmt.Sprintf("your reservation for %s starting %s has been cancelled.\n",
			r.Destination, r.StartDate.Format(model.DateLayout)))
}

func (n *Notifier) ArrangementCancelled(ctx context.Context, u model.User, a model.Arrangement) {
	n.send(ctx, "arrangement_cancelled", u, "Arrangement cancelled: "+a.Destination,
		greeting(u)+fmt.Sprintf("unfortunately the arrangement to %s (%s to %s) has been cancelled.\n",
			a.Destination, a.StartDate.Format(model.DateLayout), a.EndDate.Format(model.DateLayout)))
}

func (n *Notifier) ChangeRequestDecided(ctx context.Context, u model.User, c model.AccountTypeChangeRequest) {
	outcome := "denied"
	if c.Granted != nil && *c.Granted {
		outcome = "granted"
	}
	body := greeting(u) + fmt.Sprintf("your request to become %s has been %s.\n", c.WantedType, outcome)
	if c.Comment != nil && *c.Comment != "" {
		body += "\nComment: " + *c.Comment + "\n"
	}
	n.send(ctx, "change_decided", u, "Account type request "+outcome, body)
}

func (n *Notifier) PasswordResetRequested(ctx context.Context, u model.User, token string) {
	link := n.publicURL + "/reset-password?token=" + token
	n.send(ctx, "password_reset", u, "Reset your password",
		greeting(u)+"use the link below to choose a new password. It can be used once.\n\n"+link+"\n\n"+
			"If you did not ask for this, ignore this email.\n")
}

func (n *Notifier) PasswordChanged(ctx context.Context, u model.User) {
	n.send(ctx, "password_changed", u, "Your password was changed",
		greeting(u)+"the password of your account was just changed. If this was not you, reset it immediately.\n")
}

// LogPublisher writes emails to the log instead of a broker. It stands
// in when no RABBITMQ_URL is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, msg queue.EmailMessage) error {
	logging.Ctx(ctx).Info().Str("kind", msg.Kind).Str("to", msg.To).Str("subject", msg.Subject).Msg("email not sent: no broker configured")
	return nil
}
