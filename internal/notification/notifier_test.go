package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/queue"
	"github.com/iliyamo/tour-booking/internal/service"
)

var _ service.Notifier = (*Notifier)(nil)

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	msgs []queue.EmailMessage
	ctxs []context.Context
}

func (f *fakePublisher) Publish(ctx context.Context, m queue.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxs = append(f.ctxs, ctx)
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

var ana = model.User{ID: 7, Email: "ana@example.org", Username: "anasilva", FirstName: "Ana", LastName: "Silva"}

func TestReservationEmail(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, "https://tours.example/")
	r := model.Reservation{SeatsNeeded: 2, Price: 200, Destination: "Lisbon", StartDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}

	n.ReservationCreated(context.Background(), ana, r)
	n.Wait()

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, "reservation_created", m.Kind)
	assert.Equal(t, "ana@example.org", m.To)
	assert.Equal(t, "Ana Silva", m.ToName)
	assert.Contains(t, m.Subject, "Lisbon")
	assert.Contains(t, m.Body, "2 seat(s) for Lisbon starting 2026-05-01, total price 200.00")
}

func TestPublishOutlivesRequestContext(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, "https://tours.example")
	ctx, cancel := context.WithCancel(context.Background())
	n.PasswordResetRequested(ctx, ana, "tok123")
	cancel()
	n.Wait()

	require.Len(t, pub.msgs, 1)
	assert.Contains(t, pub.msgs[0].Body, "https://tours.example/reset-password?token=tok123")
	_, hasDeadline := pub.ctxs[0].Deadline()
	assert.True(t, hasDeadline)
}

func TestDecisionEmail(t *testing.T) {
	pub := &fakePublisher{}
	n := New(pub, "")
	granted, comment := true, "Welcome to the team"
	n.ChangeRequestDecided(context.Background(), ana, model.AccountTypeChangeRequest{WantedType: "GUIDE", Granted: &granted, Comment: &comment})
	n.Wait()

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "Account type request granted", pub.msgs[0].Subject)
	assert.Contains(t, pub.msgs[0].Body, "become GUIDE has been granted")
	assert.Contains(t, pub.msgs[0].Body, "Comment: Welcome to the team")
}

func TestPublishFailureIsCounted(t *testing.T) {
	before := testutil.ToFloat64(metrics.NotificationsFailed.WithLabelValues("publish"))
	n := New(&fakePublisher{err: errors.New("broker down")}, "")
	n.PasswordChanged(context.Background(), ana)
	n.Wait()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsFailed.WithLabelValues("publish")))
}
