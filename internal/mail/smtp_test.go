package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/iliyamo/tour-booking/internal/queue"
)

type fakeDialer struct {
	err  error
	sent []*gomail.Msg
}

func (f *fakeDialer) DialAndSendWithContext(_ context.Context, msgs ...*gomail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func testConfig() Config {
	return Config{From: "noreply@tours.example", FromName: "Tours", BreakerFailures: 2, BreakerTimeout: time.Hour}
}

func email() queue.EmailMessage {
	return queue.EmailMessage{ID: "abc", Kind: "registered", To: "ana@example.org", ToName: "Ana Silva", Subject: "Welcome", Body: "Hello Ana"}
}

func TestSendBuildsMessage(t *testing.T) {
	d := &fakeDialer{}
	s := newSender(testConfig(), d)

	require.NoError(t, s.Send(context.Background(), email()))
	require.Len(t, d.sent, 1)
	msg := d.sent[0]
	assert.Equal(t, []string{"Welcome"}, msg.GetGenHeader(gomail.HeaderSubject))
	to := msg.GetToString()
	require.Len(t, to, 1)
	assert.Contains(t, to[0], "ana@example.org")
}

func TestSendRejectsBadAddress(t *testing.T) {
	d := &fakeDialer{}
	s := newSender(testConfig(), d)
	m := email()
	m.To = "not an address"
	assert.Error(t, s.Send(context.Background(), m))
	assert.Empty(t, d.sent)
	assert.Equal(t, gobreaker.StateClosed, s.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	s := newSender(testConfig(), d)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := s.Send(ctx, email())
		require.Error(t, err)
		assert.False(t, queue.Retryable(err))
	}
	assert.Equal(t, gobreaker.StateOpen, s.State())

	d.err = nil
	err := s.Send(ctx, email())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, queue.Retryable(err))
	assert.Empty(t, d.sent)
}
