package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type purgeRecorder struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *purgeRecorder) PurgeStale(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, p.err
}

func (p *purgeRecorder) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestPurgeTokensUsesGrace(t *testing.T) {
	rec := &purgeRecorder{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n, err := PurgeTokens(context.Background(), rec, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, []time.Time{now.Add(-24 * time.Hour)}, rec.cutoffs)

	rec.err = errors.New("db down")
	_, err = PurgeTokens(context.Background(), rec, now)
	assert.Error(t, err)
}

func TestSchedulerRunsPurge(t *testing.T) {
	rec := &purgeRecorder{}
	s, err := Start(rec, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return rec.calls() >= 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Shutdown())
}
