package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	*MemoryStore
	fail  bool
	calls int
}

func (s *flakyStore) FindByTask(ctx context.Context, taskID string) ([]FileRecord, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.FindByTask(ctx, taskID)
}

func newTestBreaker(maxFailures uint32, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(maxFailures, cooldown, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: NewMemoryStore(), fail: true}
	cb, _ := newTestBreaker(3, time.Minute)
	s := NewBreakerStore(inner, cb)

	for i := 0; i < 3; i++ {
		_, err := s.FindByTask(ctx, "T1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, StateOpen, cb.State())

	_, err := s.FindByTask(ctx, "T1")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, inner.calls, "open circuit must not reach the store")
	assert.ErrorIs(t, s.Ping(ctx), ErrCircuitOpen)
}

func TestBreakerStore_ProbeAfterCooldown(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: NewMemoryStore(), fail: true}
	cb, now := newTestBreaker(1, time.Minute)
	s := NewBreakerStore(inner, cb)

	_, err := s.FindByTask(ctx, "T1")
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.State())

	// failed probe re-opens immediately
	*now = now.Add(2 * time.Minute)
	_, err = s.FindByTask(ctx, "T1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	inner.fail = false
	_, err = s.FindByTask(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.EqualValues(t, 0, cb.Stats().Failures)
}

func TestBreakerStore_SuccessResetsCount(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: NewMemoryStore()}
	cb, _ := newTestBreaker(2, time.Minute)
	s := NewBreakerStore(inner, cb)

	inner.fail = true
	_, _ = s.FindByTask(ctx, "T1")
	inner.fail = false
	_, err := s.FindByTask(ctx, "T1")
	require.NoError(t, err)
	inner.fail = true
	_, _ = s.FindByTask(ctx, "T1")

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerStore_CancellationIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cb, _ := newTestBreaker(1, time.Minute)

	err := cb.Execute(ctx, func() error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerStore_PassesInsertsThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	s := NewBreakerStore(mem, NewCircuitBreaker(5, time.Minute, nil))

	n, err := s.InsertAll(ctx, []FileRecord{{TaskID: "T1", Filename: "a.txt"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, s.Ping(ctx))
	assert.Equal(t, 1, mem.Len())
}

func TestBreakerStore_RejectedArgumentsAreNotFailures(t *testing.T) {
	ctx := context.Background()
	pg := NewPGStore(nil)
	cb, _ := newTestBreaker(2, time.Minute)
	s := NewBreakerStore(pg, cb)

	tooMany := make([]FileRecord, maxBindParams/len(insertColumns)+1)
	for i := 0; i < 5; i++ {
		_, err := s.FindByTask(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyTaskID)
		_, err = s.InsertAll(ctx, tooMany)
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.EqualValues(t, 0, cb.Stats().FailedRequests)

	// a real fault still counts
	flaky := &flakyStore{MemoryStore: NewMemoryStore(), fail: true}
	s.Inner = flaky
	_, _ = s.FindByTask(ctx, "T1")
	_, _ = s.FindByTask(ctx, "T1")
	assert.Equal(t, StateOpen, cb.State())
}
