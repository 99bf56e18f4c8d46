package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hotelbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHolds serves overdue pending bookings and drops the ones expired.
type fakeHolds struct {
	mu      sync.Mutex
	pending map[int64]*models.Booking
	err     error
	calls   int
}

func newFakeHolds(ids ...int64) *fakeHolds {
	past := time.Now().Add(-time.Minute)
	h := &fakeHolds{pending: make(map[int64]*models.Booking)}
	for _, id := range ids {
		h.pending[id] = &models.Booking{ID: id, Status: models.BookingPending, ExpiresAt: &past}
	}
	return h
}

func (h *fakeHolds) GetExpiredHolds(_ context.Context, now time.Time, limit int, skip ...int64) ([]*models.Booking, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	skipped := make(map[int64]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	var out []*models.Booking
	for id := int64(0); id < 1000 && len(out) < limit; id++ {
		if b, ok := h.pending[id]; ok && b.IsOverdue(now) && !skipped[id] {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeExpirer struct {
	holds   *fakeHolds
	failFor map[int64]bool
	seen    []int64
}

func (e *fakeExpirer) ExpireBooking(_ context.Context, b *models.Booking) (bool, error) {
	e.seen = append(e.seen, b.ID)
	if e.failFor[b.ID] {
		return false, errors.New("lock store unreachable")
	}
	e.holds.mu.Lock()
	defer e.holds.mu.Unlock()
	if _, ok := e.holds.pending[b.ID]; !ok {
		return false, nil
	}
	delete(e.holds.pending, b.ID)
	return true, nil
}

func TestExpirySweeper_RunOnce(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("ExpiresAllInBatches", func(t *testing.T) {
		holds := newFakeHolds(1, 2, 3, 4, 5)
		sweeper := NewExpirySweeper(holds, &fakeExpirer{holds: holds}, time.Minute, 2, &logger)

		n, err := sweeper.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Empty(t, holds.pending)
		assert.Equal(t, 3, holds.calls)
	})

	t.Run("ContinuesPastFailures", func(t *testing.T) {
		holds := newFakeHolds(1, 2, 3)
		expirer := &fakeExpirer{holds: holds, failFor: map[int64]bool{2: true}}
		sweeper := NewExpirySweeper(holds, expirer, time.Minute, 10, &logger)

		n, err := sweeper.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []int64{1, 2, 3}, expirer.seen)
		assert.Contains(t, holds.pending, int64(2))
	})

	t.Run("StuckBatchDoesNotHideLaterHolds", func(t *testing.T) {
		holds := newFakeHolds(1, 2, 3, 4, 5)
		expirer := &fakeExpirer{holds: holds, failFor: map[int64]bool{1: true, 2: true}}
		sweeper := NewExpirySweeper(holds, expirer, time.Minute, 2, &logger)

		n, err := sweeper.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Len(t, holds.pending, 2)
		assert.Contains(t, holds.pending, int64(1))
		assert.Contains(t, holds.pending, int64(2))
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, expirer.seen)
	})

	t.Run("NotYetOverdueIgnored", func(t *testing.T) {
		holds := newFakeHolds(1)
		future := time.Now().Add(time.Hour)
		holds.pending[1].ExpiresAt = &future
		sweeper := NewExpirySweeper(holds, &fakeExpirer{holds: holds}, time.Minute, 10, &logger)

		n, err := sweeper.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("SourceError", func(t *testing.T) {
		holds := newFakeHolds()
		holds.err = errors.New("db down")
		sweeper := NewExpirySweeper(holds, &fakeExpirer{holds: holds}, time.Minute, 10, &logger)

		_, err := sweeper.RunOnce(context.Background())
		assert.Error(t, err)
	})

	t.Run("Defaults", func(t *testing.T) {
		sweeper := NewExpirySweeper(nil, nil, 0, 0, &logger)
		assert.Equal(t, models.DefaultSweepInterval, sweeper.interval)
		assert.Equal(t, models.DefaultSweepBatch, sweeper.batch)
	})
}

func TestExpirySweeper_StartSweepsImmediately(t *testing.T) {
	logger := zerolog.Nop()
	holds := newFakeHolds(1)
	sweeper := NewExpirySweeper(holds, &fakeExpirer{holds: holds}, time.Hour, 10, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		holds.mu.Lock()
		defer holds.mu.Unlock()
		return len(holds.pending) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
