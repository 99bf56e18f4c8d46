package worker

import (
	"context"
	"fmt"
	"time"

	"hotelbook/internal/metrics"
	"hotelbook/internal/models"

	"github.com/rs/zerolog"
)

// HoldSource lists pending bookings whose hold has run out, leaving out the
// skipped ids.
type HoldSource interface {
	GetExpiredHolds(ctx context.Context, now time.Time, limit int, skip ...int64) ([]*models.Booking, error)
}

// HoldExpirer moves one overdue booking to expired. It reports false when the
// booking was no longer pending, which is not an error.
type HoldExpirer interface {
	ExpireBooking(ctx context.Context, booking *models.Booking) (bool, error)
}

// ExpirySweeper periodically expires pending bookings past expires_at.
type ExpirySweeper struct {
	holds    HoldSource
	expirer  HoldExpirer
	interval time.Duration
	batch    int
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewExpirySweeper(holds HoldSource, expirer HoldExpirer, interval time.Duration, batch int, logger *zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = models.DefaultSweepInterval
	}
	if batch <= 0 {
		batch = models.DefaultSweepBatch
	}
	return &ExpirySweeper{
		holds:    holds,
		expirer:  expirer,
		interval: interval,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Int("batch", s.batch).Msg("Expiry sweeper started")
	defer s.logger.Info().Msg("Expiry sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Expiry sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("expired", n).Msg("Expired pending bookings")
	}
}

// RunOnce expires every overdue hold, fetching them in batches. A failure on
// one booking is logged and skipped; the rest of the sweep continues. Rows
// that were not expired are left out of later batches of the same pass, so
// stuck holds cannot hide the ones behind them.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	var skip []int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		holds, err := s.holds.GetExpiredHolds(ctx, s.now(), s.batch, skip...)
		if err != nil {
			metrics.IncSweeperError()
			return total, fmt.Errorf("load expired holds: %w", err)
		}

		expired := 0
		for _, b := range holds {
			ok, err := s.expirer.ExpireBooking(ctx, b)
			if err != nil {
				metrics.IncSweeperError()
				s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("Failed to expire booking")
			}
			if ok {
				expired++
			} else {
				skip = append(skip, b.ID)
			}
		}
		total += expired
		metrics.AddSweeperExpired(expired)

		// a short batch means the backlog is drained
		if len(holds) < s.batch {
			return total, nil
		}
	}
}
