package service

import (
	"context"
	"errors"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/domain"
	"hotelbook/internal/models"
	"hotelbook/internal/worker"

	"github.com/rs/zerolog"
)

// BookingCreator is the create half of the booking state machine.
type BookingCreator interface {
	CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.BookingHold, error)
}

// RetryingBookingCreator retries creates that lost a lock race, with
// exponential backoff. Every other error is returned at once.
type RetryingBookingCreator struct {
	next   BookingCreator
	policy worker.RetryPolicy
	logger *zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryingBookingCreator(next BookingCreator, cfg config.RetryConfig, logger *zerolog.Logger) *RetryingBookingCreator {
	policy := worker.NewRetryPolicy(cfg)
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &RetryingBookingCreator{
		next:   next,
		policy: policy,
		logger: logger,
		sleep:  sleepCtx,
	}
}

func (r *RetryingBookingCreator) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.BookingHold, error) {
	for attempt := 1; ; attempt++ {
		hold, err := r.next.CreateBooking(ctx, req)
		if err == nil || !errors.Is(err, domain.ErrLockContended) {
			return hold, err
		}
		if r.policy.Exhausted(attempt) {
			return nil, err
		}

		delay := r.policy.NextDelay(attempt)
		r.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Int64("user_id", req.UserID).Msg("lock contended, retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
