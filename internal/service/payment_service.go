package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelbook/internal/database"
	"hotelbook/internal/domain"
	"hotelbook/internal/events"
	"hotelbook/internal/models"

	"github.com/rs/zerolog"
)

type PaymentService struct {
	payments domain.PaymentRepository
	bookings domain.BookingRepository
	locker   domain.RoomLocker
	notifier domain.Notifier
	eventBus domain.EventPublisher
	authz    authorizer
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewPaymentService(
	payments domain.PaymentRepository,
	bookings domain.BookingRepository,
	locker domain.RoomLocker,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		bookings: bookings,
		locker:   locker,
		notifier: notifier,
		eventBus: eventBus,
		authz:    authorizer{repo: bookings},
		logger:   logger,
		now:      time.Now,
	}
}

// CreatePayment opens the single payment of a pending booking for its total.
// Calling it again returns the existing payment.
func (s *PaymentService) CreatePayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.Payment, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	permitted, err := s.authz.permits(ctx, booking, actor)
	if err != nil {
		return nil, err
	}
	if !permitted {
		return nil, domain.ErrForbidden
	}

	existing, err := s.payments.GetPaymentByBooking(ctx, bookingID)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return nil, err
	}

	if booking.Status != models.BookingPending {
		return nil, fmt.Errorf("pay %s booking: %w", booking.Status, domain.ErrInvalidTransition)
	}

	payment := &models.Payment{
		BookingID:   booking.ID,
		Amount:      booking.TotalAmount,
		PaymentType: models.PaymentTypeFakeGateway,
		Status:      models.PaymentPending,
	}
	err = s.payments.CreatePayment(ctx, payment)
	if errors.Is(err, database.ErrDuplicatePayment) {
		return s.payments.GetPaymentByBooking(ctx, bookingID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("payment_id", payment.ID).Int64("booking_id", booking.ID).Int64("amount", payment.Amount).Msg("Payment created")
	return payment, nil
}

// ConfirmPayment applies a gateway confirmation. Deliveries are at least
// once: a payment that is already paid is returned unchanged with
// AlreadyPaid set, and only the delivery that performed the transition
// releases locks and queues the confirmation mail.
func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentID int64) (*domain.ConfirmResult, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	booking, err := s.loadBooking(ctx, payment)
	if err != nil {
		return nil, err
	}

	if payment.IsPaid() {
		return &domain.ConfirmResult{Payment: payment, Booking: booking, AlreadyPaid: true}, nil
	}

	if booking.Status != models.BookingPending {
		s.logger.Warn().Int64("payment_id", payment.ID).Int64("booking_id", booking.ID).Str("status", string(booking.Status)).
			Msg("payment confirmed for a booking that is no longer pending")
		return nil, fmt.Errorf("confirm %s booking: %w", booking.Status, domain.ErrInvalidTransition)
	}

	paidAt := s.now().UTC()
	err = s.payments.MarkPaymentPaid(ctx, payment.ID, booking.ID, paidAt)
	if errors.Is(err, database.ErrPaymentAlreadyPaid) {
		// a concurrent delivery won
		return s.currentState(ctx, payment.ID)
	}
	if err != nil {
		return nil, err
	}

	payment.Status = models.PaymentPaid
	payment.PaymentTime = &paidAt
	keys := lockKeys(booking)
	booking.Status = models.BookingConfirmed
	booking.ExpiresAt = nil
	booking.UpdatedAt = paidAt

	_ = releaseLocks(ctx, s.locker, keys, booking.HoldToken, s.logger)

	if s.notifier != nil {
		if err := s.notifier.EnqueueBookingConfirmed(context.WithoutCancel(ctx), booking); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("failed to queue confirmation mail")
		}
	}

	s.logger.Info().Int64("payment_id", payment.ID).Int64("booking_id", booking.ID).Msg("Payment confirmed")
	publishBookingEvent(s.eventBus, s.logger, events.EventBookingConfirmed, booking, 0, payment.ID)
	publishBookingEvent(s.eventBus, s.logger, events.EventPaymentConfirmed, booking, 0, payment.ID)

	return &domain.ConfirmResult{Payment: payment, Booking: booking}, nil
}

func (s *PaymentService) loadBooking(ctx context.Context, payment *models.Payment) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, payment.BookingID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Error().Int64("payment_id", payment.ID).Int64("booking_id", payment.BookingID).Msg("payment references a missing booking")
		return nil, fmt.Errorf("payment %d references booking %d: %w", payment.ID, payment.BookingID, domain.ErrDataIntegrity)
	}
	return booking, err
}

func (s *PaymentService) currentState(ctx context.Context, paymentID int64) (*domain.ConfirmResult, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	booking, err := s.loadBooking(ctx, payment)
	if err != nil {
		return nil, err
	}
	return &domain.ConfirmResult{Payment: payment, Booking: booking, AlreadyPaid: true}, nil
}
