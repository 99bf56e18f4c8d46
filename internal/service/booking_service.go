package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/domain"
	"hotelbook/internal/events"
	"hotelbook/internal/metrics"
	"hotelbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BookingService struct {
	repo      domain.BookingRepository
	locker    domain.RoomLocker
	limiter   domain.RateLimiter
	eventBus  domain.EventPublisher
	authz     authorizer
	hold      time.Duration
	rateLimit config.RateLimitConfig
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewBookingService wires the state machine. limiter and eventBus may be nil.
func NewBookingService(
	repo domain.BookingRepository,
	locker domain.RoomLocker,
	limiter domain.RateLimiter,
	eventBus domain.EventPublisher,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = models.DefaultHoldDuration
	}
	if cfg.RateLimit.Limit <= 0 {
		cfg.RateLimit.Limit = models.DefaultBookingRateLimit
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = models.DefaultBookingRateWindow
	}
	return &BookingService{
		repo:      repo,
		locker:    locker,
		limiter:   limiter,
		eventBus:  eventBus,
		authz:     authorizer{repo: repo},
		hold:      cfg.HoldDuration,
		rateLimit: cfg.RateLimit,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBooking places a pending hold on the requested rooms.
//
// Validation happens before any lock is taken. Locks are acquired in
// ascending room order and availability is checked while they are held;
// the insert re-checks overlap inside its transaction. Every lock taken by
// a failed attempt is released before returning. Locks of a successful
// attempt stay with the booking until it is confirmed, cancelled or expired.
func (s *BookingService) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (hold *models.BookingHold, err error) {
	if err := s.checkRateLimit(ctx, req.UserID); err != nil {
		return nil, err
	}

	roomIDs, details, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	var acquired []domain.RoomLockKey
	defer func() {
		if err != nil && len(acquired) > 0 {
			_ = releaseLocks(ctx, s.locker, acquired, token, s.logger)
		}
	}()

	for _, roomID := range roomIDs {
		key := domain.RoomLockKey{RoomID: roomID, Range: req.Stay}
		ok, lockErr := s.locker.Acquire(ctx, key, token)
		if lockErr != nil {
			return nil, fmt.Errorf("acquire lock for room %d: %w", roomID, lockErr)
		}
		if !ok {
			metrics.IncLockContention()
			return nil, fmt.Errorf("room %d: %w", roomID, domain.ErrLockContended)
		}
		acquired = append(acquired, key)
	}

	conflicting, err := s.repo.FindConflictingRooms(ctx, roomIDs, req.Stay)
	if err != nil {
		return nil, err
	}
	if len(conflicting) > 0 {
		return nil, fmt.Errorf("rooms %v: %w", conflicting, domain.ErrRoomUnavailable)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.hold)
	nights := int64(req.Stay.Nights())
	booking := &models.Booking{
		UserID:       req.UserID,
		CheckIn:      req.Stay.CheckIn,
		CheckOut:     req.Stay.CheckOut,
		NumGuests:    req.NumGuests,
		Status:       models.BookingPending,
		ExpiresAt:    &expiresAt,
		HoldToken:    token,
		ContactEmail: req.ContactEmail,
	}
	for _, d := range details {
		booking.Rooms = append(booking.Rooms, models.BookedRoom{
			RoomID:   d.RoomID,
			CheckIn:  req.Stay.CheckIn,
			CheckOut: req.Stay.CheckOut,
			Price:    d.Price,
		})
		booking.TotalAmount += d.Price * nights
	}

	if err = s.repo.CreateHold(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("user_id", booking.UserID).
		Ints64("rooms", roomIDs).
		Str("stay", req.Stay.String()).
		Msg("Booking hold created")
	s.publishEvent(events.EventBookingCreated, booking, req.UserID)

	return &models.BookingHold{
		BookingID:   booking.ID,
		Rooms:       booking.Rooms,
		TotalAmount: booking.TotalAmount,
		ExpiresAt:   expiresAt,
		Status:      booking.Status,
	}, nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, "booking:"+strconv.FormatInt(userID, 10), s.rateLimit.Limit, s.rateLimit.Window)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("rate limiter unavailable, request allowed")
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// validate checks the request and returns the normalized room ids with their
// details in the same order.
func (s *BookingService) validate(ctx context.Context, req domain.CreateBookingRequest) ([]int64, []models.RoomDetails, error) {
	if req.UserID <= 0 {
		return nil, nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if len(req.RoomIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one room is required", domain.ErrInvalidInput)
	}
	if req.NumGuests < 1 {
		return nil, nil, fmt.Errorf("%w: at least one guest is required", domain.ErrInvalidInput)
	}
	if err := validateStay(req.Stay); err != nil {
		return nil, nil, err
	}

	roomIDs := normalizeRoomIDs(req.RoomIDs)
	details, err := s.repo.GetRoomDetails(ctx, roomIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("load rooms: %w", err)
	}
	if len(details) != len(roomIDs) {
		return nil, nil, fmt.Errorf("room: %w", domain.ErrNotFound)
	}

	capacity := 0
	for _, d := range details {
		if !d.Bookable() {
			return nil, nil, fmt.Errorf("room %d: %w", d.RoomID, domain.ErrInactiveResource)
		}
		capacity += d.MaxOccupancy
	}
	if req.NumGuests > capacity {
		return nil, nil, fmt.Errorf("%d guests for %d places: %w", req.NumGuests, capacity, domain.ErrCapacityExceeded)
	}
	return roomIDs, details, nil
}

// CancelBooking cancels a pending or confirmed booking on behalf of actor and
// frees its rooms.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
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

	if !booking.Status.CanTransition(models.BookingCancelled) {
		return nil, fmt.Errorf("cancel %s booking: %w", booking.Status, domain.ErrInvalidTransition)
	}

	from := booking.Status
	keys := lockKeys(booking)
	err = s.repo.ApplyBookingPatch(ctx, booking.ID, models.BookingPatch{
		From:         from,
		To:           models.BookingCancelled,
		ReleaseRooms: true,
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}

	// Locks of a confirmed booking were already released on payment.
	if from == models.BookingPending {
		_ = releaseLocks(ctx, s.locker, keys, booking.HoldToken, s.logger)
	}

	s.logger.Info().Int64("booking_id", booking.ID).Int64("actor_id", actor.UserID).Str("from", string(from)).Msg("Booking cancelled")

	updated, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	// rooms are gone from the store; keep them in the event for consumers
	snapshot := *updated
	snapshot.Rooms = booking.Rooms
	s.publishEvent(events.EventBookingCancelled, &snapshot, actor.UserID)
	return updated, nil
}

// ExpireBooking moves an overdue pending booking to expired and frees its
// rooms and locks. It returns false without error when the booking is not
// (or no longer) an overdue hold, so repeated sweeps are harmless.
func (s *BookingService) ExpireBooking(ctx context.Context, booking *models.Booking) (bool, error) {
	if !booking.IsOverdue(s.now()) {
		return false, nil
	}

	err := s.repo.ApplyBookingPatch(ctx, booking.ID, models.BookingPatch{
		From:         models.BookingPending,
		To:           models.BookingExpired,
		ReleaseRooms: true,
		UpdatedAt:    s.now(),
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := releaseLocks(ctx, s.locker, lockKeys(booking), booking.HoldToken, s.logger); err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("expired booking keeps locks until TTL")
	}

	s.logger.Info().Int64("booking_id", booking.ID).Msg("Booking hold expired")
	expired := *booking
	expired.Status = models.BookingExpired
	expired.ExpiresAt = nil
	s.publishEvent(events.EventBookingExpired, &expired, 0)
	return true, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return s.repo.GetUserBookings(ctx, userID)
}

// CanView reports whether actor may read booking.
func (s *BookingService) CanView(ctx context.Context, booking *models.Booking, actor models.Actor) bool {
	ok, err := s.authz.permits(ctx, booking, actor)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("authorization lookup failed")
		return false
	}
	return ok
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedByID int64) {
	publishBookingEvent(s.eventBus, s.logger, eventType, booking, changedByID, 0)
}

func publishBookingEvent(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, booking *models.Booking, changedByID, paymentID int64) {
	if bus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		Status:      string(booking.Status),
		CheckIn:     booking.CheckIn.String(),
		CheckOut:    booking.CheckOut.String(),
		RoomIDs:     booking.RoomIDs(),
		TotalAmount: booking.TotalAmount,
		PaymentID:   paymentID,
		ChangedByID: changedByID,
		OccurredAt:  time.Now().UTC(),
	}

	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
