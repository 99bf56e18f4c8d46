package domain

import (
	"context"
	"time"

	"hotelbook/internal/models"
)

// RoomLockKey identifies one room held for one stay.
type RoomLockKey struct {
	RoomID int64
	Range  models.DateRange
}

// RoomLocker is the distributed set-if-absent lock guarding room admission.
// Acquire never blocks waiting for the holder; retrying is the caller's choice.
type RoomLocker interface {
	Acquire(ctx context.Context, key RoomLockKey, owner string) (bool, error)
	Release(ctx context.Context, key RoomLockKey, owner string) error
}

// RateLimiter counts attempts per key within a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BookingRepository is the relational store behind the booking core.
type BookingRepository interface {
	GetRoomDetails(ctx context.Context, roomIDs []int64) ([]models.RoomDetails, error)
	FindConflictingRooms(ctx context.Context, roomIDs []int64, stay models.DateRange) ([]int64, error)
	CreateHold(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	GetBookingsOverlapping(ctx context.Context, stay models.DateRange) ([]*models.Booking, error)
	ApplyBookingPatch(ctx context.Context, id int64, patch models.BookingPatch) error
	GetExpiredHolds(ctx context.Context, now time.Time, limit int, skip ...int64) ([]*models.Booking, error)
}

// PaymentRepository persists payments and the paid transition.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByBooking(ctx context.Context, bookingID int64) (*models.Payment, error)
	MarkPaymentPaid(ctx context.Context, paymentID, bookingID int64, paidAt time.Time) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier hands booking notifications to the async queue. Implementations
// must not block on delivery.
type Notifier interface {
	EnqueueBookingConfirmed(ctx context.Context, booking *models.Booking) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.BookingHold, error)
	CancelBooking(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error)
	ExpireBooking(ctx context.Context, booking *models.Booking) (bool, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	CanView(ctx context.Context, booking *models.Booking, actor models.Actor) bool
}

type AvailabilityService interface {
	IsAvailable(ctx context.Context, roomID int64, stay models.DateRange) (bool, error)
	AvailableRooms(ctx context.Context, roomIDs []int64, stay models.DateRange) ([]int64, error)
}

type PaymentService interface {
	CreatePayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.Payment, error)
	ConfirmPayment(ctx context.Context, paymentID int64) (*ConfirmResult, error)
}

type CreateBookingRequest struct {
	UserID    int64
	RoomIDs   []int64
	Stay      models.DateRange
	NumGuests int
	// ContactEmail receives the confirmation mail; empty skips delivery.
	ContactEmail string
}

// ConfirmResult reports the state after a webhook delivery. AlreadyPaid is set
// when the delivery was a duplicate and nothing changed.
type ConfirmResult struct {
	Payment     *models.Payment
	Booking     *models.Booking
	AlreadyPaid bool
}
