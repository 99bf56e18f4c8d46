package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hotelbook/internal/database"
	"hotelbook/internal/domain"
	"hotelbook/internal/events"
	"hotelbook/internal/models"
	"hotelbook/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreatePayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	hold := f.create(t, 1, stay("2025-06-01", "2025-06-04"), 7)
	owner := models.Actor{UserID: 1, Role: models.RoleCustomer}

	payment, err := f.payments.CreatePayment(ctx, hold.BookingID, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(300), payment.Amount)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, models.PaymentTypeFakeGateway, payment.PaymentType)

	again, err := f.payments.CreatePayment(ctx, hold.BookingID, owner)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, again.ID)

	_, err = f.payments.CreatePayment(ctx, hold.BookingID, models.Actor{UserID: 2, Role: models.RoleCustomer})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.payments.CreatePayment(ctx, 999, owner)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	t.Run("CancelledBooking", func(t *testing.T) {
		other := f.create(t, 1, stay("2025-07-01", "2025-07-02"), 8)
		_, err := f.bookings.CancelBooking(ctx, other.BookingID, owner)
		require.NoError(t, err)

		_, err = f.payments.CreatePayment(ctx, other.BookingID, owner)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	locker := repository.NewMemoryRoomLocker(15 * time.Minute)
	f := newFixture(t, locker)
	ctx := context.Background()
	june := stay("2025-06-01", "2025-06-03")
	hold := f.create(t, 1, june, 7)

	payment, err := f.payments.CreatePayment(ctx, hold.BookingID, models.Actor{UserID: 1})
	require.NoError(t, err)

	first, err := f.payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyPaid)
	assert.Equal(t, models.PaymentPaid, first.Payment.Status)
	assert.NotNil(t, first.Payment.PaymentTime)
	assert.Equal(t, models.BookingConfirmed, first.Booking.Status)
	assert.Nil(t, first.Booking.ExpiresAt)
	_, held := locker.Owner(lockKey(7, june))
	assert.False(t, held)

	second, err := f.payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyPaid)
	assert.Equal(t, models.BookingConfirmed, second.Booking.Status)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)

	f.notifier.AssertNumberOfCalls(t, "EnqueueBookingConfirmed", 1)

	stored, err := f.db.GetBooking(ctx, hold.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, stored.Status)
	assert.Nil(t, stored.ExpiresAt)
	assert.Equal(t, 1, f.bookedRoomCount(t, 7), "confirmed booking keeps its rooms")

	seen := f.bus.seen()
	assert.Contains(t, seen, events.EventBookingConfirmed)
	assert.Contains(t, seen, events.EventPaymentConfirmed)
}

func TestConfirmPayment_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	hold := f.create(t, 1, stay("2025-06-01", "2025-06-03"), 7)
	payment, err := f.payments.CreatePayment(ctx, hold.BookingID, models.Actor{UserID: 1})
	require.NoError(t, err)

	const deliveries = 5
	var wg sync.WaitGroup
	results := make(chan *domain.ConfirmResult, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.payments.ConfirmPayment(ctx, payment.ID)
			if assert.NoError(t, err) {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	transitions := 0
	for res := range results {
		assert.Equal(t, models.BookingConfirmed, res.Booking.Status)
		if !res.AlreadyPaid {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
	f.notifier.AssertNumberOfCalls(t, "EnqueueBookingConfirmed", 1)
}

func TestConfirmPayment_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownPayment", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.payments.ConfirmPayment(ctx, 12345)
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
		assert.Equal(t, domain.KindNotFound, domain.Kind(err))
	})

	t.Run("BookingAlreadyExpired", func(t *testing.T) {
		f := newFixture(t, nil)
		f.bookings.now = func() time.Time { return time.Now().Add(-time.Hour) }
		hold := f.create(t, 1, stay("2025-06-01", "2025-06-03"), 7)
		f.bookings.now = time.Now

		payment, err := f.payments.CreatePayment(ctx, hold.BookingID, models.Actor{UserID: 1})
		require.NoError(t, err)

		booking, err := f.db.GetBooking(ctx, hold.BookingID)
		require.NoError(t, err)
		expired, err := f.bookings.ExpireBooking(ctx, booking)
		require.NoError(t, err)
		require.True(t, expired)

		_, err = f.payments.ConfirmPayment(ctx, payment.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		stored, err := f.db.GetPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, stored.Status)
		f.notifier.AssertNotCalled(t, "EnqueueBookingConfirmed", mock.Anything, mock.Anything)
	})

	t.Run("OverdueButNotSwept", func(t *testing.T) {
		f := newFixture(t, nil)
		f.bookings.now = func() time.Time { return time.Now().Add(-time.Hour) }
		hold := f.create(t, 1, stay("2025-06-01", "2025-06-03"), 7)
		f.bookings.now = time.Now

		payment, err := f.payments.CreatePayment(ctx, hold.BookingID, models.Actor{UserID: 1})
		require.NoError(t, err)
		res, err := f.payments.ConfirmPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, res.Booking.Status)
	})

	t.Run("MissingBooking", func(t *testing.T) {
		logger := zerolog.Nop()
		db := newTestDB(t)
		payments := orphanPayments{DB: db}
		svc := NewPaymentService(payments, db, repository.NewMemoryRoomLocker(time.Minute), nil, nil, &logger)

		_, err := svc.ConfirmPayment(ctx, 1)
		assert.ErrorIs(t, err, domain.ErrDataIntegrity)
	})

	t.Run("NotifierFailureKeepsTransition", func(t *testing.T) {
		logger := zerolog.Nop()
		db := newTestDB(t)
		locker := repository.NewMemoryRoomLocker(time.Minute)
		notifier := &mockNotifier{}
		notifier.On("EnqueueBookingConfirmed", mock.Anything, mock.Anything).Return(assert.AnError)
		bookings := NewBookingService(db, locker, nil, nil, defaultBookingConfig(), &logger)
		payments := NewPaymentService(db, db, locker, notifier, nil, &logger)

		hold, err := bookings.CreateBooking(ctx, domain.CreateBookingRequest{UserID: 1, RoomIDs: []int64{7}, Stay: stay("2025-06-01", "2025-06-03"), NumGuests: 1})
		require.NoError(t, err)
		payment, err := payments.CreatePayment(ctx, hold.BookingID, models.Actor{UserID: 1})
		require.NoError(t, err)

		res, err := payments.ConfirmPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, res.Booking.Status)
	})
}

// orphanPayments serves a payment whose booking does not exist.
type orphanPayments struct {
	*database.DB
}

func (orphanPayments) GetPayment(_ context.Context, id int64) (*models.Payment, error) {
	return &models.Payment{ID: id, BookingID: 777, Status: models.PaymentPending}, nil
}

// TestBookingLifecycle walks the reference scenario against redis-backed locks.
func TestBookingLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := repository.NewRedisRoomLocker(client, 15*time.Minute)
	f := newFixture(t, locker)
	ctx := context.Background()
	june := stay("2025-06-01", "2025-06-03")

	hold, err := f.bookings.CreateBooking(ctx, domain.CreateBookingRequest{UserID: 1, RoomIDs: []int64{7}, Stay: june, NumGuests: 2})
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, hold.Status)
	assert.Equal(t, int64(100*2), hold.TotalAmount)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), hold.ExpiresAt, 5*time.Second)
	assert.True(t, mr.Exists("lock:room:7:2025-06-01:2025-06-03"))

	_, err = f.bookings.CreateBooking(ctx, domain.CreateBookingRequest{UserID: 2, RoomIDs: []int64{7}, Stay: june, NumGuests: 1})
	assert.ErrorIs(t, err, domain.ErrLockContended)

	payment, err := f.payments.CreatePayment(ctx, hold.BookingID, models.Actor{UserID: 1})
	require.NoError(t, err)
	res, err := f.payments.ConfirmPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, res.Booking.Status)
	assert.Nil(t, res.Booking.ExpiresAt)
	assert.False(t, mr.Exists("lock:room:7:2025-06-01:2025-06-03"))

	third, err := f.bookings.CreateBooking(ctx, domain.CreateBookingRequest{UserID: 3, RoomIDs: []int64{7}, Stay: stay("2025-06-03", "2025-06-05"), NumGuests: 1})
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, third.Status)

	// same dates as the confirmed booking: the lock is free but the room is taken
	_, err = f.bookings.CreateBooking(ctx, domain.CreateBookingRequest{UserID: 2, RoomIDs: []int64{7}, Stay: june, NumGuests: 1})
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
	assert.False(t, mr.Exists("lock:room:7:2025-06-01:2025-06-03"))
}
