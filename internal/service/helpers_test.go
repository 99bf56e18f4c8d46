package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/database"
	"hotelbook/internal/domain"
	"hotelbook/internal/models"
	"hotelbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testInventory() models.Inventory {
	return models.Inventory{
		Properties: []models.Property{
			{ID: 1, Name: "Seaside", IsActive: true},
			{ID: 2, Name: "Closed Inn", IsActive: false},
		},
		RoomTypes: []models.RoomType{
			{ID: 10, PropertyID: 1, Name: "Double", Price: 100, MaxOccupancy: 2, IsActive: true},
			{ID: 11, PropertyID: 1, Name: "Suite", Price: 250, MaxOccupancy: 4, IsActive: true},
			{ID: 20, PropertyID: 2, Name: "Single", Price: 50, MaxOccupancy: 1, IsActive: true},
		},
		Rooms: []models.Room{
			{ID: 7, RoomTypeID: 10, Name: "107", IsActive: true},
			{ID: 8, RoomTypeID: 10, Name: "108", IsActive: true},
			{ID: 9, RoomTypeID: 11, Name: "201", IsActive: false},
			{ID: 12, RoomTypeID: 11, Name: "202", IsActive: true},
			{ID: 30, RoomTypeID: 20, Name: "1", IsActive: true},
		},
	}
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "hotel.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.UpsertInventory(context.Background(), testInventory()))
	return db
}

func stay(checkIn, checkOut string) models.DateRange {
	return models.NewDateRange(models.MustParseDate(checkIn), models.MustParseDate(checkOut))
}

func lockKey(roomID int64, r models.DateRange) domain.RoomLockKey {
	return domain.RoomLockKey{RoomID: roomID, Range: r}
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) EnqueueBookingConfirmed(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

// recordingBus captures published event types.
type recordingBus struct {
	mu    sync.Mutex
	types []string
}

func (b *recordingBus) PublishJSON(eventType string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.types = append(b.types, eventType)
	return nil
}

func (b *recordingBus) seen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.types...)
}

type fixture struct {
	db       *database.DB
	locker   domain.RoomLocker
	bookings *BookingService
	payments *PaymentService
	notifier *mockNotifier
	bus      *recordingBus
}

func newFixture(t *testing.T, locker domain.RoomLocker) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db := newTestDB(t)
	if locker == nil {
		locker = repository.NewMemoryRoomLocker(15 * time.Minute)
	}
	notifier := &mockNotifier{}
	notifier.On("EnqueueBookingConfirmed", mock.Anything, mock.Anything).Return(nil)
	bus := &recordingBus{}

	return &fixture{
		db:       db,
		locker:   locker,
		bookings: NewBookingService(db, locker, nil, bus, config.BookingConfig{HoldDuration: 15 * time.Minute}, &logger),
		payments: NewPaymentService(db, db, locker, notifier, bus, &logger),
		notifier: notifier,
		bus:      bus,
	}
}

func (f *fixture) create(t *testing.T, userID int64, r models.DateRange, rooms ...int64) *models.BookingHold {
	t.Helper()
	hold, err := f.bookings.CreateBooking(context.Background(), domain.CreateBookingRequest{
		UserID: userID, RoomIDs: rooms, Stay: r, NumGuests: 1,
	})
	require.NoError(t, err)
	return hold
}

func (f *fixture) bookedRoomCount(t *testing.T, roomID int64) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM booked_rooms WHERE room_id = ?`, roomID))
	return n
}
