package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"hotelbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
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
			{ID: 30, RoomTypeID: 20, Name: "1", IsActive: true},
		},
	}
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "hotel.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.UpsertInventory(context.Background(), testInventory()))
	return db
}

func stay(checkIn, checkOut string) models.DateRange {
	return models.NewDateRange(models.MustParseDate(checkIn), models.MustParseDate(checkOut))
}

func newHold(userID int64, r models.DateRange, roomIDs ...int64) *models.Booking {
	expires := time.Now().UTC().Add(15 * time.Minute)
	b := &models.Booking{
		UserID:    userID,
		CheckIn:   r.CheckIn,
		CheckOut:  r.CheckOut,
		NumGuests: 1,
		Status:    models.BookingPending,
		ExpiresAt: &expires,
		HoldToken: uuid.NewString(),
	}
	for _, id := range roomIDs {
		b.Rooms = append(b.Rooms, models.BookedRoom{RoomID: id, CheckIn: r.CheckIn, CheckOut: r.CheckOut, Price: 100})
		b.TotalAmount += 100 * int64(r.Nights())
	}
	return b
}
