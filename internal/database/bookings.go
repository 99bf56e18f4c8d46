package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hotelbook/internal/models"

	"github.com/jmoiron/sqlx"
)

const bookingColumns = `id, user_id, checkin, checkout, num_guests, status, expires_at,
	hold_token, contact_email, total_amount, created_at, updated_at`

// overlapPredicate is the half-open interval test: existing.checkin < candidate.checkout
// AND existing.checkout > candidate.checkin.
const overlapPredicate = `checkin < ? AND checkout > ?`

// FindConflictingRooms returns the subset of roomIDs that already have a
// booked room overlapping stay.
func (db *DB) FindConflictingRooms(ctx context.Context, roomIDs []int64, stay models.DateRange) ([]int64, error) {
	return findConflictingRooms(ctx, db.DB, roomIDs, stay)
}

type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func findConflictingRooms(ctx context.Context, q queryer, roomIDs []int64, stay models.DateRange) ([]int64, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT room_id FROM booked_rooms
		WHERE room_id IN (?) AND `+overlapPredicate+` ORDER BY room_id`,
		roomIDs, stay.CheckOut, stay.CheckIn)
	if err != nil {
		return nil, fmt.Errorf("failed to build overlap query: %w", err)
	}

	var conflicting []int64
	if err := sqlx.SelectContext(ctx, q, &conflicting, q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to check availability: %w", err)
	}
	return conflicting, nil
}

// CreateHold inserts a pending booking and its booked rooms in one
// transaction. Overlap is re-checked inside the transaction; on postgres the
// room rows are locked first so overlapping holds with different date keys
// still serialize.
func (db *DB) CreateHold(ctx context.Context, booking *models.Booking) error {
	roomIDs := booking.RoomIDs()
	if len(roomIDs) == 0 {
		return errors.New("booking has no rooms")
	}

	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if db.driver == DriverPostgres {
			if err := lockRoomRows(ctx, tx, roomIDs); err != nil {
				return err
			}
		}

		conflicting, err := findConflictingRooms(ctx, tx, roomIDs, booking.Range())
		if err != nil {
			return fmt.Errorf("failed to check availability in tx: %w", err)
		}
		if len(conflicting) > 0 {
			return fmt.Errorf("rooms %v: %w", conflicting, ErrNotAvailable)
		}

		now := time.Now().UTC()
		err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO bookings (
				user_id, checkin, checkout, num_guests, status, expires_at,
				hold_token, contact_email, total_amount, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			booking.UserID, booking.CheckIn, booking.CheckOut, booking.NumGuests, booking.Status,
			booking.ExpiresAt, booking.HoldToken, booking.ContactEmail, booking.TotalAmount, now, now,
		).Scan(&booking.ID)
		if err != nil {
			return fmt.Errorf("failed to insert booking in tx: %w", err)
		}
		booking.CreatedAt = now
		booking.UpdatedAt = now

		for i := range booking.Rooms {
			room := &booking.Rooms[i]
			room.BookingID = booking.ID
			err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO booked_rooms
					(booking_id, room_id, checkin, checkout, price)
				VALUES (?, ?, ?, ?, ?) RETURNING id`),
				room.BookingID, room.RoomID, room.CheckIn, room.CheckOut, room.Price,
			).Scan(&room.ID)
			if err != nil {
				return fmt.Errorf("failed to insert booked room %d in tx: %w", room.RoomID, err)
			}
		}

		query, args, err := sqlx.In(`INSERT INTO booking_properties (booking_id, property_id)
			SELECT DISTINCT ?, rt.property_id FROM rooms r
			JOIN room_types rt ON rt.id = r.room_type_id
			WHERE r.id IN (?)`, booking.ID, roomIDs)
		if err != nil {
			return fmt.Errorf("failed to build booking properties insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to record booking properties in tx: %w", err)
		}
		booking.PropertyIDs = nil
		if err := tx.SelectContext(ctx, &booking.PropertyIDs, tx.Rebind(`SELECT property_id FROM booking_properties
			WHERE booking_id = ? ORDER BY property_id`), booking.ID); err != nil {
			return fmt.Errorf("failed to read booking properties in tx: %w", err)
		}
		return nil
	})
}

func lockRoomRows(ctx context.Context, tx *sqlx.Tx, roomIDs []int64) error {
	query, args, err := sqlx.In(`SELECT id FROM rooms WHERE id IN (?) ORDER BY id FOR UPDATE`, roomIDs)
	if err != nil {
		return fmt.Errorf("failed to build room lock query: %w", err)
	}
	var locked []int64
	if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to lock rooms: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := db.GetContext(ctx, &booking, db.Rebind(`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%d: %w", id, ErrBookingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	if err := db.attachRooms(ctx, []*models.Booking{&booking}); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (db *DB) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return db.selectBookings(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// GetBookingsOverlapping returns bookings of any status whose stay overlaps stay.
func (db *DB) GetBookingsOverlapping(ctx context.Context, stay models.DateRange) ([]*models.Booking, error) {
	return db.selectBookings(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE `+overlapPredicate+` ORDER BY checkin, id`, stay.CheckOut, stay.CheckIn)
}

// GetPropertyBookingsOverlapping is GetBookingsOverlapping limited to bookings
// that touched one of propertyIDs. Booked rooms of other properties are left
// out of the result.
func (db *DB) GetPropertyBookingsOverlapping(ctx context.Context, stay models.DateRange, propertyIDs []int64) ([]*models.Booking, error) {
	if len(propertyIDs) == 0 {
		return []*models.Booking{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+bookingColumns+` FROM bookings
		WHERE `+overlapPredicate+`
		AND id IN (SELECT booking_id FROM booking_properties WHERE property_id IN (?))
		ORDER BY checkin, id`, stay.CheckOut, stay.CheckIn, propertyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build property bookings query: %w", err)
	}
	bookings, err := db.selectBookings(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var roomIDs []int64
	for _, b := range bookings {
		roomIDs = append(roomIDs, b.RoomIDs()...)
	}
	details, err := db.GetRoomDetails(ctx, roomIDs)
	if err != nil {
		return nil, err
	}
	allowed := make(map[int64]bool, len(propertyIDs))
	for _, id := range propertyIDs {
		allowed[id] = true
	}
	visible := make(map[int64]bool, len(details))
	for _, d := range details {
		visible[d.RoomID] = allowed[d.PropertyID]
	}
	for _, b := range bookings {
		rooms := b.Rooms[:0]
		for _, r := range b.Rooms {
			if visible[r.RoomID] {
				rooms = append(rooms, r)
			}
		}
		b.Rooms = rooms
	}
	return bookings, nil
}

// GetExpiredHolds returns pending bookings whose hold deadline is before now,
// oldest first, without the bookings listed in skip.
func (db *DB) GetExpiredHolds(ctx context.Context, now time.Time, limit int, skip ...int64) ([]*models.Booking, error) {
	if len(skip) == 0 {
		return db.selectBookings(ctx, `SELECT `+bookingColumns+` FROM bookings
			WHERE status = ? AND expires_at < ? ORDER BY expires_at, id LIMIT ?`,
			models.BookingPending, now.UTC(), limit)
	}
	query, args, err := sqlx.In(`SELECT `+bookingColumns+` FROM bookings
		WHERE status = ? AND expires_at < ? AND id NOT IN (?) ORDER BY expires_at, id LIMIT ?`,
		models.BookingPending, now.UTC(), skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build expired holds query: %w", err)
	}
	return db.selectBookings(ctx, query, args...)
}

func (db *DB) selectBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	var bookings []*models.Booking
	if err := db.SelectContext(ctx, &bookings, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to select bookings: %w", err)
	}
	if err := db.attachRooms(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (db *DB) attachRooms(ctx context.Context, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(bookings))
	byID := make(map[int64]*models.Booking, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
		byID[b.ID] = b
		b.Rooms = []models.BookedRoom{}
		b.PropertyIDs = nil
	}

	query, args, err := sqlx.In(`SELECT id, booking_id, room_id, checkin, checkout, price
		FROM booked_rooms WHERE booking_id IN (?) ORDER BY booking_id, room_id`, ids)
	if err != nil {
		return fmt.Errorf("failed to build booked rooms query: %w", err)
	}

	var rooms []models.BookedRoom
	if err := db.SelectContext(ctx, &rooms, db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to get booked rooms: %w", err)
	}
	for _, r := range rooms {
		if b, ok := byID[r.BookingID]; ok {
			b.Rooms = append(b.Rooms, r)
		}
	}

	query, args, err = sqlx.In(`SELECT booking_id, property_id FROM booking_properties
		WHERE booking_id IN (?) ORDER BY booking_id, property_id`, ids)
	if err != nil {
		return fmt.Errorf("failed to build booking properties query: %w", err)
	}
	var links []struct {
		BookingID  int64 `db:"booking_id"`
		PropertyID int64 `db:"property_id"`
	}
	if err := db.SelectContext(ctx, &links, db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to get booking properties: %w", err)
	}
	for _, l := range links {
		if b, ok := byID[l.BookingID]; ok {
			b.PropertyIDs = append(b.PropertyIDs, l.PropertyID)
		}
	}
	return nil
}

// ApplyBookingPatch moves a booking from patch.From to patch.To. The update is
// conditional on the current status, so a concurrent transition makes it fail
// with ErrConcurrentModification instead of overwriting. ReleaseRooms deletes
// the booked rooms in the same transaction.
func (db *DB) ApplyBookingPatch(ctx context.Context, id int64, patch models.BookingPatch) error {
	if !patch.From.CanTransition(patch.To) {
		return fmt.Errorf("transition %s -> %s: %w", patch.From, patch.To, ErrConcurrentModification)
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE bookings
			SET status = ?, expires_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`),
			patch.To, patch.ExpiresAt, updatedAt.UTC(), id, patch.From)
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if rows == 0 {
			return ErrConcurrentModification
		}

		if patch.ReleaseRooms {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM booked_rooms WHERE booking_id = ?`), id); err != nil {
				return fmt.Errorf("failed to release booked rooms: %w", err)
			}
		}
		return nil
	})
}
