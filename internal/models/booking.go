package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

// bookingTransitions lists every allowed status change.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled, BookingExpired},
	BookingConfirmed: {BookingCancelled},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// HoldsInventory reports whether bookings in status s occupy their rooms.
func (s BookingStatus) HoldsInventory() bool {
	return s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Booking struct {
	ID           int64         `json:"id" db:"id"`
	UserID       int64         `json:"user_id" db:"user_id"`
	CheckIn      Date          `json:"checkin" db:"checkin"`
	CheckOut     Date          `json:"checkout" db:"checkout"`
	NumGuests    int           `json:"num_guests" db:"num_guests"`
	Status       BookingStatus `json:"status" db:"status"`
	ExpiresAt    *time.Time    `json:"expires_at" db:"expires_at"`
	HoldToken    string        `json:"-" db:"hold_token"`
	ContactEmail string        `json:"contact_email,omitempty" db:"contact_email"`
	TotalAmount  int64         `json:"total_amount" db:"total_amount"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	Rooms        []BookedRoom  `json:"rooms" db:"-"`
	PropertyIDs  []int64       `json:"property_ids,omitempty" db:"-"`
}

func (b *Booking) Range() DateRange {
	return DateRange{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

func (b *Booking) RoomIDs() []int64 {
	ids := make([]int64, 0, len(b.Rooms))
	for _, r := range b.Rooms {
		ids = append(ids, r.RoomID)
	}
	return ids
}

// IsOverdue reports whether a pending hold has passed its deadline.
func (b *Booking) IsOverdue(now time.Time) bool {
	return b.Status == BookingPending && b.ExpiresAt != nil && b.ExpiresAt.Before(now)
}

// BookedRoom is one room committed to a booking for [CheckIn, CheckOut).
type BookedRoom struct {
	ID        int64 `json:"id" db:"id"`
	BookingID int64 `json:"booking_id" db:"booking_id"`
	RoomID    int64 `json:"room_id" db:"room_id"`
	CheckIn   Date  `json:"checkin" db:"checkin"`
	CheckOut  Date  `json:"checkout" db:"checkout"`
	Price     int64 `json:"price" db:"price"`
}

// BookingPatch is a status change applied by the store. ExpiresAt is written
// as given, so callers leaving a pending state pass nil to clear it.
type BookingPatch struct {
	From         BookingStatus
	To           BookingStatus
	ExpiresAt    *time.Time
	ReleaseRooms bool
	UpdatedAt    time.Time
}

// BookingHold is returned to the caller after a successful create.
type BookingHold struct {
	BookingID   int64         `json:"booking_id"`
	Rooms       []BookedRoom  `json:"rooms"`
	TotalAmount int64         `json:"total_amount"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Status      BookingStatus `json:"status"`
}
