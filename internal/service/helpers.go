package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"hotelbook/internal/domain"
	"hotelbook/internal/models"

	"github.com/rs/zerolog"
)

// normalizeRoomIDs sorts ascending and drops duplicates. Locks are always
// taken in this order so two multi-room attempts cannot wait on each other.
func normalizeRoomIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

func validateStay(stay models.DateRange) error {
	if err := stay.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDates, err)
	}
	return nil
}

// lockKeys lists the lock keys covering a stored booking, in lock order.
func lockKeys(b *models.Booking) []domain.RoomLockKey {
	keys := make([]domain.RoomLockKey, 0, len(b.Rooms))
	for _, r := range b.Rooms {
		keys = append(keys, domain.RoomLockKey{RoomID: r.RoomID, Range: models.NewDateRange(r.CheckIn, r.CheckOut)})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].RoomID < keys[j].RoomID })
	return keys
}

// releaseLocks frees every key owned by owner. It keeps going after a
// failure; an unreleased lock still lapses with its TTL.
func releaseLocks(ctx context.Context, locker domain.RoomLocker, keys []domain.RoomLockKey, owner string, logger *zerolog.Logger) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, key := range keys {
		if err := locker.Release(ctx, key, owner); err != nil {
			logger.Warn().Err(err).Int64("room_id", key.RoomID).Str("range", key.Range.String()).Msg("failed to release room lock")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// authorizer decides whether an actor may act on a booking: the owner, staff
// of a property owning one of its rooms, or a super admin.
type authorizer struct {
	repo domain.BookingRepository
}

func (a authorizer) permits(ctx context.Context, b *models.Booking, actor models.Actor) (bool, error) {
	if actor.IsSuperAdmin() || (actor.UserID != 0 && actor.UserID == b.UserID) {
		return true, nil
	}
	if actor.Role != models.RoleStaff {
		return false, nil
	}
	// PropertyIDs outlive released rooms; rooms cover bookings built in memory.
	for _, id := range b.PropertyIDs {
		if actor.IsStaffOf(id) {
			return true, nil
		}
	}
	if len(b.Rooms) == 0 {
		return false, nil
	}
	details, err := a.repo.GetRoomDetails(ctx, b.RoomIDs())
	if err != nil {
		return false, fmt.Errorf("load rooms for authorization: %w", err)
	}
	for _, d := range details {
		if actor.IsStaffOf(d.PropertyID) {
			return true, nil
		}
	}
	return false, nil
}
