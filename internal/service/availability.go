package service

import (
	"context"
	"fmt"

	"hotelbook/internal/domain"
	"hotelbook/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService answers "is this room free for [checkin, checkout)".
// The answer is only authoritative while the caller holds the room lock.
type AvailabilityService struct {
	repo   domain.BookingRepository
	logger *zerolog.Logger
}

func NewAvailabilityService(repo domain.BookingRepository, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{repo: repo, logger: logger}
}

func (s *AvailabilityService) IsAvailable(ctx context.Context, roomID int64, stay models.DateRange) (bool, error) {
	free, err := s.AvailableRooms(ctx, []int64{roomID}, stay)
	if err != nil {
		return false, err
	}
	return len(free) == 1, nil
}

// AvailableRooms returns the requested rooms, ascending, that exist, are
// bookable and have no overlapping reservation.
func (s *AvailabilityService) AvailableRooms(ctx context.Context, roomIDs []int64, stay models.DateRange) ([]int64, error) {
	if err := validateStay(stay); err != nil {
		return nil, err
	}
	ids := normalizeRoomIDs(roomIDs)
	if len(ids) == 0 {
		return []int64{}, nil
	}

	details, err := s.repo.GetRoomDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	candidates := make([]int64, 0, len(details))
	for _, d := range details {
		if d.Bookable() {
			candidates = append(candidates, d.RoomID)
		}
	}
	if len(candidates) == 0 {
		return []int64{}, nil
	}

	conflicting, err := s.repo.FindConflictingRooms(ctx, candidates, stay)
	if err != nil {
		return nil, err
	}
	taken := make(map[int64]struct{}, len(conflicting))
	for _, id := range conflicting {
		taken[id] = struct{}{}
	}

	free := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := taken[id]; !ok {
			free = append(free, id)
		}
	}
	return free, nil
}
