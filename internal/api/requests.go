package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"hotelbook/internal/domain"
	"hotelbook/internal/models"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

type createBookingRequest struct {
	RoomIDs      []int64 `json:"room_ids" validate:"required,min=1,dive,gt=0"`
	CheckIn      string  `json:"checkin" validate:"required,datetime=2006-01-02"`
	CheckOut     string  `json:"checkout" validate:"required,datetime=2006-01-02"`
	NumGuests    int     `json:"num_guests" validate:"gte=1"`
	ContactEmail string  `json:"contact_email" validate:"omitempty,email"`
}

type availabilityQuery struct {
	RoomIDs  []int64 `validate:"required,min=1,dive,gt=0"`
	CheckIn  string  `validate:"required,datetime=2006-01-02"`
	CheckOut string  `validate:"required,datetime=2006-01-02"`
}

type rangeQuery struct {
	From string `validate:"required,datetime=2006-01-02"`
	To   string `validate:"required,datetime=2006-01-02"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type confirmResponse struct {
	Payment     *models.Payment `json:"payment"`
	Booking     *models.Booking `json:"booking"`
	AlreadyPaid bool            `json:"already_paid"`
}

type availabilityResponse struct {
	CheckIn          string  `json:"checkin"`
	CheckOut         string  `json:"checkout"`
	AvailableRoomIDs []int64 `json:"available_room_ids"`
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", domain.ErrInvalidInput)
	}
	return nil
}

// validateStruct turns validator failures into ErrInvalidInput naming the fields.
func (s *HTTPServer) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%s: %w", strings.Join(fields, "; "), domain.ErrInvalidInput)
}

func parseStay(checkIn, checkOut string) (models.DateRange, error) {
	in, err := models.ParseDate(checkIn)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("checkin: %w", domain.ErrInvalidInput)
	}
	out, err := models.ParseDate(checkOut)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("checkout: %w", domain.ErrInvalidInput)
	}
	return models.NewDateRange(in, out), nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id %q: %w", raw, domain.ErrInvalidInput)
	}
	return id, nil
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
