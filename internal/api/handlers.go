package api

import (
	"fmt"
	"net/http"

	"hotelbook/internal/domain"
	"hotelbook/internal/models"

	"github.com/julienschmidt/httprouter"
)

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params, p *Principal) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.validateStruct(req); err != nil {
		s.writeError(w, r, err)
		return
	}
	stay, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	email := req.ContactEmail
	if email == "" {
		email = p.Email
	}

	hold, err := s.svc.Creator.CreateBooking(r.Context(), domain.CreateBookingRequest{
		UserID:       p.Actor.UserID,
		RoomIDs:      req.RoomIDs,
		Stay:         stay,
		NumGuests:    req.NumGuests,
		ContactEmail: email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

func (s *HTTPServer) getBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params, p *Principal) {
	id, err := parseID(ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.svc.Bookings.CanView(r.Context(), booking, p.Actor) {
		s.writeError(w, r, domain.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params, p *Principal) {
	bookings, err := s.svc.Bookings.GetUserBookings(r.Context(), p.Actor.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) cancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params, p *Principal) {
	id, err := parseID(ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.CancelBooking(r.Context(), id, p.Actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) createPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params, p *Principal) {
	id, err := parseID(ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payment, err := s.svc.Payments.CreatePayment(r.Context(), id, p.Actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// confirmPayment is the gateway callback. Duplicate deliveries answer 200
// with already_paid set.
func (s *HTTPServer) confirmPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := parseID(ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.Payments.ConfirmPayment(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Payment: res.Payment, Booking: res.Booking, AlreadyPaid: res.AlreadyPaid})
}

func (s *HTTPServer) availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ *Principal) {
	query := r.URL.Query()
	roomIDs, err := parseIDList(query.Get("room_ids"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := availabilityQuery{RoomIDs: roomIDs, CheckIn: query.Get("checkin"), CheckOut: query.Get("checkout")}
	if err := s.validateStruct(q); err != nil {
		s.writeError(w, r, err)
		return
	}
	stay, err := parseStay(q.CheckIn, q.CheckOut)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	free, err := s.svc.Availability.AvailableRooms(r.Context(), roomIDs, stay)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if free == nil {
		free = []int64{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{CheckIn: q.CheckIn, CheckOut: q.CheckOut, AvailableRoomIDs: free})
}

// exportBookings streams an xlsx of bookings overlapping [from, to). Staff
// only get bookings of their own properties.
func (s *HTTPServer) exportBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params, p *Principal) {
	if p.Actor.Role != models.RoleStaff && !p.Actor.IsSuperAdmin() {
		s.writeError(w, r, domain.ErrForbidden)
		return
	}
	if s.svc.Exporter == nil {
		writeMessage(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	q := rangeQuery{From: r.URL.Query().Get("from"), To: r.URL.Query().Get("to")}
	if err := s.validateStruct(q); err != nil {
		s.writeError(w, r, err)
		return
	}
	stay, err := parseStay(q.From, q.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := stay.Validate(); err != nil {
		s.writeError(w, r, fmt.Errorf("%v: %w", err, domain.ErrInvalidDates))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=bookings_%s_to_%s.xlsx", q.From, q.To))
	if err := s.svc.Exporter.Write(r.Context(), w, stay, p.Actor); err != nil {
		// the workbook is written in one piece, so a failure here usually
		// happens before any bytes went out
		s.writeError(w, r, err)
	}
}

func (s *HTTPServer) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) readyz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := runChecks(r.Context(), s.svc.Checks); err != nil {
		s.log.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
