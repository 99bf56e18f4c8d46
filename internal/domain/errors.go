package domain

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidDates      = errors.New("invalid dates")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCapacityExceeded  = errors.New("guest count exceeds room capacity")
	ErrInactiveResource  = errors.New("room, room type or property is not active")
	ErrLockContended     = errors.New("room is currently held by another request, try again")
	ErrRoomUnavailable   = errors.New("room is not available for the selected dates")
	ErrNotFound          = errors.New("not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrForbidden         = errors.New("operation not permitted")
	ErrInvalidTransition = errors.New("booking status does not allow this operation")
	ErrDataIntegrity     = errors.New("data integrity violation")
	ErrRateLimited       = errors.New("too many booking attempts, slow down")
	ErrStoreUnavailable  = errors.New("backing store unavailable")
)

// ErrorKind groups errors by how the caller should react to them.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindContention ErrorKind = "contention"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindRateLimit  ErrorKind = "rate_limited"
	KindInternal   ErrorKind = "internal"
)

// Kind classifies err. Unknown errors are treated as transient infrastructure failures.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidDates),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrInactiveResource):
		return KindValidation
	case errors.Is(err, ErrLockContended):
		return KindContention
	case errors.Is(err, ErrRoomUnavailable), errors.Is(err, ErrInvalidTransition):
		return KindConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPaymentNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrRateLimited):
		return KindRateLimit
	default:
		return KindInternal
	}
}

// HTTPStatus maps an error kind onto a response code.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case KindValidation:
		if errors.Is(err, ErrInvalidInput) {
			return http.StatusBadRequest
		}
		return http.StatusUnprocessableEntity
	case KindContention, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

// PublicMessage returns the reason shown to API clients. Internal failures get
// a generic retryable message so infrastructure details do not leak.
func PublicMessage(err error) string {
	if Kind(err) == KindInternal {
		return "temporarily unavailable, retry later"
	}
	return err.Error()
}
