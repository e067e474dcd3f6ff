package bookingapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the booking API.
const (
	CodeSlotUnavailable   = "SLOT_UNAVAILABLE"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
)

var (
	// ErrTransport wraps network level failures (DNS, connect, timeout).
	ErrTransport = errors.New("bookingapi: transport failure")

	// ErrInvalidResponse is returned when a 2xx body cannot be understood.
	ErrInvalidResponse = errors.New("bookingapi: invalid response")
)

// APIError is a failure reported by the API itself.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bookingapi: %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("bookingapi: %s (status %d)", e.Code, e.Status)
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return CodeRateLimitExceeded
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	default:
		return fmt.Sprintf("HTTP_%d", status)
	}
}
