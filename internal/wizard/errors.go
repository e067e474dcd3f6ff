package wizard

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidPatientType = errors.New("wizard: invalid patient type")
	ErrInvalidModality    = errors.New("wizard: invalid modality")
	ErrModalityNotOffered = errors.New("wizard: modality not offered for patient type")
	ErrInvalidDate        = errors.New("wizard: invalid date")
	ErrInvalidTime        = errors.New("wizard: invalid time")
	ErrInvalidTimezone    = errors.New("wizard: invalid timezone")
	ErrInvalidStep        = errors.New("wizard: invalid step")
	ErrGateClosed         = errors.New("wizard: current step is incomplete")
	ErrTerminalStep       = errors.New("wizard: booking already completed")

	ErrNotReady           = errors.New("wizard: session is not ready to submit")
	ErrValidation         = errors.New("wizard: validation failed")
	ErrSubmissionInFlight = errors.New("wizard: submission already in progress")
	ErrSubmissionRejected = errors.New("wizard: submission rejected")
	ErrSlotUnavailable    = errors.New("wizard: time slot no longer available")
	ErrRateLimited        = errors.New("wizard: too many booking attempts")
	ErrSubmissionFailed   = errors.New("wizard: booking submission failed")
	ErrStaleSubmission    = errors.New("wizard: session changed while submitting")

	ErrDateUnavailable  = errors.New("wizard: date is not available")
	ErrTimeUnavailable  = errors.New("wizard: time is not available")
	ErrNoSlotsAvailable = errors.New("wizard: no time slots available")
	ErrStaleSlots       = errors.New("wizard: availability response is stale")
)

// User-facing messages.
const (
	MessageGenericFailure  = "We couldn't complete your booking. Please try again."
	MessageSlotUnavailable = "This time slot is no longer available. Please go back and choose another time."
	MessageRateLimited     = "Too many booking attempts. Please wait a few minutes and try again."
	MessageFixFields       = "Please correct the highlighted fields."
	MessageNoSlots         = "No time slots are available on this date. Please pick another date."
)

// Error codes stored on the session alongside the message.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeSlotUnavailable  = "SLOT_UNAVAILABLE"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeSubmissionFailed = "SUBMISSION_FAILED"
)

// FieldErrors maps a details field name to its message.
type FieldErrors map[string]string

// Fields returns the failing field names in sorted order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for k := range fe {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidationError carries per-field messages from local validation.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return "wizard: invalid fields: " + strings.Join(e.Fields.Fields(), ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
