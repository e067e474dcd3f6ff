package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/bookingapi"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/wizard"
)

// Error codes for failures that are not stored on the session.
const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeInvalidInput    = "INVALID_INPUT"
	codeSessionNotFound = "SESSION_NOT_FOUND"
	codeStepIncomplete  = "STEP_INCOMPLETE"
	codeBookingComplete = "BOOKING_COMPLETE"
	codeNotReady        = "NOT_READY"
	codeInFlight        = "SUBMISSION_IN_PROGRESS"
	codeDateUnavailable = "DATE_UNAVAILABLE"
	codeTimeUnavailable = "TIME_UNAVAILABLE"
	codeNoSlots         = "NO_SLOTS_AVAILABLE"
	codeStale           = "STALE_REQUEST"
	codeUpstream        = "UPSTREAM_ERROR"
	codeInternal        = "INTERNAL_ERROR"
)

// retryAfterSeconds is the hint sent with transient upstream failures.
const retryAfterSeconds = "5"

type failure struct {
	status  int
	code    string
	message string
}

func classifyError(err error) failure {
	var vErr *wizard.ValidationError
	switch {
	case errors.Is(err, errBadRequest):
		return failure{http.StatusBadRequest, codeInvalidRequest, "The request could not be read."}
	case errors.Is(err, sessions.ErrNotFound):
		return failure{http.StatusNotFound, codeSessionNotFound, "Your booking session has expired. Please start again."}
	case errors.As(err, &vErr):
		return failure{http.StatusUnprocessableEntity, wizard.CodeValidation, wizard.MessageFixFields}
	case errors.Is(err, wizard.ErrInvalidPatientType),
		errors.Is(err, wizard.ErrInvalidModality),
		errors.Is(err, wizard.ErrModalityNotOffered),
		errors.Is(err, wizard.ErrInvalidDate),
		errors.Is(err, wizard.ErrInvalidTime),
		errors.Is(err, wizard.ErrInvalidTimezone),
		errors.Is(err, wizard.ErrInvalidStep):
		return failure{http.StatusUnprocessableEntity, codeInvalidInput, "Please check your selection and try again."}
	case errors.Is(err, wizard.ErrGateClosed):
		return failure{http.StatusConflict, codeStepIncomplete, "Please complete this step before continuing."}
	case errors.Is(err, wizard.ErrTerminalStep):
		return failure{http.StatusConflict, codeBookingComplete, "This booking is already complete."}
	case errors.Is(err, wizard.ErrNotReady):
		return failure{http.StatusConflict, codeNotReady, "Please complete the previous steps first."}
	case errors.Is(err, wizard.ErrSubmissionInFlight):
		return failure{http.StatusConflict, codeInFlight, "Your booking is being submitted."}
	case errors.Is(err, wizard.ErrSlotUnavailable):
		return failure{http.StatusConflict, wizard.CodeSlotUnavailable, wizard.MessageSlotUnavailable}
	case errors.Is(err, wizard.ErrDateUnavailable):
		return failure{http.StatusConflict, codeDateUnavailable, "That date is not available. Please pick another date."}
	case errors.Is(err, wizard.ErrTimeUnavailable):
		return failure{http.StatusConflict, codeTimeUnavailable, "That time is not available. Please pick another time."}
	case errors.Is(err, wizard.ErrNoSlotsAvailable):
		return failure{http.StatusConflict, codeNoSlots, wizard.MessageNoSlots}
	case errors.Is(err, wizard.ErrStaleSlots), errors.Is(err, wizard.ErrStaleSubmission):
		return failure{http.StatusConflict, codeStale, "Your selection changed. Please try again."}
	case errors.Is(err, wizard.ErrRateLimited):
		return failure{http.StatusTooManyRequests, wizard.CodeRateLimited, wizard.MessageRateLimited}
	case errors.Is(err, wizard.ErrSubmissionRejected), errors.Is(err, wizard.ErrSubmissionFailed):
		return failure{http.StatusBadGateway, wizard.CodeSubmissionFailed, wizard.MessageGenericFailure}
	case isUpstream(err):
		return failure{http.StatusBadGateway, codeUpstream, "We couldn't reach the booking service. Please try again."}
	default:
		return failure{http.StatusInternalServerError, codeInternal, wizard.MessageGenericFailure}
	}
}

func isUpstream(err error) bool {
	var apiErr *bookingapi.APIError
	return errors.As(err, &apiErr) ||
		errors.Is(err, bookingapi.ErrTransport) ||
		errors.Is(err, bookingapi.ErrInvalidResponse)
}

// fail writes err as JSON. Submission failures carry the message and code
// recorded on the session, which may come from the booking API.
func (h *BookingHandler) fail(w http.ResponseWriter, r *http.Request, sess wizard.Session, err error) {
	f := classifyError(err)
	body := errorResponse{Error: f.message, Code: f.code}

	var vErr *wizard.ValidationError
	if errors.As(err, &vErr) {
		body.FieldErrors = vErr.Fields
	}
	submitFailure := errors.Is(err, wizard.ErrSlotUnavailable) ||
		errors.Is(err, wizard.ErrRateLimited) ||
		errors.Is(err, wizard.ErrSubmissionFailed) ||
		errors.Is(err, wizard.ErrSubmissionRejected)
	if submitFailure && sess.Error != "" {
		body.Error = sess.Error
		if sess.ErrorCode != "" {
			body.Code = sess.ErrorCode
		}
	}
	if f.code == codeUpstream && bookingapi.IsTransient(err) {
		body.Retryable = true
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if sess.ID != "" {
		v := h.view(sess, wizard.Transition{})
		body.View = &v
		h.setCookie(w, sess.ID)
	}

	if f.status >= http.StatusInternalServerError {
		h.logger.Error("booking request failed",
			"path", r.URL.Path,
			"session_id", sess.ID,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	} else {
		h.logger.Debug("booking request refused",
			"path", r.URL.Path,
			"session_id", sess.ID,
			"code", body.Code,
		)
	}
	writeJSON(w, f.status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
