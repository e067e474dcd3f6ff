package appointments

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/bookingapi"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes lookup and cancellation over HTTP.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

type lookupRequest struct {
	ReferenceID string `json:"reference_id"`
	Email       string `json:"email"`
}

type cancelRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type appointmentResponse struct {
	Appointment    *bookingapi.Appointment `json:"appointment"`
	CanBeCancelled bool                    `json:"can_be_cancelled"`
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/lookup", h.Lookup)
	r.Post("/{referenceID}/cancel", h.Cancel)
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	appt, err := h.svc.Lookup(r.Context(), clientKey(r), req.ReferenceID, req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse{Appointment: appt, CanBeCancelled: appt.CanBeCancelled()})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	appt, err := h.svc.Cancel(r.Context(), clientKey(r), chi.URLParam(r, "referenceID"), req.Email, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse{Appointment: appt, CanBeCancelled: appt.CanBeCancelled()})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_REFERENCE", "Please enter a valid reference number.")
	case errors.Is(err, ErrInvalidEmail):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_EMAIL", "Please enter a valid email address.")
	case errors.Is(err, ErrReasonTooLong):
		writeError(w, http.StatusUnprocessableEntity, "REASON_TOO_LONG", "Please shorten the cancellation reason.")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, bookingapi.CodeNotFound, "We couldn't find an appointment with those details.")
	case errors.Is(err, ErrNotCancellable):
		writeError(w, http.StatusConflict, "NOT_CANCELLABLE", "This appointment can no longer be cancelled.")
	case errors.Is(err, ErrTooManyLookups), bookingapi.HasCode(err, bookingapi.CodeRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, bookingapi.CodeRateLimitExceeded, "Too many requests. Please wait a moment and try again.")
	default:
		h.logger.Error("appointment request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Something went wrong. Please try again.")
	}
}

// clientKey identifies the caller. RemoteAddr has already been rewritten by
// the RealIP middleware when the service runs behind a proxy.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
