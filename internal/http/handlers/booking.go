package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/wizard"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// SessionCookie carries the booking session id.
const SessionCookie = "booking_session"

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("invalid request body")

// BookingHandlerConfig wires a BookingHandler.
type BookingHandlerConfig struct {
	Sessions      *sessions.Manager
	Submitter     *wizard.Submitter
	Schedule      *wizard.Schedule
	Metrics       *metrics.BookingMetrics
	Logger        *logging.Logger
	SubmitTimeout time.Duration
	SessionTTL    time.Duration
	SecureCookie  bool
	Tokens        *sessions.TokenSigner
}

// BookingHandler serves the booking wizard.
type BookingHandler struct {
	sessions      *sessions.Manager
	submitter     *wizard.Submitter
	schedule      *wizard.Schedule
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
	submitTimeout time.Duration
	sessionTTL    time.Duration
	secureCookie  bool
	tokens        *sessions.TokenSigner
}

func NewBookingHandler(cfg BookingHandlerConfig) *BookingHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = wizard.DefaultSubmitTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = sessions.DefaultTTL
	}
	return &BookingHandler{
		sessions:      cfg.Sessions,
		submitter:     cfg.Submitter,
		schedule:      cfg.Schedule,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		submitTimeout: cfg.SubmitTimeout,
		sessionTTL:    cfg.SessionTTL,
		secureCookie:  cfg.SecureCookie,
		tokens:        cfg.Tokens,
	}
}

// Routes mounts the wizard endpoints on r.
func (h *BookingHandler) Routes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Post("/", h.Mount)
		r.Get("/", h.Current)
		r.Delete("/", h.Unmount)

		r.Put("/service", h.SetService)
		r.Put("/patient-type", h.SetPatientType)
		r.Put("/modality", h.SetModality)
		r.Put("/datetime", h.SetDateTime)
		r.Put("/details", h.SetDetails)
		r.Put("/reason", h.SetReason)

		r.Post("/next", h.Next)
		r.Post("/prev", h.Prev)
		r.Post("/step", h.GoToStep)
		r.Post("/submit", h.Submit)
	})
	r.Route("/availability", func(r chi.Router) {
		r.Get("/dates", h.Dates)
		r.Get("/slots", h.Slots)
		r.Post("/refresh", h.Refresh)
		r.Put("/date", h.SelectDate)
		r.Put("/time", h.SelectTime)
	})
}

type mountRequest struct {
	Timezone string `json:"timezone"`
}

type serviceRequest struct {
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name"`
}

type patientTypeRequest struct {
	PatientType string `json:"patient_type"`
}

type modalityRequest struct {
	Modality string `json:"modality"`
}

type dateTimeRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type stepRequest struct {
	Step int `json:"step"`
}

type submitRequest struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Reason  *string `json:"reason,omitempty"`
	Website string  `json:"website"`
}

type datesResponse struct {
	Dates []string    `json:"dates"`
	View  wizard.View `json:"view"`
}

type slotsResponse struct {
	Date  string      `json:"date"`
	Slots []string    `json:"slots"`
	View  wizard.View `json:"view"`
}

type errorResponse struct {
	Error       string             `json:"error"`
	Code        string             `json:"code"`
	FieldErrors wizard.FieldErrors `json:"field_errors,omitempty"`
	Retryable   bool               `json:"retryable,omitempty"`
	View        *wizard.View       `json:"view,omitempty"`
}

// Mount starts the wizard fresh. An existing session keeps its id.
func (h *BookingHandler) Mount(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, wizard.Session{}, err)
		return
	}

	if id := h.sessionID(r); id != "" {
		sess, err := h.sessions.Mount(r.Context(), id, func(st *wizard.Store) {
			if req.Timezone != "" {
				if err := st.SetTimezone(req.Timezone); err != nil {
					h.logger.Debug("ignoring visitor timezone", "timezone", req.Timezone, "error", err)
				}
			}
		})
		if err == nil {
			h.writeView(w, http.StatusOK, sess, wizard.Transition{})
			return
		}
		if !errors.Is(err, sessions.ErrNotFound) {
			h.fail(w, r, sess, err)
			return
		}
	}

	sess, err := h.sessions.Create(r.Context(), req.Timezone)
	if err != nil {
		h.fail(w, r, wizard.Session{}, err)
		return
	}
	h.logger.Info("booking session started", "session_id", sess.ID)
	h.writeView(w, http.StatusCreated, sess, wizard.Transition{})
}

func (h *BookingHandler) Current(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), h.sessionID(r))
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.writeView(w, http.StatusOK, sess, wizard.Transition{})
}

// Unmount is called when the visitor leaves the wizard. A completed booking
// is cleared so the next visit starts over.
func (h *BookingHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	var cleared bool
	sess, err := h.sessions.Update(r.Context(), h.sessionID(r), func(st *wizard.Store) error {
		cleared = st.Unmount()
		return nil
	})
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	if cleared {
		h.logger.Info("completed booking session reset", "session_id", sess.ID)
	}
	h.writeView(w, http.StatusOK, sess, wizard.Transition{})
}

func (h *BookingHandler) SetService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	h.mutate(w, r, &req, func(st *wizard.Store) error {
		return st.SetService(req.ServiceID, req.ServiceName)
	})
}

func (h *BookingHandler) SetPatientType(w http.ResponseWriter, r *http.Request) {
	var req patientTypeRequest
	h.mutate(w, r, &req, func(st *wizard.Store) error {
		return st.SetPatientType(wizard.PatientType(req.PatientType))
	})
}

func (h *BookingHandler) SetModality(w http.ResponseWriter, r *http.Request) {
	var req modalityRequest
	h.mutate(w, r, &req, func(st *wizard.Store) error {
		return st.SetModality(wizard.Modality(req.Modality))
	})
}

// SetDateTime sets date and time in one call. Both go through the same
// calendar checks as the availability endpoints; an empty time clears it.
func (h *BookingHandler) SetDateTime(w http.ResponseWriter, r *http.Request) {
	var req dateTimeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, wizard.Session{}, err)
		return
	}
	id := h.sessionID(r)
	sess, err := h.selectDate(r, id, req.Date)
	if err == nil {
		if req.Time != "" {
			sess, err = h.selectTime(r, id, req.Time)
		} else {
			sess, err = h.sessions.Update(r.Context(), id, func(st *wizard.Store) error {
				return st.SetDateTime(req.Date, "")
			})
		}
	}
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.writeView(w, http.StatusOK, sess, wizard.Transition{})
}

func (h *BookingHandler) SetDetails(w http.ResponseWriter, r *http.Request) {
	var req wizard.DetailsPatch
	h.mutate(w, r, &req, func(st *wizard.Store) error {
		return st.SetPatientDetails(req)
	})
}

func (h *BookingHandler) SetReason(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	h.mutate(w, r, &req, func(st *wizard.Store) error {
		return st.SetReason(req.Reason)
	})
}

func (h *BookingHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(st *wizard.Store) (wizard.Transition, error) {
		return st.NextStep()
	})
}

func (h *BookingHandler) Prev(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(st *wizard.Store) (wizard.Transition, error) {
		return st.PrevStep()
	})
}

func (h *BookingHandler) GoToStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, wizard.Session{}, err)
		return
	}
	h.navigate(w, r, func(st *wizard.Store) (wizard.Transition, error) {
		return st.SetStep(wizard.Step(req.Step))
	})
}

// Submit applies the details posted with the request and books the
// appointment. The website field is never shown to visitors.
func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, wizard.Session{}, err)
		return
	}

	sess, err := h.sessions.Submit(r.Context(), h.sessionID(r), h.submitter, h.submitTimeout, func(st *wizard.Store) error {
		if req.Name != nil || req.Email != nil || req.Phone != nil {
			if err := st.SetPatientDetails(wizard.DetailsPatch{Name: req.Name, Email: req.Email, Phone: req.Phone}); err != nil {
				return err
			}
		}
		if req.Reason != nil {
			if err := st.SetReason(*req.Reason); err != nil {
				return err
			}
		}
		return st.SetHoneypot(req.Website)
	})
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.metrics.ObserveTransition(int(sess.Step), 1)
	h.writeView(w, http.StatusOK, sess, wizard.Transition{From: wizard.StepDetails, To: sess.Step})
}

func (h *BookingHandler) Dates(w http.ResponseWriter, r *http.Request) {
	sess, dates, err := h.sessions.LoadDates(r.Context(), h.sessionID(r), h.schedule)
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.setCookie(w, sess.ID)
	writeJSON(w, http.StatusOK, datesResponse{Dates: dates, View: h.view(sess, wizard.Transition{})})
}

// Slots returns the start times for the selected date. A date query
// parameter selects that date first.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	id := h.sessionID(r)
	if date := r.URL.Query().Get("date"); date != "" {
		if sess, err := h.selectDate(r, id, date); err != nil {
			h.fail(w, r, sess, err)
			return
		}
	}
	sess, slots, err := h.sessions.LoadSlots(r.Context(), id, h.schedule, false)
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.setCookie(w, sess.ID)
	writeJSON(w, http.StatusOK, slotsResponse{Date: sess.SelectedDate, Slots: slots, View: h.view(sess, wizard.Transition{})})
}

func (h *BookingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sess, slots, err := h.sessions.LoadSlots(r.Context(), h.sessionID(r), h.schedule, true)
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.setCookie(w, sess.ID)
	writeJSON(w, http.StatusOK, slotsResponse{Date: sess.SelectedDate, Slots: slots, View: h.view(sess, wizard.Transition{})})
}

func (h *BookingHandler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req dateTimeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, wizard.Session{}, err)
		return
	}
	sess, err := h.selectDate(r, h.sessionID(r), req.Date)
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.writeView(w, http.StatusOK, sess, wizard.Transition{})
}

func (h *BookingHandler) SelectTime(w http.ResponseWriter, r *http.Request) {
	var req dateTimeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, wizard.Session{}, err)
		return
	}
	sess, err := h.selectTime(r, h.sessionID(r), req.Time)
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.writeView(w, http.StatusOK, sess, wizard.Transition{})
}

// selectDate picks date after checking it against the cached or freshly
// fetched dates. Reselecting the current date keeps the selected time.
func (h *BookingHandler) selectDate(r *http.Request, id, date string) (wizard.Session, error) {
	if err := h.schedule.CheckDate(date); err != nil {
		return wizard.Session{}, err
	}
	if sess, _, err := h.sessions.LoadDates(r.Context(), id, h.schedule); err != nil {
		return sess, err
	}
	return h.sessions.Update(r.Context(), id, func(st *wizard.Store) error {
		if st.Snapshot().SelectedDate == date {
			return nil
		}
		return h.schedule.SelectDate(st, date)
	})
}

// selectTime picks clock from the slots offered for the selected date.
func (h *BookingHandler) selectTime(r *http.Request, id, clock string) (wizard.Session, error) {
	if sess, _, err := h.sessions.LoadSlots(r.Context(), id, h.schedule, false); err != nil {
		return sess, err
	}
	return h.sessions.Update(r.Context(), id, func(st *wizard.Store) error {
		return h.schedule.SelectTime(st, clock)
	})
}

// mutate decodes req and applies fn to the visitor's session.
func (h *BookingHandler) mutate(w http.ResponseWriter, r *http.Request, req any, fn func(*wizard.Store) error) {
	if err := decodeBody(w, r, req); err != nil {
		h.fail(w, r, wizard.Session{}, err)
		return
	}
	sess, err := h.sessions.Update(r.Context(), h.sessionID(r), fn)
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.writeView(w, http.StatusOK, sess, wizard.Transition{})
}

func (h *BookingHandler) navigate(w http.ResponseWriter, r *http.Request, move func(*wizard.Store) (wizard.Transition, error)) {
	var t wizard.Transition
	sess, err := h.sessions.Update(r.Context(), h.sessionID(r), func(st *wizard.Store) error {
		var err error
		t, err = move(st)
		return err
	})
	if err != nil {
		h.fail(w, r, sess, err)
		return
	}
	h.metrics.ObserveTransition(int(t.To), t.Direction())
	h.writeView(w, http.StatusOK, sess, t)
}

func (h *BookingHandler) sessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	id, err := h.tokens.Verify(c.Value)
	if err != nil {
		return ""
	}
	return id
}

func (h *BookingHandler) setCookie(w http.ResponseWriter, id string) {
	if id == "" {
		return
	}
	value, err := h.tokens.Sign(id)
	if err != nil {
		h.logger.Error("failed to sign session cookie", "session_id", id, "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *BookingHandler) view(sess wizard.Session, t wizard.Transition) wizard.View {
	return wizard.NewView(sess, h.sessions.Rules(), t)
}

// writeView renders the shell view. The cookie is re-issued on every
// response so its expiry slides with the stored session's.
func (h *BookingHandler) writeView(w http.ResponseWriter, status int, sess wizard.Session, t wizard.Transition) {
	h.setCookie(w, sess.ID)
	writeJSON(w, status, h.view(sess, t))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
