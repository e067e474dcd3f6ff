package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/bookingapi"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/wizard"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// fakeRemote stands in for the clinic's booking API.
type fakeRemote struct {
	mu          sync.Mutex
	bookings    []bookingapi.BookingRequest
	dates       []string
	slots       map[string][]string
	datesStatus int
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/api/availability/dates":
		if f.datesStatus != 0 {
			w.WriteHeader(f.datesStatus)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAVAILABLE","message":"maintenance"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"dates": f.dates}})
	case r.URL.Path == "/api/availability/slots":
		date := r.URL.Query().Get("start")
		var slots []map[string]string
		for _, t := range f.slots[date] {
			slots = append(slots, map[string]string{"start_time": t + ":00"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"slots": map[string]any{date: slots}}})
	case r.URL.Path == "/api/appointments" && r.Method == http.MethodPost:
		var req bookingapi.BookingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.bookings = append(f.bookings, req)
		switch req.PatientDetails.Email {
		case "taken@example.com":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"SLOT_UNAVAILABLE","message":"Someone just booked 09:00. Please choose another time."}}`))
		case "busy@example.com":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"RATE_LIMIT_EXCEEDED","message":"slow down"}}`))
		default:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"success":true,"data":{"reference_id":"TFW-2025-000123"}}`))
		}
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeRemote) bookingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type bookingHarness struct {
	t      *testing.T
	router http.Handler
	remote *fakeRemote
	cookie *http.Cookie
}

func newBookingHarness(t *testing.T, opts ...func(*BookingHandlerConfig)) *bookingHarness {
	t.Helper()
	remote := &fakeRemote{
		dates: []string{"2025-03-10", "2025-03-11"},
		slots: map[string][]string{"2025-03-10": {"09:00", "10:00"}},
	}
	ts := httptest.NewServer(remote)
	t.Cleanup(ts.Close)

	logger := logging.Default()
	client := bookingapi.NewClient(ts.URL, logger)
	now := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)

	cfg := BookingHandlerConfig{
		Sessions:      sessions.NewManager(sessions.NewMemoryRepository(time.Hour), logger),
		Submitter:     wizard.NewSubmitter(client, logger),
		Schedule:      wizard.NewSchedule(client, logger, wizard.WithClock(func() time.Time { return now })),
		Logger:        logger,
		SubmitTimeout: 2 * time.Second,
		SecureCookie:  true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := NewBookingHandler(cfg)
	r := chi.NewRouter()
	r.Route("/booking", h.Routes)
	return &bookingHarness{t: t, router: r, remote: remote}
}

func (bh *bookingHarness) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	bh.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(bh.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bh.cookie != nil {
		req.AddCookie(bh.cookie)
	}
	rec := httptest.NewRecorder()
	bh.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			bh.cookie = c
		}
	}
	var out map[string]any
	require.NoError(bh.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

// ok performs a request that must succeed and returns its body.
func (bh *bookingHarness) ok(method, path string, body any) map[string]any {
	bh.t.Helper()
	rec, out := bh.do(method, path, body)
	require.Less(bh.t, rec.Code, 300, "%s %s: %s", method, path, rec.Body.String())
	return out
}

// toDetails walks a fresh session to the details step with a 09:00 virtual
// visit on 2025-03-10.
func (bh *bookingHarness) toDetails() {
	bh.t.Helper()
	bh.ok(http.MethodPost, "/booking/session", map[string]string{"timezone": "America/New_York"})
	bh.ok(http.MethodPut, "/booking/session/service", map[string]string{"service_id": "svc-consult", "service_name": "Consultation"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)
	bh.ok(http.MethodPut, "/booking/session/patient-type", map[string]string{"patient_type": "new"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)
	bh.ok(http.MethodPut, "/booking/session/modality", map[string]string{"modality": "virtual"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)
	bh.ok(http.MethodGet, "/booking/availability/slots?date=2025-03-10", nil)
	bh.ok(http.MethodPut, "/booking/availability/time", map[string]string{"time": "09:00"})
	view := bh.ok(http.MethodPost, "/booking/session/next", nil)
	require.Equal(bh.t, float64(wizard.StepDetails), view["step"])
}

func sessionOf(view map[string]any) map[string]any {
	return view["session"].(map[string]any)
}

func TestBooking_HappyPath(t *testing.T) {
	bh := newBookingHarness(t)

	rec, view := bh.do(http.MethodPost, "/booking/session", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, bh.cookie)
	assert.True(t, bh.cookie.HttpOnly)
	assert.True(t, bh.cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, bh.cookie.SameSite)
	assert.Equal(t, float64(1), view["step"])
	assert.Equal(t, float64(0), view["progress"])
	id := sessionOf(view)["id"]

	bh.ok(http.MethodPut, "/booking/session/service", map[string]string{"service_id": "svc-consult", "service_name": "Consultation"})
	view = bh.ok(http.MethodPost, "/booking/session/next", nil)
	assert.Equal(t, float64(2), view["step"])
	assert.Equal(t, float64(1), view["direction"])

	bh.ok(http.MethodPut, "/booking/session/patient-type", map[string]string{"patient_type": "new"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)
	bh.ok(http.MethodPut, "/booking/session/modality", map[string]string{"modality": "virtual"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)

	dates := bh.ok(http.MethodGet, "/booking/availability/dates", nil)
	assert.Equal(t, []any{"2025-03-10", "2025-03-11"}, dates["dates"])

	slots := bh.ok(http.MethodGet, "/booking/availability/slots?date=2025-03-10", nil)
	assert.Equal(t, []any{"09:00", "10:00"}, slots["slots"])
	assert.Equal(t, "2025-03-10", slots["date"])

	view = bh.ok(http.MethodPut, "/booking/availability/time", map[string]string{"time": "09:00"})
	assert.Equal(t, "09:00", sessionOf(view)["selected_time"])
	assert.Equal(t, true, view["can_continue"])
	bh.ok(http.MethodPost, "/booking/session/next", nil)

	view = bh.ok(http.MethodPost, "/booking/session/submit", map[string]string{
		"name":    "Jane Doe",
		"email":   "jane@example.com",
		"phone":   "555-010-0123",
		"reason":  "Annual check-in",
		"website": "",
	})
	assert.Equal(t, float64(wizard.StepSuccess), view["step"])
	assert.Equal(t, "TFW-2025-000123", sessionOf(view)["reference_id"])
	require.Equal(t, 1, bh.remote.bookingCount())
	sent := bh.remote.bookings[0]
	assert.Equal(t, "2025-03-10", sent.ScheduledDate)
	assert.Equal(t, "09:00", sent.ScheduledTime)
	assert.Equal(t, "virtual", sent.Modality)
	assert.Equal(t, "svc-consult", sent.ServiceID)

	// Leaving after completion starts the next visit empty.
	view = bh.ok(http.MethodDelete, "/booking/session", nil)
	assert.Equal(t, float64(wizard.StepService), view["step"])
	assert.Equal(t, id, sessionOf(view)["id"])
	assert.Nil(t, sessionOf(view)["reference_id"])
}

func TestBooking_NoSession(t *testing.T) {
	bh := newBookingHarness(t)

	rec, body := bh.do(http.MethodGet, "/booking/session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", body["code"])

	bh.cookie = &http.Cookie{Name: SessionCookie, Value: "not-a-uuid"}
	rec, _ = bh.do(http.MethodPost, "/booking/session/next", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBooking_SignedCookie(t *testing.T) {
	bh := newBookingHarness(t, func(cfg *BookingHandlerConfig) {
		cfg.Tokens = sessions.NewTokenSigner("cookie-secret", time.Hour)
	})

	_, view := bh.do(http.MethodPost, "/booking/session", nil)
	id := sessionOf(view)["id"].(string)
	require.NotNil(t, bh.cookie)
	assert.NotEqual(t, id, bh.cookie.Value)

	view = bh.ok(http.MethodGet, "/booking/session", nil)
	assert.Equal(t, id, sessionOf(view)["id"])

	// A bare id is not accepted once cookies are signed.
	bh.cookie = &http.Cookie{Name: SessionCookie, Value: id}
	rec, body := bh.do(http.MethodGet, "/booking/session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", body["code"])
}

func TestBooking_CookieReissuedOnAccess(t *testing.T) {
	bh := newBookingHarness(t, func(cfg *BookingHandlerConfig) {
		cfg.Tokens = sessions.NewTokenSigner("cookie-secret", time.Hour)
		cfg.SessionTTL = time.Hour
	})
	bh.ok(http.MethodPost, "/booking/session", nil)

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/booking/session", nil},
		{http.MethodPut, "/booking/session/service", map[string]string{"service_id": "svc-consult"}},
		{http.MethodPost, "/booking/session/next", nil},
		{http.MethodPost, "/booking/session/next", nil}, // refused by the gate
	}
	for _, req := range requests {
		rec, _ := bh.do(req.method, req.path, req.body)
		var issued *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == SessionCookie {
				issued = c
			}
		}
		require.NotNil(t, issued, "%s %s should refresh the cookie", req.method, req.path)
		assert.Equal(t, 3600, issued.MaxAge)
	}

	rec, _ := bh.do(http.MethodGet, "/booking/availability/dates", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestBooking_MountResetsExistingSession(t *testing.T) {
	bh := newBookingHarness(t)
	first := bh.ok(http.MethodPost, "/booking/session", nil)
	bh.ok(http.MethodPut, "/booking/session/service", map[string]string{"service_id": "svc-consult"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)

	rec, view := bh.do(http.MethodPost, "/booking/session", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), view["step"])
	assert.Equal(t, sessionOf(first)["id"], sessionOf(view)["id"])
	assert.Nil(t, sessionOf(view)["service_id"])
}

func TestBooking_ForwardGate(t *testing.T) {
	bh := newBookingHarness(t)
	bh.ok(http.MethodPost, "/booking/session", nil)

	rec, body := bh.do(http.MethodPost, "/booking/session/next", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "STEP_INCOMPLETE", body["code"])
	assert.Equal(t, float64(1), body["view"].(map[string]any)["step"])
}

func TestBooking_BackwardNavigation(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()

	view := bh.ok(http.MethodPost, "/booking/session/step", map[string]int{"step": 2})
	assert.Equal(t, float64(2), view["step"])
	assert.Equal(t, float64(-1), view["direction"])
	assert.Equal(t, "09:00", sessionOf(view)["selected_time"], "going back keeps selections")

	rec, body := bh.do(http.MethodPost, "/booking/session/step", map[string]int{"step": 4})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	view = bh.ok(http.MethodPost, "/booking/session/prev", nil)
	assert.Equal(t, float64(1), view["step"])
}

func TestBooking_InvalidSelections(t *testing.T) {
	bh := newBookingHarness(t)
	bh.ok(http.MethodPost, "/booking/session", nil)

	rec, body := bh.do(http.MethodPut, "/booking/session/patient-type", map[string]string{"patient_type": "vip"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	rec, body = bh.do(http.MethodPut, "/booking/session/datetime", map[string]string{"date": "2025-02-30"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	req := httptest.NewRequest(http.MethodPut, "/booking/session/reason", bytes.NewBufferString("{"))
	req.AddCookie(bh.cookie)
	rr := httptest.NewRecorder()
	bh.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBooking_DiscoveryForcesPhone(t *testing.T) {
	bh := newBookingHarness(t)
	bh.ok(http.MethodPost, "/booking/session", nil)

	view := bh.ok(http.MethodPut, "/booking/session/patient-type", map[string]string{"patient_type": "discovery"})
	assert.Equal(t, "phone", sessionOf(view)["modality"])
	assert.Equal(t, []any{"phone"}, view["modalities"])

	rec, body := bh.do(http.MethodPut, "/booking/session/modality", map[string]string{"modality": "virtual"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])
}

func TestBooking_SubmitValidation(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()

	rec, body := bh.do(http.MethodPost, "/booking/session/submit", map[string]string{
		"name":  "Jane Doe",
		"email": "jane@",
		"phone": "555-010-0123",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, wizard.CodeValidation, body["code"])
	assert.Contains(t, body["field_errors"], "email")
	view := body["view"].(map[string]any)
	assert.Equal(t, float64(wizard.StepDetails), view["step"])
	assert.Equal(t, "jane@", sessionOf(view)["patient_details"].(map[string]any)["email"])
	assert.Zero(t, bh.remote.bookingCount())
}

func TestBooking_SubmitSlotUnavailable(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()

	rec, body := bh.do(http.MethodPost, "/booking/session/submit", map[string]string{
		"name":  "Jane Doe",
		"email": "taken@example.com",
		"phone": "555-010-0123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, wizard.CodeSlotUnavailable, body["code"])
	assert.Equal(t, "Someone just booked 09:00. Please choose another time.", body["error"])
	view := body["view"].(map[string]any)
	assert.Equal(t, float64(wizard.StepDetails), view["step"])
	assert.Equal(t, false, sessionOf(view)["is_submitting"])
}

func TestBooking_SubmitRateLimited(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()

	rec, body := bh.do(http.MethodPost, "/booking/session/submit", map[string]string{
		"name":  "Jane Doe",
		"email": "busy@example.com",
		"phone": "555-010-0123",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, wizard.CodeRateLimited, body["code"])
	assert.Equal(t, wizard.MessageRateLimited, body["error"])
}

func TestBooking_HoneypotLooksLikeFailure(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()

	rec, body := bh.do(http.MethodPost, "/booking/session/submit", map[string]string{
		"name":    "Jane Doe",
		"email":   "jane@example.com",
		"phone":   "555-010-0123",
		"website": "http://spam.example",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, wizard.CodeSubmissionFailed, body["code"])
	assert.Equal(t, wizard.MessageGenericFailure, body["error"])
	assert.Zero(t, bh.remote.bookingCount())
	assert.Nil(t, sessionOf(body["view"].(map[string]any))["honeypot"])
}

func TestBooking_SelectUnavailableDate(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()
	bh.ok(http.MethodPost, "/booking/session/step", map[string]int{"step": 4})

	rec, body := bh.do(http.MethodPut, "/booking/availability/date", map[string]string{"date": "2025-03-12"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DATE_UNAVAILABLE", body["code"])

	view := bh.ok(http.MethodPut, "/booking/availability/date", map[string]string{"date": "2025-03-11"})
	assert.Equal(t, "2025-03-11", sessionOf(view)["selected_date"])
	assert.Nil(t, sessionOf(view)["selected_time"], "changing the date clears the time")
}

func TestBooking_DateTimeUsesCalendarRules(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()
	bh.ok(http.MethodPost, "/booking/session/step", map[string]int{"step": 4})

	tests := []struct {
		name     string
		date     string
		time     string
		wantCode string
	}{
		{name: "past day", date: "2020-01-01", time: "03:17", wantCode: "DATE_UNAVAILABLE"},
		{name: "day without availability", date: "2025-03-12", time: "09:00", wantCode: "DATE_UNAVAILABLE"},
		{name: "time never offered", date: "2025-03-10", time: "03:17", wantCode: "TIME_UNAVAILABLE"},
		{name: "not a date", date: "2025-02-30", wantCode: "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := bh.do(http.MethodPut, "/booking/session/datetime", map[string]string{"date": tt.date, "time": tt.time})
			assert.NotEqual(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}

	view := bh.ok(http.MethodGet, "/booking/session", nil)
	assert.Equal(t, "2025-03-10", sessionOf(view)["selected_date"])
	assert.Equal(t, "09:00", sessionOf(view)["selected_time"])

	view = bh.ok(http.MethodPut, "/booking/session/datetime", map[string]string{"date": "2025-03-10", "time": "10:00"})
	assert.Equal(t, "10:00", sessionOf(view)["selected_time"])

	view = bh.ok(http.MethodPut, "/booking/session/datetime", map[string]string{"date": "2025-03-10"})
	assert.Nil(t, sessionOf(view)["selected_time"])
	assert.Equal(t, false, view["can_continue"])
}

func TestBooking_RefreshWithoutSlots(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()
	bh.ok(http.MethodPost, "/booking/session/step", map[string]int{"step": 4})
	bh.ok(http.MethodPut, "/booking/availability/date", map[string]string{"date": "2025-03-11"})

	rec, body := bh.do(http.MethodPost, "/booking/availability/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NO_SLOTS_AVAILABLE", body["code"])
	assert.Equal(t, wizard.MessageNoSlots, body["error"])
}

func TestBooking_TimeNotOffered(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()
	bh.ok(http.MethodPost, "/booking/session/step", map[string]int{"step": 4})

	rec, body := bh.do(http.MethodPut, "/booking/availability/time", map[string]string{"time": "11:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TIME_UNAVAILABLE", body["code"])
}

func TestBooking_AvailabilityUpstreamDown(t *testing.T) {
	bh := newBookingHarness(t)
	bh.remote.datesStatus = http.StatusServiceUnavailable
	bh.ok(http.MethodPost, "/booking/session", nil)
	bh.ok(http.MethodPut, "/booking/session/service", map[string]string{"service_id": "svc-consult"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)
	bh.ok(http.MethodPut, "/booking/session/patient-type", map[string]string{"patient_type": "returning"})
	bh.ok(http.MethodPost, "/booking/session/next", nil)
	bh.ok(http.MethodPut, "/booking/session/modality", map[string]string{"modality": "in-person"})

	rec, body := bh.do(http.MethodGet, "/booking/availability/dates", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_ERROR", body["code"])
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	// A 4xx from the booking API will not go away on its own.
	bh.remote.mu.Lock()
	bh.remote.datesStatus = http.StatusBadRequest
	bh.remote.mu.Unlock()
	rec, body = bh.do(http.MethodGet, "/booking/availability/dates", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_ERROR", body["code"])
	assert.Nil(t, body["retryable"])
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestBooking_MountRefusedDuringSubmit(t *testing.T) {
	repo := sessions.NewMemoryRepository(time.Hour)
	bh := newBookingHarness(t, func(cfg *BookingHandlerConfig) {
		cfg.Sessions = sessions.NewManager(repo, logging.Default())
	})
	bh.toDetails()
	id := sessionOf(bh.ok(http.MethodGet, "/booking/session", nil))["id"].(string)

	token, ok, err := repo.AcquireSubmit(context.Background(), id, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rec, body := bh.do(http.MethodPost, "/booking/session", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SUBMISSION_IN_PROGRESS", body["code"])
	assert.Equal(t, float64(wizard.StepDetails), body["view"].(map[string]any)["step"])

	require.NoError(t, repo.ReleaseSubmit(context.Background(), id, token))
	view := bh.ok(http.MethodPost, "/booking/session", nil)
	assert.Equal(t, float64(wizard.StepService), view["step"])
	assert.Equal(t, id, sessionOf(view)["id"])
}

func TestBooking_CompletedSessionIsLocked(t *testing.T) {
	bh := newBookingHarness(t)
	bh.toDetails()
	bh.ok(http.MethodPost, "/booking/session/submit", map[string]string{
		"name":  "Jane Doe",
		"email": "jane@example.com",
		"phone": "555-010-0123",
	})

	for _, path := range []string{"/booking/session/next", "/booking/session/prev"} {
		rec, body := bh.do(http.MethodPost, path, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, path)
		assert.Equal(t, "BOOKING_COMPLETE", body["code"], path)
	}

	rec, _ := bh.do(http.MethodPost, "/booking/session/submit", map[string]string{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, bh.remote.bookingCount(), fmt.Sprintf("bookings: %v", bh.remote.bookings))
}
