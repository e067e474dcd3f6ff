package wizard

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTimezone is used when neither the visitor nor the store supplies one.
const DefaultTimezone = "America/New_York"

// Store owns one wizard session. It is safe for concurrent use; callers get
// copies of the session, never references into it.
type Store struct {
	mu      sync.Mutex
	session Session

	rules           Rules
	defaultTimezone string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithOptionalService lets visitors skip the service step.
func WithOptionalService() StoreOption {
	return func(s *Store) { s.rules.ServiceOptional = true }
}

// WithDefaultTimezone sets the timezone restored by Reset.
func WithDefaultTimezone(tz string) StoreOption {
	return func(s *Store) {
		if _, err := time.LoadLocation(tz); err == nil && tz != "" {
			s.defaultTimezone = tz
		}
	}
}

// NewStore returns a store holding a fresh session with the given id.
func NewStore(id string, opts ...StoreOption) *Store {
	st := &Store{defaultTimezone: DefaultTimezone}
	for _, opt := range opts {
		opt(st)
	}
	st.session = st.initial(id)
	return st
}

// Restore wraps a previously saved session.
func Restore(sess Session, opts ...StoreOption) *Store {
	st := NewStore(sess.ID, opts...)
	if !sess.Step.Valid() {
		sess.Step = FirstStep
	}
	if sess.Timezone == "" {
		sess.Timezone = st.defaultTimezone
	}
	st.session = sess.clone()
	return st
}

func (st *Store) initial(id string) Session {
	return Session{
		ID:       id,
		Step:     FirstStep,
		Timezone: st.defaultTimezone,
	}
}

// Rules returns the gate configuration of the store.
func (st *Store) Rules() Rules {
	return st.rules
}

// Snapshot returns a copy of the session.
func (st *Store) Snapshot() Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.clone()
}

// editable guards field setters. Caller holds mu.
func (st *Store) editable() error {
	if st.session.IsSubmitting {
		return ErrSubmissionInFlight
	}
	if st.session.Step == StepSuccess {
		return ErrTerminalStep
	}
	return nil
}

// clearSchedule drops the date, time and cached availability. Caller holds mu.
func (st *Store) clearSchedule() {
	st.session.SelectedDate = ""
	st.session.SelectedTime = ""
	st.session.Availability = AvailabilityCache{}
}

// setModality assigns m and clears schedule state when it changes. Caller holds mu.
func (st *Store) setModality(m Modality) {
	if st.session.Modality == m {
		return
	}
	st.session.Modality = m
	st.clearSchedule()
}

// SetPatientType records who is booking. Discovery calls are phone only, so
// choosing discovery forces the modality and leaving it clears the forced value.
func (st *Store) SetPatientType(pt PatientType) error {
	pt, err := ParsePatientType(string(pt))
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}

	previous := st.session.PatientType
	st.session.PatientType = pt
	switch {
	case pt == PatientDiscovery:
		st.setModality(ModalityPhone)
	case previous == PatientDiscovery:
		st.setModality("")
	}
	return nil
}

// SetModality records the consultation medium.
func (st *Store) SetModality(m Modality) error {
	m, err := ParseModality(string(m))
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}
	if st.session.PatientType == PatientDiscovery && m != ModalityPhone {
		return fmt.Errorf("%w: %s", ErrModalityNotOffered, m)
	}
	st.setModality(m)
	return nil
}

// SetService records the selected service. An empty id clears it.
func (st *Store) SetService(id, name string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}
	st.session.ServiceID = strings.TrimSpace(id)
	st.session.ServiceName = strings.TrimSpace(name)
	if st.session.ServiceID == "" {
		st.session.ServiceName = ""
	}
	return nil
}

// SetDateTime records the appointment date and time. An empty clock clears the
// time and keeps the date; an empty date clears both.
func (st *Store) SetDateTime(date, clock string) error {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date != "" && !validDate(date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if clock != "" && !validTime(clock) {
		return fmt.Errorf("%w: %q", ErrInvalidTime, clock)
	}
	if date == "" && clock != "" {
		return fmt.Errorf("%w: time without a date", ErrInvalidTime)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}
	st.session.SelectedDate = date
	st.session.SelectedTime = clock
	return nil
}

// SetTimezone records the visitor's IANA timezone.
func (st *Store) SetTimezone(tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTimezone)
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}
	st.session.Timezone = tz
	return nil
}

// SetPatientDetails merges patch into the stored details. Messages for the
// patched fields are cleared.
func (st *Store) SetPatientDetails(patch DetailsPatch) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}
	d := &st.session.PatientDetails
	if patch.Name != nil {
		d.Name = strings.TrimSpace(*patch.Name)
		delete(st.session.FieldErrors, FieldName)
	}
	if patch.Email != nil {
		d.Email = strings.TrimSpace(*patch.Email)
		delete(st.session.FieldErrors, FieldEmail)
	}
	if patch.Phone != nil {
		d.Phone = strings.TrimSpace(*patch.Phone)
		delete(st.session.FieldErrors, FieldPhone)
	}
	if len(st.session.FieldErrors) == 0 {
		st.session.FieldErrors = nil
	}
	return nil
}

// SetReason records the optional visit reason.
func (st *Store) SetReason(reason string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}
	st.session.Reason = strings.TrimSpace(reason)
	return nil
}

// SetHoneypot records the hidden trap field verbatim.
func (st *Store) SetHoneypot(value string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.editable(); err != nil {
		return err
	}
	st.session.Honeypot = value
	return nil
}

// SetReferenceID stores the server-issued booking reference.
func (st *Store) SetReferenceID(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session.ReferenceID = strings.TrimSpace(id)
}

// SetSubmitting toggles the in-flight flag.
func (st *Store) SetSubmitting(submitting bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session.IsSubmitting = submitting
}

// SetError records the last error message and its code. An empty message
// clears both along with any field errors.
func (st *Store) SetError(code, message string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.setError(code, message)
}

func (st *Store) setError(code, message string) {
	if message == "" {
		st.session.Error = ""
		st.session.ErrorCode = ""
		st.session.FieldErrors = nil
		return
	}
	st.session.Error = message
	st.session.ErrorCode = code
}

// CanProceed reports whether the current step's gate is satisfied.
func (st *Store) CanProceed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return CanProceedFrom(st.session, st.rules)
}

// NextStep advances one step when the current gate is satisfied.
func (st *Store) NextStep() (Transition, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.nextStep()
}

func (st *Store) nextStep() (Transition, error) {
	from := st.session.Step
	if from >= LastStep {
		return Transition{From: from, To: from}, ErrTerminalStep
	}
	if !CanProceedFrom(st.session, st.rules) {
		return Transition{From: from, To: from}, fmt.Errorf("%w: %s", ErrGateClosed, from.Name())
	}
	st.session.Step = from + 1
	return Transition{From: from, To: st.session.Step}, nil
}

// PrevStep goes back one step, floored at the first step. It is refused once
// the booking is complete or while a submission is in flight.
func (st *Store) PrevStep() (Transition, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	from := st.session.Step
	if err := st.editable(); err != nil {
		return Transition{From: from, To: from}, err
	}
	if from > FirstStep {
		st.session.Step = from - 1
	}
	return Transition{From: from, To: st.session.Step}, nil
}

// SetStep jumps back to an earlier step. Forward jumps are refused.
func (st *Store) SetStep(n Step) (Transition, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	from := st.session.Step
	if err := st.editable(); err != nil {
		return Transition{From: from, To: from}, err
	}
	if n < FirstStep || n >= from {
		return Transition{From: from, To: from}, fmt.Errorf("%w: cannot jump from %d to %d", ErrInvalidStep, from, n)
	}
	st.session.Step = n
	return Transition{From: from, To: n}, nil
}

// Reset restores every field to its default. The session id is kept.
func (st *Store) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session = st.initial(st.session.ID)
}

// Mount starts a traversal, discarding any earlier attempt. It is refused
// while a submission is in flight so the attempt's result is not lost.
func (st *Store) Mount() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.IsSubmitting {
		return ErrSubmissionInFlight
	}
	st.session = st.initial(st.session.ID)
	return nil
}

// Unmount ends a traversal. A completed booking is cleared so the next visit
// starts empty; reports whether that happened.
func (st *Store) Unmount() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.session.ReferenceID == "" {
		return false
	}
	st.session = st.initial(st.session.ID)
	return true
}
