package wizard

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/wolfman30/clinic-booking/internal/bookingapi"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// DefaultHorizonDays is how far ahead dates are offered.
const DefaultHorizonDays = 60

// AvailabilityClient reads open dates and slots from the remote API.
type AvailabilityClient interface {
	AvailableDates(ctx context.Context, start, end time.Time, modality string) ([]string, error)
	AvailableSlots(ctx context.Context, start, end time.Time, modality string) (map[string][]bookingapi.Slot, error)
}

// DayState describes how the calendar control should render a day.
type DayState string

const (
	DayAvailable   DayState = "available"
	DayPast        DayState = "past"
	DayUnavailable DayState = "unavailable"
	DayInvalid     DayState = "invalid"
)

// Selectable reports whether a visitor may pick the day.
func (d DayState) Selectable() bool {
	return d == DayAvailable
}

// Schedule drives the schedule step: it fetches availability for the
// session's modality and date and guards the date and time selections.
//
// Fetches are keyed by the selection they were made for; a response that
// arrives after the selection changed is dropped with ErrStaleSlots.
type Schedule struct {
	client      AvailabilityClient
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics
	horizonDays int
	now         func() time.Time
}

// ScheduleOption configures a Schedule.
type ScheduleOption func(*Schedule)

// WithHorizonDays sets how many days ahead are offered.
func WithHorizonDays(days int) ScheduleOption {
	return func(s *Schedule) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ScheduleOption {
	return func(s *Schedule) {
		if now != nil {
			s.now = now
		}
	}
}

// WithScheduleMetrics counts empty availability responses.
func WithScheduleMetrics(m *metrics.BookingMetrics) ScheduleOption {
	return func(s *Schedule) { s.metrics = m }
}

// NewSchedule constructs a Schedule.
func NewSchedule(client AvailabilityClient, logger *logging.Logger, opts ...ScheduleOption) *Schedule {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Schedule{
		client:      client,
		logger:      logger,
		horizonDays: DefaultHorizonDays,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SlotKey identifies a slot fetch.
type SlotKey struct {
	Date string
	Pool Modality
}

// DatesKey returns the pool dates are fetched for.
func (s *Schedule) DatesKey(sess Session) (Modality, error) {
	if sess.Modality == "" {
		return "", fmt.Errorf("%w: modality not selected", ErrNotReady)
	}
	return sess.Modality.SlotPool(), nil
}

// SlotsKey returns the date and pool slots are fetched for.
func (s *Schedule) SlotsKey(sess Session) (SlotKey, error) {
	if sess.Modality == "" {
		return SlotKey{}, fmt.Errorf("%w: modality not selected", ErrNotReady)
	}
	if sess.SelectedDate == "" {
		return SlotKey{}, fmt.Errorf("%w: date not selected", ErrNotReady)
	}
	return SlotKey{Date: sess.SelectedDate, Pool: sess.Modality.SlotPool()}, nil
}

// FetchDates returns the open dates from today through the horizon, in the
// session's timezone.
func (s *Schedule) FetchDates(ctx context.Context, sess Session, pool Modality) ([]string, error) {
	today := s.today(sess)
	end := today.AddDate(0, 0, s.horizonDays)
	dates, err := s.client.AvailableDates(ctx, today, end, string(pool))
	if err != nil {
		return nil, err
	}

	todayStr := today.Format(bookingapi.DateFormat)
	endStr := end.Format(bookingapi.DateFormat)
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if !validDate(d) || d < todayStr || d > endStr {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	if len(out) == 0 {
		s.metrics.ObserveEmptyAvailability("dates")
	}
	return out, nil
}

// FetchSlots returns the open start times for key. Times already past are
// dropped when the date is today.
func (s *Schedule) FetchSlots(ctx context.Context, sess Session, key SlotKey) ([]string, error) {
	loc := sessionLocation(sess)
	day, err := time.ParseInLocation(bookingapi.DateFormat, key.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, key.Date)
	}
	byDate, err := s.client.AvailableSlots(ctx, day, day, string(key.Pool))
	if err != nil {
		return nil, err
	}

	now := s.now().In(loc)
	isToday := now.Format(bookingapi.DateFormat) == key.Date
	cutoff := now.Format(bookingapi.TimeFormat)

	seen := map[string]struct{}{}
	out := make([]string, 0, len(byDate[key.Date]))
	for _, slot := range byDate[key.Date] {
		t := slot.StartTime
		if len(t) > len(bookingapi.TimeFormat) {
			t = t[:len(bookingapi.TimeFormat)]
		}
		if !validTime(t) {
			continue
		}
		if isToday && t <= cutoff {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		s.metrics.ObserveEmptyAvailability("slots")
	}
	return out, nil
}

// ApplyDates caches dates fetched for pool on the store.
func (s *Schedule) ApplyDates(store *Store, pool Modality, dates []string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.session.Modality.SlotPool() != pool || store.session.Modality == "" {
		s.logger.Debug("dropping stale dates", "session_id", store.session.ID, "pool", string(pool))
		return ErrStaleSlots
	}
	store.session.Availability.DatesPool = pool
	store.session.Availability.Dates = append([]string(nil), dates...)
	return nil
}

// ApplySlots caches slots fetched for key on the store. A selected time that
// is no longer offered is cleared.
func (s *Schedule) ApplySlots(store *Store, key SlotKey, slots []string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	sess := &store.session
	if sess.SelectedDate != key.Date || sess.Modality == "" || sess.Modality.SlotPool() != key.Pool {
		s.logger.Debug("dropping stale slots", "session_id", sess.ID, "date", key.Date, "pool", string(key.Pool))
		return ErrStaleSlots
	}
	sess.Availability.SlotsDate = key.Date
	sess.Availability.SlotsPool = key.Pool
	sess.Availability.Slots = append([]string(nil), slots...)
	if sess.SelectedTime != "" && !slices.Contains(slots, sess.SelectedTime) && !sess.IsSubmitting && sess.Step != StepSuccess {
		sess.SelectedTime = ""
	}
	return nil
}

// DayState classifies date for the calendar control using the cached dates.
func (s *Schedule) DayState(sess Session, date string) DayState {
	if !validDate(date) {
		return DayInvalid
	}
	if date < s.today(sess).Format(bookingapi.DateFormat) {
		return DayPast
	}
	pool := sess.Modality.SlotPool()
	if sess.Modality == "" || !sess.Availability.HasDates(pool) || !slices.Contains(sess.Availability.Dates, date) {
		return DayUnavailable
	}
	return DayAvailable
}

// CheckDate rejects values that are not calendar dates.
func (s *Schedule) CheckDate(date string) error {
	if !validDate(date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// SelectDate picks a date. The previously selected time is always cleared.
func (s *Schedule) SelectDate(store *Store, date string) error {
	state := s.DayState(store.Snapshot(), date)
	switch state {
	case DayAvailable:
	case DayInvalid:
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	default:
		return fmt.Errorf("%w: %s is %s", ErrDateUnavailable, date, state)
	}
	return store.SetDateTime(date, "")
}

// SelectTime picks a start time from the cached slots of the selected date.
func (s *Schedule) SelectTime(store *Store, clock string) error {
	sess := store.Snapshot()
	key, err := s.SlotsKey(sess)
	if err != nil {
		return err
	}
	if !validTime(clock) {
		return fmt.Errorf("%w: %q", ErrInvalidTime, clock)
	}
	if !sess.Availability.HasSlots(key.Date, key.Pool) || !slices.Contains(sess.Availability.Slots, clock) {
		return fmt.Errorf("%w: %s %s", ErrTimeUnavailable, key.Date, clock)
	}
	return store.SetDateTime(key.Date, clock)
}

func (s *Schedule) today(sess Session) time.Time {
	now := s.now().In(sessionLocation(sess))
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func sessionLocation(sess Session) *time.Location {
	if sess.Timezone != "" {
		if loc, err := time.LoadLocation(sess.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}
