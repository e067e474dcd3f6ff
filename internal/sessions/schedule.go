package sessions

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-booking/internal/wizard"
)

// LoadDates fetches the selectable dates for the session's pool and caches
// them on the session. The fetch runs outside the session lock; a result that
// no longer matches the session's modality is dropped with ErrStaleSlots.
func (m *Manager) LoadDates(ctx context.Context, id string, sched *wizard.Schedule) (wizard.Session, []string, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return wizard.Session{}, nil, err
	}
	pool, err := sched.DatesKey(sess)
	if err != nil {
		return sess, nil, err
	}
	if sess.Availability.HasDates(pool) {
		return sess, sess.Availability.Dates, nil
	}

	dates, err := sched.FetchDates(ctx, sess, pool)
	if err != nil {
		return sess, nil, fmt.Errorf("load dates: %w", err)
	}
	sess, err = m.Update(ctx, id, func(st *wizard.Store) error {
		return sched.ApplyDates(st, pool, dates)
	})
	if err != nil {
		return sess, nil, err
	}
	return sess, dates, nil
}

// LoadSlots fetches the start times for the selected date. Cached slots are
// reused unless refresh is set. With refresh an empty result is reported as
// wizard.ErrNoSlotsAvailable.
func (m *Manager) LoadSlots(ctx context.Context, id string, sched *wizard.Schedule, refresh bool) (wizard.Session, []string, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return wizard.Session{}, nil, err
	}
	key, err := sched.SlotsKey(sess)
	if err != nil {
		return sess, nil, err
	}
	if !refresh && sess.Availability.HasSlots(key.Date, key.Pool) {
		return sess, sess.Availability.Slots, nil
	}

	slots, err := sched.FetchSlots(ctx, sess, key)
	if err != nil {
		return sess, nil, fmt.Errorf("load slots: %w", err)
	}
	sess, err = m.Update(ctx, id, func(st *wizard.Store) error {
		return sched.ApplySlots(st, key, slots)
	})
	if err != nil {
		return sess, nil, err
	}
	if refresh && len(slots) == 0 {
		return sess, slots, wizard.ErrNoSlotsAvailable
	}
	return sess, slots, nil
}
