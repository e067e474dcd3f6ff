package sessions

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-booking/internal/wizard"
)

// lockMargin pads the submit lock beyond the booking call timeout.
const lockMargin = 5 * time.Second

// Submit runs a booking submission for a stored session. The repository
// submit lock is held for the whole attempt, and the session itself is only
// locked while it is read and written, never during the booking call.
//
// edit runs in the same cycle as the local checks, so the details posted with
// the submit are validated together with it.
func (m *Manager) Submit(ctx context.Context, id string, sub *wizard.Submitter, timeout time.Duration, edit func(*wizard.Store) error) (wizard.Session, error) {
	release, sess, err := m.lockSubmit(ctx, id, timeout+lockMargin)
	if err != nil {
		return sess, err
	}
	defer release()

	var attempt *wizard.Attempt
	sess, err = m.Update(ctx, id, func(st *wizard.Store) error {
		// Holding the lock means no attempt is live; a set flag was left
		// behind by a process that died mid-call.
		if st.Snapshot().IsSubmitting {
			m.logger.Warn("clearing orphaned submission flag", "session_id", id)
			st.SetSubmitting(false)
		}
		if edit != nil {
			if err := edit(st); err != nil {
				return err
			}
		}
		var prepErr error
		attempt, prepErr = sub.Prepare(ctx, st)
		return prepErr
	})
	if err != nil {
		return sess, err
	}

	// Once the call is out, a disconnecting visitor must not abandon it; the
	// submit timeout still bounds it.
	detached := context.WithoutCancel(ctx)
	res := sub.Send(detached, attempt)
	return m.Update(detached, id, func(st *wizard.Store) error {
		return sub.Apply(detached, st, attempt, res)
	})
}

// Mount restarts the wizard for a stored session. It takes the submit lock
// briefly so a live attempt is never reset underneath; a flag left by a dead
// process is cleared. edit runs after the reset.
func (m *Manager) Mount(ctx context.Context, id string, edit func(*wizard.Store)) (wizard.Session, error) {
	if id == "" {
		return wizard.Session{}, ErrNotFound
	}
	release, sess, err := m.lockSubmit(ctx, id, lockMargin)
	if err != nil {
		return sess, err
	}
	defer release()

	return m.Update(ctx, id, func(st *wizard.Store) error {
		if st.Snapshot().IsSubmitting {
			m.logger.Warn("clearing orphaned submission flag", "session_id", id)
			st.SetSubmitting(false)
		}
		if err := st.Mount(); err != nil {
			return err
		}
		if edit != nil {
			edit(st)
		}
		return nil
	})
}

// lockSubmit takes the repository submit lock. When another holder has it,
// the stored session is returned with ErrSubmissionInFlight.
func (m *Manager) lockSubmit(ctx context.Context, id string, ttl time.Duration) (func(), wizard.Session, error) {
	token, acquired, err := m.repo.AcquireSubmit(ctx, id, ttl)
	if err != nil {
		return nil, wizard.Session{}, err
	}
	if !acquired {
		sess, loadErr := m.Get(ctx, id)
		if loadErr != nil {
			return nil, wizard.Session{}, loadErr
		}
		return nil, sess, wizard.ErrSubmissionInFlight
	}
	release := func() {
		if err := m.repo.ReleaseSubmit(context.WithoutCancel(ctx), id, token); err != nil {
			m.logger.Error("failed to release submit lock", "session_id", id, "error", err)
		}
	}
	return release, wizard.Session{}, nil
}
