package sessions

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/wizard"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Locker hands out one mutex per key. Entries are dropped once unused.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Manager runs load-mutate-save cycles on wizard sessions. Cycles on the same
// session within this process are serialized.
type Manager struct {
	repo      Repository
	locks     *Locker
	storeOpts []wizard.StoreOption
	rules     wizard.Rules
	logger    *logging.Logger
}

// NewManager creates a Manager. storeOpts configure every restored store.
func NewManager(repo Repository, logger *logging.Logger, storeOpts ...wizard.StoreOption) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		repo:      repo,
		locks:     NewLocker(),
		storeOpts: storeOpts,
		rules:     wizard.NewStore("", storeOpts...).Rules(),
		logger:    logger,
	}
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context, timezone string) (wizard.Session, error) {
	st := wizard.NewStore(uuid.NewString(), m.storeOpts...)
	if timezone != "" {
		if err := st.SetTimezone(timezone); err != nil {
			m.logger.Debug("ignoring visitor timezone", "timezone", timezone, "error", err)
		}
	}
	sess := st.Snapshot()
	if err := m.repo.Save(ctx, sess); err != nil {
		return wizard.Session{}, err
	}
	return sess, nil
}

// Get returns the stored session.
func (m *Manager) Get(ctx context.Context, id string) (wizard.Session, error) {
	if id == "" {
		return wizard.Session{}, ErrNotFound
	}
	return m.repo.Load(ctx, id)
}

// Rules returns the gate configuration applied to restored stores.
func (m *Manager) Rules() wizard.Rules {
	return m.rules
}

// Update restores the session into a store, runs fn and saves the result.
// The session is saved even when fn fails, since failures such as validation
// record messages on it. fn's error is returned.
func (m *Manager) Update(ctx context.Context, id string, fn func(*wizard.Store) error) (wizard.Session, error) {
	if id == "" {
		return wizard.Session{}, ErrNotFound
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	sess, err := m.repo.Load(ctx, id)
	if err != nil {
		return wizard.Session{}, err
	}
	st := wizard.Restore(sess, m.storeOpts...)
	fnErr := fn(st)

	out := st.Snapshot()
	if err := m.repo.Save(ctx, out); err != nil {
		return out, errors.Join(fnErr, err)
	}
	return out, fnErr
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	unlock := m.locks.Lock(id)
	defer unlock()
	return m.repo.Delete(ctx, id)
}
