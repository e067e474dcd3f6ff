package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/wizard"
)

const sweepEvery = 256

type memoryEntry struct {
	session   wizard.Session
	expiresAt time.Time
}

type memoryLock struct {
	token string
	until time.Time
}

// MemoryRepository keeps sessions in process memory. Suitable for a single
// instance and for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	locks   map[string]memoryLock
	writes  int
}

// NewMemoryRepository creates an empty repository. A non-positive ttl means
// DefaultTTL.
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryRepository{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]memoryLock),
	}
}

func (r *MemoryRepository) Load(_ context.Context, id string) (wizard.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	now := r.now()
	if !ok || !now.Before(entry.expiresAt) {
		delete(r.entries, id)
		return wizard.Session{}, ErrNotFound
	}
	entry.expiresAt = now.Add(r.ttl)
	r.entries[id] = entry
	return entry.session, nil
}

func (r *MemoryRepository) Save(_ context.Context, sess wizard.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.entries[sess.ID] = memoryEntry{session: sess, expiresAt: now.Add(r.ttl)}
	r.writes++
	if r.writes%sweepEvery == 0 {
		r.sweep(now)
	}
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	delete(r.locks, id)
	return nil
}

func (r *MemoryRepository) AcquireSubmit(_ context.Context, id string, ttl time.Duration) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if lock, held := r.locks[id]; held && now.Before(lock.until) {
		return "", false, nil
	}
	token := uuid.NewString()
	r.locks[id] = memoryLock{token: token, until: now.Add(ttl)}
	return token, true, nil
}

func (r *MemoryRepository) ReleaseSubmit(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lock, held := r.locks[id]; held && lock.token == token {
		delete(r.locks, id)
	}
	return nil
}

// sweep drops expired entries. Caller holds mu.
func (r *MemoryRepository) sweep(now time.Time) {
	for id, entry := range r.entries {
		if !now.Before(entry.expiresAt) {
			delete(r.entries, id)
		}
	}
	for id, lock := range r.locks {
		if !now.Before(lock.until) {
			delete(r.locks, id)
		}
	}
}
