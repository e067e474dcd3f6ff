// Package sessions persists booking wizard sessions between requests.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-booking/internal/wizard"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 2 * time.Hour

var ErrNotFound = errors.New("sessions: not found")

// Repository stores wizard sessions by id. Every read or write extends the
// session's lifetime.
type Repository interface {
	Load(ctx context.Context, id string) (wizard.Session, error)
	Save(ctx context.Context, sess wizard.Session) error
	Delete(ctx context.Context, id string) error

	// AcquireSubmit takes the per-session submission lock for at most ttl and
	// returns the holder's token. It reports false when another holder has it.
	AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (string, bool, error)
	// ReleaseSubmit drops the lock only while token still holds it, so a
	// holder whose lock expired cannot free a newer one.
	ReleaseSubmit(ctx context.Context, id, token string) error
}
