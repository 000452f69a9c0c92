package state

import (
	"context"
	"time"

	"github.com/speaklens/speaklens/internal/models"
)

// SessionStore persists full session snapshots keyed by session id. The
// engine is the sole writer; a Put replaces the whole record. Get and Put
// both refresh the session's last-activity time, which Sweep compares
// against the idle threshold.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error) // utils.ErrNotFound when absent
	Put(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
	Sweep(ctx context.Context, idleThreshold time.Duration) (evicted int, err error)
}

// Counter is an optional side interface for stores that can report how many
// sessions they hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}
