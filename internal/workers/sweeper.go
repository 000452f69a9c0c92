package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/speaklens/speaklens/internal/state"
)

// Sweeper periodically evicts sessions whose idle time exceeds the
// threshold. It runs independently of request handling; in-flight calls work
// on snapshot copies, so eviction never corrupts an in-progress response.
type Sweeper struct {
	Store         state.SessionStore
	Interval      time.Duration
	IdleThreshold time.Duration
	Logger        *logrus.Logger
}

func (w *Sweeper) Start(ctx context.Context) error {
	if w.Store == nil {
		return errors.New("Sweeper missing dependency: Store must be set")
	}
	if w.Interval <= 0 {
		w.Interval = 60 * time.Second
	}
	if w.IdleThreshold <= 0 {
		w.IdleThreshold = 5 * time.Minute
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}

	go w.run(ctx)
	return nil
}

func (w *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Store.Sweep(ctx, w.IdleThreshold)
			if err != nil {
				w.Logger.WithError(err).Warn("session sweep failed")
				continue
			}
			if n > 0 {
				w.Logger.WithField("evicted", n).Info("cleaned up expired sessions")
			}
		}
	}
}
