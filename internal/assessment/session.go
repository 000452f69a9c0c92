package assessment

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/speaklens/speaklens/internal/models"
)

// NewSession allocates a fresh session in the init phase.
func (e *Engine) NewSession() *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:             uuid.NewString(),
		Phase:          models.PhaseInit,
		PhaseStartTime: now,
		TurnIndex:      0,
		Turns:          []models.Turn{},
		Metadata: models.SessionMetadata{
			DeviceInfo: map[string]string{},
		},
		Status:       models.StatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// TimeRemaining reports the budget left in the current phase; zero for
// phases with no duration.
func (e *Engine) TimeRemaining(s *models.Session) time.Duration {
	d := e.Table.Duration(s.Phase)
	if d <= 0 {
		return 0
	}
	rem := d - time.Since(s.PhaseStartTime)
	if rem < 0 {
		return 0
	}
	return rem
}

// HasTimedOut reports whether the current phase budget is exhausted.
func (e *Engine) HasTimedOut(s *models.Session) bool {
	d := e.Table.Duration(s.Phase)
	return d > 0 && time.Since(s.PhaseStartTime) >= d
}

// Advance moves the session to its successor phase, resetting the phase
// clock and turn index. No-op on the terminal phase. This is the only
// phase-transition mechanism; nothing else mutates Phase directly.
func (e *Engine) Advance(s *models.Session) models.Phase {
	next, ok := e.Table.Next(s.Phase)
	if !ok || next == s.Phase {
		return s.Phase
	}

	s.Phase = next
	s.PhaseStartTime = time.Now().UTC()
	s.TurnIndex = 0

	e.logger().WithFields(logrus.Fields{
		"session_id": s.ID,
		"phase":      next,
	}).Info("session advanced to phase")

	return next
}
