package assessment

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/speaklens/speaklens/internal/models"
	"github.com/speaklens/speaklens/internal/providers/llm"
	"github.com/speaklens/speaklens/internal/providers/tts"
)

// Engine is the per-session assessment state machine: it sequences the timed
// phases, processes one user turn per cycle, and aggregates the turn log into
// a final score. The engine owns all Session mutation; callers persist
// snapshots around it.
//
// One Engine serves every session, so its fields are never written after
// construction. Zero-value optional fields (Picker, Thresholds, Logger)
// resolve to read-only package defaults.
type Engine struct {
	Table      *PhaseTable
	LLM        llm.Provider
	TTS        tts.Provider
	Picker     VariantPicker
	Thresholds CEFRThresholds
	Logger     *logrus.Logger
}

var fallbackLogger = logrus.New()

func (e *Engine) logger() *logrus.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return fallbackLogger
}

func (e *Engine) pick() models.TaskVariant {
	if e.Picker != nil {
		return e.Picker.Pick()
	}
	return randomPicker{}.Pick()
}

func (e *Engine) thresholds() CEFRThresholds {
	if e.Thresholds.IsZero() {
		return DefaultCEFRThresholds()
	}
	return e.Thresholds
}

// TurnResult is what one processed turn hands back to the caller.
type TurnResult struct {
	AIResponse    string
	AIAudio       []byte
	Phase         models.Phase
	TimeRemaining time.Duration
	Advanced      bool
}

// ProcessTurn runs one full turn cycle: timed-out phases are advanced first,
// the phase rule produces the next prompt, speech is synthesized, and the
// turn is appended. All session mutation happens after the fallible
// synthesis call, so a failed turn leaves the session exactly as it was.
func (e *Engine) ProcessTurn(ctx context.Context, s *models.Session, transcript, audioURL string) (*TurnResult, error) {
	// Stage a timeout preemption: a session silent past its budget is pushed
	// forward on this interaction, before the turn is dispatched.
	phase := s.Phase
	phaseStart := s.PhaseStartTime
	turnIndex := s.TurnIndex
	timedOut := e.HasTimedOut(s)
	if timedOut {
		next, ok := e.Table.Next(s.Phase)
		if ok && next != s.Phase {
			phase = next
			phaseStart = time.Now().UTC()
			turnIndex = 0
		} else {
			timedOut = false
		}
	}

	started := time.Now().UTC()

	md := s.Metadata
	tc := turnContext{
		Phase:     phase,
		TurnIndex: turnIndex,
	}
	if n := len(s.Turns); n > 0 {
		tc.LastUserTranscript = s.Turns[n-1].UserTranscript
	}
	if d := e.Table.Duration(phase); d > 0 {
		if rem := d - started.Sub(phaseStart); rem > 0 {
			tc.TimeRemaining = rem
		}
	}

	prompt := e.promptFor(tc, &md)

	audio, err := e.TTS.Synthesize(ctx, prompt)
	if err != nil {
		return nil, err
	}

	turn := models.Turn{
		Index:          turnIndex,
		Phase:          phase,
		Timestamp:      started,
		UserTranscript: transcript,
		UserAudioURL:   audioURL,
		AIResponse:     prompt,
		DurationMS:     time.Since(started).Milliseconds(),
	}

	// Commit. The staged preemption goes through Advance so every phase
	// transition shares one mechanism.
	if timedOut {
		e.Advance(s)
		e.logger().WithFields(logrus.Fields{
			"session_id": s.ID,
			"phase":      s.Phase,
		}).Info("phase timed out, advanced")
	}
	s.Metadata = md
	s.Turns = append(s.Turns, turn)
	s.TurnIndex++

	advanced := false
	if shouldAdvance(s, turn) {
		before := s.Phase
		e.Advance(s)
		advanced = s.Phase != before
	}

	return &TurnResult{
		AIResponse:    prompt,
		AIAudio:       audio,
		Phase:         s.Phase,
		TimeRemaining: e.TimeRemaining(s),
		Advanced:      advanced,
	}, nil
}
