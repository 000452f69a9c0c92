package assessment

import (
	"testing"
	"time"

	"github.com/speaklens/speaklens/internal/models"
)

func TestDefaultPhaseTableOrder(t *testing.T) {
	table := DefaultPhaseTable()

	want := []models.Phase{
		models.PhaseInit,
		models.PhaseWarmup,
		models.PhaseInterviewQ1,
		models.PhaseInterviewQ2,
		models.PhaseTask,
		models.PhaseListening,
		models.PhaseWrap,
		models.PhaseComplete,
	}

	got := table.Phases()
	if len(got) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(got))
	}
	for i, p := range want {
		if got[i] != p {
			t.Errorf("phase %d: expected %q, got %q", i, p, got[i])
		}
	}

	// successor chain follows the order exactly
	for i := 0; i < len(want)-1; i++ {
		next, ok := table.Next(want[i])
		if !ok {
			t.Fatalf("phase %q: expected a successor", want[i])
		}
		if next != want[i+1] {
			t.Errorf("phase %q: expected successor %q, got %q", want[i], want[i+1], next)
		}
	}
}

func TestDefaultPhaseTableDurations(t *testing.T) {
	table := DefaultPhaseTable()

	cases := map[models.Phase]time.Duration{
		models.PhaseInit:        45 * time.Second,
		models.PhaseWarmup:      30 * time.Second,
		models.PhaseInterviewQ1: 60 * time.Second,
		models.PhaseInterviewQ2: 60 * time.Second,
		models.PhaseTask:        90 * time.Second,
		models.PhaseListening:   60 * time.Second,
		models.PhaseWrap:        15 * time.Second,
		models.PhaseComplete:    0,
	}
	for p, d := range cases {
		if got := table.Duration(p); got != d {
			t.Errorf("phase %q: expected duration %v, got %v", p, d, got)
		}
	}
}

func TestCompleteHasNoSuccessor(t *testing.T) {
	table := DefaultPhaseTable()
	if next, ok := table.Next(models.PhaseComplete); ok {
		t.Fatalf("complete should be terminal, got successor %q", next)
	}
}

func TestUnknownPhasePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown phase")
		}
	}()
	DefaultPhaseTable().Duration(models.Phase("karaoke"))
}

func TestAdvanceIsMonotone(t *testing.T) {
	e := &Engine{Table: DefaultPhaseTable()}
	s := e.NewSession()

	for i := 0; i < 20; i++ {
		before := e.Table.Index(s.Phase)
		e.Advance(s)
		after := e.Table.Index(s.Phase)
		if after < before {
			t.Fatalf("advance moved backwards: %d -> %d", before, after)
		}
	}

	// terminal phase is absorbing
	if s.Phase != models.PhaseComplete {
		t.Fatalf("expected to land on complete, got %q", s.Phase)
	}
	if got := e.Advance(s); got != models.PhaseComplete {
		t.Fatalf("advance on complete should no-op, got %q", got)
	}
}

func TestAdvanceResetsTurnIndex(t *testing.T) {
	e := &Engine{Table: DefaultPhaseTable()}
	s := e.NewSession()
	s.TurnIndex = 7

	e.Advance(s)
	if s.TurnIndex != 0 {
		t.Fatalf("expected turn index reset to 0, got %d", s.TurnIndex)
	}
	if s.Phase != models.PhaseWarmup {
		t.Fatalf("expected warmup, got %q", s.Phase)
	}
}

func TestTimeRemainingAndTimeout(t *testing.T) {
	e := &Engine{Table: DefaultPhaseTable()}
	s := e.NewSession()

	if e.HasTimedOut(s) {
		t.Fatal("fresh session should not be timed out")
	}
	if rem := e.TimeRemaining(s); rem <= 0 || rem > 45*time.Second {
		t.Fatalf("unexpected time remaining %v", rem)
	}

	s.PhaseStartTime = time.Now().UTC().Add(-46 * time.Second)
	if !e.HasTimedOut(s) {
		t.Fatal("expected timeout after budget elapsed")
	}
	if rem := e.TimeRemaining(s); rem != 0 {
		t.Fatalf("expected zero remaining, got %v", rem)
	}

	// terminal phase has no budget and never times out
	s.Phase = models.PhaseComplete
	if e.HasTimedOut(s) {
		t.Fatal("complete phase should never time out")
	}
}
