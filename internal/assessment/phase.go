package assessment

import (
	"fmt"
	"time"

	"github.com/speaklens/speaklens/internal/models"
)

type phaseSpec struct {
	duration time.Duration
	next     models.Phase
	hasNext  bool
}

// PhaseTable is the immutable phase configuration: ordered phase list with a
// duration budget and single successor per phase. Built once at startup and
// injected into the engine; a lookup for an unknown phase is a programming
// error and panics.
type PhaseTable struct {
	order []models.Phase
	specs map[models.Phase]phaseSpec
}

func DefaultPhaseTable() *PhaseTable {
	return &PhaseTable{
		order: []models.Phase{
			models.PhaseInit,
			models.PhaseWarmup,
			models.PhaseInterviewQ1,
			models.PhaseInterviewQ2,
			models.PhaseTask,
			models.PhaseListening,
			models.PhaseWrap,
			models.PhaseComplete,
		},
		specs: map[models.Phase]phaseSpec{
			models.PhaseInit:        {duration: 45 * time.Second, next: models.PhaseWarmup, hasNext: true},
			models.PhaseWarmup:      {duration: 30 * time.Second, next: models.PhaseInterviewQ1, hasNext: true},
			models.PhaseInterviewQ1: {duration: 60 * time.Second, next: models.PhaseInterviewQ2, hasNext: true},
			models.PhaseInterviewQ2: {duration: 60 * time.Second, next: models.PhaseTask, hasNext: true},
			models.PhaseTask:        {duration: 90 * time.Second, next: models.PhaseListening, hasNext: true},
			models.PhaseListening:   {duration: 60 * time.Second, next: models.PhaseWrap, hasNext: true},
			models.PhaseWrap:        {duration: 15 * time.Second, next: models.PhaseComplete, hasNext: true},
			models.PhaseComplete:    {duration: 0},
		},
	}
}

func (t *PhaseTable) spec(p models.Phase) phaseSpec {
	s, ok := t.specs[p]
	if !ok {
		panic(fmt.Sprintf("assessment: unknown phase %q", p))
	}
	return s
}

// Duration returns the time budget for p; zero for the terminal phase.
func (t *PhaseTable) Duration(p models.Phase) time.Duration {
	return t.spec(p).duration
}

// Next returns the successor of p, or false for the terminal phase.
func (t *PhaseTable) Next(p models.Phase) (models.Phase, bool) {
	s := t.spec(p)
	return s.next, s.hasNext
}

// Phases returns the phase sequence in order.
func (t *PhaseTable) Phases() []models.Phase {
	out := make([]models.Phase, len(t.order))
	copy(out, t.order)
	return out
}

// Index returns the position of p in the sequence.
func (t *PhaseTable) Index(p models.Phase) int {
	t.spec(p)
	for i, q := range t.order {
		if q == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p names a configured phase.
func (t *PhaseTable) Valid(p models.Phase) bool {
	_, ok := t.specs[p]
	return ok
}
