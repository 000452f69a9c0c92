package assessment

import (
	"testing"

	"github.com/speaklens/speaklens/internal/models"
)

func TestComputeSignalsWPM(t *testing.T) {
	turns := []models.Turn{
		{UserTranscript: "one two three", DurationMS: 30000},
	}

	sig := ComputeSignals(turns)
	if sig.WPM != 6 {
		t.Fatalf("expected 6 wpm, got %d", sig.WPM)
	}
	if sig.TotalTurns != 1 {
		t.Fatalf("expected 1 turn, got %d", sig.TotalTurns)
	}
	if sig.TotalDuration != 30000 {
		t.Fatalf("expected total duration 30000, got %d", sig.TotalDuration)
	}
	if sig.AvgTurnDur != 30000 {
		t.Fatalf("expected avg turn duration 30000, got %d", sig.AvgTurnDur)
	}
}

func TestComputeSignalsFillers(t *testing.T) {
	turns := []models.Turn{
		{UserTranscript: "Um I think, you know, it's like fine. I mean mostly.", DurationMS: 60000},
	}

	// um, you know, like, i mean = 4 fillers in one minute
	sig := ComputeSignals(turns)
	if sig.FillersPerMin != 4 {
		t.Fatalf("expected 4 fillers per min, got %d", sig.FillersPerMin)
	}
}

func TestComputeSignalsFillerWholeWordOnly(t *testing.T) {
	// "umbrella" and "likely" must not count
	turns := []models.Turn{
		{UserTranscript: "my umbrella is likely broken", DurationMS: 60000},
	}

	if sig := ComputeSignals(turns); sig.FillersPerMin != 0 {
		t.Fatalf("expected 0 fillers, got %d", sig.FillersPerMin)
	}
}

func TestComputeSignalsSkipsSilentTurns(t *testing.T) {
	turns := []models.Turn{
		{UserTranscript: "", DurationMS: 5000},
		{UserTranscript: "hello there", DurationMS: 10000},
		{UserTranscript: "", DurationMS: 7000},
	}

	sig := ComputeSignals(turns)
	if sig.TotalTurns != 1 {
		t.Fatalf("expected 1 qualifying turn, got %d", sig.TotalTurns)
	}
	if sig.TotalDuration != 10000 {
		t.Fatalf("expected duration 10000, got %d", sig.TotalDuration)
	}
}

func TestComputeSignalsEmpty(t *testing.T) {
	if sig := ComputeSignals(nil); sig != (models.Signals{}) {
		t.Fatalf("expected zero signals, got %+v", sig)
	}

	silent := []models.Turn{{UserTranscript: "", DurationMS: 3000}}
	if sig := ComputeSignals(silent); sig != (models.Signals{}) {
		t.Fatalf("expected zero signals for silent-only turns, got %+v", sig)
	}
}

func TestSilenceRatioOverridable(t *testing.T) {
	orig := SilenceRatio
	defer func() { SilenceRatio = orig }()

	SilenceRatio = func([]models.Turn) float64 { return 0.42 }
	sig := ComputeSignals([]models.Turn{{UserTranscript: "hi", DurationMS: 1000}})
	if sig.SilenceRatio != 0.42 {
		t.Fatalf("expected overridden silence ratio, got %v", sig.SilenceRatio)
	}
}
