package assessment

import (
	"math"
	"regexp"
	"strings"

	"github.com/speaklens/speaklens/internal/models"
)

// fillerWords are matched as whole words (or whole phrases), case-insensitive.
var fillerWords = []string{"uh", "um", "like", "you know", "i mean"}

var fillerPatterns = func() []*regexp.Regexp {
	ps := make([]*regexp.Regexp, len(fillerWords))
	for i, w := range fillerWords {
		ps[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return ps
}()

// SilenceRatio stands in for real audio analysis, which this engine does not
// have. It is a package variable so a real signal-processing implementation
// can replace it without touching callers.
var SilenceRatio = func(turns []models.Turn) float64 {
	return 0.15
}

// ComputeSignals derives the automated speech metrics from the turn log.
// Only turns with a non-empty user transcript qualify; with none, the zero
// Signals is returned.
//
// Turn duration measures AI-response processing latency, not user speaking
// time, and the rate signals inherit that; see DESIGN.md.
func ComputeSignals(turns []models.Turn) models.Signals {
	spoken := make([]models.Turn, 0, len(turns))
	for _, t := range turns {
		if t.UserTranscript != "" {
			spoken = append(spoken, t)
		}
	}
	if len(spoken) == 0 {
		return models.Signals{}
	}

	var totalWords, totalFillers int
	var totalDur int64
	for _, t := range spoken {
		totalWords += len(strings.Fields(t.UserTranscript))
		totalDur += t.DurationMS

		lower := strings.ToLower(t.UserTranscript)
		for _, p := range fillerPatterns {
			totalFillers += len(p.FindAllString(lower, -1))
		}
	}

	sig := models.Signals{
		SilenceRatio:  SilenceRatio(spoken),
		TotalTurns:    len(spoken),
		TotalDuration: totalDur,
		AvgTurnDur:    int64(math.Round(float64(totalDur) / float64(len(spoken)))),
	}
	if totalDur > 0 {
		sig.WPM = int(math.Round(float64(totalWords) / float64(totalDur) * 60000))
		sig.FillersPerMin = int(math.Round(float64(totalFillers) / float64(totalDur) * 60000))
	}
	return sig
}
