package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/speaklens/speaklens/internal/models"
)

// CEFRThresholds are the ascending minimum total scores per band; anything
// below A2 maps to A1.
type CEFRThresholds struct {
	A2, B1, B2, C1, C2 int
}

func DefaultCEFRThresholds() CEFRThresholds {
	return CEFRThresholds{A2: 6, B1: 11, B2: 16, C1: 21, C2: 26}
}

// ThresholdsFromEnv reads CEFR_THRESHOLDS_A2..C2, falling back to defaults.
func ThresholdsFromEnv() CEFRThresholds {
	t := DefaultCEFRThresholds()
	read := func(key string, dst *int) {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = v
		}
	}
	read("CEFR_THRESHOLDS_A2", &t.A2)
	read("CEFR_THRESHOLDS_B1", &t.B1)
	read("CEFR_THRESHOLDS_B2", &t.B2)
	read("CEFR_THRESHOLDS_C1", &t.C1)
	read("CEFR_THRESHOLDS_C2", &t.C2)
	return t
}

func (t CEFRThresholds) IsZero() bool {
	return t == CEFRThresholds{}
}

// Level maps a total rubric score to its CEFR band.
func (t CEFRThresholds) Level(total int) string {
	switch {
	case total >= t.C2:
		return "C2"
	case total >= t.C1:
		return "C1"
	case total >= t.B2:
		return "B2"
	case total >= t.B1:
		return "B1"
	case total >= t.A2:
		return "A2"
	default:
		return "A1"
	}
}

const scoringSystemPreamble = "You are a certified English assessor. Respond only with valid JSON."

func scoringPrompt(transcript string, contextJSON []byte) string {
	return fmt.Sprintf(`%s

You are a certified English assessor. Evaluate the following response based on the rubric:

TRANSCRIPT: %s

METADATA: %s

RUBRIC:
- Fluency (0-5): continuity, pace, pauses, fillers
- Pronunciation (0-5): intelligibility, phoneme accuracy, stress
- Grammar (0-5): verb tenses, agreement, sentence variety
- Vocabulary (0-5): range, appropriacy, collocations
- Comprehension (0-5): relevance, accuracy, listening skills
- Task Completion (0-5): coverage of required elements

Provide scores as JSON:
{
  "scores": {
    "fluency": number,
    "pronunciation": number,
    "grammar": number,
    "vocabulary": number,
    "comprehension": number,
    "task_completion": number
  },
  "rationale": "brief explanation (max 200 chars)",
  "confidence": 0.0-1.0
}`, scoringSystemPreamble, transcript, contextJSON)
}

type rubricResponse struct {
	Scores     models.RubricScores `json:"scores"`
	Rationale  string              `json:"rationale"`
	Confidence float64             `json:"confidence"`
}

// Finalize computes the final score for the session, caching it on first
// success. A malformed response from the scoring collaborator fails the
// whole operation and leaves Scores nil; a later retry may still succeed.
func (e *Engine) Finalize(ctx context.Context, s *models.Session) (*models.FinalScore, error) {
	if s.Scores != nil {
		return s.Scores, nil
	}

	var parts []string
	for _, t := range s.Turns {
		if t.UserTranscript != "" {
			parts = append(parts, t.UserTranscript)
		}
	}
	transcript := strings.Join(parts, " ")

	signals := ComputeSignals(s.Turns)

	scoreCtx, err := json.Marshal(map[string]any{
		"session_id":  s.ID,
		"phase":       s.Phase,
		"total_turns": len(s.Turns),
		"metadata":    s.Metadata,
		"signals":     signals,
	})
	if err != nil {
		return nil, err
	}

	raw, err := e.completeLLM(ctx, scoringPrompt(transcript, scoreCtx))
	if err != nil {
		return nil, err
	}

	var parsed rubricResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("invalid scoring response format: %w", err)
	}

	total := parsed.Scores.Sum()
	fs := &models.FinalScore{
		LevelCEFR: e.thresholds().Level(total),
		Scores: models.ScoreBreakdown{
			RubricScores:     parsed.Scores,
			AutomatedSignals: signals,
		},
		Confidence: parsed.Confidence,
		Rationale:  parsed.Rationale,
		TotalScore: total,
		Signals:    signals,
	}

	s.Scores = fs
	return fs, nil
}

// completeLLM collects the streamed answer into one string.
func (e *Engine) completeLLM(ctx context.Context, prompt string) (string, error) {
	chunks, errs := e.LLM.StreamAnswer(ctx, prompt)

	var full strings.Builder
	for chunk := range chunks {
		full.WriteString(chunk)
	}
	if err := <-errs; err != nil {
		return "", err
	}
	return full.String(), nil
}

// stripFences unwraps a markdown-fenced code block if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
