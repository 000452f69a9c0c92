package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Signals are the automated, non-AI-judged metrics derived from the turn log.
type Signals struct {
	WPM           int     `bson:"wpm" json:"wpm"`
	SilenceRatio  float64 `bson:"silence_ratio" json:"silence_ratio"`
	FillersPerMin int     `bson:"fillers_per_min" json:"fillers_per_min"`
	TotalTurns    int     `bson:"total_turns" json:"total_turns"`
	TotalDuration int64   `bson:"total_duration" json:"total_duration"` // ms
	AvgTurnDur    int64   `bson:"average_turn_duration" json:"average_turn_duration"`
}

// RubricScores are the six 0-5 dimensions judged by the scoring collaborator.
type RubricScores struct {
	Fluency        int `bson:"fluency" json:"fluency"`
	Pronunciation  int `bson:"pronunciation" json:"pronunciation"`
	Grammar        int `bson:"grammar" json:"grammar"`
	Vocabulary     int `bson:"vocabulary" json:"vocabulary"`
	Comprehension  int `bson:"comprehension" json:"comprehension"`
	TaskCompletion int `bson:"task_completion" json:"task_completion"`
}

func (r RubricScores) Sum() int {
	return r.Fluency + r.Pronunciation + r.Grammar + r.Vocabulary + r.Comprehension + r.TaskCompletion
}

// ScoreBreakdown is the per-dimension rubric with the automated signals
// embedded alongside, mirroring the shape reported to clients.
type ScoreBreakdown struct {
	RubricScores     `bson:",inline"`
	AutomatedSignals Signals `bson:"automated_signals" json:"automated_signals"`
}

// FinalScore is computed at most once per session, then cached.
type FinalScore struct {
	LevelCEFR  string         `bson:"level_cefr" json:"level_cefr"`
	Scores     ScoreBreakdown `bson:"scores" json:"scores"`
	Confidence float64        `bson:"confidence" json:"confidence"`
	Rationale  string         `bson:"rationale" json:"rationale"`
	TotalScore int            `bson:"total_score" json:"total_score"`
	Signals    Signals        `bson:"signals" json:"signals"`
}

// AssessmentResult is the archived copy of a finalized session's outcome.
type AssessmentResult struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Result    FinalScore         `bson:"result" json:"result"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
