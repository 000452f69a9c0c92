package models

import "time"

// Phase is one stage of the fixed assessment sequence.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseWarmup      Phase = "warmup"
	PhaseInterviewQ1 Phase = "interview_q1"
	PhaseInterviewQ2 Phase = "interview_q2"
	PhaseTask        Phase = "task"
	PhaseListening   Phase = "listening"
	PhaseWrap        Phase = "wrap"
	PhaseComplete    Phase = "complete"
)

// TaskVariant is the task-phase exercise chosen once per session.
type TaskVariant string

const (
	TaskPicture  TaskVariant = "picture"
	TaskRoleplay TaskVariant = "roleplay"
)

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Session is one end-to-end assessment attempt. The engine is the sole
// writer; stores only persist and retrieve full snapshots.
type Session struct {
	ID             string          `bson:"session_id" json:"session_id"` // uuid v4
	Phase          Phase           `bson:"phase" json:"phase"`
	PhaseStartTime time.Time       `bson:"phase_start_time" json:"phase_start_time"`
	TurnIndex      int             `bson:"turn_index" json:"turn_index"`
	Turns          []Turn          `bson:"turns" json:"turns"`
	Metadata       SessionMetadata `bson:"metadata" json:"metadata"`
	Scores         *FinalScore     `bson:"scores,omitempty" json:"scores,omitempty"`
	Status         string          `bson:"status" json:"status"` // active|ended

	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	LastActivity time.Time `bson:"last_activity" json:"last_activity"`
}

// Turn is one user-utterance/AI-response exchange. Immutable once appended.
type Turn struct {
	Index          int       `bson:"index" json:"index"` // unique within a phase, not globally
	Phase          Phase     `bson:"phase" json:"phase"`
	Timestamp      time.Time `bson:"timestamp" json:"timestamp"`
	UserTranscript string    `bson:"user_transcript,omitempty" json:"user_transcript,omitempty"`
	UserAudioURL   string    `bson:"user_audio_url,omitempty" json:"user_audio_url,omitempty"`
	AIResponse     string    `bson:"ai_response" json:"ai_response"`

	// DurationMS is the wall time spent producing the AI response, not user
	// speaking time. Speaking-rate signals are derived from it regardless;
	// see the open-question note in DESIGN.md.
	DurationMS int64 `bson:"duration_ms" json:"duration_ms"`
}

type SessionMetadata struct {
	DeviceInfo       map[string]string `bson:"device_info,omitempty" json:"device_info,omitempty"`
	ConsentRecorded  bool              `bson:"consent_recorded" json:"consent_recorded"`
	MicTestCompleted bool              `bson:"mic_test_completed" json:"mic_test_completed"`
	TaskVariant      TaskVariant       `bson:"task_variant,omitempty" json:"task_variant,omitempty"`
	Interruptions    int               `bson:"interruptions" json:"interruptions"`
}
