package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// TranscriptLog is the durable per-utterance archive row. One row per user
// utterance and one per AI prompt; the session turn log stays authoritative.
type TranscriptLog struct {
	ID        string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string          `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	Phase     string          `gorm:"column:phase;type:text" json:"phase"`
	TurnIndex int             `gorm:"column:turn_index" json:"turn_index"`
	Role      string          `gorm:"column:role;type:text" json:"role"` // "user" | "assistant"
	Content   string          `gorm:"column:content;type:text" json:"content"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"embedding"`
	Timestamp time.Time       `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata  datatypes.JSON  `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (TranscriptLog) TableName() string { return "assessment_turns" }
