package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/speaklens/speaklens/internal/models"
)

type TranscriptRepo interface {
	Insert(ctx context.Context, rows []*models.TranscriptLog) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TranscriptLog, error)
}

type transcriptRepo struct {
	db *gorm.DB
}

func NewTranscriptRepo(db *gorm.DB) TranscriptRepo {
	return &transcriptRepo{db: db}
}

func (r *transcriptRepo) Insert(ctx context.Context, rows []*models.TranscriptLog) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

func (r *transcriptRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]models.TranscriptLog, error) {
	if limit <= 0 {
		limit = 200
	}

	var rows []models.TranscriptLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
