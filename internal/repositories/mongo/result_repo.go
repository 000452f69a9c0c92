package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/speaklens/speaklens/internal/models"
	"github.com/speaklens/speaklens/internal/utils"
)

type ResultRepository interface {
	Upsert(ctx context.Context, r *models.AssessmentResult) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.AssessmentResult, error)
}

type resultRepo struct {
	col *mongo.Collection
}

func NewResultRepo(db *mongo.Database) ResultRepository {
	return &resultRepo{col: db.Collection("results")}
}

func (r *resultRepo) Upsert(ctx context.Context, res *models.AssessmentResult) error {
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": res.SessionID},
		bson.M{"$set": bson.M{
			"result":     res.Result,
			"created_at": res.CreatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *resultRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.AssessmentResult, error) {
	var res models.AssessmentResult
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&res)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &res, err
}
