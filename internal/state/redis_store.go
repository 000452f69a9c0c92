package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/speaklens/speaklens/internal/models"
	"github.com/speaklens/speaklens/internal/utils"
)

const sessionKeyPrefix = "assessment:session:"

// RedisStore persists session snapshots as JSON values in Redis.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var s models.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// data corrupt: treat as missing by deleting
		_ = r.rdb.Del(ctx, sessionKey(id)).Err()
		return nil, utils.ErrNotFound
	}

	// refresh activity so a session being read is not swept mid-flight
	s.LastActivity = time.Now().UTC()
	if b, merr := json.Marshal(&s); merr == nil {
		_ = r.rdb.Set(ctx, sessionKey(id), b, 0).Err()
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s *models.Session) error {
	s.LastActivity = time.Now().UTC()
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(s.ID), b, 0).Err()
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisStore) Sweep(ctx context.Context, idleThreshold time.Duration) (int, error) {
	now := time.Now().UTC()
	evicted := 0

	iter := r.rdb.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var s models.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			_ = r.rdb.Del(ctx, key).Err()
			evicted++
			continue
		}
		if now.Sub(s.LastActivity) > idleThreshold {
			_ = r.rdb.Del(ctx, key).Err()
			evicted++
		}
	}
	return evicted, iter.Err()
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := r.rdb.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}
