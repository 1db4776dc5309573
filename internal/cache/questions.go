package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/examprep/backend/internal/models"
)

const poolKeyPrefix = "exam:pool:"

// QuestionCache keeps each exam's question pool as one JSON value.
type QuestionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewQuestionCache(rdb *redis.Client, ttl time.Duration) *QuestionCache {
	return &QuestionCache{rdb: rdb, ttl: ttl}
}

func poolKey(examID int64) string {
	return fmt.Sprintf("%s%d", poolKeyPrefix, examID)
}

// GetPool returns the cached pool; ok is false on a miss.
func (c *QuestionCache) GetPool(ctx context.Context, examID int64) ([]models.Question, bool, error) {
	raw, err := c.rdb.Get(ctx, poolKey(examID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get pool %d: %w", examID, err)
	}

	var pool []models.Question
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, false, fmt.Errorf("decode pool %d: %w", examID, err)
	}
	return pool, true, nil
}

func (c *QuestionCache) SetPool(ctx context.Context, examID int64, pool []models.Question) error {
	raw, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("encode pool %d: %w", examID, err)
	}
	if err := c.rdb.Set(ctx, poolKey(examID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set pool %d: %w", examID, err)
	}
	return nil
}

func (c *QuestionCache) InvalidatePool(ctx context.Context, examID int64) error {
	if err := c.rdb.Del(ctx, poolKey(examID)).Err(); err != nil {
		return fmt.Errorf("invalidate pool %d: %w", examID, err)
	}
	return nil
}
