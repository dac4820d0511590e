package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

const paperCacheTTL = 30 * time.Minute

// PaperCache stores the student-facing exam paper. Get returns nil, nil on a miss.
type PaperCache interface {
	Get(ctx context.Context, examID int) (*model.ExamPaper, error)
	Set(ctx context.Context, p *model.ExamPaper) error
	Invalidate(ctx context.Context, examID int) error
}

// RedisPaperCache keeps papers as JSON strings.
type RedisPaperCache struct {
	rdb *redis.Client
}

func NewRedisPaperCache(rdb *redis.Client) *RedisPaperCache {
	return &RedisPaperCache{rdb: rdb}
}

func (c *RedisPaperCache) Get(ctx context.Context, examID int) (*model.ExamPaper, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p model.ExamPaper
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil
	}
	return &p, nil
}

func (c *RedisPaperCache) Set(ctx context.Context, p *model.ExamPaper) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, config.CacheKey.ExamPaperKey(p.ID), data, paperCacheTTL).Err()
}

func (c *RedisPaperCache) Invalidate(ctx context.Context, examID int) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID)).Err()
}
