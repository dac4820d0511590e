package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is the subset of the Redis client the workers use. *redis.Client satisfies it.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LPop(ctx context.Context, key string) *redis.StringCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// expiredJob is one queued attempt whose time ran out.
type expiredJob struct {
	AttemptID int `json:"attempt_id"`
	ExamID    int `json:"exam_id"`
	StudentID int `json:"student_id"`
	Retries   int `json:"retries"`
}
