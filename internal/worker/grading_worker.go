package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	GradingPollTimeout = 1 * time.Second
	// GradingJobTimeout bounds one expiry, detection calls included.
	GradingJobTimeout = 2 * time.Minute
	maxJobRetries     = 1
)

// AttemptExpirer closes attempts whose time ran out.
type AttemptExpirer interface {
	ExpireAttempt(ctx context.Context, attemptID int) (*model.StudentExam, error)
}

// GradingWorker consumes grade_expired_attempts_queue and closes each attempt.
type GradingWorker struct {
	queue   Queue
	expirer AttemptExpirer
	log     zerolog.Logger
}

// NewGradingWorker creates a new GradingWorker.
func NewGradingWorker(queue Queue, expirer AttemptExpirer, log zerolog.Logger) *GradingWorker {
	return &GradingWorker{
		queue:   queue,
		expirer: expirer,
		log:     log.With().Str("component", "grading_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *GradingWorker) processNext(ctx context.Context) {
	item, err := w.queue.BLPop(ctx, GradingPollTimeout, config.WorkerKey.ExpiredAttemptsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(GradingPollTimeout)
		}
		return
	}
	if len(item) < 2 {
		return
	}
	w.handle(context.WithoutCancel(ctx), item[1])
}

// drain processes whatever is left in the queue without blocking.
func (w *GradingWorker) drain(ctx context.Context) {
	for {
		raw, err := w.queue.LPop(ctx, config.WorkerKey.ExpiredAttemptsQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				w.log.Error().Err(err).Msg("Drain error")
			}
			return
		}
		w.handle(ctx, raw)
	}
}

// handle expires one attempt and requeues it once on failure.
func (w *GradingWorker) handle(ctx context.Context, raw string) {
	var job expiredJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.AttemptID <= 0 {
		w.log.Error().Err(err).Str("payload", raw).Msg("Invalid job payload")
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, GradingJobTimeout)
	defer cancel()

	a, err := w.expirer.ExpireAttempt(jobCtx, job.AttemptID)
	if err == nil {
		w.log.Debug().
			Int("attempt_id", a.ID).
			Str("status", string(a.Status)).
			Msg("Expired attempt processed")
		return
	}

	jobLog := w.log.With().
		Int("attempt_id", job.AttemptID).
		Int("exam_id", job.ExamID).
		Int("student_id", job.StudentID).
		Logger()

	if errors.Is(err, service.ErrAttemptNotFound) {
		jobLog.Warn().Msg("Expired attempt no longer exists")
		return
	}
	if job.Retries >= maxJobRetries {
		jobLog.Error().Err(err).Int("retries", job.Retries).Msg("Giving up on expired attempt")
		return
	}

	job.Retries++
	payload, _ := json.Marshal(job)
	if err := w.queue.RPush(ctx, config.WorkerKey.ExpiredAttemptsQueue, payload).Err(); err != nil {
		jobLog.Error().Err(err).Msg("Requeue failed")
		return
	}
	jobLog.Warn().Err(err).Msg("Expiry failed, requeued")
}
