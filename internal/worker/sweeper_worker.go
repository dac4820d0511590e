package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/rs/zerolog"
)

// SweepBatchSize caps how many attempts one sweep enqueues.
const SweepBatchSize = 500

// ExpiredFinder lists in-progress attempts past their deadline plus grace.
type ExpiredFinder interface {
	FindExpired(ctx context.Context, grace time.Duration, limit int) ([]model.ExpiredAttempt, error)
}

// SweeperWorker periodically enqueues expired attempts for the GradingWorker.
// Only one instance sweeps per interval, guarded by a Redis lock.
type SweeperWorker struct {
	queue    Queue
	finder   ExpiredFinder
	grace    time.Duration
	interval time.Duration
	log      zerolog.Logger
}

// NewSweeperWorker creates a new SweeperWorker.
func NewSweeperWorker(queue Queue, finder ExpiredFinder, grace, interval time.Duration, log zerolog.Logger) *SweeperWorker {
	return &SweeperWorker{
		queue:    queue,
		finder:   finder,
		grace:    grace,
		interval: interval,
		log:      log.With().Str("component", "sweeper_worker").Logger(),
	}
}

// Start sweeps once immediately and then every interval until ctx ends.
func (w *SweeperWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.sweep(ctx); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Sweep failed")
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// sweep enqueues expired attempts and returns how many were queued.
// It does nothing when another instance holds the lock.
func (w *SweeperWorker) sweep(ctx context.Context) (int, error) {
	// Expire slightly before the next tick so the holder can sweep again.
	ttl := w.interval - w.interval/10
	acquired, err := w.queue.SetNX(ctx, config.WorkerKey.SweeperLock, time.Now().Unix(), ttl).Result()
	if err != nil {
		return 0, err
	}
	if !acquired {
		return 0, nil
	}

	expired, err := w.finder.FindExpired(ctx, w.grace, SweepBatchSize)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	payloads := make([]interface{}, 0, len(expired))
	for _, e := range expired {
		raw, err := json.Marshal(expiredJob{AttemptID: e.ID, ExamID: e.ExamID, StudentID: e.StudentID})
		if err != nil {
			return 0, err
		}
		payloads = append(payloads, raw)
	}

	if err := w.queue.RPush(ctx, config.WorkerKey.ExpiredAttemptsQueue, payloads...).Err(); err != nil {
		return 0, err
	}

	w.log.Info().Int("count", len(payloads)).Msg("Expired attempts enqueued")
	return len(payloads), nil
}
