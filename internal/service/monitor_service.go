package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Monitor event types.
const (
	EventAttemptStarted   = "attempt_started"
	EventAnswerSubmitted  = "answer_submitted"
	EventAttemptCompleted = "attempt_completed"
	EventAttemptAbandoned = "attempt_abandoned"
)

// MonitorEvent is published on the exam's monitor channel.
type MonitorEvent struct {
	Type       string              `json:"type"`
	ExamID     int                 `json:"examId"`
	AttemptID  int                 `json:"attemptId"`
	StudentID  int                 `json:"studentId"`
	QuestionID int                 `json:"questionId,omitempty"`
	Status     model.AttemptStatus `json:"status,omitempty"`
	Score      *int                `json:"score,omitempty"`
	AIDetected int                 `json:"AI_detected"`
	At         time.Time           `json:"at"`
}

// attemptEvent builds an event from the attempt's current state.
func attemptEvent(typ string, a *model.StudentExam) MonitorEvent {
	return MonitorEvent{
		Type:       typ,
		ExamID:     a.ExamID,
		AttemptID:  a.ID,
		StudentID:  a.StudentID,
		Status:     a.Status,
		Score:      a.Score,
		AIDetected: a.AIDetected,
		At:         time.Now(),
	}
}

// EventPublisher delivers monitor events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev MonitorEvent)
}

// RedisEventPublisher publishes events over Redis Pub/Sub.
type RedisEventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisEventPublisher(rdb *redis.Client, log zerolog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{rdb: rdb, log: log.With().Str("component", "monitor_publisher").Logger()}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, ev MonitorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.ExamID), payload).Err(); err != nil {
		p.log.Warn().Err(err).Str("type", ev.Type).Int("exam_id", ev.ExamID).Msg("Failed to publish monitor event")
	}
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, MonitorEvent) {}

// ResultLister lists the attempts of an exam for its professor.
type ResultLister interface {
	ListResultsByExam(ctx context.Context, examID int) ([]model.StudentResult, error)
}

// MonitorSnapshot is the first message of a monitor stream and each periodic refresh.
type MonitorSnapshot struct {
	Exam struct {
		ID             int    `json:"id"`
		Title          string `json:"title"`
		Duration       int    `json:"duration"`
		TotalQuestions int    `json:"totalQuestions"`
	} `json:"exam"`
	Stats struct {
		Joined     int `json:"joined"`
		InProgress int `json:"inProgress"`
		Completed  int `json:"completed"`
		Abandoned  int `json:"abandoned"`
	} `json:"stats"`
	Students []model.StudentResult `json:"students"`
}

// MonitorService builds live monitor data for exam owners.
type MonitorService struct {
	exams   ExamStore
	results ResultLister
	rdb     *redis.Client
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(exams ExamStore, results ResultLister, rdb *redis.Client) *MonitorService {
	return &MonitorService{exams: exams, results: results, rdb: rdb}
}

// Authorize checks that the professor owns the exam and returns it with its questions.
func (s *MonitorService) Authorize(ctx context.Context, professorID, examID int) (*model.Exam, error) {
	e, err := s.exams.GetWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if e.CreatorID != professorID {
		return nil, ErrNotExamOwner
	}
	return e, nil
}

// Snapshot lists every attempt of the exam with status, score and answered count.
func (s *MonitorService) Snapshot(ctx context.Context, e *model.Exam) (*MonitorSnapshot, error) {
	results, err := s.results.ListResultsByExam(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	snap := &MonitorSnapshot{Students: results}
	snap.Exam.ID = e.ID
	snap.Exam.Title = e.Title
	snap.Exam.Duration = e.Duration
	snap.Exam.TotalQuestions = len(e.Questions)
	snap.Stats.Joined = len(results)
	for _, r := range results {
		switch r.Status {
		case model.AttemptStatusInProgress:
			snap.Stats.InProgress++
		case model.AttemptStatusCompleted:
			snap.Stats.Completed++
		case model.AttemptStatusAbandoned:
			snap.Stats.Abandoned++
		}
	}
	return snap, nil
}

// Subscribe attaches to the exam's event channel. The caller must close it.
func (s *MonitorService) Subscribe(ctx context.Context, examID int) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID))
}
