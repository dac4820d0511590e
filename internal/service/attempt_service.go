package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/examsmart/examsmart-backend/internal/metrics"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Finalization triggers, used as a metrics label.
const (
	TriggerStudent = "student"
	TriggerExpired = "expired"
)

// ExamLookup is the exam data the attempt flow reads.
type ExamLookup interface {
	GetByID(ctx context.Context, id int) (*model.Exam, error)
	GetByKey(ctx context.Context, key string) (*model.Exam, error)
	GetWithQuestions(ctx context.Context, id int) (*model.Exam, error)
}

// AttemptStore is the attempt persistence used by AttemptService.
type AttemptStore interface {
	GetByID(ctx context.Context, id int) (*model.StudentExam, error)
	FindInProgress(ctx context.Context, examID, studentID int) (*model.StudentExam, error)
	HasAttempt(ctx context.Context, examID, studentID int) (bool, error)
	Create(ctx context.Context, a *model.StudentExam) error
	ListByStudent(ctx context.Context, studentID int) ([]model.AttemptSummary, error)
	ListAnswers(ctx context.Context, attemptID int) ([]model.StudentAnswer, error)
	WithAttemptLock(ctx context.Context, attemptID int, fn func(repository.AttemptTx) error) error
}

// AttemptService runs the attempt state machine:
// verify key, start, submit answers, complete.
type AttemptService struct {
	exams    ExamLookup
	attempts AttemptStore
	grader   *Grader
	papers   PaperCache
	events   EventPublisher
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	exams ExamLookup,
	attempts AttemptStore,
	grader *Grader,
	papers PaperCache,
	events EventPublisher,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		exams:    exams,
		attempts: attempts,
		grader:   grader,
		papers:   papers,
		events:   events,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// VerifyExamKey returns the id of the active exam with that key.
func (s *AttemptService) VerifyExamKey(ctx context.Context, key string) (int, error) {
	e, err := s.exams.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrExamNotFound
		}
		return 0, fmt.Errorf("get exam by key: %w", err)
	}
	if !e.IsActive {
		return 0, ErrExamInactive
	}
	return e.ID, nil
}

// StartExam returns the student's in-progress attempt for the exam, creating
// it when none exists. created reports whether a new row was inserted.
func (s *AttemptService) StartExam(ctx context.Context, studentID, examID int) (attempt *model.StudentExam, created bool, err error) {
	e, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrExamNotFound
		}
		return nil, false, fmt.Errorf("get exam: %w", err)
	}
	if !e.IsActive {
		return nil, false, ErrExamInactive
	}

	existing, err := s.attempts.FindInProgress(ctx, examID, studentID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("find attempt: %w", err)
	}

	a := &model.StudentExam{ExamID: examID, StudentID: studentID}
	if err := s.attempts.Create(ctx, a); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("create attempt: %w", err)
		}
		// Lost the insert race to a concurrent start.
		existing, err := s.attempts.FindInProgress(ctx, examID, studentID)
		if err != nil {
			return nil, false, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
		}
		return existing, false, nil
	}

	s.log.Info().Int("attempt_id", a.ID).Int("exam_id", examID).Int("student_id", studentID).Msg("Attempt started")
	s.events.Publish(ctx, attemptEvent(EventAttemptStarted, a))
	return a, true, nil
}

// SubmitAnswer stores the answer for one question, replacing any earlier one.
// Multiple choice answers are normalized to an option letter and scored here.
func (s *AttemptService) SubmitAnswer(ctx context.Context, studentID int, req *model.SubmitAnswerRequest) (*model.StudentAnswer, error) {
	var (
		saved   *model.StudentAnswer
		attempt model.StudentExam
	)
	err := s.withOpenAttempt(ctx, studentID, req.StudentExamID, func(tx repository.AttemptTx) error {
		attempt = *tx.Attempt()

		q, err := tx.Question(ctx, req.QuestionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("get question: %w", err)
		}
		if q.ExamID != attempt.ExamID {
			return ErrQuestionNotFound
		}

		ans := &model.StudentAnswer{QuestionID: q.ID, Answer: req.Answer}
		if q.Type == model.QuestionTypeMultipleChoice {
			letter, optionID, ok := resolveChoice(q, req.Answer, req.SelectedOptionID)
			if ok {
				ans.Answer = letter
				ans.SelectedOptionID = optionID
			}
			correct, points := false, 0
			if ok {
				correct, points = scoreChoice(letter, q)
			}
			ans.IsCorrect = &correct
			ans.Points = &points
		}

		if err := tx.UpsertAnswer(ctx, ans); err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		saved = ans
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := attemptEvent(EventAnswerSubmitted, &attempt)
	ev.QuestionID = saved.QuestionID
	s.events.Publish(ctx, ev)
	return saved, nil
}

// CompleteExam grades the attempt and marks it completed. It runs under the
// attempt lock, so it waits for in-flight answers and rejects a second call.
func (s *AttemptService) CompleteExam(ctx context.Context, studentID, attemptID int) (*model.StudentExam, error) {
	var done model.StudentExam
	err := s.withOpenAttempt(ctx, studentID, attemptID, func(tx repository.AttemptTx) error {
		if err := s.grader.Grade(ctx, tx); err != nil {
			return err
		}
		done = *tx.Attempt()
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AttemptsFinalized.WithLabelValues(string(done.Status), TriggerStudent).Inc()
	s.events.Publish(ctx, attemptEvent(EventAttemptCompleted, &done))
	return &done, nil
}

// ExpireAttempt closes an attempt whose time ran out: graded as completed
// when it has answers, abandoned otherwise. Attempts no longer in progress
// are returned unchanged.
func (s *AttemptService) ExpireAttempt(ctx context.Context, attemptID int) (*model.StudentExam, error) {
	var (
		result  model.StudentExam
		changed bool
		locked  bool
	)
	err := s.attempts.WithAttemptLock(ctx, attemptID, func(tx repository.AttemptTx) error {
		locked = true
		a := tx.Attempt()
		if a.Status != model.AttemptStatusInProgress {
			result = *a
			return nil
		}

		answers, err := tx.ListAnswers(ctx)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		if len(answers) > 0 {
			if err := s.grader.Grade(ctx, tx); err != nil {
				return err
			}
		} else {
			passed := false
			if err := tx.Finalize(ctx, repository.Finalization{
				Status:      model.AttemptStatusAbandoned,
				Score:       0,
				AIDetected:  0,
				Passed:      &passed,
				SubmittedAt: time.Now(),
			}); err != nil {
				return fmt.Errorf("abandon attempt: %w", err)
			}
		}
		result = *tx.Attempt()
		changed = true
		return nil
	})
	if err != nil {
		if !locked && errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	if !changed {
		return &result, nil
	}

	metrics.AttemptsFinalized.WithLabelValues(string(result.Status), TriggerExpired).Inc()
	typ := EventAttemptCompleted
	if result.Status == model.AttemptStatusAbandoned {
		typ = EventAttemptAbandoned
	}
	s.events.Publish(ctx, attemptEvent(typ, &result))
	s.log.Info().
		Int("attempt_id", result.ID).
		Int("exam_id", result.ExamID).
		Int("student_id", result.StudentID).
		Str("status", string(result.Status)).
		Msg("Expired attempt closed")
	return &result, nil
}

// ListMyAttempts returns the student's attempts, newest first.
func (s *AttemptService) ListMyAttempts(ctx context.Context, studentID int) ([]model.AttemptSummary, error) {
	return s.attempts.ListByStudent(ctx, studentID)
}

// GetMyAttempt returns one of the student's attempts with the exam and their
// answers. The answer key is only included once the attempt is over.
func (s *AttemptService) GetMyAttempt(ctx context.Context, studentID, attemptID int) (*model.AttemptDetail, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}

	e, err := s.exams.GetWithQuestions(ctx, a.ExamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	answers, err := s.attempts.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	detail := &model.AttemptDetail{StudentExam: *a, Answers: answers}
	if a.Status == model.AttemptStatusInProgress {
		detail.Exam = model.NewExamPaper(e)
	} else {
		e.ExamKey = ""
		detail.Exam = e
	}
	return detail, nil
}

// GetExamPaper returns the exam without its answer key. Only students with
// an attempt at the exam may read it.
func (s *AttemptService) GetExamPaper(ctx context.Context, studentID, examID int) (*model.ExamPaper, error) {
	ok, err := s.attempts.HasAttempt(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check attempt: %w", err)
	}
	if !ok {
		if _, err := s.exams.GetByID(ctx, examID); errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, ErrNoAttempt
	}

	if p, err := s.papers.Get(ctx, examID); err != nil {
		s.log.Warn().Err(err).Int("exam_id", examID).Msg("Exam paper cache read failed")
	} else if p != nil {
		return p, nil
	}

	e, err := s.exams.GetWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	p := model.NewExamPaper(e)
	if err := s.papers.Set(ctx, p); err != nil {
		s.log.Warn().Err(err).Int("exam_id", examID).Msg("Exam paper cache write failed")
	}
	return p, nil
}

// ActiveAttempt returns the student's in-progress attempt for the exam.
func (s *AttemptService) ActiveAttempt(ctx context.Context, studentID, examID int) (*model.StudentExam, error) {
	a, err := s.attempts.FindInProgress(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotInProgress
		}
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	return a, nil
}

// withOpenAttempt locks the attempt and checks, in order: it exists, the
// student owns it, it is still in progress. Then fn runs in the same transaction.
func (s *AttemptService) withOpenAttempt(ctx context.Context, studentID, attemptID int, fn func(repository.AttemptTx) error) error {
	locked := false
	err := s.attempts.WithAttemptLock(ctx, attemptID, func(tx repository.AttemptTx) error {
		locked = true
		a := tx.Attempt()
		if a.StudentID != studentID {
			return ErrNotAttemptOwner
		}
		if a.Status != model.AttemptStatusInProgress {
			return ErrAttemptNotInProgress
		}
		return fn(tx)
	})
	if !locked && errors.Is(err, pgx.ErrNoRows) {
		return ErrAttemptNotFound
	}
	return err
}
