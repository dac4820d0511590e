package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/examsmart/examsmart-backend/internal/detection"
	"github.com/examsmart/examsmart-backend/internal/metrics"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Grader runs the grading batch for one locked attempt.
type Grader struct {
	detector detection.Detector
	log      zerolog.Logger
}

// NewGrader creates a Grader.
func NewGrader(detector detection.Detector, log zerolog.Logger) *Grader {
	return &Grader{
		detector: detector,
		log:      log.With().Str("component", "grader").Logger(),
	}
}

// Grade scores every answer of the attempt held by tx and marks it completed.
// Answers are graded one at a time, in id order, each update written before
// the next. Detection never fails the batch; database errors do.
func (g *Grader) Grade(ctx context.Context, tx repository.AttemptTx) error {
	start := time.Now()
	defer func() { metrics.GradingDuration.Observe(time.Since(start).Seconds()) }()

	a := tx.Attempt()
	log := g.log.With().Int("attempt_id", a.ID).Int("exam_id", a.ExamID).Int("student_id", a.StudentID).Logger()

	exam, err := tx.Exam(ctx)
	if err != nil {
		return fmt.Errorf("load exam: %w", err)
	}

	answers, err := tx.ListAnswers(ctx)
	if err != nil {
		return fmt.Errorf("list answers: %w", err)
	}

	if len(answers) == 0 {
		passed := exam.PassingScore <= 0
		log.Info().Msg("No answers submitted, grading as zero")
		return tx.Finalize(ctx, repository.Finalization{
			Status:      model.AttemptStatusCompleted,
			Score:       0,
			AIDetected:  0,
			Passed:      &passed,
			SubmittedAt: time.Now(),
		})
	}

	ids := make([]int, 0, len(answers))
	seen := make(map[int]bool, len(answers))
	for _, ans := range answers {
		if !seen[ans.QuestionID] {
			seen[ans.QuestionID] = true
			ids = append(ids, ans.QuestionID)
		}
	}
	questions, err := tx.QuestionsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	aiDetected := 0
	for _, ans := range answers {
		q, ok := questions[ans.QuestionID]
		if !ok {
			continue
		}

		var (
			isCorrect bool
			points    int
		)
		switch {
		case q.Type.IsFreeText():
			var machine bool
			isCorrect, points, machine = g.gradeFreeText(ctx, &q, ans.Answer)
			if machine {
				aiDetected++
				log.Info().Int("question_id", q.ID).Msg("Answer flagged as machine-generated")
			}
		case ans.Graded():
			continue
		default:
			letter := ans.Answer
			if l, _, ok := resolveChoice(&q, ans.Answer, ans.SelectedOptionID); ok {
				letter = l
			}
			isCorrect, points = scoreChoice(letter, &q)
		}

		if err := tx.GradeAnswer(ctx, ans.ID, isCorrect, points); err != nil {
			return fmt.Errorf("grade answer %d: %w", ans.ID, err)
		}
	}

	graded, err := tx.ListAnswers(ctx)
	if err != nil {
		return fmt.Errorf("reload answers: %w", err)
	}
	earned := 0
	for _, ans := range graded {
		if ans.Points != nil {
			earned += *ans.Points
		}
	}

	total, err := tx.ExamTotalPoints(ctx)
	if err != nil {
		return fmt.Errorf("total points: %w", err)
	}

	score := percentage(earned, total)
	passed := score >= exam.PassingScore

	if err := tx.Finalize(ctx, repository.Finalization{
		Status:      model.AttemptStatusCompleted,
		Score:       score,
		AIDetected:  aiDetected,
		Passed:      &passed,
		SubmittedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}

	log.Info().
		Int("earned", earned).
		Int("total", total).
		Int("score", score).
		Int("ai_detected", aiDetected).
		Msg("Attempt graded")
	return nil
}

// gradeFreeText awards full points unless the answer is blank or machine-generated.
func (g *Grader) gradeFreeText(ctx context.Context, q *model.Question, answer string) (isCorrect bool, points int, machine bool) {
	if strings.TrimSpace(answer) == "" {
		return false, 0, false
	}
	res := g.detector.Classify(ctx, answer)
	if res.IsMachineGenerated {
		return false, 0, true
	}
	return true, q.Points, false
}
