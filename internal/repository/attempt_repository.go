package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptTx is the unit of work for one locked attempt. Every method runs
// inside the transaction that holds the attempt's row lock.
type AttemptTx interface {
	// Attempt returns the attempt as read under the lock.
	Attempt() *model.StudentExam
	Exam(ctx context.Context) (*model.Exam, error)
	Question(ctx context.Context, questionID int) (*model.Question, error)
	QuestionsByIDs(ctx context.Context, ids []int) (map[int]model.Question, error)
	ExamTotalPoints(ctx context.Context) (int, error)
	UpsertAnswer(ctx context.Context, a *model.StudentAnswer) error
	ListAnswers(ctx context.Context) ([]model.StudentAnswer, error)
	GradeAnswer(ctx context.Context, answerID int, isCorrect bool, points int) error
	Finalize(ctx context.Context, f Finalization) error
}

// Finalization is the terminal state written to an attempt.
type Finalization struct {
	Status      model.AttemptStatus
	Score       int
	AIDetected  int
	Passed      *bool
	SubmittedAt time.Time
}

// AttemptRepository handles student exam attempts and their answers.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, status, score, ai_detected, passed, started_at, submitted_at`

func scanAttempt(row pgx.Row, a *model.StudentExam) error {
	return row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.Score, &a.AIDetected, &a.Passed,
		&a.StartedAt, &a.SubmittedAt)
}

// GetByID retrieves an attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id int) (*model.StudentExam, error) {
	a := &model.StudentExam{}
	if err := scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM student_exams WHERE id = $1`, id), a); err != nil {
		return nil, err
	}
	return a, nil
}

// FindInProgress retrieves the in-progress attempt for an exam-student pair.
func (r *AttemptRepository) FindInProgress(ctx context.Context, examID, studentID int) (*model.StudentExam, error) {
	a := &model.StudentExam{}
	err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM student_exams
		 WHERE exam_id = $1 AND student_id = $2 AND status = $3`,
		examID, studentID, model.AttemptStatusInProgress,
	), a)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// HasAttempt reports whether the student has any attempt for the exam.
func (r *AttemptRepository) HasAttempt(ctx context.Context, examID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM student_exams WHERE exam_id = $1 AND student_id = $2)`,
		examID, studentID,
	).Scan(&exists)
	return exists, err
}

// Create inserts a new in-progress attempt. If another in-progress attempt
// for the same pair wins the race, pgx.ErrNoRows is returned.
func (r *AttemptRepository) Create(ctx context.Context, a *model.StudentExam) error {
	a.Status = model.AttemptStatusInProgress
	return r.pool.QueryRow(ctx,
		`INSERT INTO student_exams (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id, started_at, ai_detected`,
		a.ExamID, a.StudentID, a.Status,
	).Scan(&a.ID, &a.StartedAt, &a.AIDetected)
}

// ListByStudent retrieves a student's attempts with exam info, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT se.id, se.exam_id, se.student_id, se.status, se.score, se.ai_detected, se.passed,
		        se.started_at, se.submitted_at, e.title, e.course_code, e.passing_score
		 FROM student_exams se
		 JOIN exams e ON e.id = se.exam_id
		 WHERE se.student_id = $1
		 ORDER BY se.started_at DESC, se.id DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []model.AttemptSummary{}
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.Score, &s.AIDetected, &s.Passed,
			&s.StartedAt, &s.SubmittedAt, &s.ExamTitle, &s.CourseCode, &s.PassingScore); err != nil {
			return nil, err
		}
		attempts = append(attempts, s)
	}
	return attempts, rows.Err()
}

// ListResultsByExam retrieves every attempt of an exam with student info and answered counts.
func (r *AttemptRepository) ListResultsByExam(ctx context.Context, examID int) ([]model.StudentResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT se.id, se.exam_id, se.student_id, se.status, se.score, se.ai_detected, se.passed,
		        se.started_at, se.submitted_at,
		        (SELECT COUNT(*) FROM student_answers sa WHERE sa.student_exam_id = se.id),
		        u.id, u.first_name, u.last_name, u.email
		 FROM student_exams se
		 JOIN users u ON u.id = se.student_id
		 WHERE se.exam_id = $1
		 ORDER BY se.started_at DESC, se.id DESC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.StudentResult{}
	for rows.Next() {
		var s model.StudentResult
		if err := rows.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.Score, &s.AIDetected, &s.Passed,
			&s.StartedAt, &s.SubmittedAt, &s.AnsweredCount,
			&s.Student.ID, &s.Student.FirstName, &s.Student.LastName, &s.Student.Email); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListAnswers retrieves the answers of an attempt outside any lock.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID int) ([]model.StudentAnswer, error) {
	return listAnswers(ctx, r.pool, attemptID)
}

// FindExpired returns in-progress attempts whose started_at + duration + grace has passed.
func (r *AttemptRepository) FindExpired(ctx context.Context, grace time.Duration, limit int) ([]model.ExpiredAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT se.id, se.exam_id, se.student_id
		 FROM student_exams se
		 JOIN exams e ON e.id = se.exam_id
		 WHERE se.status = 'in_progress'
		   AND se.started_at + make_interval(mins => e.duration) + make_interval(secs => $1) < NOW()
		 ORDER BY se.started_at
		 LIMIT $2`, grace.Seconds(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []model.ExpiredAttempt
	for rows.Next() {
		var e model.ExpiredAttempt
		if err := rows.Scan(&e.ID, &e.ExamID, &e.StudentID); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

// WithAttemptLock opens a transaction, locks the attempt row with
// SELECT ... FOR UPDATE and runs fn. Concurrent callers for the same attempt
// queue on the lock, so a completion waits for in-flight answer writes and
// later writes observe the completed status. fn's error rolls everything back.
func (r *AttemptRepository) WithAttemptLock(ctx context.Context, attemptID int, fn func(AttemptTx) error) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		a := &model.StudentExam{}
		if err := scanAttempt(tx.QueryRow(ctx,
			`SELECT `+attemptColumns+` FROM student_exams WHERE id = $1 FOR UPDATE`, attemptID), a); err != nil {
			return err
		}
		return fn(&pgAttemptTx{tx: tx, attempt: a})
	})
}

// pgAttemptTx implements AttemptTx over a pgx transaction.
type pgAttemptTx struct {
	tx      pgx.Tx
	attempt *model.StudentExam
}

func (t *pgAttemptTx) Attempt() *model.StudentExam { return t.attempt }

func (t *pgAttemptTx) Exam(ctx context.Context) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(t.tx.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, t.attempt.ExamID), e); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *pgAttemptTx) Question(ctx context.Context, questionID int) (*model.Question, error) {
	return getQuestion(ctx, t.tx, questionID)
}

func (t *pgAttemptTx) QuestionsByIDs(ctx context.Context, ids []int) (map[int]model.Question, error) {
	return questionsByIDs(ctx, t.tx, ids)
}

func (t *pgAttemptTx) ExamTotalPoints(ctx context.Context) (int, error) {
	var total int
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM questions WHERE exam_id = $1`, t.attempt.ExamID,
	).Scan(&total)
	return total, err
}

// UpsertAnswer inserts or replaces the single answer row for (attempt, question).
func (t *pgAttemptTx) UpsertAnswer(ctx context.Context, a *model.StudentAnswer) error {
	a.StudentExamID = t.attempt.ID
	return t.tx.QueryRow(ctx,
		`INSERT INTO student_answers (student_exam_id, question_id, answer, selected_option_id, is_correct, points)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (student_exam_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer,
		     selected_option_id = EXCLUDED.selected_option_id,
		     is_correct = EXCLUDED.is_correct,
		     points = EXCLUDED.points,
		     updated_at = NOW()
		 RETURNING id, updated_at`,
		a.StudentExamID, a.QuestionID, a.Answer, a.SelectedOptionID, a.IsCorrect, a.Points,
	).Scan(&a.ID, &a.UpdatedAt)
}

func (t *pgAttemptTx) ListAnswers(ctx context.Context) ([]model.StudentAnswer, error) {
	return listAnswers(ctx, t.tx, t.attempt.ID)
}

func (t *pgAttemptTx) GradeAnswer(ctx context.Context, answerID int, isCorrect bool, points int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE student_answers SET is_correct = $1, points = $2, updated_at = NOW()
		 WHERE id = $3 AND student_exam_id = $4`,
		isCorrect, points, answerID, t.attempt.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("grade answer %d: %w", answerID, pgx.ErrNoRows)
	}
	return nil
}

func (t *pgAttemptTx) Finalize(ctx context.Context, f Finalization) error {
	if _, err := t.tx.Exec(ctx,
		`UPDATE student_exams
		 SET status = $1, score = $2, ai_detected = $3, passed = $4, submitted_at = $5
		 WHERE id = $6`,
		f.Status, f.Score, f.AIDetected, f.Passed, f.SubmittedAt, t.attempt.ID,
	); err != nil {
		return err
	}

	score := f.Score
	submitted := f.SubmittedAt
	t.attempt.Status = f.Status
	t.attempt.Score = &score
	t.attempt.AIDetected = f.AIDetected
	t.attempt.Passed = f.Passed
	t.attempt.SubmittedAt = &submitted
	return nil
}

func listAnswers(ctx context.Context, db DBTX, attemptID int) ([]model.StudentAnswer, error) {
	rows, err := db.Query(ctx,
		`SELECT id, student_exam_id, question_id, answer, selected_option_id, is_correct, points, updated_at
		 FROM student_answers WHERE student_exam_id = $1
		 ORDER BY id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := []model.StudentAnswer{}
	for rows.Next() {
		var a model.StudentAnswer
		if err := rows.Scan(&a.ID, &a.StudentExamID, &a.QuestionID, &a.Answer, &a.SelectedOptionID,
			&a.IsCorrect, &a.Points, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
