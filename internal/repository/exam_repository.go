package repository

import (
	"context"
	"errors"

	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDuplicateExamKey = errors.New("exam key already in use")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, course_code, description, instructions, duration, passing_score,
	exam_key, creator_id, is_active, created_at`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.CourseCode, &e.Description, &e.Instructions, &e.Duration,
		&e.PassingScore, &e.ExamKey, &e.CreatorID, &e.IsActive, &e.CreatedAt)
}

// GetByID retrieves an exam without its questions.
func (r *ExamRepository) GetByID(ctx context.Context, id int) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByKey retrieves an exam by its exam key, case-insensitively.
func (r *ExamRepository) GetByKey(ctx context.Context, key string) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE exam_key = UPPER($1)`, key), e); err != nil {
		return nil, err
	}
	return e, nil
}

// KeyExists reports whether an exam already uses the key.
func (r *ExamRepository) KeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM exams WHERE exam_key = $1)`, key).Scan(&exists)
	return exists, err
}

// GetWithQuestions retrieves an exam with ordered questions and options.
func (r *ExamRepository) GetWithQuestions(ctx context.Context, id int) (*model.Exam, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Questions, err = listQuestionsByExam(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByCreator lists a professor's exams with question and attempt counts, newest first.
func (r *ExamRepository) ListByCreator(ctx context.Context, creatorID int) ([]model.ExamSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.course_code, e.description, e.instructions, e.duration, e.passing_score,
		        e.exam_key, e.creator_id, e.is_active, e.created_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
		        (SELECT COUNT(*) FROM student_exams se WHERE se.exam_id = e.id)
		 FROM exams e
		 WHERE e.creator_id = $1
		 ORDER BY e.created_at DESC, e.id DESC`, creatorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := []model.ExamSummary{}
	for rows.Next() {
		var s model.ExamSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.CourseCode, &s.Description, &s.Instructions, &s.Duration,
			&s.PassingScore, &s.ExamKey, &s.CreatorID, &s.IsActive, &s.CreatedAt,
			&s.QuestionCount, &s.AttemptCount); err != nil {
			return nil, err
		}
		exams = append(exams, s)
	}
	return exams, rows.Err()
}

// Create inserts an exam and all of its questions and options in one transaction.
// Returns ErrDuplicateExamKey if the key is taken.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO exams (title, course_code, description, instructions, duration, passing_score,
			                    exam_key, creator_id, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id, created_at`,
			e.Title, e.CourseCode, e.Description, e.Instructions, e.Duration, e.PassingScore,
			e.ExamKey, e.CreatorID, e.IsActive,
		).Scan(&e.ID, &e.CreatedAt); err != nil {
			return err
		}

		for i := range e.Questions {
			e.Questions[i].ExamID = e.ID
			if err := insertQuestion(ctx, tx, &e.Questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err, "exams_exam_key_key") {
		return ErrDuplicateExamKey
	}
	return err
}

// Update writes exam fields and, when syncQuestions is set, reconciles the
// question set against e.Questions: matching IDs are updated, new entries
// inserted, and questions absent from e.Questions deleted.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam, syncQuestions bool) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE exams
			 SET title = $1, course_code = $2, description = $3, instructions = $4,
			     duration = $5, passing_score = $6, is_active = $7
			 WHERE id = $8`,
			e.Title, e.CourseCode, e.Description, e.Instructions, e.Duration, e.PassingScore, e.IsActive, e.ID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		if !syncQuestions {
			return nil
		}
		return syncExamQuestions(ctx, tx, e)
	})
}

func syncExamQuestions(ctx context.Context, tx pgx.Tx, e *model.Exam) error {
	existing, err := listQuestionsByExam(ctx, tx, e.ID)
	if err != nil {
		return err
	}
	current := make(map[int]model.Question, len(existing))
	for _, q := range existing {
		current[q.ID] = q
	}

	kept := make([]int, 0, len(e.Questions))
	for i := range e.Questions {
		q := &e.Questions[i]
		q.ExamID = e.ID

		old, ok := current[q.ID]
		if q.ID == 0 || !ok {
			q.ID = 0
			if err := insertQuestion(ctx, tx, q); err != nil {
				return err
			}
			kept = append(kept, q.ID)
			continue
		}

		if _, err := tx.Exec(ctx,
			`UPDATE questions SET text = $1, type = $2, points = $3, "order" = $4, model_answer = $5
			 WHERE id = $6`,
			q.Text, q.Type, q.Points, q.Order, q.ModelAnswer, q.ID,
		); err != nil {
			return err
		}
		if err := syncOptions(ctx, tx, q, old.Options); err != nil {
			return err
		}
		kept = append(kept, q.ID)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM questions WHERE exam_id = $1 AND NOT (id = ANY($2))`, e.ID, kept)
	return err
}

func syncOptions(ctx context.Context, tx pgx.Tx, q *model.Question, existing []model.Option) error {
	current := make(map[int]bool, len(existing))
	for _, o := range existing {
		current[o.ID] = true
	}

	kept := make([]int, 0, len(q.Options))
	for i := range q.Options {
		o := &q.Options[i]
		o.QuestionID = q.ID
		if o.ID == 0 || !current[o.ID] {
			o.ID = 0
			if err := insertOption(ctx, tx, o); err != nil {
				return err
			}
		} else if _, err := tx.Exec(ctx,
			`UPDATE options SET text = $1, is_correct = $2, "order" = $3 WHERE id = $4`,
			o.Text, o.IsCorrect, o.Order, o.ID,
		); err != nil {
			return err
		}
		kept = append(kept, o.ID)
	}

	_, err := tx.Exec(ctx,
		`DELETE FROM options WHERE question_id = $1 AND NOT (id = ANY($2))`, q.ID, kept)
	return err
}

// Delete removes an exam; questions, options, attempts and answers cascade.
func (r *ExamRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
