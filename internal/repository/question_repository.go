package repository

import (
	"context"

	"github.com/examsmart/examsmart-backend/internal/model"
)

// Questions are owned by their exam, so these helpers run on the exam
// repository's pool or inside an attempt transaction.

const questionColumns = `id, exam_id, text, type, points, "order", model_answer`

func scanQuestions(ctx context.Context, db DBTX, query string, arg any) ([]model.Question, error) {
	rows, err := db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Points, &q.Order, &q.ModelAnswer); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := attachOptions(ctx, db, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// attachOptions loads options for all questions in one query.
func attachOptions(ctx context.Context, db DBTX, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}

	ids := make([]int, len(questions))
	index := make(map[int]int, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
		index[q.ID] = i
	}

	rows, err := db.Query(ctx,
		`SELECT id, question_id, text, is_correct, "order"
		 FROM options WHERE question_id = ANY($1)
		 ORDER BY question_id, "order", id`, ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Order); err != nil {
			return err
		}
		i := index[o.QuestionID]
		questions[i].Options = append(questions[i].Options, o)
	}
	return rows.Err()
}

func listQuestionsByExam(ctx context.Context, db DBTX, examID int) ([]model.Question, error) {
	return scanQuestions(ctx, db,
		`SELECT `+questionColumns+` FROM questions WHERE exam_id = $1 ORDER BY "order", id`, examID)
}

func questionsByIDs(ctx context.Context, db DBTX, ids []int) (map[int]model.Question, error) {
	out := make(map[int]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	questions, err := scanQuestions(ctx, db,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		out[q.ID] = q
	}
	return out, nil
}

func getQuestion(ctx context.Context, db DBTX, id int) (*model.Question, error) {
	q := &model.Question{}
	err := db.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Points, &q.Order, &q.ModelAnswer)
	if err != nil {
		return nil, err
	}
	qs := []model.Question{*q}
	if err := attachOptions(ctx, db, qs); err != nil {
		return nil, err
	}
	return &qs[0], nil
}

func insertQuestion(ctx context.Context, db DBTX, q *model.Question) error {
	if err := db.QueryRow(ctx,
		`INSERT INTO questions (exam_id, text, type, points, "order", model_answer)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.ExamID, q.Text, q.Type, q.Points, q.Order, q.ModelAnswer,
	).Scan(&q.ID); err != nil {
		return err
	}
	for i := range q.Options {
		q.Options[i].QuestionID = q.ID
		if err := insertOption(ctx, db, &q.Options[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertOption(ctx context.Context, db DBTX, o *model.Option) error {
	return db.QueryRow(ctx,
		`INSERT INTO options (question_id, text, is_correct, "order")
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		o.QuestionID, o.Text, o.IsCorrect, o.Order,
	).Scan(&o.ID)
}
