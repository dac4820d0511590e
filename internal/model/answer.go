package model

import "time"

// StudentAnswer is the single answer row per (attempt, question).
// IsCorrect and Points stay nil until the answer is graded.
type StudentAnswer struct {
	ID               int       `json:"id"`
	StudentExamID    int       `json:"studentExamId"`
	QuestionID       int       `json:"questionId"`
	Answer           string    `json:"answer"`
	SelectedOptionID *int      `json:"selectedOptionId"`
	IsCorrect        *bool     `json:"isCorrect"`
	Points           *int      `json:"points"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Graded reports whether the answer already carries a score.
func (a *StudentAnswer) Graded() bool {
	return a.IsCorrect != nil && a.Points != nil
}
