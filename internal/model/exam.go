package model

import (
	"regexp"
	"time"
)

// CourseCodePattern matches course codes such as "CS-101" or "MATH-2040".
var CourseCodePattern = regexp.MustCompile(`^[A-Za-z]{2,4}-\d{3,4}$`)

// Exam represents an exam owned by a professor.
type Exam struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	CourseCode   string     `json:"courseCode"`
	Description  string     `json:"description"`
	Instructions string     `json:"instructions"`
	Duration     int        `json:"duration"` // minutes
	PassingScore int        `json:"passingScore"`
	ExamKey      string     `json:"examKey"`
	CreatorID    int        `json:"creatorId"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	Questions    []Question `json:"questions,omitempty"`
}

// TotalPoints sums the points of every question of the exam.
func (e *Exam) TotalPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// ExamSummary is an exam row in the professor's list.
type ExamSummary struct {
	Exam
	QuestionCount int `json:"questionCount"`
	AttemptCount  int `json:"attemptCount"`
}

// StudentInfo is the public part of a student account.
type StudentInfo struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// StudentResult is one attempt as shown to the exam's professor.
type StudentResult struct {
	StudentExam
	AnsweredCount int         `json:"answeredCount"`
	Student       StudentInfo `json:"student"`
}

// ExamDetail is the professor view of an exam.
type ExamDetail struct {
	Exam
	StudentResults []StudentResult `json:"studentResults"`
}

// ExamPaper is the student view of an exam: no answer key, no exam key.
type ExamPaper struct {
	ID           int             `json:"id"`
	Title        string          `json:"title"`
	CourseCode   string          `json:"courseCode"`
	Instructions string          `json:"instructions"`
	Duration     int             `json:"duration"`
	PassingScore int             `json:"passingScore"`
	Questions    []PaperQuestion `json:"questions"`
}

// PaperQuestion is a question without its model answer.
type PaperQuestion struct {
	ID      int           `json:"id"`
	Text    string        `json:"text"`
	Type    QuestionType  `json:"type"`
	Points  int           `json:"points"`
	Order   int           `json:"order"`
	Options []PaperOption `json:"options,omitempty"`
}

// PaperOption is an option without its correctness flag.
type PaperOption struct {
	ID     int    `json:"id"`
	Letter string `json:"letter"`
	Text   string `json:"text"`
	Order  int    `json:"order"`
}

// NewExamPaper strips answer data from a fully loaded exam.
func NewExamPaper(e *Exam) *ExamPaper {
	p := &ExamPaper{
		ID:           e.ID,
		Title:        e.Title,
		CourseCode:   e.CourseCode,
		Instructions: e.Instructions,
		Duration:     e.Duration,
		PassingScore: e.PassingScore,
		Questions:    make([]PaperQuestion, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		pq := PaperQuestion{ID: q.ID, Text: q.Text, Type: q.Type, Points: q.Points, Order: q.Order}
		for i, o := range q.Options {
			pq.Options = append(pq.Options, PaperOption{ID: o.ID, Letter: OptionLetter(i), Text: o.Text, Order: o.Order})
		}
		p.Questions = append(p.Questions, pq)
	}
	return p
}

// CreateExamRequest is the payload for creating an exam with its questions.
type CreateExamRequest struct {
	Title        string          `json:"title" binding:"required,min=1,max=255"`
	CourseCode   string          `json:"courseCode" binding:"required,course_code"`
	Description  string          `json:"description" binding:"max=2000"`
	Instructions string          `json:"instructions" binding:"max=5000"`
	Duration     int             `json:"duration" binding:"required,min=1,max=1440"`
	PassingScore int             `json:"passingScore" binding:"min=0,max=100"`
	IsActive     *bool           `json:"isActive"`
	Questions    []QuestionInput `json:"questions" binding:"dive"`
}

// UpdateExamRequest updates exam fields; Questions, when present, replaces the question set.
type UpdateExamRequest struct {
	Title        *string          `json:"title" binding:"omitempty,min=1,max=255"`
	CourseCode   *string          `json:"courseCode" binding:"omitempty,course_code"`
	Description  *string          `json:"description" binding:"omitempty,max=2000"`
	Instructions *string          `json:"instructions" binding:"omitempty,max=5000"`
	Duration     *int             `json:"duration" binding:"omitempty,min=1,max=1440"`
	PassingScore *int             `json:"passingScore" binding:"omitempty,min=0,max=100"`
	IsActive     *bool            `json:"isActive"`
	Questions    *[]QuestionInput `json:"questions" binding:"omitempty,dive"`
}

// QuestionInput is a question in a create or update payload. ID is set for existing questions.
type QuestionInput struct {
	ID          *int          `json:"id" binding:"omitempty,min=1"`
	Text        string        `json:"text" binding:"required,min=1,max=5000"`
	Type        QuestionType  `json:"type" binding:"required,oneof=multiple_choice short_answer essay"`
	Points      *int          `json:"points" binding:"omitempty,min=0,max=1000"`
	ModelAnswer string        `json:"modelAnswer" binding:"max=10000"`
	Options     []OptionInput `json:"options" binding:"dive"`
}

// OptionInput is an option in a create or update payload.
type OptionInput struct {
	ID        *int   `json:"id" binding:"omitempty,min=1"`
	Text      string `json:"text" binding:"required,min=1,max=2000"`
	IsCorrect bool   `json:"isCorrect"`
}
