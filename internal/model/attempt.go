package model

import "time"

// AttemptStatus enumerates student exam attempt states.
// in_progress is the only non-terminal state.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusAbandoned  AttemptStatus = "abandoned"
)

// StudentExam is one student's attempt at an exam.
type StudentExam struct {
	ID          int           `json:"id"`
	ExamID      int           `json:"examId"`
	StudentID   int           `json:"studentId"`
	Status      AttemptStatus `json:"status"`
	Score       *int          `json:"score"`
	AIDetected  int           `json:"AI_detected"`
	Passed      *bool         `json:"passed"`
	StartedAt   time.Time     `json:"startedAt"`
	SubmittedAt *time.Time    `json:"submittedAt"`
}

// AttemptSummary is an attempt row in the student's history.
type AttemptSummary struct {
	StudentExam
	ExamTitle    string `json:"examTitle"`
	CourseCode   string `json:"courseCode"`
	PassingScore int    `json:"passingScore"`
}

// AttemptDetail is a single attempt with the exam and the student's answers.
type AttemptDetail struct {
	StudentExam
	Exam    any             `json:"exam"`
	Answers []StudentAnswer `json:"answers"`
}

// ExpiredAttempt identifies an in-progress attempt whose time ran out.
type ExpiredAttempt struct {
	ID        int `json:"id"`
	ExamID    int `json:"examId"`
	StudentID int `json:"studentId"`
}

// VerifyExamKeyRequest is the payload for locating an exam by key.
type VerifyExamKeyRequest struct {
	ExamKey string `json:"examKey" binding:"required,min=1,max=50"`
}

// StartExamRequest is the payload for starting (or resuming) an attempt.
type StartExamRequest struct {
	ExamID int `json:"examId" binding:"required,min=1"`
}

// SubmitAnswerRequest is the payload for saving one answer.
type SubmitAnswerRequest struct {
	StudentExamID    int    `json:"studentExamId" binding:"required,min=1"`
	QuestionID       int    `json:"questionId" binding:"required,min=1"`
	Answer           string `json:"answer" binding:"max=20000"`
	SelectedOptionID *int   `json:"selectedOptionId" binding:"omitempty,min=1"`
}

// CompleteExamRequest is the payload for finishing an attempt.
type CompleteExamRequest struct {
	StudentExamID int `json:"studentExamId" binding:"required,min=1"`
}
