package websocket

import (
	"github.com/examsmart/examsmart-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionComplete Action = "complete"
	ActionPing     Action = "ping"
)

// Request carries every action; fields unused by an action stay zero.
type Request struct {
	Action           Action `json:"action"`
	QuestionID       int    `json:"questionId"`
	Answer           string `json:"answer"`
	SelectedOptionID *int   `json:"selectedOptionId,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
)

type SavedResponse struct {
	Event  Event                `json:"event"`
	Answer *model.StudentAnswer `json:"answer"`
}

type GradedResponse struct {
	Event      Event               `json:"event"`
	Status     model.AttemptStatus `json:"status"`
	Score      int                 `json:"score"`
	AIDetected int                 `json:"AI_detected"`
	Passed     bool                `json:"passed"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
