package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/examsmart/examsmart-backend/internal/middleware"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	ws "github.com/examsmart/examsmart-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the student exam stream.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/exams/:id/stream
// Upgrades to WebSocket for answering and completing the in-progress attempt.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// The attempt must exist before upgrading so the client gets a plain HTTP error.
	attempt, err := h.attemptService.ActiveAttempt(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Int("exam_id", examID).
		Int("attempt_id", attempt.ID).
		Logger()

	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, wsLog, claims.UserID, attempt.ID, &msg)
		case ws.ActionComplete:
			if h.handleComplete(ctx, conn, wsLog, claims.UserID, attempt.ID) {
				return
			}
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAnswer saves one answer through the same path as the REST endpoint.
func (h *WSHandler) handleAnswer(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, studentID, attemptID int, msg *ws.Request) {
	if msg.QuestionID <= 0 {
		ws.WriteError(conn, "questionId is required")
		return
	}

	answer, err := h.attemptService.SubmitAnswer(ctx, studentID, &model.SubmitAnswerRequest{
		StudentExamID:    attemptID,
		QuestionID:       msg.QuestionID,
		Answer:           msg.Answer,
		SelectedOptionID: msg.SelectedOptionID,
	})
	if err != nil {
		wsLog.Debug().Err(err).Int("question_id", msg.QuestionID).Msg("Answer rejected")
		ws.WriteError(conn, clientMessage(err))
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Answer: answer})
}

// handleComplete grades the attempt and reports whether the stream is done.
func (h *WSHandler) handleComplete(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, studentID, attemptID int) bool {
	attempt, err := h.attemptService.CompleteExam(ctx, studentID, attemptID)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Completion failed")
		ws.WriteError(conn, clientMessage(err))
		return false
	}

	res := ws.GradedResponse{
		Event:      ws.EventGraded,
		Status:     attempt.Status,
		AIDetected: attempt.AIDetected,
	}
	if attempt.Score != nil {
		res.Score = *attempt.Score
	}
	if attempt.Passed != nil {
		res.Passed = *attempt.Passed
	}
	ws.WriteTyped(conn, res)
	return true
}

// clientMessage hides server-side failures from the client.
func clientMessage(err error) string {
	if status, _ := statusFor(err); status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
