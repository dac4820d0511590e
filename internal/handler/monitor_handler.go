package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/examsmart/examsmart-backend/internal/middleware"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // a slow query must not stall the stream
)

// MonitorHandler streams live exam activity to the exam's owner.
type MonitorHandler struct {
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/exams/:id/monitor
// Sends a snapshot, then forwards attempt events as they happen.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramID(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	exam, err := h.monitorService.Authorize(reqCtx, claims.UserID, examID)
	if err != nil {
		fail(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, exam, "snapshot")

	pubsub := h.monitorService.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Nothing changes until an event arrives, so refreshes wait for one.
	dirty := false

	h.log.Info().Int("exam_id", examID).Int("professor_id", claims.UserID).Msg("Professor attached to live monitor")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int("exam_id", examID).Msg("Professor detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeRawEvent(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendSnapshot(c, reqCtx, exam, "refresh")

		case <-keepAliveTicker.C:
			writeRawEvent(c, pingPayload)
		}
	}
}

// sendSnapshot writes the attempt list of the exam as one event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, exam *model.Exam, typ string) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, exam)
	if err != nil {
		h.log.Warn().Err(err).Int("exam_id", exam.ID).Str("type", typ).Msg("Failed to build monitor snapshot")
		return
	}

	c.SSEvent("message", gin.H{"type": typ, "data": snap})
	c.Writer.Flush()
}

// writeRawEvent forwards an already encoded JSON payload as a data frame.
func writeRawEvent(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
