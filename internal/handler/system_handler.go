package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SystemHandler serves liveness and dependency status.
type SystemHandler struct {
	systemService *service.SystemService
	rdb           *redis.Client
	startTime     time.Time
}

func NewSystemHandler(systemService *service.SystemService, rdb *redis.Client) *SystemHandler {
	return &SystemHandler{
		systemService: systemService,
		rdb:           rdb,
		startTime:     time.Now(),
	}
}

type statusResponse struct {
	*service.SystemStatus
	Uptime       string `json:"uptime"`
	Goroutines   int    `json:"goroutines"`
	GoVersion    string `json:"goVersion"`
	ExpiredQueue int64  `json:"expiredQueue"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

// Status godoc
// GET /api/system/status
// Reports the health of every dependency. Degraded status still answers 200.
func (h *SystemHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	res := statusResponse{
		SystemStatus: h.systemService.Status(ctx),
		Uptime:       formatDuration(time.Since(h.startTime)),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
	}
	if n, err := h.rdb.LLen(ctx, config.WorkerKey.ExpiredAttemptsQueue).Result(); err == nil {
		res.ExpiredQueue = n
	}

	response.Success(c, http.StatusOK, res)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
