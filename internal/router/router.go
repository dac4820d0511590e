package router

import (
	"context"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/handler"
	"github.com/examsmart/examsmart-backend/internal/middleware"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	authRateLimit       = 30
	authRateInterval    = time.Minute
	uploadCacheSeconds  = 24 * 60 * 60
	multipartMemoryBase = 8 << 20
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Exam          *handler.ExamHandler
	StudentPortal *handler.StudentPortalHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background goroutines owned by middlewares.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.MaxMultipartMemory = multipartMemoryBase

	// ─── Global middlewares ────────────────────────────────────────────
	router.Use(gin.Recovery())
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))

	// Empty AllowedOrigins allows all origins so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics())
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	requireAuth := middleware.RequireAuth(authService)
	professorOnly := middleware.RestrictTo(model.RoleProfessor)
	studentOnly := middleware.RestrictTo(model.RoleStudent)

	// Uploaded exam photos are only visible to professors.
	uploads := router.Group("/uploads", requireAuth, professorOnly, middleware.PrivateCache(uploadCacheSeconds))
	{
		uploads.Static("/", cfg.UploadDir)
	}

	api := router.Group("/api")

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authLimiter := middleware.NewRateLimiter(ctx, authRateLimit, authRateInterval)
	auth := api.Group("/auth")
	{
		auth.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.POST("/logout", handlers.Auth.Logout)

		auth.GET("/user", requireAuth, handlers.Auth.GetUser)
		auth.PATCH("/profile", requireAuth, handlers.Auth.UpdateProfile)
		auth.POST("/profile", requireAuth, handlers.Auth.UpdateProfile)
		auth.PATCH("/change-password", requireAuth, authLimiter.Middleware(), handlers.Auth.ChangePassword)
	}

	// ─── 2. Exams (Professor, paper view for Students) ─────────────────
	exams := api.Group("/exams", requireAuth)
	{
		exams.GET("", professorOnly, handlers.Exam.ListExams)
		exams.POST("", professorOnly, handlers.Exam.CreateExam)
		exams.POST("/upload", professorOnly, handlers.Exam.UploadExamPhotos)
		exams.GET("/:id", middleware.RestrictTo(model.RoleProfessor, model.RoleStudent), handlers.Exam.GetExam)
		exams.PATCH("/:id", professorOnly, handlers.Exam.UpdateExam)
		exams.DELETE("/:id", professorOnly, handlers.Exam.DeleteExam)
		exams.GET("/:id/monitor", professorOnly, handlers.Monitor.MonitorExamSSE)
	}

	// ─── 3. Exam Taking (Student) ──────────────────────────────────────
	student := api.Group("", requireAuth, studentOnly)
	{
		student.POST("/verify-exam-key", handlers.StudentPortal.VerifyExamKey)
		student.POST("/start-exam", handlers.StudentPortal.StartExam)
		student.POST("/submit-answer", handlers.StudentPortal.SubmitAnswer)
		student.POST("/complete-exam", handlers.StudentPortal.CompleteExam)
		student.GET("/stud-exams", handlers.StudentPortal.ListMyAttempts)
		student.GET("/student-exam/:id", handlers.StudentPortal.GetMyAttempt)
	}

	// ─── 4. System ─────────────────────────────────────────────────────
	api.GET("/system/status", requireAuth, middleware.RestrictTo(model.RoleProfessor, model.RoleAdmin), handlers.System.Status)

	// ─── 5. WebSocket (Student) ────────────────────────────────────────
	ws := router.Group("/ws", requireAuth, studentOnly)
	{
		ws.GET("/exams/:id/stream", handlers.WS.ExamWebSocketStream)
	}

	return router
}
