package handler

import (
	"net/http"

	"github.com/examsmart/examsmart-backend/internal/middleware"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/examsmart/examsmart-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// StudentPortalHandler handles student-facing endpoints (exam taking, history).
type StudentPortalHandler struct {
	attemptService *service.AttemptService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(attemptService *service.AttemptService) *StudentPortalHandler {
	return &StudentPortalHandler{attemptService: attemptService}
}

// VerifyExamKey godoc
// POST /api/verify-exam-key
// Resolves an exam key to the id of an active exam.
func (h *StudentPortalHandler) VerifyExamKey(c *gin.Context) {
	var req model.VerifyExamKeyRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	examID, err := h.attemptService.VerifyExamKey(c.Request.Context(), req.ExamKey)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"examId": examID})
}

// StartExam godoc
// POST /api/start-exam
// Creates an attempt (201) or returns the in-progress one (200).
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, created, err := h.attemptService.StartExam(c.Request.Context(), claims.UserID, req.ExamID)
	if err != nil {
		fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"studentExamId": attempt.ID, "startedAt": attempt.StartedAt})
}

// SubmitAnswer godoc
// POST /api/submit-answer
// Saves (or replaces) the answer to one question of an in-progress attempt.
func (h *StudentPortalHandler) SubmitAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.attemptService.SubmitAnswer(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, answer)
}

// CompleteExam godoc
// POST /api/complete-exam
// Grades the attempt and returns the final record.
func (h *StudentPortalHandler) CompleteExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CompleteExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.CompleteExam(c.Request.Context(), claims.UserID, req.StudentExamID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}

// ListMyAttempts godoc
// GET /api/stud-exams
// Lists the caller's attempts, newest first.
func (h *StudentPortalHandler) ListMyAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.ListMyAttempts(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"studentExams": attempts})
}

// GetMyAttempt godoc
// GET /api/student-exam/:id
// Returns one of the caller's attempts with the exam and their answers.
func (h *StudentPortalHandler) GetMyAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	detail, err := h.attemptService.GetMyAttempt(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"studentExam": detail})
}
