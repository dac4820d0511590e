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

// ExamPhotosField is the multipart field holding uploaded exam photos.
const ExamPhotosField = "examPhotos"

// ExamHandler handles exam authoring endpoints and the shared exam view.
type ExamHandler struct {
	examService    *service.ExamService
	attemptService *service.AttemptService
	mediaService   *service.MediaService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	examService *service.ExamService,
	attemptService *service.AttemptService,
	mediaService *service.MediaService,
) *ExamHandler {
	return &ExamHandler{
		examService:    examService,
		attemptService: attemptService,
		mediaService:   mediaService,
	}
}

// ListExams godoc
// GET /api/exams
// Lists the caller's exams with question and attempt counts, newest first.
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.examService.ListExams(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// CreateExam godoc
// POST /api/exams
// Creates an exam with its questions and a generated exam key.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UploadExamPhotos godoc
// POST /api/exams/upload
// Stores the uploaded photos, extracts an exam from them and creates it as active.
func (h *ExamHandler) UploadExamPhotos(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	images, err := h.mediaService.SaveExamPhotos(form.File[ExamPhotosField])
	if err != nil {
		fail(c, err)
		return
	}

	exam, err := h.examService.CreateFromPhotos(c.Request.Context(), claims.UserID, images)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/exams/:id
// Professors get their exam with every student's result. Students who have
// an attempt get the paper without the answer key.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if claims.Role == model.RoleStudent {
		paper, err := h.attemptService.GetExamPaper(c.Request.Context(), claims.UserID, examID)
		if err != nil {
			fail(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"exam": paper})
		return
	}

	detail, err := h.examService.GetExamDetail(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": detail})
}

// UpdateExam godoc
// PATCH /api/exams/:id
// Updates exam fields and, when given, syncs the question list.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.UpdateExam(c.Request.Context(), claims.UserID, examID, &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/exams/:id
// Deletes the exam with its questions, attempts and answers.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.examService.DeleteExam(c.Request.Context(), claims.UserID, examID); err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
