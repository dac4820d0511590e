package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// specificCodes maps errors that have their own API code. Checked in order.
var specificCodes = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrTokenInvalid, http.StatusUnauthorized, response.ErrTokenInvalid},
	{service.ErrTokenRevoked, http.StatusUnauthorized, response.ErrTokenRevoked},
	{service.ErrEmailTaken, http.StatusBadRequest, response.ErrEmailTaken},
	{service.ErrWrongPassword, http.StatusBadRequest, response.ErrWrongPassword},
	{service.ErrNoFiles, http.StatusBadRequest, response.ErrFileRequired},
	{service.ErrTooManyFiles, http.StatusBadRequest, response.ErrTooManyFiles},
	{service.ErrUnsupportedFileType, http.StatusBadRequest, response.ErrUnsupportedFile},
	{service.ErrFileTooLarge, http.StatusBadRequest, response.ErrFileTooLarge},
	{service.ErrExamInactive, http.StatusForbidden, response.ErrExamInactive},
	{service.ErrNotExamOwner, http.StatusForbidden, response.ErrNotExamOwner},
	{service.ErrNotAttemptOwner, http.StatusForbidden, response.ErrNotAttemptOwner},
	{service.ErrNoAttempt, http.StatusForbidden, response.ErrAttemptRequired},
	{service.ErrAttemptNotInProgress, http.StatusBadRequest, response.ErrAttemptNotInProgress},
}

// kindCodes maps the remaining domain errors by kind.
var kindCodes = []struct {
	kind   error
	status int
	code   response.ErrCode
}{
	{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},
	{service.ErrInvalidState, http.StatusBadRequest, response.ErrValidation},
	{service.ErrValidation, http.StatusBadRequest, response.ErrValidation},
	{service.ErrServiceUnavailable, http.StatusServiceUnavailable, response.ErrServiceUnavailable},
}

// statusFor resolves the HTTP status and API code for a service error.
func statusFor(err error) (int, response.ErrCode) {
	for _, m := range specificCodes {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	for _, m := range kindCodes {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the error response for a service error. Client errors carry the
// error text; server errors keep it in the request log only.
func fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		response.Fail(c, status, code)
		return
	}
	response.FailWithMessage(c, status, code, err.Error())
}

// paramID parses a positive integer path parameter, writing a 400 when it is malformed.
func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
