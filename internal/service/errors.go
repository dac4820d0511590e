package service

import "errors"

// Error kinds. Handlers map these to HTTP status codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation failed")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// domainError is a specific error that belongs to one kind.
type domainError struct {
	kind error
	msg  string
}

func (e *domainError) Error() string { return e.msg }
func (e *domainError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &domainError{kind: kind, msg: msg}
}

// Specific errors.
var (
	ErrUserNotFound     = newError(ErrNotFound, "user not found")
	ErrExamNotFound     = newError(ErrNotFound, "exam not found")
	ErrAttemptNotFound  = newError(ErrNotFound, "attempt not found")
	ErrQuestionNotFound = newError(ErrNotFound, "question not found")

	ErrExamInactive    = newError(ErrForbidden, "exam is not active")
	ErrNotExamOwner    = newError(ErrForbidden, "exam belongs to another professor")
	ErrNotAttemptOwner = newError(ErrForbidden, "attempt belongs to another student")
	ErrNoAttempt       = newError(ErrForbidden, "start the exam before opening it")

	ErrAttemptNotInProgress = newError(ErrInvalidState, "attempt is not in progress")

	ErrEmailTaken        = newError(ErrValidation, "email is already registered")
	ErrWrongPassword     = newError(ErrValidation, "current password is incorrect")
	ErrInvalidQuestion   = newError(ErrValidation, "multiple choice questions need at least two options")
	ErrUnknownQuestionID = newError(ErrValidation, "question id does not belong to this exam")
	ErrNoFiles           = newError(ErrValidation, "no exam photos uploaded")
	ErrTooManyFiles      = newError(ErrValidation, "too many exam photos")

	ErrVLMUnavailable = newError(ErrServiceUnavailable, "exam extraction service unavailable")

	// Authentication errors are reported as 401 and belong to no kind.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token has been revoked")
)
