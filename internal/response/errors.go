package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenRevoked       ErrCode = "TOKEN_REVOKED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly   ErrCode = "STUDENT_ACCESS_ONLY"
	ErrProfessorAccessOnly ErrCode = "PROFESSOR_ACCESS_ONLY"
	ErrNotExamOwner        ErrCode = "NOT_EXAM_OWNER"
	ErrNotAttemptOwner     ErrCode = "NOT_ATTEMPT_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrEmailTaken     ErrCode = "EMAIL_TAKEN"
	ErrWrongPassword  ErrCode = "WRONG_PASSWORD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamInactive         ErrCode = "EXAM_INACTIVE"
	ErrAttemptRequired      ErrCode = "ATTEMPT_REQUIRED"
	ErrAttemptNotInProgress ErrCode = "ATTEMPT_NOT_IN_PROGRESS"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"
	ErrTooManyFiles    ErrCode = "TOO_MANY_FILES"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."
	case ErrTokenRevoked:
		return "Authentication token has been revoked. Please log in again."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrProfessorAccessOnly:
		return "This resource is restricted to professors."
	case ErrNotExamOwner:
		return "This exam belongs to another professor."
	case ErrNotAttemptOwner:
		return "This attempt belongs to another student."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrEmailTaken:
		return "This email is already registered."
	case ErrWrongPassword:
		return "Current password is incorrect."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamInactive:
		return "This exam is not active."
	case ErrAttemptRequired:
		return "Start the exam before opening it."
	case ErrAttemptNotInProgress:
		return "This attempt is no longer in progress."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "At least one file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."
	case ErrTooManyFiles:
		return "Too many files uploaded."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrServiceUnavailable:
		return "A required service is unavailable. Please try again later."
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
