package model

import "time"

// UserRole is fixed at signup; there is no role-change endpoint.
type UserRole string

const (
	RoleProfessor UserRole = "professor"
	RoleStudent   UserRole = "student"
	RoleAdmin     UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleProfessor, RoleStudent, RoleAdmin:
		return true
	}
	return false
}

// User represents an account of any role.
type User struct {
	ID           int       `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegisterRequest is the signup payload. Admins are created from the CLI only.
type RegisterRequest struct {
	FirstName string   `json:"firstName" binding:"required,min=1,max=100"`
	LastName  string   `json:"lastName" binding:"required,min=1,max=100"`
	Email     string   `json:"email" binding:"required,email,max=255"`
	Password  string   `json:"password" binding:"required,min=8,max=72"`
	Role      UserRole `json:"role" binding:"required,oneof=professor student"`
}

// LoginRequest is the payload for email/password authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

// AuthResponse is returned after signup, login and password change.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// UpdateProfileRequest holds the editable profile fields.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,min=1,max=100"`
	LastName  *string `json:"lastName" binding:"omitempty,min=1,max=100"`
	Email     *string `json:"email" binding:"omitempty,email,max=255"`
}

// ChangePasswordRequest requires the current password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required,max=72"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=72"`
}
