package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/jackc/pgx/v5"
)

// UserStore is the user persistence used by UserService.
type UserStore interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	UpdateProfile(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id int, hash string) error
}

// UserService handles signup, login and profile changes.
type UserService struct {
	users UserStore
	auth  *AuthService
}

// NewUserService creates a new UserService.
func NewUserService(users UserStore, auth *AuthService) *UserService {
	return &UserService{users: users, auth: auth}
}

// Register creates an account and issues a token for it.
func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issue(u)
}

// Login verifies email and password. Unknown email and wrong password are indistinguishable.
func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return nil, err
	}
	return s.issue(u)
}

// GetByID returns the user.
func (s *UserService) GetByID(ctx context.Context, id int) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *UserService) UpdateProfile(ctx context.Context, id int, req *model.UpdateProfileRequest) (*model.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		u.Email = strings.TrimSpace(*req.Email)
	}

	if err := s.users.UpdateProfile(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// ChangePassword checks the current password, stores the new hash and re-issues the token.
func (s *UserService) ChangePassword(ctx context.Context, id int, req *model.ChangePasswordRequest) (*model.AuthResponse, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.auth.CheckPassword(u.PasswordHash, req.CurrentPassword); err != nil {
		return nil, ErrWrongPassword
	}

	hash, err := s.auth.HashPassword(req.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	u.PasswordHash = hash

	return s.issue(u)
}

func (s *UserService) issue(u *model.User) (*model.AuthResponse, error) {
	token, err := s.auth.GenerateToken(u)
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{Token: token, User: *u}, nil
}
