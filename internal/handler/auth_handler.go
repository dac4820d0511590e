package handler

import (
	"net/http"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/middleware"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/examsmart/examsmart-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuthHandler handles signup, login and profile endpoints.
type AuthHandler struct {
	authService  *service.AuthService
	userService  *service.UserService
	cookieSecure bool
	log          zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	userService *service.UserService,
	cfg *config.Config,
	log zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		userService:  userService,
		cookieSecure: cfg.CookieSecure,
		log:          log.With().Str("component", "auth_handler").Logger(),
	}
}

// Register godoc
// POST /api/auth/register
// Creates a professor or student account and logs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	h.log.Info().Int("user_id", res.User.ID).Str("role", string(res.User.Role)).Msg("User registered")
	h.setAuthCookie(c, res.Token)
	response.Success(c, http.StatusCreated, res)
}

// Login godoc
// POST /api/auth/login
// Validates email + password and issues a JWT, also set as the auth cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	h.setAuthCookie(c, res.Token)
	response.Success(c, http.StatusOK, res)
}

// Logout godoc
// POST /api/auth/logout
// Revokes the presented token, if any, and clears the auth cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	if tokenStr := middleware.ExtractToken(c); tokenStr != "" {
		if err := h.authService.RevokeToken(c.Request.Context(), tokenStr); err != nil {
			h.log.Warn().Err(err).Msg("Failed to revoke token on logout")
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookie, "", -1, "/", "", h.cookieSecure, true)
	response.Success(c, http.StatusOK, gin.H{})
}

// GetUser godoc
// GET /api/auth/user
// Returns the currently authenticated user.
func (h *AuthHandler) GetUser(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.userService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// UpdateProfile godoc
// PATCH /api/auth/profile
// Updates the caller's name and email.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.UpdateProfileRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// ChangePassword godoc
// PATCH /api/auth/change-password
// Replaces the caller's password and re-issues the token.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ChangePasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.userService.ChangePassword(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		fail(c, err)
		return
	}

	// Retire the token the change was made with.
	if err := h.authService.RevokeToken(c.Request.Context(), middleware.ExtractToken(c)); err != nil {
		h.log.Warn().Err(err).Int("user_id", claims.UserID).Msg("Failed to revoke previous token")
	}

	h.setAuthCookie(c, res.Token)
	response.Success(c, http.StatusOK, res)
}

func (h *AuthHandler) setAuthCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AuthCookie, token, int(h.authService.TokenTTL().Seconds()), "/", "", h.cookieSecure, true)
}
