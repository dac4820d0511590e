package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/middleware"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/repository"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/examsmart/examsmart-backend/internal/service"
	"github.com/examsmart/examsmart-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// ─── Fakes ──────────────────────────────────────────────────────────

type memUserStore struct {
	mu     sync.Mutex
	users  map[int]*model.User
	nextID int
}

func (s *memUserStore) GetByID(_ context.Context, id int) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := *u
	return &c, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memUserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	s.nextID++
	u.ID = s.nextID
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *memUserStore) UpdateProfile(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, id int, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].PasswordHash = hash
	return nil
}

type memDenylist struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (d *memDenylist) Revoke(_ context.Context, jti string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[jti] = true
	return nil
}

func (d *memDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revoked[jti], nil
}

// ─── Helpers ────────────────────────────────────────────────────────

func authEngine() *gin.Engine {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, BcryptCost: bcrypt.MinCost}
	auth := service.NewAuthService(cfg, &memDenylist{revoked: map[string]bool{}})
	users := service.NewUserService(&memUserStore{users: map[int]*model.User{}}, auth)
	h := NewAuthHandler(auth, users, cfg, zerolog.New(io.Discard))

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	api := r.Group("/api/auth")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/logout", h.Logout)
	api.GET("/user", middleware.RequireAuth(auth), h.GetUser)
	api.PATCH("/change-password", middleware.RequireAuth(auth), h.ChangePassword)
	return r
}

func do(r http.Handler, method, path string, body any, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range setup {
		fn(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return e
}

// ─── Error mapping ──────────────────────────────────────────────────

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   response.ErrCode
	}{
		{service.ErrExamNotFound, http.StatusNotFound, response.ErrNotFound},
		{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrNotFound},
		{service.ErrExamInactive, http.StatusForbidden, response.ErrExamInactive},
		{service.ErrNotAttemptOwner, http.StatusForbidden, response.ErrNotAttemptOwner},
		{service.ErrNotExamOwner, http.StatusForbidden, response.ErrNotExamOwner},
		{service.ErrNoAttempt, http.StatusForbidden, response.ErrAttemptRequired},
		{service.ErrAttemptNotInProgress, http.StatusBadRequest, response.ErrAttemptNotInProgress},
		{service.ErrEmailTaken, http.StatusBadRequest, response.ErrEmailTaken},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
		{service.ErrFileTooLarge, http.StatusBadRequest, response.ErrFileTooLarge},
		{fmt.Errorf("wrapped: %w", service.ErrExamNotFound), http.StatusNotFound, response.ErrNotFound},
		{errors.New("connection refused"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := statusFor(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("statusFor = %d %s, want %d %s", status, code, tt.status, tt.code)
			}
		})
	}
}

func TestFailHidesServerErrors(t *testing.T) {
	r := gin.New()
	var logged int
	r.GET("/boom", func(c *gin.Context) {
		fail(c, errors.New("pq: password authentication failed for user admin"))
		logged = len(c.Errors)
	})
	r.GET("/missing", func(c *gin.Context) { fail(c, service.ErrExamNotFound) })

	w := do(r, http.MethodGet, "/boom", nil)
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "password") {
		t.Fatalf("server error leaked: %d %s", w.Code, w.Body.String())
	}
	if logged != 1 {
		t.Errorf("server error not attached for the request log")
	}

	w = do(r, http.MethodGet, "/missing", nil)
	e := decode(t, w)
	if w.Code != http.StatusNotFound || e.Error == nil || e.Error.Message != service.ErrExamNotFound.Error() {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestParamID(t *testing.T) {
	r := gin.New()
	r.GET("/x/:id", func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if ok {
			c.String(http.StatusOK, "%d", id)
		}
	})

	tests := []struct {
		path string
		want int
	}{
		{"/x/42", http.StatusOK},
		{"/x/0", http.StatusBadRequest},
		{"/x/-3", http.StatusBadRequest},
		{"/x/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(r, http.MethodGet, tt.path, nil); w.Code != tt.want {
			t.Errorf("%s: status %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestClientMessage(t *testing.T) {
	if got := clientMessage(service.ErrAttemptNotInProgress); got != service.ErrAttemptNotInProgress.Error() {
		t.Errorf("client error = %q", got)
	}
	if got := clientMessage(errors.New("tx deadlock")); got != "internal error" {
		t.Errorf("server error = %q", got)
	}
}

// ─── Auth handler ───────────────────────────────────────────────────

func TestAuthFlow(t *testing.T) {
	r := authEngine()
	reg := model.RegisterRequest{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Password: "cobol-1959", Role: model.RoleProfessor}

	w := do(r, http.MethodPost, "/api/auth/register", reg)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	var res model.AuthResponse
	_ = json.Unmarshal(decode(t, w).Data, &res)
	if res.Token == "" || res.User.Email != reg.Email || res.User.Role != model.RoleProfessor {
		t.Fatalf("register body = %+v", res)
	}
	if strings.Contains(w.Body.String(), "cobol-1959") {
		t.Fatal("password echoed")
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AuthCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.Value != res.Token {
		t.Fatalf("auth cookie = %+v", cookie)
	}

	// Cookie alone authenticates.
	w = do(r, http.MethodGet, "/api/auth/user", nil, func(req *http.Request) { req.AddCookie(cookie) })
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"grace@example.com"`) {
		t.Fatalf("get user: %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodPost, "/api/auth/register", reg); w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: %d", w.Code)
	}

	w = do(r, http.MethodPost, "/api/auth/logout", nil, bearer(res.Token))
	if w.Code != http.StatusOK {
		t.Fatalf("logout: %d", w.Code)
	}
	w = do(r, http.MethodGet, "/api/auth/user", nil, bearer(res.Token))
	if e := decode(t, w); w.Code != http.StatusUnauthorized || e.Error == nil || e.Error.Code != string(response.ErrTokenRevoked) {
		t.Fatalf("after logout: %d %s", w.Code, w.Body.String())
	}
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	r := authEngine()
	do(r, http.MethodPost, "/api/auth/register", model.RegisterRequest{FirstName: "A", LastName: "B", Email: "a@b.io", Password: "longenough", Role: model.RoleStudent})

	wrongPass := do(r, http.MethodPost, "/api/auth/login", model.LoginRequest{Email: "a@b.io", Password: "nope-nope"})
	unknown := do(r, http.MethodPost, "/api/auth/login", model.LoginRequest{Email: "x@b.io", Password: "nope-nope"})

	if wrongPass.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("codes = %d, %d", wrongPass.Code, unknown.Code)
	}
	if decode(t, wrongPass).Error.Message != decode(t, unknown).Error.Message {
		t.Error("messages differ")
	}
}

func TestRegisterValidation(t *testing.T) {
	r := authEngine()
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"bad email", model.RegisterRequest{FirstName: "A", LastName: "B", Email: "nope", Password: "longenough", Role: model.RoleStudent}, "email"},
		{"short password", model.RegisterRequest{FirstName: "A", LastName: "B", Email: "a@b.io", Password: "short", Role: model.RoleStudent}, "password"},
		{"admin signup", model.RegisterRequest{FirstName: "A", LastName: "B", Email: "a@b.io", Password: "longenough", Role: model.RoleAdmin}, "role"},
		{"malformed json", "{", "detail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/auth/register", tt.body)
			e := decode(t, w)
			if w.Code != http.StatusBadRequest || e.Error == nil || e.Error.Code != string(response.ErrValidation) {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
			if _, ok := e.Error.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", e.Error.Fields, tt.field)
			}
		})
	}
}

func TestChangePasswordRevokesOldToken(t *testing.T) {
	r := authEngine()
	w := do(r, http.MethodPost, "/api/auth/register", model.RegisterRequest{FirstName: "A", LastName: "B", Email: "a@b.io", Password: "first-pass", Role: model.RoleStudent})
	var res model.AuthResponse
	_ = json.Unmarshal(decode(t, w).Data, &res)

	w = do(r, http.MethodPatch, "/api/auth/change-password", model.ChangePasswordRequest{CurrentPassword: "wrong-pass", NewPassword: "second-pass"}, bearer(res.Token))
	if e := decode(t, w); w.Code != http.StatusBadRequest || e.Error.Code != string(response.ErrWrongPassword) {
		t.Fatalf("wrong current password: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPatch, "/api/auth/change-password", model.ChangePasswordRequest{CurrentPassword: "first-pass", NewPassword: "second-pass"}, bearer(res.Token))
	if w.Code != http.StatusOK {
		t.Fatalf("change password: %d %s", w.Code, w.Body.String())
	}
	var changed model.AuthResponse
	_ = json.Unmarshal(decode(t, w).Data, &changed)

	if w := do(r, http.MethodGet, "/api/auth/user", nil, bearer(res.Token)); w.Code != http.StatusUnauthorized {
		t.Errorf("old token still valid: %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/auth/user", nil, bearer(changed.Token)); w.Code != http.StatusOK {
		t.Errorf("new token rejected: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/auth/login", model.LoginRequest{Email: "a@b.io", Password: "second-pass"}); w.Code != http.StatusOK {
		t.Errorf("login with new password: %d", w.Code)
	}
}

// ─── Request validation before services ─────────────────────────────

func withClaims(role model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: 1, Role: role})
		c.Next()
	}
}

func TestStudentPortalRejectsBadPayloads(t *testing.T) {
	h := NewStudentPortalHandler(nil)
	r := gin.New()
	r.Use(withClaims(model.RoleStudent))
	r.POST("/start-exam", h.StartExam)
	r.POST("/submit-answer", h.SubmitAnswer)
	r.POST("/complete-exam", h.CompleteExam)
	r.GET("/student-exam/:id", h.GetMyAttempt)

	tests := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/start-exam", map[string]any{}},
		{http.MethodPost, "/start-exam", map[string]any{"examId": "seven"}},
		{http.MethodPost, "/submit-answer", map[string]any{"studentExamId": 1}},
		{http.MethodPost, "/submit-answer", map[string]any{"studentExamId": 1, "questionId": 2, "selectedOptionId": -1}},
		{http.MethodPost, "/complete-exam", map[string]any{"studentExamId": 0}},
		{http.MethodGet, "/student-exam/abc", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if w := do(r, tt.method, tt.path, tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestExamHandlerRejectsBadPayloads(t *testing.T) {
	h := NewExamHandler(nil, nil, nil)
	r := gin.New()
	r.Use(withClaims(model.RoleProfessor))
	r.POST("/exams", h.CreateExam)
	r.PATCH("/exams/:id", h.UpdateExam)

	tests := []struct {
		name  string
		path  string
		body  any
		field string
	}{
		{"bad course code", "/exams", map[string]any{"title": "T", "courseCode": "CS101", "duration": 30}, "courseCode"},
		{"zero duration", "/exams", map[string]any{"title": "T", "courseCode": "CS-101", "duration": 0}, "duration"},
		{"passing over 100", "/exams", map[string]any{"title": "T", "courseCode": "CS-101", "duration": 30, "passingScore": 101}, "passingScore"},
		{"unknown question type", "/exams", map[string]any{"title": "T", "courseCode": "CS-101", "duration": 30, "questions": []any{map[string]any{"text": "Q", "type": "oral"}}}, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path, tt.body)
			e := decode(t, w)
			if w.Code != http.StatusBadRequest || e.Error == nil {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
			if _, ok := e.Error.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", e.Error.Fields, tt.field)
			}
		})
	}

	if w := do(r, http.MethodPatch, "/exams/x", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", w.Code)
	}
}

func TestMissingClaimsAreUnauthorized(t *testing.T) {
	r := gin.New()
	r.GET("/a", NewStudentPortalHandler(nil).ListMyAttempts)
	r.GET("/b", NewExamHandler(nil, nil, nil).ListExams)
	r.GET("/c", NewMonitorHandler(nil, zerolog.New(io.Discard)).MonitorExamSSE)
	r.GET("/d", NewWSHandler(nil, zerolog.New(io.Discard), nil).ExamWebSocketStream)

	for _, p := range []string{"/a", "/b", "/c", "/d"} {
		if w := do(r, http.MethodGet, p, nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s: %d", p, w.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewSystemHandler(nil, nil).Health)

	w := do(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "0m 42s"},
		{3*time.Hour + 5*time.Minute, "3h 5m 0s"},
		{50*time.Hour + 10*time.Second, "2d 2h 0m 10s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
