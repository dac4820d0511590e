package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type memDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemDenylist() *memDenylist {
	return &memDenylist{revoked: map[string]time.Duration{}}
}

func (d *memDenylist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[jti] = ttl
	return nil
}

func (d *memDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.revoked[jti]
	return ok, nil
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
}

func newTestAuth() (*AuthService, *memDenylist) {
	dl := newMemDenylist()
	return NewAuthService(testConfig(), dl), dl
}

func TestTokenRoundTrip(t *testing.T) {
	auth, _ := newTestAuth()
	token, err := auth.GenerateToken(&model.User{ID: 42, Role: model.RoleProfessor})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := auth.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.UserID != 42 || claims.Role != model.RoleProfessor || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	auth, _ := newTestAuth()
	good, _ := auth.GenerateToken(&model.User{ID: 1, Role: model.RoleStudent})

	sign := func(claims jwt.Claims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	expired := sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		UserID:           1,
		Role:             model.RoleStudent,
	}, "test-secret")
	badRole := sign(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           1,
		Role:             "superuser",
	}, "test-secret")
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1, Role: model.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"tampered":     tampered,
		"wrong secret": sign(&Claims{UserID: 1, Role: model.RoleStudent}, "other-secret"),
		"expired":      expired,
		"unknown role": badRole,
		"alg none":     unsigned,
		"garbage":      "not-a-token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.ValidateToken(tok); err == nil {
				t.Error("token accepted")
			}
		})
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	auth, dl := newTestAuth()
	ctx := context.Background()
	token, _ := auth.GenerateToken(&model.User{ID: 3, Role: model.RoleStudent})

	if err := auth.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := auth.Authenticate(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("err = %v, want ErrTokenRevoked", err)
	}
	for _, ttl := range dl.revoked {
		if ttl <= 0 || ttl > time.Hour {
			t.Errorf("denylist ttl = %v", ttl)
		}
	}

	other, _ := auth.GenerateToken(&model.User{ID: 3, Role: model.RoleStudent})
	if _, err := auth.Authenticate(ctx, other); err != nil {
		t.Errorf("fresh token rejected: %v", err)
	}
}

func TestRevokeIgnoresInvalidToken(t *testing.T) {
	auth, dl := newTestAuth()
	if err := auth.RevokeToken(context.Background(), "garbage"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if len(dl.revoked) != 0 {
		t.Error("invalid token was denylisted")
	}
}

func TestCheckPassword(t *testing.T) {
	auth, _ := newTestAuth()
	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := auth.CheckPassword(hash, "correct horse"); err != nil {
		t.Errorf("right password rejected: %v", err)
	}
	if err := auth.CheckPassword(hash, "battery staple"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
}
