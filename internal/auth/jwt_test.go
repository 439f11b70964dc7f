package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	mgr := NewJWTManager("test-secret-key-123", 0)
	token, err := mgr.GenerateAccessToken("user-42")
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("expected user_id=user-42, got %s", claims.UserID)
	}
	if claims.Subject != "user-42" {
		t.Errorf("expected subject=user-42, got %s", claims.Subject)
	}
	if mgr.Expiry() != DefaultExpiry {
		t.Errorf("expected default expiry, got %v", mgr.Expiry())
	}
}

func TestValidateSubjectOnlyToken(t *testing.T) {
	mgr := NewJWTManager("platform-secret", time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("platform-secret"))
	if err != nil {
		t.Fatal(err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != "user-7" {
		t.Errorf("expected user id from subject, got %q", claims.UserID)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)
	other, _ := NewJWTManager("other-secret", time.Hour).GenerateAccessToken("user-1")
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).SignedString([]byte("test-secret"))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", other},
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"no expiry", noExpiry},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mgr.ValidateToken(tt.token); err != ErrInvalidToken {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestExpiredToken(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Minute)
	mgr.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, err := mgr.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	mgr.now = time.Now
	if _, err := mgr.ValidateToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestDifferentUsersGetDifferentTokens(t *testing.T) {
	mgr := NewJWTManager("test-secret", 0)
	t1, _ := mgr.GenerateAccessToken("alice")
	t2, _ := mgr.GenerateAccessToken("bob")
	if t1 == t2 {
		t.Error("different users should get different tokens")
	}
}
