package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	userID := uuid.New()

	t.Run("access token", func(t *testing.T) {
		token, err := CreateAccessToken(secret, userID)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		claims, err := ParseToken(secret, token, TokenTypeAccess)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if claims.Subject != userID.String() {
			t.Errorf("subject = %q, want %q", claims.Subject, userID)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		token, err := CreateRefreshToken(secret, userID)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := ParseToken(secret, token, TokenTypeAccess); err == nil {
			t.Error("refresh token accepted as access token")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := CreateAccessToken(secret, userID)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := ParseToken([]byte("other"), token, TokenTypeAccess); err == nil {
			t.Error("token verified under wrong secret")
		}
	})
}
