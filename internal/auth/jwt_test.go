// ABOUTME: Tests for JWT issuance and parsing: round trips, expiry, wrong
// ABOUTME: secret, and algorithm confusion.
package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/auth"
)

var testSecret = []byte("test-secret-for-jwt")

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	token, err := auth.IssueAccessToken(testSecret, userID, 3, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := auth.ParseAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("user id = %v, want %v", claims.UserID, userID)
	}
	if claims.TokenVersion != 3 {
		t.Errorf("token version = %d, want 3", claims.TokenVersion)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	t.Parallel()
	token, err := auth.IssueAccessToken(testSecret, uuid.New(), 1, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := auth.ParseAccessToken(token, testSecret); err == nil {
		t.Error("expired token should not parse")
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	t.Parallel()
	token, err := auth.IssueAccessToken(testSecret, uuid.New(), 1, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := auth.ParseAccessToken(token, []byte("other-secret")); err == nil {
		t.Error("token signed with a different secret should not parse")
	}
}

func TestAccessTokenRejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	tokenStr, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := auth.ParseAccessToken(tokenStr, testSecret); err == nil {
		t.Error("alg=none token should not parse")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	jti := uuid.New()

	token, err := auth.IssueRefreshToken(testSecret, userID, 2, jti, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := auth.ParseRefreshToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("user id = %v, want %v", claims.UserID, userID)
	}
	if claims.JTI != jti {
		t.Errorf("jti = %v, want %v", claims.JTI, jti)
	}
	if claims.ID != jti.String() {
		t.Errorf("registered id = %q, want %q", claims.ID, jti.String())
	}
}
