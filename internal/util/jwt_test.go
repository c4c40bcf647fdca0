package util

import (
	"testing"
	"time"
)

func TestParseJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "ada", "secret", time.Minute)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "ada" {
		t.Errorf("Expected user 42/ada, got %d/%s", claims.UserID, claims.Username)
	}
}

func TestParseJWTRejectsBadTokens(t *testing.T) {
	token, _ := GenerateJWT(42, "ada", "secret", time.Minute)
	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Errorf("Expected wrong secret to be rejected")
	}

	expired, _ := GenerateJWT(42, "ada", "secret", -time.Minute)
	if _, err := ParseJWT(expired, "secret"); err == nil {
		t.Errorf("Expected expired token to be rejected")
	}

	anonymous, _ := GenerateJWT(0, "", "secret", time.Minute)
	if _, err := ParseJWT(anonymous, "secret"); err == nil {
		t.Errorf("Expected token without user id to be rejected")
	}
}
