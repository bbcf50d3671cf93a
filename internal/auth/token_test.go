package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestAccessTokenRoundTrip проверяет подпись и разбор access-токена.
func TestAccessTokenRoundTrip(t *testing.T) {
	manager := NewTokenManager("test-secret", "pod-budget-chat")
	userID := uuid.New()

	signed, expiresAt, err := manager.NewAccessToken(userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expected future expiry")
	}

	claims, err := manager.ParseAccessToken(signed)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Subject != userID.String() {
		t.Fatalf("expected subject %s, got %s", userID, claims.Subject)
	}
}

// TestParseAccessTokenWrongSecret проверяет отказ при неверном секрете.
func TestParseAccessTokenWrongSecret(t *testing.T) {
	manager := NewTokenManager("test-secret", "pod-budget-chat")
	other := NewTokenManager("other-secret", "pod-budget-chat")

	signed, _, err := manager.NewAccessToken(uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := other.ParseAccessToken(signed); err == nil {
		t.Fatal("expected parse error for wrong secret")
	}
}

// TestParseAccessTokenWrongIssuer проверяет отказ при чужом issuer.
func TestParseAccessTokenWrongIssuer(t *testing.T) {
	manager := NewTokenManager("test-secret", "someone-else")
	verifier := NewTokenManager("test-secret", "pod-budget-chat")

	signed, _, err := manager.NewAccessToken(uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := verifier.ParseAccessToken(signed); err == nil {
		t.Fatal("expected parse error for wrong issuer")
	}
}
