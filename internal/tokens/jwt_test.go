package tokens_test

import (
	"testing"
	"time"

	"github.com/halcyon-labs/watchtower/internal/tokens"
)

func TestTokenGeneration(t *testing.T) {
	mgr := tokens.NewManager("test-secret-key")

	token, err := mgr.GenerateToken("operator", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims.Subject != "operator" {
		t.Errorf("Expected subject operator, got %s", claims.Subject)
	}
}

func TestInvalidSignature(t *testing.T) {
	mgr1 := tokens.NewManager("secret-1")
	mgr2 := tokens.NewManager("secret-2")

	token, _ := mgr1.GenerateToken("operator", time.Hour)
	_, err := mgr2.ValidateToken(token)
	if err == nil {
		t.Error("Expected validation error for wrong signature")
	}
}

func TestExpiredToken(t *testing.T) {
	mgr := tokens.NewManager("secret")

	token, _ := mgr.GenerateToken("operator", -time.Minute)
	if _, err := mgr.ValidateToken(token); err == nil {
		t.Error("Expected validation error for expired token")
	}
}
