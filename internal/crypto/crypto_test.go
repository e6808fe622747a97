package crypto_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/halcyon-labs/watchtower/internal/crypto"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func TestAESGCM_RoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("secret payload")

	blob, err := crypto.EncryptGCM(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	decrypted, err := crypto.DecryptGCM(key, blob)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(plaintext, decrypted) {
		t.Error("Decrypted text mismatch")
	}
}

func TestAESGCM_Tamper(t *testing.T) {
	key := randomKey(t)
	blob, _ := crypto.EncryptGCM(key, []byte("secret"))

	blob[len(blob)-1] ^= 0xFF
	if _, err := crypto.DecryptGCM(key, blob); !errors.Is(err, crypto.ErrDecryption) {
		t.Errorf("Expected ErrDecryption on tampered blob, got %v", err)
	}
}

func TestAESGCM_KeySize(t *testing.T) {
	if _, err := crypto.EncryptGCM([]byte("short"), []byte("x")); !errors.Is(err, crypto.ErrInvalidKeySize) {
		t.Errorf("Expected ErrInvalidKeySize, got %v", err)
	}
}

func TestCredentialSealer_RoundTrip(t *testing.T) {
	sealer, err := crypto.NewCredentialSealer("hunter2-but-longer")
	if err != nil {
		t.Fatalf("NewCredentialSealer failed: %v", err)
	}

	blob, err := sealer.SealString("ring-account-password")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	out, err := sealer.OpenString(blob)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if out != "ring-account-password" {
		t.Errorf("Round trip mismatch: got %q", out)
	}

	// Same plaintext sealed twice must not share a salt.
	blob2, _ := sealer.SealString("ring-account-password")
	if bytes.Equal(blob[:16], blob2[:16]) {
		t.Error("Expected distinct salts for repeated seals")
	}
}

func TestCredentialSealer_WrongPassphrase(t *testing.T) {
	sealer, _ := crypto.NewCredentialSealer("correct-passphrase")
	blob, _ := sealer.SealString("secret")

	other, _ := crypto.NewCredentialSealer("wrong-passphrase")
	if _, err := other.Open(blob); !errors.Is(err, crypto.ErrDecryption) {
		t.Errorf("Expected ErrDecryption with wrong passphrase, got %v", err)
	}
}

func TestCredentialSealer_EmptyPassphrase(t *testing.T) {
	if _, err := crypto.NewCredentialSealer(""); err == nil {
		t.Error("Expected error for empty passphrase")
	}
}
