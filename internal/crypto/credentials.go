package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize        = 16
	kdfIterations   = 100_000
	derivedKeyBytes = 32
)

// CredentialSealer encrypts vendor credentials at rest. The key is derived
// per blob from the passphrase and a random salt, so two rows sealed with the
// same passphrase never share key material.
type CredentialSealer struct {
	passphrase []byte
}

func NewCredentialSealer(passphrase string) (*CredentialSealer, error) {
	if passphrase == "" {
		return nil, errors.New("credential passphrase is empty")
	}
	return &CredentialSealer{passphrase: []byte(passphrase)}, nil
}

// Seal returns salt||nonce||ciphertext||tag.
func (s *CredentialSealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	key := pbkdf2.Key(s.passphrase, salt, kdfIterations, derivedKeyBytes, sha256.New)
	sealed, err := EncryptGCM(key, plaintext)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

func (s *CredentialSealer) Open(blob []byte) ([]byte, error) {
	if len(blob) < saltSize {
		return nil, ErrDecryption
	}
	salt, sealed := blob[:saltSize], blob[saltSize:]

	key := pbkdf2.Key(s.passphrase, salt, kdfIterations, derivedKeyBytes, sha256.New)
	return DecryptGCM(key, sealed)
}

func (s *CredentialSealer) SealString(plaintext string) ([]byte, error) {
	return s.Seal([]byte(plaintext))
}

func (s *CredentialSealer) OpenString(blob []byte) (string, error) {
	out, err := s.Open(blob)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
