package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of the application key (AES-256).
const KeySize = 32

const info = "tenancy-secrets-v1"

// GenerateKey returns a random application key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a 32-byte key given as hex or standard base64, the two
// forms accepted in configuration.
func ParseKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	return nil, ErrInvalidKey
}

// deriveKey derives a per-tenant key with HKDF-SHA256, using the tenant id
// as salt. Callers zero the result after use.
func deriveKey(appKey []byte, tenantID uuid.UUID) ([]byte, error) {
	r := hkdf.New(sha256.New, appKey, tenantID[:], []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}
