package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
)

// prefix marks encrypted values so plaintext left by older rows is
// recognized and passed through by Decrypt.
const prefix = "enc:v1:"

// Cipher encrypts tenant secrets, such as database connection strings,
// with AES-256-GCM under a key derived from the application key and the
// tenant id.
type Cipher struct {
	appKey []byte
}

// NewCipher validates and copies appKey.
func NewCipher(appKey []byte) (*Cipher, error) {
	if len(appKey) != KeySize {
		return nil, ErrInvalidKey
	}
	return &Cipher{appKey: append([]byte(nil), appKey...)}, nil
}

// IsEncrypted reports whether s was produced by Encrypt.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, prefix)
}

// Encrypt returns "enc:v1:" followed by base64(nonce | ciphertext | tag).
// Empty input stays empty.
func (c *Cipher) Encrypt(tenantID uuid.UUID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := c.aead(tenantID)
	if err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), tenantID[:])
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the prefix are returned as is.
func (c *Cipher) Decrypt(tenantID uuid.UUID, value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, prefix)
	if !ok {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	aead, err := c.aead(tenantID)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	if len(data) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, ciphertext, tenantID[:])
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

func (c *Cipher) aead(tenantID uuid.UUID) (cipher.AEAD, error) {
	key, err := deriveKey(c.appKey, tenantID)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
