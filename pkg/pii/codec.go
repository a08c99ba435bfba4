package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrIntegrity is returned when a ciphertext fails authentication: it was
// tampered with, truncated, or encrypted under a different key. The
// corrupted plaintext is never returned.
var ErrIntegrity = errors.New("pii: ciphertext integrity check failed")

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// Codec encrypts and decrypts PII field values.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESCodec implements Codec using AES-256-GCM. The nonce is generated per
// call and prepended to the ciphertext; the result is base64-encoded for
// storage in text columns.
type AESCodec struct {
	aead cipher.AEAD
}

// NewAESCodec creates a codec from a hex-encoded 32-byte key.
func NewAESCodec(hexKey string) (*AESCodec, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &AESCodec{aead: aead}, nil
}

// Encrypt encrypts a plaintext value. Repeated calls with the same input
// produce different outputs.
func (c *AESCodec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts a value produced by Encrypt. Returns ErrIntegrity if the
// ciphertext was altered or the key does not match.
func (c *AESCodec) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrIntegrity
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrIntegrity
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}

	return string(plaintext), nil
}
