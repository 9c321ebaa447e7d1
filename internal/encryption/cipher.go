// Package encryption seals message content and memory values before they reach storage.
package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrEmptyKey          = errors.New("encryption key is empty")
	ErrMalformedCipher   = errors.New("malformed ciphertext")
	ErrAuthenticationBad = errors.New("ciphertext failed authentication")
)

const keyInfo = "aion/content-encryption/v1"

// Cipher encrypts and decrypts text fields stored at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AEADCipher is an XChaCha20-Poly1305 cipher keyed from a passphrase via HKDF-SHA256.
// Output is base64(nonce || sealed).
type AEADCipher struct {
	aead cipher.AEAD
}

func NewAEADCipher(secret string) (*AEADCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptyKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &AEADCipher{aead: aead}, nil
}

func (c *AEADCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AEADCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCipher, err)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", ErrMalformedCipher
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthenticationBad
	}
	return string(plain), nil
}
