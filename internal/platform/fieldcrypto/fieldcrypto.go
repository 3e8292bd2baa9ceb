// Package fieldcrypto encrypts individual column values at rest.
package fieldcrypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Prefix marks a value produced by Encrypt. Values without it are returned
// unchanged by Decrypt so rows written before encryption was enabled stay readable.
const Prefix = "enc:v1:"

var ErrInvalidKey = errors.New("fieldcrypto: key must be 32 bytes")

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// Nop stores values as-is.
type Nop struct{}

func (Nop) Encrypt(plaintext string) (string, error) { return plaintext, nil }
func (Nop) Decrypt(value string) (string, error)     { return value, nil }

// XChaCha seals values with XChaCha20-Poly1305 and a random 24-byte nonce.
type XChaCha struct {
	key []byte
}

func NewXChaCha(key []byte) (*XChaCha, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &XChaCha{key: k}, nil
}

// FromBase64Key returns Nop for an empty key, otherwise an XChaCha cipher.
func FromBase64Key(encoded string) (Cipher, error) {
	if encoded == "" {
		return Nop{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: decode key: %w", err)
	}
	return NewXChaCha(key)
}

func (c *XChaCha) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("fieldcrypto: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *XChaCha) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("fieldcrypto: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("fieldcrypto: ciphertext too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypto: open: %w", err)
	}
	return string(plain), nil
}
