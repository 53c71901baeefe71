package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dejobratic/orderflow/internal/payments"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	tagSize   = 16
	separator = ":"
	hkdfInfo  = "orderflow payment credentials v1"
)

// ErrEmptySecret is returned when no encryption secret is configured.
var ErrEmptySecret = errors.New("vault: encryption secret is empty")

// Cipher encrypts token fields with AES-256-GCM. Sealed values are stored
// as hex "nonce:tag:ciphertext".
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the AES key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create block cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithTagSize(block, tagSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt opens a sealed value. Values without the nonce/tag structure
// predate encryption and are returned unchanged. A value that has the
// structure but fails authentication yields ErrCredentialCorrupted.
func (c *Cipher) Decrypt(value string) (string, error) {
	parts := strings.Split(value, separator)
	if len(parts) != 3 {
		return value, nil
	}

	nonce, errNonce := hex.DecodeString(parts[0])
	tag, errTag := hex.DecodeString(parts[1])
	ciphertext, errText := hex.DecodeString(parts[2])
	if errNonce != nil || errTag != nil || errText != nil ||
		len(nonce) != c.aead.NonceSize() || len(tag) != tagSize {
		return value, nil
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", payments.ErrCredentialCorrupted, err)
	}
	return string(plaintext), nil
}
