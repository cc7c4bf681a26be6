// Package crypto seals namespace archives with AES-256-GCM before they leave the
// process for blob storage. A sealed blob is nonce || ciphertext || tag, so it
// can be opened with the same key and nothing else.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/orgspace/orgspace/internal/config"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var (
	// ErrKeyLengthInvalid is returned when a key is not exactly KeySize bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when sealed data is too short to hold a nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or truncated")
	// ErrDecryptionFailed is returned when authentication fails: wrong key or tampered data.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
	// ErrSaltTooShort is returned when a PBKDF2 salt is under 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
)

// Cipher seals and opens byte payloads.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// DeriveCipher stretches a passphrase into a key with PBKDF2-SHA256.
// Iteration counts under 10000 are raised to 100000.
func DeriveCipher(passphrase string, salt []byte, iterations int) (*Cipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000
	}
	return NewCipher(pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New))
}

// ParseKey decodes a configured key given as 64 hex characters or standard /
// URL-safe base64 of 32 bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(s); err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	return nil, ErrKeyLengthInvalid
}

// Seal encrypts plaintext under a fresh random nonce. aad is authenticated but
// not encrypted; pass the same value to Open.
func (c *Cipher) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal.
func (c *Cipher) Open(sealed, aad []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, ErrCiphertextCorrupted
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// GenerateKey returns a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// FromArchiveConfig builds the archive cipher from either a raw key or a
// passphrase and hex salt. It returns nil when archives are stored in the clear.
func FromArchiveConfig(cfg *config.ArchiveConfig) (*Cipher, error) {
	switch {
	case cfg.EncryptionKey != "":
		key, err := ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid archive.encryption_key: %w", err)
		}
		return NewCipher(key)
	case cfg.Passphrase != "":
		salt, err := hex.DecodeString(cfg.Salt)
		if err != nil {
			return nil, fmt.Errorf("invalid archive.salt: %w", err)
		}
		c, err := DeriveCipher(cfg.Passphrase, salt, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to derive archive key: %w", err)
		}
		return c, nil
	}
	return nil, nil
}
