// Package secret seals sensitive configuration values before they are
// written into checkpoint payloads. Values are encrypted with AES-256-GCM
// under a key derived from the operator's master secret via scrypt.
// This is part of the Functional Core - all functions are pure with no I/O.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNoMasterSecret    = errors.New("master secret is empty")
	ErrNotSealed         = errors.New("value is not a sealed payload")
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")
	ErrUnsealFailed      = errors.New("unseal failed: wrong master secret or corrupted value")
)

// sealedPrefix marks a sealed value: sealed:v1:<b64 salt>:<b64 ciphertext>
const sealedPrefix = "sealed:v1:"

// scrypt cost parameters. Interactive-grade: sealing happens at most a
// handful of times per checkpoint.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32
	saltLen = 16
)

// =============================================================================
// Sensitive Keys
// =============================================================================

// sensitiveSuffixes marks configuration keys whose values are sealed
// when a master secret is configured.
var sensitiveSuffixes = []string{".password", ".secret", ".token", ".apikey", ".key"}

// IsSensitiveKey reports whether a configuration key holds a value that
// must not appear in plaintext inside persisted checkpoints.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// IsSealed reports whether a value carries the sealed payload marker.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// =============================================================================
// Sealer
// =============================================================================

// Sealer encrypts and decrypts individual configuration values.
type Sealer struct {
	passphrase []byte
}

// NewSealer creates a sealer from the operator's master secret.
func NewSealer(masterSecret string) (*Sealer, error) {
	if masterSecret == "" {
		return nil, ErrNoMasterSecret
	}
	return &Sealer{passphrase: []byte(masterSecret)}, nil
}

// Seal encrypts a value. Already-sealed values pass through unchanged so
// re-sealing a restored state is harmless.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if IsSealed(plaintext) {
		return plaintext, nil
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key, err := deriveKey(s.passphrase, salt)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return sealedPrefix +
		base64.StdEncoding.EncodeToString(salt) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a sealed value.
func (s *Sealer) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return "", ErrNotSealed
	}

	parts := strings.SplitN(strings.TrimPrefix(sealed, sealedPrefix), ":", 2)
	if len(parts) != 2 {
		return "", ErrInvalidCiphertext
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad salt", ErrInvalidCiphertext)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad payload", ErrInvalidCiphertext)
	}

	key, err := deriveKey(s.passphrase, salt)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrUnsealFailed
	}
	return string(plaintext), nil
}

// SealValues seals every sensitive entry of a value map, returning a new
// map. A nil sealer returns the input untouched.
func SealValues(s *Sealer, values map[string]string) (map[string]string, error) {
	if s == nil || len(values) == 0 {
		return values, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if IsSensitiveKey(k) {
			sealed, err := s.Seal(v)
			if err != nil {
				return nil, fmt.Errorf("seal %s: %w", k, err)
			}
			out[k] = sealed
			continue
		}
		out[k] = v
	}
	return out, nil
}

// OpenValues unseals every sealed entry of a value map, returning a new
// map. A nil sealer returns the input untouched; sealed values then stay
// sealed, which keeps a restore from leaking them.
func OpenValues(s *Sealer, values map[string]string) (map[string]string, error) {
	if s == nil || len(values) == 0 {
		return values, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if IsSealed(v) {
			opened, err := s.Open(v)
			if err != nil {
				return nil, fmt.Errorf("unseal %s: %w", k, err)
			}
			out[k] = opened
			continue
		}
		out[k] = v
	}
	return out, nil
}

// deriveKey stretches the passphrase with scrypt.
func deriveKey(passphrase, salt []byte) ([]byte, error) {
	return scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, keyLen)
}
