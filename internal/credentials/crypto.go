package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultAlgorithm  = "aes-256-gcm"
	defaultIterations = 4096
	saltLength        = 16
	keyLength         = 32
)

// CryptoParams captures the cipher parameters a credential entry was
// encrypted with, so the key can be regenerated correctly on read. Each
// entry carries its own params; rotating the scheme only affects entries
// written afterwards.
type CryptoParams struct {
	Algorithm  string
	Salt       []byte
	Iterations int
}

// DeriveParams creates fresh params with a random salt.
func DeriveParams() (CryptoParams, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return CryptoParams{}, fmt.Errorf("credentials: salt generation: %w", err)
	}
	return CryptoParams{
		Algorithm:  defaultAlgorithm,
		Salt:       salt,
		Iterations: defaultIterations,
	}, nil
}

// String renders params in the "algorithm;hex-salt;iterations" form stored
// in the credentials file.
func (p CryptoParams) String() string {
	return fmt.Sprintf("%s;%s;%d", p.Algorithm, hex.EncodeToString(p.Salt), p.Iterations)
}

// ParseParams is the inverse of String.
func ParseParams(s string) (CryptoParams, error) {
	parts := strings.Split(s, ";")
	if len(parts) != 3 {
		return CryptoParams{}, fmt.Errorf("credentials: malformed params %q", s)
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return CryptoParams{}, fmt.Errorf("credentials: malformed salt in params %q", s)
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return CryptoParams{}, fmt.Errorf("credentials: malformed iterations in params %q", s)
	}
	return CryptoParams{Algorithm: parts[0], Salt: salt, Iterations: iterations}, nil
}

// Cipher encrypts and decrypts secret credential fields. Ciphertext is
// carried as base64 so the credentials file stays ASCII-safe.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a key from passphrase using the given params and
// builds the AEAD matching params.Algorithm.
func NewCipher(passphrase string, params CryptoParams) (*Cipher, error) {
	if params.Algorithm != defaultAlgorithm {
		return nil, fmt.Errorf("credentials: unsupported algorithm %q", params.Algorithm)
	}

	key := pbkdf2.Key([]byte(passphrase), params.Salt, params.Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: cipher setup: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: cipher setup: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// EncryptString returns base64(nonce || ciphertext).
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credentials: nonce generation: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credentials: malformed base64 ciphertext: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("credentials: ciphertext too short")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("credentials: decryption failed: %w", err)
	}
	return string(plaintext), nil
}
