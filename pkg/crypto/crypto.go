package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	payloadVersion = "v1"
	ivBytes        = 12
	tagBytes       = 16
)

var credentialInfo = []byte("archive-credential-v1")

// Service encrypts and decrypts mailbox credentials with AES-256-GCM. The
// AES key is derived from the configured master key via HKDF-SHA256, so the
// master key itself never touches the cipher.
type Service struct {
	aead cipher.AEAD
}

// NewService derives the credential key from masterKey and prepares the AEAD.
func NewService(masterKey string) (*Service, error) {
	if strings.TrimSpace(masterKey) == "" {
		return nil, errors.New("archive master key is required")
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(masterKey), nil, credentialInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init credential aead: %w", err)
	}
	return &Service{aead: aead}, nil
}

// Encrypt seals plainText into a "v1.<iv>.<tag>.<ciphertext>" envelope with
// base64url-encoded segments.
func (s *Service) Encrypt(plainText string) (string, error) {
	if strings.TrimSpace(plainText) == "" {
		return "", errors.New("credential must not be empty")
	}

	iv := make([]byte, ivBytes)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := s.aead.Seal(nil, iv, []byte(plainText), nil)
	cipherText := sealed[:len(sealed)-tagBytes]
	tag := sealed[len(sealed)-tagBytes:]

	enc := base64.RawURLEncoding
	return strings.Join([]string{
		payloadVersion,
		enc.EncodeToString(iv),
		enc.EncodeToString(tag),
		enc.EncodeToString(cipherText),
	}, "."), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (s *Service) Decrypt(payload string) (string, error) {
	parts := strings.Split(payload, ".")
	if len(parts) != 4 || parts[0] != payloadVersion {
		return "", errors.New("invalid credential payload format")
	}

	enc := base64.RawURLEncoding
	iv, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("invalid credential payload envelope")
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", errors.New("invalid credential payload envelope")
	}
	cipherText, err := enc.DecodeString(parts[3])
	if err != nil {
		return "", errors.New("invalid credential payload envelope")
	}
	if len(iv) != ivBytes || len(tag) != tagBytes {
		return "", errors.New("invalid credential payload envelope")
	}

	plain, err := s.aead.Open(nil, iv, append(cipherText, tag...), nil)
	if err != nil {
		return "", errors.New("credential payload authentication failed")
	}
	return string(plain), nil
}

// Redact returns a preview of a secret safe for API responses and logs.
func Redact(input string) string {
	if input == "" {
		return ""
	}
	if len(input) <= 6 {
		return "***"
	}
	return input[:3] + "***" + input[len(input)-3:]
}
