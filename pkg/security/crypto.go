package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Sealer encrypts short values with AES-GCM. It is used to carry the owner of an
// anonymous complaint through the message queue without exposing it to every consumer.
type Sealer struct {
	gcm cipher.AEAD
}

// DeriveKey returns a 32-byte key for AES-GCM.
// Priority:
// 1) encKey (base64-encoded 32 bytes, ANON_ENC_KEY)
// 2) sha256 of secret (JWT_SECRET)
func DeriveKey(encKey, secret string) ([]byte, error) {
	if v := strings.TrimSpace(encKey); v != "" {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decode ANON_ENC_KEY: %w", err)
		}
		if len(b) != 32 {
			return nil, errors.New("ANON_ENC_KEY must decode to 32 bytes")
		}
		return b, nil
	}

	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("no key material: set ANON_ENC_KEY or JWT_SECRET")
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

func (s *Sealer) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := s.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	payload := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

func (s *Sealer) DecryptString(ciphertextB64 string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", err
	}

	ns := s.gcm.NonceSize()
	if len(payload) < ns {
		return "", errors.New("ciphertext too short")
	}
	nonce, ct := payload[:ns], payload[ns:]

	pt, err := s.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func (s *Sealer) SealID(id int64) (string, error) {
	return s.EncryptString(strconv.FormatInt(id, 10))
}

func (s *Sealer) OpenID(sealed string) (int64, error) {
	pt, err := s.DecryptString(sealed)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(pt, 10, 64)
}
