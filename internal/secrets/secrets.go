// Package secrets seals provider credentials at rest with NaCl secretbox.
// Sealed values are base64(nonce || box).
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
)

type Sealer struct {
	key [KeySize]byte
}

// ParseKey accepts a 32-byte key encoded as hex (64 chars) or standard base64.
func ParseKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	s = strings.TrimSpace(s)
	if s == "" {
		return key, errors.Wrap(models.ErrConfiguration, "credentials key is empty")
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(s)
	}
	if err != nil {
		return key, errors.Wrap(models.ErrConfiguration, "credentials key must be hex or base64")
	}
	if len(raw) != KeySize {
		return key, errors.Wrapf(models.ErrConfiguration, "credentials key must be %d bytes, got %d", KeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func New(key [KeySize]byte) *Sealer {
	return &Sealer{key: key}
}

// NewFromString is ParseKey + New.
func NewFromString(s string) (*Sealer, error) {
	key, err := ParseKey(s)
	if err != nil {
		return nil, err
	}
	return New(key), nil
}

// GenerateKey returns a fresh random key, hex-encoded.
func GenerateKey() (string, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", errors.Wrap(err, "generate key")
	}
	return hex.EncodeToString(key[:]), nil
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", errors.Wrap(models.ErrConfiguration, "sealed value is not base64")
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", errors.Wrap(models.ErrConfiguration, "sealed value is too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", errors.Wrap(models.ErrConfiguration, "cannot open sealed value (wrong key?)")
	}
	return string(out), nil
}
