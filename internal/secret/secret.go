// Package secret seals Canvas credentials before they are written to disk.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

// ErrNoKey is returned when a sealed value is read without a key configured.
var ErrNoKey = errors.New("credential is sealed but no key is configured")

// Sealer encrypts short secrets with NaCl secretbox. A Sealer without a key
// passes values through unchanged.
type Sealer struct {
	key *[32]byte
}

// NewSealer derives a key from passphrase. An empty passphrase disables sealing.
func NewSealer(passphrase string) *Sealer {
	if passphrase == "" {
		return &Sealer{}
	}
	key := sha256.Sum256([]byte(passphrase))
	return &Sealer{key: &key}
}

// Enabled reports whether values are actually encrypted.
func (s *Sealer) Enabled() bool {
	return s != nil && s.key != nil
}

// Seal encrypts plain. Empty input stays empty.
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" || !s.Enabled() {
		return plain, nil
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, s.key)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as stored.
func (s *Sealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if !s.Enabled() {
		return "", ErrNoKey
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed credential: %w", err)
	}
	if len(raw) < 24+secretbox.Overhead {
		return "", fmt.Errorf("sealed credential too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, s.key)
	if !ok {
		return "", fmt.Errorf("open sealed credential: authentication failed")
	}
	return string(plain), nil
}
