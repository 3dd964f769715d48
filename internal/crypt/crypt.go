// Package crypt encrypts provider credentials at rest. An empty key disables
// encryption and secrets pass through as plaintext, which is acceptable only
// for local development.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const prefix = "enc:"

type Codec struct {
	gcm cipher.AEAD
}

// New derives an AES-256-GCM codec from the configured key string. An empty
// key yields a passthrough codec.
func New(key string) (*Codec, error) {
	if key == "" {
		return &Codec{}, nil
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{gcm: gcm}, nil
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || c.gcm == nil {
		return plaintext, nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt accepts both encrypted and legacy plaintext values; values without
// the marker prefix are returned unchanged.
func (c *Codec) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, prefix) {
		return stored, nil
	}
	if c.gcm == nil {
		return "", errors.New("encrypted credential but no key configured")
	}
	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", err
	}
	if len(raw) < c.gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := raw[:c.gcm.NonceSize()], raw[c.gcm.NonceSize():]
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
