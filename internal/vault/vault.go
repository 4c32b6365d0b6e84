// Package vault encrypts and decrypts tenant client secrets at rest using
// AES-256-GCM.  The ciphertext record is a self-describing string of the
// form hex(nonce):hex(ciphertext):hex(tag) so that a stored value can be
// validated before any cryptographic work happens.  A fresh random nonce is
// generated per call; nonces must never repeat under one key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// ErrMalformedCiphertext is returned when a stored record cannot be split
// into its nonce, ciphertext and tag components or any component is not
// valid hex.  Handlers should treat this as a configuration/storage fault.
var ErrMalformedCiphertext = errors.New("vault: malformed ciphertext record")

// ErrAuthenticationFailed is returned when the GCM tag does not verify,
// meaning the record was tampered with or encrypted under a different key.
var ErrAuthenticationFailed = errors.New("vault: ciphertext authentication failed")

// Vault performs the encrypt/decrypt transformation.  It holds no state
// beyond the key and is safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New constructs a Vault from raw key material.  The key must be exactly
// KeySize bytes.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// NewFromHex constructs a Vault from a hex-encoded key, the form the key
// arrives in from configuration.
func NewFromHex(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("vault: key is not valid hex: %w", err)
	}
	return New(key)
}

// Encrypt seals the secret under a fresh random nonce and returns the
// self-describing record string.
func (v *Vault) Encrypt(secret string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce generation failed: %w", err)
	}
	// Seal appends the GCM tag to the ciphertext; split it back out so the
	// record keeps its three explicit components.
	sealed := v.aead.Seal(nil, nonce, []byte(secret), nil)
	tagStart := len(sealed) - v.aead.Overhead()
	ct, tag := sealed[:tagStart], sealed[tagStart:]
	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(nonce),
		hex.EncodeToString(ct),
		hex.EncodeToString(tag)), nil
}

// Decrypt parses a record produced by Encrypt and returns the plain
// secret.  It fails with ErrMalformedCiphertext when the record does not
// parse and ErrAuthenticationFailed when the tag does not verify.
func (v *Vault) Decrypt(record string) (string, error) {
	parts := strings.Split(record, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != v.aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != v.aead.Overhead() {
		return "", ErrMalformedCiphertext
	}
	plain, err := v.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}
	return string(plain), nil
}
