// Package vault implements the Secret Vault: authenticated symmetric
// encryption of stored credentials and deterministic content hashing.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/wp-autohealer/engine/internal/errkind"
)

// Vault holds the process master key and performs AEAD encrypt/decrypt and
// content hashing. The key is immutable after construction.
type Vault struct {
	aead cipher.AEAD
}

// New constructs a Vault from a 32-byte master key. Fails fast if the key
// is missing or the wrong length.
func New(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errkind.CryptoError(fmt.Sprintf("master key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key)))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errkind.CryptoError("failed to initialize cipher: " + err.Error())
	}
	return &Vault{aead: aead}, nil
}

// Encrypt generates a fresh random nonce and returns base64(nonce ‖
// ciphertext ‖ tag). Empty input maps to empty output. Identical plaintexts
// yield distinct ciphertexts across calls because the nonce is fresh each
// time.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errkind.CryptoError("failed to generate nonce: " + err.Error())
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Fails with a CryptoError on any tampering, bad
// base64, short ciphertext, or wrong key. Empty input maps to empty output.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errkind.CryptoError("decryption failed")
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errkind.CryptoError("decryption failed")
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errkind.CryptoError("decryption failed")
	}

	return string(plaintext), nil
}

// Hash computes a deterministic hex-encoded SHA-256 digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// VerifyHash compares s's hash against h using a constant-time comparison,
// guarding against timing side channels.
func VerifyHash(s, h string) bool {
	computed := Hash(s)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(h)) == 1
}
