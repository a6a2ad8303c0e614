package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/ironclaw/core/internal/kerr"
)

// AESGCMCrypto implements Crypto with AES-256-GCM, keyed by a
// SHA-256-stretched master key delivered via environment, OS keychain,
// or configuration (resolution lives in internal/config).
type AESGCMCrypto struct {
	aead cipher.AEAD
}

// NewAESGCMCrypto derives a 256-bit key from masterKey via SHA-256 and
// constructs the AEAD. masterKey may be any length; it is hashed rather
// than used directly so operators can supply a passphrase.
func NewAESGCMCrypto(masterKey string) (*AESGCMCrypto, error) {
	if masterKey == "" {
		return nil, kerr.New(kerr.Config, "master key must not be empty")
	}
	key := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, kerr.Wrap(kerr.Config, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, kerr.Wrap(kerr.Config, err)
	}
	return &AESGCMCrypto{aead: aead}, nil
}

// Seal encrypts plaintext, returning ciphertext and a fresh nonce.
func (c *AESGCMCrypto) Seal(plaintext string) ([]byte, []byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, kerr.Wrap(kerr.Storage, err)
	}
	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, nil
}

// Open decrypts ciphertext sealed with the given nonce.
func (c *AESGCMCrypto) Open(ciphertext, nonce []byte) (string, error) {
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", kerr.Wrap(kerr.Storage, err)
	}
	return string(plain), nil
}
