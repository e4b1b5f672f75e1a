package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Cipher encrypts and decrypts credential material with AES-256-GCM. The key
// is held by the process and injected at startup; there is exactly one live
// key, and rotation is an explicit out-of-band pass over stored rows.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce and returns
// base64(nonce) + ":" + base64(ciphertext). The random nonce makes the
// output non-deterministic: the same plaintext never encrypts to the same
// string twice.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed input, a truncated nonce, or a
// ciphertext sealed under a different key all fail; callers on the
// credential read path treat that as a data-integrity failure.
func (c *Cipher) Decrypt(combined string) (string, error) {
	parts := strings.SplitN(combined, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed ciphertext: missing nonce separator")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("malformed ciphertext: nonce must be %d bytes", c.aead.NonceSize())
	}
	sealed, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: authentication failed or corrupted data: %w", err)
	}
	return string(plaintext), nil
}

// Rotate re-encrypts one stored value under a new cipher. Used by the
// repository's rotation pass; never called on the publish path.
func Rotate(old, new *Cipher, combined string) (string, error) {
	plaintext, err := old.Decrypt(combined)
	if err != nil {
		return "", fmt.Errorf("rotate: %w", err)
	}
	return new.Encrypt(plaintext)
}
