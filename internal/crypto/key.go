package crypto

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeyFromBase64 decodes a standard-base64 32-byte key.
func KeyFromBase64(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// DeriveKey stretches a passphrase into a 32-byte key with argon2id. The
// salt must be stable across restarts or stored ciphertext becomes
// unreadable.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}
