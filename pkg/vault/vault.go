// Package vault protects the long-lived cloud session token
// (spec.md §6's ImageRequest.session_token) at rest between orchestrator
// restarts. It is a direct generalization of the teacher's
// pkg/storage/encryption.go EncryptionManager (Argon2id key derivation +
// AES-256-GCM, the master key and salt it derives from protected with
// Windows DPAPI) onto a
// single secret string instead of a whole encrypted-at-rest database.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	keySize  = 32
	nonceSize = 12
	saltSize = 16

	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4

	keyFileName = "vault.key"
)

// Vault encrypts and decrypts the session token using an AES-256-GCM key
// derived from a random master key + salt, the pair itself protected at
// rest via Windows DPAPI (CryptProtectData) so the on-disk key file is
// unreadable outside the current Windows user account.
type Vault struct {
	mu   sync.RWMutex
	aead cipher.AEAD
}

// Open loads (or creates, on first run) the vault's key material from
// dataDir/vault.key and derives the AES-GCM cipher from it.
func Open(dataDir string) (*Vault, error) {
	masterKey, salt, err := loadOrCreateKey(filepath.Join(dataDir, keyFileName))
	if err != nil {
		return nil, err
	}
	derived := argon2.IDKey(masterKey, salt, argon2Time, argon2Memory, argon2Threads, keySize)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

func loadOrCreateKey(path string) (masterKey, salt []byte, err error) {
	if protected, readErr := os.ReadFile(path); readErr == nil {
		combined, decErr := dpapiUnprotect(protected)
		if decErr == nil && len(combined) == keySize+saltSize {
			return combined[:keySize], combined[keySize:], nil
		}
	}

	masterKey = make([]byte, keySize)
	if _, err = io.ReadFull(rand.Reader, masterKey); err != nil {
		return nil, nil, err
	}
	salt = make([]byte, saltSize)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, err
	}

	combined := append(append([]byte{}, masterKey...), salt...)
	protected, err := dpapiProtect(combined)
	if err != nil {
		return nil, nil, err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}
	if err = os.WriteFile(path, protected, 0o600); err != nil {
		return nil, nil, err
	}
	return masterKey, salt, nil
}

// EncryptToken encrypts a plaintext session token, returning a
// base64-encoded ciphertext suitable for storage alongside settings.
func (v *Vault) EncryptToken(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptToken reverses EncryptToken.
func (v *Vault) DecryptToken(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(data) < nonceSize+v.aead.Overhead() {
		return "", errors.New("vault: ciphertext too short")
	}
	nonce, encrypted := data[:nonceSize], data[nonceSize:]
	plain, err := v.aead.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
