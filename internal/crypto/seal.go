package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

// SealWithPassphrase encrypts data for at-rest cache sealing using a key
// derived from the passphrase with Argon2id, then ChaCha20-Poly1305.
// Layout of the result: salt + nonce + ciphertext.
func SealWithPassphrase(data []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty sealing passphrase")
	}

	// Generate random salt for Argon2id
	salt := make([]byte, misc.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	// Derive sealing key
	key := argon2.IDKey([]byte(passphrase), salt, misc.ArgonTime, misc.ArgonMemory, misc.ArgonThreads, misc.ArgonKeyLen)
	defer Wipe(key)

	// Create cipher
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// Generate nonce
	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Encrypt
	ciphertext := aead.Seal(nil, nonce, data, nil)

	// Combine: salt + nonce + ciphertext
	result := make([]byte, len(salt)+len(nonce)+len(ciphertext))
	copy(result[:len(salt)], salt)
	copy(result[len(salt):len(salt)+len(nonce)], nonce)
	copy(result[len(salt)+len(nonce):], ciphertext)

	return result, nil
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(sealed []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("empty sealing passphrase")
	}
	if len(sealed) < misc.SaltSize+chacha20poly1305.NonceSize {
		return nil, errors.New("sealed data too short")
	}

	// Extract components
	salt := sealed[:misc.SaltSize]
	nonce := sealed[misc.SaltSize : misc.SaltSize+chacha20poly1305.NonceSize]
	ciphertext := sealed[misc.SaltSize+chacha20poly1305.NonceSize:]

	// Derive sealing key
	key := argon2.IDKey([]byte(passphrase), salt, misc.ArgonTime, misc.ArgonMemory, misc.ArgonThreads, misc.ArgonKeyLen)
	defer Wipe(key)

	// Create cipher
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// Decrypt
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}
