package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

// NonceSize is the AES-256-GCM nonce length in bytes (96 bits).
const NonceSize = 12

// ErrAuthentication is returned when an authenticated decryption fails its
// tag check. Callers must treat this as "wrong key or tampered ciphertext"
// and must not conflate it with malformed input or internal failures.
var ErrAuthentication = errors.New("authentication failed")

// AuthEncrypt encrypts plaintext with AES-256-GCM under key, generating a
// fresh random nonce per call. Returns the ciphertext (with tag appended)
// and the nonce.
func AuthEncrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	if len(plaintext) == 0 {
		return nil, nil, errors.New("empty plaintext")
	}
	if len(key) != misc.KeySize {
		return nil, nil, fmt.Errorf("key must be %d bytes, got %d", misc.KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// AuthDecrypt decrypts an AES-256-GCM ciphertext. A failed tag check is
// reported as ErrAuthentication; structural problems (bad key length, short
// nonce or ciphertext) are reported as ordinary errors so the caller can
// distinguish corruption/wrong-key from malformed input.
func AuthDecrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	if len(key) != misc.KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", misc.KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}
