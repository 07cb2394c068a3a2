package keycore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"

	"github.com/Prashant-S29/wosh-keycore/internal/crypto"
	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

// GenerateProjectKey creates a fresh 256-bit project symmetric key inside a
// locked buffer. One key per project; the caller owns the buffer and must
// Destroy it once the key has been wrapped or handed off.
func GenerateProjectKey() (*memguard.LockedBuffer, error) {
	key := make([]byte, misc.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, newError(KindInternal, "generate_project_key", "random generation failed", err)
	}
	return memguard.NewBufferFromBytes(key), nil
}

// WrapProjectKey seals a project key for an organization using
// ephemeral-static X25519 agreement.
//
// A fresh ephemeral keypair is generated per wrap, agreed against the
// organization's static agreement public key, and the shared secret is
// expanded under the project-wrapping label into an AES-256-GCM key. The
// ephemeral private key and the shared secret are wiped before return, and
// the ephemeral public key travels in the record.
//
// Only public material is needed: any client can wrap a key for an
// organization whose private key is not in memory, while only a holder of
// the organization private key can unwrap. This is what allows a new
// project's key to be provisioned without a factor ceremony.
func WrapProjectKey(projectKey *memguard.LockedBuffer, orgAgreementPublicKey []byte) (*WrappedProjectKey, error) {
	const op = "wrap_project_key"

	if projectKey == nil || !projectKey.IsAlive() {
		return nil, newError(KindInvalidInput, op, "missing project key", nil)
	}
	if projectKey.Size() != misc.KeySize {
		return nil, newError(KindInvalidInput, op,
			fmt.Sprintf("project key must be %d bytes", misc.KeySize), nil)
	}
	if len(orgAgreementPublicKey) == 0 {
		return nil, newError(KindInvalidInput, op, "missing organization agreement public key", nil)
	}

	ephemeralPub, ephemeralPriv, err := crypto.GenerateAgreementKeypair()
	if err != nil {
		return nil, newError(KindInternal, op, "ephemeral keypair generation failed", err)
	}
	defer crypto.Wipe(ephemeralPriv)

	shared, err := crypto.AgreeSharedSecret(ephemeralPriv, orgAgreementPublicKey)
	if err != nil {
		return nil, newError(KindInvalidInput, op, "key agreement failed", err)
	}
	defer crypto.Wipe(shared)

	wrappingKey, err := crypto.ExpandKey(shared, crypto.LabelProjectWrapping)
	if err != nil {
		return nil, newError(KindInternal, op, "wrapping key expansion failed", err)
	}
	defer crypto.Wipe(wrappingKey)

	ciphertext, iv, err := crypto.AuthEncrypt(projectKey.Bytes(), wrappingKey)
	if err != nil {
		return nil, newError(KindInternal, op, "project key encryption failed", err)
	}

	return &WrappedProjectKey{
		Ciphertext:         encodeB64(ciphertext),
		IV:                 encodeB64(iv),
		EphemeralPublicKey: encodeB64(ephemeralPub),
		Algorithm:          AlgorithmAESGCMX25519,
		Version:            WrappedKeyVersion,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

// UnwrapProjectKey recovers the project symmetric key from a wrapped record
// using the organization's 32-byte key seed as the static agreement private
// key.
//
// The algorithm and version tags are checked before any key material is
// touched: unknown values are KindUnsupportedFormat, never a fallback.
// Unwrapping is a pure function of the record and the seed; it behaves
// identically whether the record came from the local cache or the server.
// A failed authentication tag is KindAuthenticationFailure and is never
// retried.
func UnwrapProjectKey(wrapped *WrappedProjectKey, orgSeed *memguard.LockedBuffer) (*memguard.LockedBuffer, error) {
	const op = "unwrap_project_key"

	if wrapped == nil {
		return nil, newError(KindInvalidInput, op, "missing wrapped key", nil)
	}

	// Format gate first.
	if wrapped.Algorithm != AlgorithmAESGCMX25519 {
		return nil, newError(KindUnsupportedFormat, op,
			fmt.Sprintf("unknown wrap algorithm %q", wrapped.Algorithm), nil)
	}
	if wrapped.Version != WrappedKeyVersion {
		return nil, newError(KindUnsupportedFormat, op,
			fmt.Sprintf("unknown wrapped key version %d", wrapped.Version), nil)
	}

	if orgSeed == nil || !orgSeed.IsAlive() {
		return nil, newError(KindInvalidInput, op, "missing organization private key", nil)
	}

	ciphertext, err := decodeB64("ciphertext", wrapped.Ciphertext)
	if err != nil {
		return nil, err
	}
	iv, err := decodeB64("iv", wrapped.IV)
	if err != nil {
		return nil, err
	}
	ephemeralPub, err := decodeB64("ephemeral_public_key", wrapped.EphemeralPublicKey)
	if err != nil {
		return nil, err
	}

	shared, err := crypto.AgreeSharedSecret(orgSeed.Bytes(), ephemeralPub)
	if err != nil {
		return nil, newError(KindInvalidInput, op, "key agreement failed", err)
	}
	defer crypto.Wipe(shared)

	wrappingKey, err := crypto.ExpandKey(shared, crypto.LabelProjectWrapping)
	if err != nil {
		return nil, newError(KindInternal, op, "wrapping key expansion failed", err)
	}
	defer crypto.Wipe(wrappingKey)

	projectKey, err := crypto.AuthDecrypt(ciphertext, wrappingKey, iv)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthentication) {
			return nil, newError(KindAuthenticationFailure, op,
				"invalid organization key or corrupted wrapped key", err)
		}
		return nil, newError(KindInvalidInput, op, "malformed wrapped key", err)
	}

	if len(projectKey) != misc.KeySize {
		crypto.Wipe(projectKey)
		return nil, newError(KindInvalidInput, op, "unwrapped key has unexpected length", nil)
	}

	return memguard.NewBufferFromBytes(projectKey), nil
}
