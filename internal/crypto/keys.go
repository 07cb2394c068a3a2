package crypto

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// GenerateSigningKeypair returns an Ed25519 keypair. When seed is non-nil it
// must be exactly ed25519.SeedSize bytes and the keypair is derived
// deterministically from it; otherwise a random keypair is generated.
func GenerateSigningKeypair(seed []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if seed == nil {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate signing keypair: %w", err)
		}
		return pub, priv, nil
	}

	if len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	return pub, priv, nil
}

// AgreementPublicKey interprets the same 32 seed bytes as an X25519 private
// key and returns the matching public key. This is what lets a wrap
// operation address an organization using only public material.
func AgreementPublicKey(seed []byte) ([]byte, error) {
	priv, err := ecdh.X25519().NewPrivateKey(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid agreement key material: %w", err)
	}
	return priv.PublicKey().Bytes(), nil
}

// GenerateAgreementKeypair generates a fresh X25519 keypair. Used for the
// ephemeral side of the ephemeral-static agreement; one pair per wrap.
func GenerateAgreementKeypair() (pub, priv []byte, err error) {
	key, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate agreement keypair: %w", err)
	}
	return key.PublicKey().Bytes(), key.Bytes(), nil
}

// AgreeSharedSecret performs X25519 agreement between a local private key
// and a peer public key.
func AgreeSharedSecret(localPrivate, remotePublic []byte) ([]byte, error) {
	priv, err := ecdh.X25519().NewPrivateKey(localPrivate)
	if err != nil {
		return nil, fmt.Errorf("invalid private agreement key: %w", err)
	}

	pub, err := ecdh.X25519().NewPublicKey(remotePublic)
	if err != nil {
		return nil, fmt.Errorf("invalid public agreement key: %w", err)
	}

	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	if len(shared) == 0 {
		return nil, errors.New("key agreement produced empty secret")
	}

	return shared, nil
}
