package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

// Expansion context labels. Keys expanded under different labels are
// cryptographically independent even when derived from the same input key.
const (
	LabelCombination     = "org-combination-v1"
	LabelOrgSigning      = "org-signing-v1"
	LabelLocalStorage    = "local-storage-v1"
	LabelProjectWrapping = "project-key-wrapping-v1"
)

// NewSalt generates a fresh random salt of the standard length.
func NewSalt() ([]byte, error) {
	salt := make([]byte, misc.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveFactorKey derives a 256-bit key from one factor's secret material
// using PBKDF2-SHA256 with the factor's dedicated salt.
//
// The secret must be non-empty and the salt must be exactly misc.SaltSize
// bytes. Factor-specific minimum lengths (passphrase, PIN) are enforced by
// the combiner, which knows which factor the secret belongs to.
func DeriveFactorKey(secret, salt []byte, iterations int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty factor secret")
	}
	if len(salt) != misc.SaltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", misc.SaltSize, len(salt))
	}
	if iterations <= 0 {
		iterations = misc.DefaultIterations
	}

	return pbkdf2.Key(secret, salt, iterations, misc.KeySize, sha256.New), nil
}

// ExpandKey expands inputKey into an independent 256-bit key bound to the
// given context label using HKDF-SHA256.
func ExpandKey(inputKey []byte, label string) ([]byte, error) {
	if len(inputKey) == 0 {
		return nil, errors.New("empty input key")
	}
	if label == "" {
		return nil, errors.New("empty context label")
	}

	h := hkdf.New(sha256.New, inputKey, nil, []byte(label))

	out := make([]byte, misc.KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("key expansion failed: %w", err)
	}

	return out, nil
}
