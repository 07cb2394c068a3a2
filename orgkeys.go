package keycore

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/awnumar/memguard"

	"github.com/Prashant-S29/wosh-keycore/internal/crypto"
	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

// CreateOrganizationKeys derives and seals a new organization keypair from
// the supplied factors.
//
// DERIVATION FLOW:
//  1. Fresh 32-byte salt per enabled factor
//  2. Combination key from the factor set (canonical order, see CombineFactors)
//  3. 32-byte signing seed expanded under the org-signing label
//  4. Ed25519 signing keypair and X25519 agreement public key from that seed
//  5. Storage key expanded under the local-storage label
//  6. Seed sealed with AES-256-GCM under the storage key
//
// When the device factor is enabled, an independent device secret is
// additionally generated and sealed under a key derived from the device
// fingerprint alone, so device possession can later be verified without a
// full factor ceremony (VerifyDevicePossession).
//
// The returned record contains only public keys, ciphertexts, salts, IVs
// and the factor config. Every intermediate secret is wiped before return.
func CreateOrganizationKeys(orgID string, factors FactorInput, cfg MKDFConfig, iterations int) (*OrganizationKeyRecord, error) {
	const op = "create_org_keys"

	if orgID == "" {
		return nil, newError(KindInvalidInput, op, "missing organization id", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateFactorInput(cfg, factors); err != nil {
		return nil, err
	}
	if iterations <= 0 {
		iterations = misc.DefaultIterations
	}

	salts, err := NewFactorSalts(cfg)
	if err != nil {
		return nil, err
	}

	combination, err := CombineFactors(cfg, factors, salts, iterations)
	if err != nil {
		return nil, err
	}
	defer combination.Destroy()

	// Signing seed and storage key are independent expansions of the same
	// combination key.
	seed, err := crypto.ExpandKey(combination.Bytes(), crypto.LabelOrgSigning)
	if err != nil {
		return nil, newError(KindInternal, op, "signing seed expansion failed", err)
	}
	defer crypto.Wipe(seed)

	signingPub, _, err := crypto.GenerateSigningKeypair(seed)
	if err != nil {
		return nil, newError(KindInternal, op, "signing keypair generation failed", err)
	}

	agreementPub, err := crypto.AgreementPublicKey(seed)
	if err != nil {
		return nil, newError(KindInternal, op, "agreement key derivation failed", err)
	}

	storageKey, err := crypto.ExpandKey(combination.Bytes(), crypto.LabelLocalStorage)
	if err != nil {
		return nil, newError(KindInternal, op, "storage key expansion failed", err)
	}
	defer crypto.Wipe(storageKey)

	sealedSeed, iv, err := crypto.AuthEncrypt(seed, storageKey)
	if err != nil {
		return nil, newError(KindInternal, op, "private key encryption failed", err)
	}

	record := &OrganizationKeyRecord{
		OrgID:               orgID,
		PublicKey:           encodeB64(signingPub),
		AgreementPublicKey:  encodeB64(agreementPub),
		PrivateKeyEncrypted: encodeB64(sealedSeed),
		IV:                  encodeB64(iv),
		Salt:                encodeB64(salts.Passphrase),
		MKDF:                cfg,
		Iterations:          iterations,
		Version:             misc.DefaultRecordVersion,
		CreatedAt:           time.Now().UTC(),
	}

	if cfg.Enabled(FactorDevice) {
		record.CombinationSalt = encodeB64(salts.Device)
		record.DeviceFingerprint = factors.DeviceFingerprint

		if err = attachDeviceKey(record, factors.DeviceFingerprint, iterations); err != nil {
			return nil, err
		}
	}

	if cfg.Enabled(FactorPIN) {
		record.PinSalt = encodeB64(salts.PIN)
	}

	return record, nil
}

// attachDeviceKey generates the independent device secret and seals it
// under a key derived from the fingerprint and its own dedicated salt.
func attachDeviceKey(record *OrganizationKeyRecord, deviceFingerprint string, iterations int) error {
	const op = "attach_device_key"

	deviceSalt, err := crypto.NewSalt()
	if err != nil {
		return newError(KindInternal, op, "device salt generation failed", err)
	}

	deviceSecret := make([]byte, misc.KeySize)
	if _, err = rand.Read(deviceSecret); err != nil {
		return newError(KindInternal, op, "device secret generation failed", err)
	}
	defer crypto.Wipe(deviceSecret)

	deviceKey, err := crypto.DeriveFactorKey([]byte(deviceFingerprint), deviceSalt, iterations)
	if err != nil {
		return newError(KindInternal, op, "device key derivation failed", err)
	}
	defer crypto.Wipe(deviceKey)

	sealed, iv, err := crypto.AuthEncrypt(deviceSecret, deviceKey)
	if err != nil {
		return newError(KindInternal, op, "device key encryption failed", err)
	}

	record.DeviceKeySalt = encodeB64(deviceSalt)
	record.DeviceKeyEncrypted = encodeB64(sealed)
	record.DeviceKeyIV = encodeB64(iv)

	return nil
}

// RecoverOrganizationKey re-derives the organization's 32-byte key seed
// from the same factors that created it.
//
// Failure causes are kept strictly apart:
//   - structural problems (missing fields, malformed base64) are
//     KindInvalidInput and are rejected before any derivation
//   - a registered fingerprint that differs from the supplied one is
//     KindDeviceMismatch, checked BEFORE any decryption is attempted; a
//     mismatched derivation input and a mismatched stored fingerprint are
//     different failures and must not be conflated
//   - a failed authentication tag is KindAuthenticationFailure: wrong
//     passphrase/PIN and corrupted ciphertext are indistinguishable by design
//
// The seed is returned in a locked buffer owned by the caller; the caller
// must Destroy it as soon as the dependent operation completes.
func RecoverOrganizationKey(factors FactorInput, record *OrganizationKeyRecord) (*memguard.LockedBuffer, error) {
	const op = "recover_org_key"

	if record == nil {
		return nil, newError(KindInvalidInput, op, "missing organization record", nil)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	// Structural decode before any secret handling.
	sealedSeed, err := decodeB64("private_key_encrypted", record.PrivateKeyEncrypted)
	if err != nil {
		return nil, err
	}
	iv, err := decodeB64("iv", record.IV)
	if err != nil {
		return nil, err
	}
	salts, err := decodeFactorSalts(record)
	if err != nil {
		return nil, err
	}

	// Device gate runs before any derivation work. The stored fingerprint
	// is the single source of truth; inequality is fatal for the device
	// factor, never silently skipped.
	if record.MKDF.Enabled(FactorDevice) {
		if subtle.ConstantTimeCompare([]byte(record.DeviceFingerprint), []byte(factors.DeviceFingerprint)) != 1 {
			return nil, newError(KindDeviceMismatch, op,
				"device verification failed: this device is not registered for the organization", nil)
		}
	}

	combination, err := CombineFactors(record.MKDF, factors, salts, record.Iterations)
	if err != nil {
		return nil, err
	}
	defer combination.Destroy()

	storageKey, err := crypto.ExpandKey(combination.Bytes(), crypto.LabelLocalStorage)
	if err != nil {
		return nil, newError(KindInternal, op, "storage key expansion failed", err)
	}
	defer crypto.Wipe(storageKey)

	seed, err := crypto.AuthDecrypt(sealedSeed, storageKey, iv)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthentication) {
			return nil, newError(KindAuthenticationFailure, op,
				"incorrect credentials or corrupted data", err)
		}
		return nil, newError(KindInvalidInput, op, "malformed encrypted private key", err)
	}

	if len(seed) != misc.KeySize {
		crypto.Wipe(seed)
		return nil, newError(KindInvalidInput, op, "recovered key has unexpected length", nil)
	}

	return memguard.NewBufferFromBytes(seed), nil
}

// decodeFactorSalts maps the record's salt fields back onto the factor set:
// Salt is the passphrase factor, CombinationSalt the device factor, PinSalt
// the PIN factor.
func decodeFactorSalts(record *OrganizationKeyRecord) (FactorSalts, error) {
	var salts FactorSalts
	var err error

	if salts.Passphrase, err = decodeB64("salt", record.Salt); err != nil {
		return FactorSalts{}, err
	}
	if record.MKDF.Enabled(FactorDevice) {
		if salts.Device, err = decodeB64("combination_salt", record.CombinationSalt); err != nil {
			return FactorSalts{}, err
		}
	}
	if record.MKDF.Enabled(FactorPIN) {
		if salts.PIN, err = decodeB64("pin_salt", record.PinSalt); err != nil {
			return FactorSalts{}, err
		}
	}

	return salts, nil
}

// VerifyDevicePossession checks that the current device can open the
// organization's independent device key, using only the fingerprint. It
// proves possession without the passphrase or PIN, and is advisory: the
// recovery pipeline still runs its own fingerprint gate and full factor
// derivation. A stale or foreign device key fails loudly as
// KindDeviceMismatch.
func VerifyDevicePossession(deviceFingerprint string, record *OrganizationKeyRecord) error {
	const op = "verify_device_possession"

	if record == nil {
		return newError(KindInvalidInput, op, "missing organization record", nil)
	}
	if !record.MKDF.Enabled(FactorDevice) {
		return newError(KindInvalidInput, op, "organization has no device factor", nil)
	}
	if record.DeviceKeyEncrypted == "" || record.DeviceKeyIV == "" || record.DeviceKeySalt == "" {
		return newError(KindInvalidInput, op, "missing device key material", nil)
	}

	sealed, err := decodeB64("device_key_encrypted", record.DeviceKeyEncrypted)
	if err != nil {
		return err
	}
	iv, err := decodeB64("device_key_iv", record.DeviceKeyIV)
	if err != nil {
		return err
	}
	salt, err := decodeB64("device_key_salt", record.DeviceKeySalt)
	if err != nil {
		return err
	}

	deviceKey, err := crypto.DeriveFactorKey([]byte(deviceFingerprint), salt, record.Iterations)
	if err != nil {
		return newError(KindInternal, op, "device key derivation failed", err)
	}
	defer crypto.Wipe(deviceKey)

	deviceSecret, err := crypto.AuthDecrypt(sealed, deviceKey, iv)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthentication) {
			return newError(KindDeviceMismatch, op,
				"device verification failed: this device is not registered for the organization", err)
		}
		return newError(KindInvalidInput, op, "malformed device key material", err)
	}
	crypto.Wipe(deviceSecret)

	return nil
}
