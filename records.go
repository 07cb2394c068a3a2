package keycore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// AlgorithmAESGCMX25519 is the only wrap algorithm this engine produces or
// accepts. The tag travels with every wrapped key and is checked before any
// cryptographic operation; an unknown value is a hard error, never a
// fallback.
const AlgorithmAESGCMX25519 = "aes-256-gcm-x25519"

// WrappedKeyVersion is the current wrapped-record format version.
const WrappedKeyVersion = 1

// OrganizationKeyRecord is the persisted form of an organization's key
// material. Only ciphertext, salts, IVs, public keys and the factor config
// are ever stored; the private key exists in clear form solely in process
// memory during create/recover. Binary fields are base64 text so the record
// survives any JSON transport unchanged.
//
// Created once per organization. Never mutated afterwards except for
// LastAccessedAt bookkeeping.
type OrganizationKeyRecord struct {
	OrgID string `json:"organization_id"`

	// PublicKey is the Ed25519 signing public key; AgreementPublicKey is
	// the X25519 public key of the same 32-byte seed, used to wrap project
	// keys without the private key in memory.
	PublicKey          string `json:"public_key"`
	AgreementPublicKey string `json:"agreement_public_key"`

	// PrivateKeyEncrypted holds the 32-byte key seed sealed under the
	// storage key expanded from the combination key.
	PrivateKeyEncrypted string `json:"private_key_encrypted"`
	IV                  string `json:"iv"`

	// Per-factor salts. Salt belongs to the passphrase factor,
	// CombinationSalt to the device factor, PinSalt to the PIN factor.
	// Only the salts of enabled factors are populated.
	Salt            string `json:"salt"`
	CombinationSalt string `json:"combination_salt,omitempty"`
	PinSalt         string `json:"pin_salt,omitempty"`

	// Device possession material, populated when the device factor is
	// enabled. DeviceFingerprint is the registered fingerprint the current
	// device must match; the device key is an independently derived secret
	// sealed under the same storage key, supporting possession checks
	// without a full factor ceremony.
	DeviceFingerprint  string `json:"device_fingerprint,omitempty"`
	DeviceKeyEncrypted string `json:"device_key_encrypted,omitempty"`
	DeviceKeyIV        string `json:"device_key_iv,omitempty"`
	DeviceKeySalt      string `json:"device_key_salt,omitempty"`

	MKDF MKDFConfig `json:"mkdf_config"`

	Iterations int `json:"iterations"`
	Version    int `json:"version"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at,omitempty"`
}

// Validate checks the structural completeness of a record before any
// cryptographic work. Field-level decode failures are reported by the
// lifecycle operations that consume them.
func (r *OrganizationKeyRecord) Validate() error {
	const op = "validate_org_record"

	if r.OrgID == "" {
		return newError(KindInvalidInput, op, "missing organization id", nil)
	}
	if r.PublicKey == "" || r.AgreementPublicKey == "" {
		return newError(KindInvalidInput, op, "missing public key material", nil)
	}
	if r.PrivateKeyEncrypted == "" || r.IV == "" {
		return newError(KindInvalidInput, op, "missing encrypted private key", nil)
	}
	if r.Salt == "" {
		return newError(KindInvalidInput, op, "missing passphrase salt", nil)
	}
	if err := r.MKDF.Validate(); err != nil {
		return err
	}
	if r.MKDF.Enabled(FactorDevice) {
		if r.DeviceFingerprint == "" || r.CombinationSalt == "" {
			return newError(KindInvalidInput, op, "missing device factor material", nil)
		}
	}
	if r.MKDF.Enabled(FactorPIN) && r.PinSalt == "" {
		return newError(KindInvalidInput, op, "missing pin factor salt", nil)
	}
	return nil
}

// WrappedProjectKey is a project symmetric key sealed under an
// organization's agreement public key via ephemeral-static agreement.
// Immutable once created; re-sharing or rotation creates a new record.
type WrappedProjectKey struct {
	Ciphertext         string    `json:"ciphertext"`
	IV                 string    `json:"iv"`
	EphemeralPublicKey string    `json:"ephemeral_public_key"`
	Algorithm          string    `json:"algorithm"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
}

// CachedProjectKey is the local-cache envelope around a wrapped project
// key. The cache is a pure optimization: losing it costs one remote round
// trip, never correctness.
type CachedProjectKey struct {
	ProjectID      string            `json:"project_id"`
	OrgID          string            `json:"organization_id"`
	Wrapped        WrappedProjectKey `json:"wrapped_key"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at,omitempty"`
}

// RecordFormat discriminates the stored organization record shapes.
type RecordFormat string

const (
	// RecordFormatMKDF is the current multi-factor record shape.
	RecordFormatMKDF RecordFormat = "mkdf-v1"

	// RecordFormatLegacy is the pre-MKDF single-passphrase shape. It is
	// recognized so it can be rejected with an upgrade message instead of
	// being silently (and wrongly) recovered.
	RecordFormatLegacy RecordFormat = "legacy"
)

// LegacyOrgRecord is the minimal decoded form of a legacy record, retained
// only so its presence can be reported precisely.
type LegacyOrgRecord struct {
	OrgID               string `json:"organization_id"`
	PublicKey           string `json:"public_key"`
	PrivateKeyEncrypted string `json:"private_key_encrypted"`
	Salt                string `json:"salt"`
	IV                  string `json:"iv"`
}

// StoredOrgRecord is the tagged variant of everything the org-record slot
// in a store can hold. Exactly one of MKDF and Legacy is set, discriminated
// by Format.
type StoredOrgRecord struct {
	Format RecordFormat           `json:"format"`
	MKDF   *OrganizationKeyRecord `json:"mkdf,omitempty"`
	Legacy *LegacyOrgRecord       `json:"legacy,omitempty"`
}

// EncodeOrgRecord wraps a current-format record into the stored envelope.
func EncodeOrgRecord(record *OrganizationKeyRecord) ([]byte, error) {
	data, err := json.Marshal(StoredOrgRecord{Format: RecordFormatMKDF, MKDF: record})
	if err != nil {
		return nil, newError(KindInternal, "encode_org_record", "record encoding failed", err)
	}
	return data, nil
}

// DecodeStoredOrgRecord parses stored bytes into the tagged variant.
// Untagged payloads are probed: a record carrying an MKDF config is treated
// as a bare current-format record (the server returns these), anything else
// structurally resembling the old shape is tagged legacy.
func DecodeStoredOrgRecord(data []byte) (*StoredOrgRecord, error) {
	const op = "decode_org_record"

	if len(data) == 0 {
		return nil, newError(KindInvalidInput, op, "empty record payload", nil)
	}

	var stored StoredOrgRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, newError(KindInvalidInput, op, "malformed record payload", err)
	}

	switch stored.Format {
	case RecordFormatMKDF:
		if stored.MKDF == nil {
			return nil, newError(KindInvalidInput, op, "mkdf envelope without payload", nil)
		}
		return &stored, nil
	case RecordFormatLegacy:
		if stored.Legacy == nil {
			return nil, newError(KindInvalidInput, op, "legacy envelope without payload", nil)
		}
		return &stored, nil
	case "":
		// Untagged payload: probe the shape.
	default:
		return nil, newError(KindUnsupportedFormat, op,
			fmt.Sprintf("unknown record format %q", stored.Format), nil)
	}

	var bare OrganizationKeyRecord
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, newError(KindInvalidInput, op, "malformed record payload", err)
	}
	if len(bare.MKDF.EnabledFactors) > 0 {
		return &StoredOrgRecord{Format: RecordFormatMKDF, MKDF: &bare}, nil
	}

	var legacy LegacyOrgRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, newError(KindInvalidInput, op, "malformed record payload", err)
	}
	if legacy.PrivateKeyEncrypted == "" {
		return nil, newError(KindInvalidInput, op, "unrecognizable record payload", nil)
	}
	return &StoredOrgRecord{Format: RecordFormatLegacy, Legacy: &legacy}, nil
}

// CurrentRecord returns the usable MKDF record or the typed error for a
// legacy one. Legacy records are never silently accepted.
func (s *StoredOrgRecord) CurrentRecord() (*OrganizationKeyRecord, error) {
	switch s.Format {
	case RecordFormatMKDF:
		return s.MKDF, nil
	case RecordFormatLegacy:
		return nil, newError(KindUnsupportedFormat, "load_org_record",
			"organization uses a legacy key record and requires an upgrade", nil)
	default:
		return nil, newError(KindUnsupportedFormat, "load_org_record",
			fmt.Sprintf("unknown record format %q", s.Format), nil)
	}
}

// decodeB64 decodes a required base64 field, reporting the offending field
// name on failure.
func decodeB64(field, value string) ([]byte, error) {
	if value == "" {
		return nil, newError(KindInvalidInput, "decode_record_field",
			fmt.Sprintf("missing field %s", field), nil)
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, newError(KindInvalidInput, "decode_record_field",
			fmt.Sprintf("field %s is not valid base64", field), err)
	}
	return raw, nil
}

func encodeB64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
