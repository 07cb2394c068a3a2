package keycore

import (
	"encoding/json"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/Prashant-S29/wosh-keycore/internal/crypto"
	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

// FactorKind identifies one input to multi-factor key derivation.
//
// The numeric order of the constants is the canonical combination order:
// factor keys are always concatenated passphrase, device, pin (restricted to
// the enabled set). The order is part of the derivation protocol: combining
// in any other order produces a different combination key, which downstream
// is indistinguishable from a wrong passphrase.
type FactorKind int

const (
	FactorPassphrase FactorKind = iota
	FactorDevice
	FactorPIN
)

var factorNames = map[FactorKind]string{
	FactorPassphrase: "passphrase",
	FactorDevice:     "device",
	FactorPIN:        "pin",
}

func (f FactorKind) String() string {
	if name, ok := factorNames[f]; ok {
		return name
	}
	return fmt.Sprintf("factor(%d)", int(f))
}

// MarshalJSON encodes the factor by name so stored configs stay readable
// and stable across releases.
func (f FactorKind) MarshalJSON() ([]byte, error) {
	name, ok := factorNames[f]
	if !ok {
		return nil, fmt.Errorf("unknown factor kind %d", int(f))
	}
	return json.Marshal(name)
}

func (f *FactorKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for kind, n := range factorNames {
		if n == name {
			*f = kind
			return nil
		}
	}
	return fmt.Errorf("unknown factor kind %q", name)
}

// MKDFConfig declares which factors an organization's keys are derived
// from. It is fixed at organization creation: changing the factor set would
// require re-encrypting the organization private key and every wrapped
// project key, which this engine does not do.
type MKDFConfig struct {
	RequiredFactors int          `json:"required_factors"`
	EnabledFactors  []FactorKind `json:"enabled_factors"`
}

// NewMKDFConfig builds a validated config from the given factors. The
// enabled set is canonicalized to the fixed combination order regardless of
// argument order.
func NewMKDFConfig(factors ...FactorKind) (MKDFConfig, error) {
	cfg := MKDFConfig{
		RequiredFactors: len(factors),
		EnabledFactors:  canonicalOrder(factors),
	}
	if err := cfg.Validate(); err != nil {
		return MKDFConfig{}, err
	}
	return cfg, nil
}

// canonicalOrder returns the factors sorted into protocol order with
// duplicates removed.
func canonicalOrder(factors []FactorKind) []FactorKind {
	present := map[FactorKind]bool{}
	for _, f := range factors {
		present[f] = true
	}

	ordered := make([]FactorKind, 0, len(present))
	for _, f := range []FactorKind{FactorPassphrase, FactorDevice, FactorPIN} {
		if present[f] {
			ordered = append(ordered, f)
		}
	}
	return ordered
}

// Validate checks the structural rules: two to three known factors, the
// passphrase always among them, no duplicates, and the required count
// matching the enabled set.
func (c MKDFConfig) Validate() error {
	const op = "validate_mkdf_config"

	if len(c.EnabledFactors) < 2 || len(c.EnabledFactors) > 3 {
		return newError(KindInvalidInput, op,
			fmt.Sprintf("expected 2-3 enabled factors, got %d", len(c.EnabledFactors)), nil)
	}
	if c.RequiredFactors != len(c.EnabledFactors) {
		return newError(KindInvalidInput, op,
			"required factor count must match the enabled set", nil)
	}

	seen := map[FactorKind]bool{}
	for _, f := range c.EnabledFactors {
		if _, known := factorNames[f]; !known {
			return newError(KindInvalidInput, op, fmt.Sprintf("unknown factor %d", int(f)), nil)
		}
		if seen[f] {
			return newError(KindInvalidInput, op, fmt.Sprintf("duplicate factor %s", f), nil)
		}
		seen[f] = true
	}

	if !seen[FactorPassphrase] {
		return newError(KindInvalidInput, op, "passphrase factor is mandatory", nil)
	}

	return nil
}

// Enabled reports whether the given factor participates in derivation.
func (c MKDFConfig) Enabled(kind FactorKind) bool {
	for _, f := range c.EnabledFactors {
		if f == kind {
			return true
		}
	}
	return false
}

// Equal reports whether two configs enable the same factors.
func (c MKDFConfig) Equal(other MKDFConfig) bool {
	if c.RequiredFactors != other.RequiredFactors || len(c.EnabledFactors) != len(other.EnabledFactors) {
		return false
	}
	for i, f := range c.EnabledFactors {
		if other.EnabledFactors[i] != f {
			return false
		}
	}
	return true
}

// FactorInput carries the raw secret material for the enabled factors.
// All fields are ephemeral; the combiner never stores them.
type FactorInput struct {
	Passphrase        string
	DeviceFingerprint string
	PIN               string
}

// FactorSalts holds the dedicated salt of each enabled factor.
type FactorSalts struct {
	Passphrase []byte
	Device     []byte
	PIN        []byte
}

// NewFactorSalts generates a fresh salt for every factor enabled in cfg.
func NewFactorSalts(cfg MKDFConfig) (FactorSalts, error) {
	var salts FactorSalts
	var err error

	if cfg.Enabled(FactorPassphrase) {
		if salts.Passphrase, err = crypto.NewSalt(); err != nil {
			return FactorSalts{}, newError(KindInternal, "new_factor_salts", "salt generation failed", err)
		}
	}
	if cfg.Enabled(FactorDevice) {
		if salts.Device, err = crypto.NewSalt(); err != nil {
			return FactorSalts{}, newError(KindInternal, "new_factor_salts", "salt generation failed", err)
		}
	}
	if cfg.Enabled(FactorPIN) {
		if salts.PIN, err = crypto.NewSalt(); err != nil {
			return FactorSalts{}, newError(KindInternal, "new_factor_salts", "salt generation failed", err)
		}
	}

	return salts, nil
}

// validateFactorInput enforces the per-factor secret rules before any
// derivation work: passphrase length, digits-only PIN bounds, non-empty
// device fingerprint. All violations are KindInvalidInput.
func validateFactorInput(cfg MKDFConfig, in FactorInput) error {
	const op = "validate_factors"

	if cfg.Enabled(FactorPassphrase) {
		if len(in.Passphrase) < misc.MinPassphraseLength {
			return newError(KindInvalidInput, op,
				fmt.Sprintf("passphrase must be at least %d characters", misc.MinPassphraseLength), nil)
		}
	}

	if cfg.Enabled(FactorDevice) && in.DeviceFingerprint == "" {
		return newError(KindInvalidInput, op, "device fingerprint is required by this organization", nil)
	}

	if cfg.Enabled(FactorPIN) {
		if len(in.PIN) < misc.MinPINLength || len(in.PIN) > misc.MaxPINLength {
			return newError(KindInvalidInput, op,
				fmt.Sprintf("PIN must be %d-%d digits", misc.MinPINLength, misc.MaxPINLength), nil)
		}
		for _, r := range in.PIN {
			if r < '0' || r > '9' {
				return newError(KindInvalidInput, op, "PIN must contain only digits", nil)
			}
		}
	}

	return nil
}

// CombineFactors derives the combination key from the enabled factors.
//
// Each enabled factor's secret is independently stretched with its dedicated
// salt, the factor keys are concatenated in the canonical order, and the
// concatenation is expanded under the combination context label. The result
// is returned in a locked buffer owned by the caller.
//
/// The combiner performs no correctness check on the secrets: a wrong
// passphrase simply yields a different combination key, which only surfaces
// when the organization private key fails to decrypt.
func CombineFactors(cfg MKDFConfig, in FactorInput, salts FactorSalts, iterations int) (*memguard.LockedBuffer, error) {
	const op = "combine_factors"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateFactorInput(cfg, in); err != nil {
		return nil, err
	}

	type factorMaterial struct {
		kind   FactorKind
		secret []byte
		salt   []byte
	}

	// Canonical order: cfg.EnabledFactors is already canonicalized by
	// construction, but re-derive it so hand-built configs cannot smuggle
	// in a different order.
	var material []factorMaterial
	for _, kind := range canonicalOrder(cfg.EnabledFactors) {
		switch kind {
		case FactorPassphrase:
			material = append(material, factorMaterial{kind, []byte(in.Passphrase), salts.Passphrase})
		case FactorDevice:
			material = append(material, factorMaterial{kind, []byte(in.DeviceFingerprint), salts.Device})
		case FactorPIN:
			material = append(material, factorMaterial{kind, []byte(in.PIN), salts.PIN})
		}
	}

	concatenated := make([]byte, 0, len(material)*misc.KeySize)
	defer func() { crypto.Wipe(concatenated) }()

	for _, m := range material {
		if len(m.salt) != misc.SaltSize {
			return nil, newError(KindInvalidInput, op,
				fmt.Sprintf("missing or malformed salt for %s factor", m.kind), nil)
		}

		factorKey, err := crypto.DeriveFactorKey(m.secret, m.salt, iterations)
		if err != nil {
			return nil, newError(KindInternal, op,
				fmt.Sprintf("%s factor derivation failed", m.kind), err)
		}

		concatenated = append(concatenated, factorKey...)
		crypto.Wipe(factorKey)
	}

	combination, err := crypto.ExpandKey(concatenated, crypto.LabelCombination)
	if err != nil {
		return nil, newError(KindInternal, op, "combination expansion failed", err)
	}

	// NewBufferFromBytes wipes the source slice after protecting it.
	return memguard.NewBufferFromBytes(combination), nil
}
