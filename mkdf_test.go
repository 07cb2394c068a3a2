package keycore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prashant-S29/wosh-keycore/internal/misc"
)

const testIterations = misc.MinIterations

func testSalts(t *testing.T, cfg MKDFConfig) FactorSalts {
	t.Helper()
	salts, err := NewFactorSalts(cfg)
	require.NoError(t, err)
	return salts
}

func TestNewMKDFConfigCanonicalizesOrder(t *testing.T) {
	cfg, err := NewMKDFConfig(FactorPIN, FactorPassphrase, FactorDevice)
	require.NoError(t, err)

	assert.Equal(t, []FactorKind{FactorPassphrase, FactorDevice, FactorPIN}, cfg.EnabledFactors)
	assert.Equal(t, 3, cfg.RequiredFactors)
}

func TestNewMKDFConfigRejectsInvalidSets(t *testing.T) {
	_, err := NewMKDFConfig(FactorPassphrase)
	assert.Error(t, err, "single factor should be rejected")

	_, err = NewMKDFConfig(FactorDevice, FactorPIN)
	assert.Error(t, err, "missing passphrase should be rejected")
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestMKDFConfigValidateRequiredCount(t *testing.T) {
	cfg := MKDFConfig{
		RequiredFactors: 3,
		EnabledFactors:  []FactorKind{FactorPassphrase, FactorDevice},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestMKDFConfigValidateDuplicates(t *testing.T) {
	cfg := MKDFConfig{
		RequiredFactors: 2,
		EnabledFactors:  []FactorKind{FactorPassphrase, FactorPassphrase},
	}
	assert.Error(t, cfg.Validate())
}

func TestMKDFConfigEqual(t *testing.T) {
	a, err := NewMKDFConfig(FactorPassphrase, FactorDevice)
	require.NoError(t, err)
	b, err := NewMKDFConfig(FactorDevice, FactorPassphrase)
	require.NoError(t, err)
	c, err := NewMKDFConfig(FactorPassphrase, FactorDevice, FactorPIN)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestFactorKindJSONRoundTrip(t *testing.T) {
	cfg, err := NewMKDFConfig(FactorPassphrase, FactorDevice, FactorPIN)
	require.NoError(t, err)

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"passphrase"`)
	assert.Contains(t, string(data), `"device"`)
	assert.Contains(t, string(data), `"pin"`)

	var decoded MKDFConfig
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, cfg.Equal(decoded))
}

func TestFactorKindUnmarshalUnknownName(t *testing.T) {
	var f FactorKind
	assert.Error(t, json.Unmarshal([]byte(`"retina"`), &f))
}

func TestCombineFactorsDeterministic(t *testing.T) {
	cfg, err := NewMKDFConfig(FactorPassphrase, FactorDevice)
	require.NoError(t, err)
	salts := testSalts(t, cfg)

	in := FactorInput{Passphrase: "correct-horse-battery-staple-42", DeviceFingerprint: "fp-A"}

	first, err := CombineFactors(cfg, in, salts, testIterations)
	require.NoError(t, err)
	defer first.Destroy()

	second, err := CombineFactors(cfg, in, salts, testIterations)
	require.NoError(t, err)
	defer second.Destroy()

	assert.Equal(t, first.Bytes(), second.Bytes())
	assert.Len(t, first.Bytes(), misc.KeySize)
}

func TestCombineFactorsSensitivity(t *testing.T) {
	cfg, err := NewMKDFConfig(FactorPassphrase, FactorDevice)
	require.NoError(t, err)
	salts := testSalts(t, cfg)

	base := FactorInput{Passphrase: "correct-horse-battery-staple-42", DeviceFingerprint: "fp-A"}

	baseline, err := CombineFactors(cfg, base, salts, testIterations)
	require.NoError(t, err)
	defer baseline.Destroy()

	otherPass := base
	otherPass.Passphrase = "correct-horse-battery-staple-43"
	k1, err := CombineFactors(cfg, otherPass, salts, testIterations)
	require.NoError(t, err)
	defer k1.Destroy()
	assert.NotEqual(t, baseline.Bytes(), k1.Bytes())

	otherDevice := base
	otherDevice.DeviceFingerprint = "fp-B"
	k2, err := CombineFactors(cfg, otherDevice, salts, testIterations)
	require.NoError(t, err)
	defer k2.Destroy()
	assert.NotEqual(t, baseline.Bytes(), k2.Bytes())

	otherSalts := testSalts(t, cfg)
	k3, err := CombineFactors(cfg, base, otherSalts, testIterations)
	require.NoError(t, err)
	defer k3.Destroy()
	assert.NotEqual(t, baseline.Bytes(), k3.Bytes())
}

func TestCombineFactorsOrderIndependentOfConfigListing(t *testing.T) {
	// A hand-built config listing factors backwards must produce the same
	// combination key as the canonical listing.
	canonical := MKDFConfig{
		RequiredFactors: 2,
		EnabledFactors:  []FactorKind{FactorPassphrase, FactorDevice},
	}
	reversed := MKDFConfig{
		RequiredFactors: 2,
		EnabledFactors:  []FactorKind{FactorDevice, FactorPassphrase},
	}

	salts := testSalts(t, canonical)
	in := FactorInput{Passphrase: "correct-horse-battery-staple-42", DeviceFingerprint: "fp-A"}

	a, err := CombineFactors(canonical, in, salts, testIterations)
	require.NoError(t, err)
	defer a.Destroy()

	b, err := CombineFactors(reversed, in, salts, testIterations)
	require.NoError(t, err)
	defer b.Destroy()

	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestCombineFactorsThreeFactors(t *testing.T) {
	two, err := NewMKDFConfig(FactorPassphrase, FactorDevice)
	require.NoError(t, err)
	three, err := NewMKDFConfig(FactorPassphrase, FactorDevice, FactorPIN)
	require.NoError(t, err)

	salts := testSalts(t, three)
	in := FactorInput{
		Passphrase:        "correct-horse-battery-staple-42",
		DeviceFingerprint: "fp-A",
		PIN:               "482915",
	}

	withPIN, err := CombineFactors(three, in, salts, testIterations)
	require.NoError(t, err)
	defer withPIN.Destroy()

	withoutPIN, err := CombineFactors(two, in, salts, testIterations)
	require.NoError(t, err)
	defer withoutPIN.Destroy()

	assert.NotEqual(t, withPIN.Bytes(), withoutPIN.Bytes())
}

func TestValidateFactorInputRules(t *testing.T) {
	cfg, err := NewMKDFConfig(FactorPassphrase, FactorDevice, FactorPIN)
	require.NoError(t, err)

	valid := FactorInput{
		Passphrase:        "correct-horse-battery-staple-42",
		DeviceFingerprint: "fp-A",
		PIN:               "4829",
	}
	assert.NoError(t, validateFactorInput(cfg, valid))

	cases := []struct {
		name  string
		morph func(FactorInput) FactorInput
	}{
		{"short passphrase", func(in FactorInput) FactorInput { in.Passphrase = "short"; return in }},
		{"empty fingerprint", func(in FactorInput) FactorInput { in.DeviceFingerprint = ""; return in }},
		{"short pin", func(in FactorInput) FactorInput { in.PIN = "123"; return in }},
		{"long pin", func(in FactorInput) FactorInput { in.PIN = "123456789"; return in }},
		{"non-digit pin", func(in FactorInput) FactorInput { in.PIN = "12a4"; return in }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFactorInput(cfg, tc.morph(valid))
			require.Error(t, err)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
}

func TestCombineFactorsMissingSalt(t *testing.T) {
	cfg, err := NewMKDFConfig(FactorPassphrase, FactorDevice)
	require.NoError(t, err)

	salts := testSalts(t, cfg)
	salts.Device = nil

	_, err = CombineFactors(cfg, FactorInput{
		Passphrase:        "correct-horse-battery-staple-42",
		DeviceFingerprint: "fp-A",
	}, salts, testIterations)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}
