package keycore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrgRecord(t *testing.T) *OrganizationKeyRecord {
	t.Helper()

	cfg, err := NewMKDFConfig(FactorPassphrase, FactorDevice)
	require.NoError(t, err)

	record, err := CreateOrganizationKeys("org-records", FactorInput{
		Passphrase:        "correct-horse-battery-staple-42",
		DeviceFingerprint: "fp-A",
	}, cfg, testIterations)
	require.NoError(t, err)

	return record
}

func TestEncodeDecodeOrgRecordRoundTrip(t *testing.T) {
	record := testOrgRecord(t)

	data, err := EncodeOrgRecord(record)
	require.NoError(t, err)

	stored, err := DecodeStoredOrgRecord(data)
	require.NoError(t, err)
	assert.Equal(t, RecordFormatMKDF, stored.Format)

	current, err := stored.CurrentRecord()
	require.NoError(t, err)
	assert.Equal(t, record.OrgID, current.OrgID)
	assert.Equal(t, record.PublicKey, current.PublicKey)
	assert.True(t, record.MKDF.Equal(current.MKDF))
}

func TestDecodeStoredOrgRecordBarePayload(t *testing.T) {
	// The server returns bare records without the format envelope.
	record := testOrgRecord(t)
	data, err := json.Marshal(record)
	require.NoError(t, err)

	stored, err := DecodeStoredOrgRecord(data)
	require.NoError(t, err)
	assert.Equal(t, RecordFormatMKDF, stored.Format)

	current, err := stored.CurrentRecord()
	require.NoError(t, err)
	assert.Equal(t, record.OrgID, current.OrgID)
}

func TestDecodeStoredOrgRecordLegacyShape(t *testing.T) {
	legacy := LegacyOrgRecord{
		OrgID:               "org-old",
		PublicKey:           "cHVi",
		PrivateKeyEncrypted: "c2VhbGVk",
		Salt:                "c2FsdA==",
		IV:                  "aXY=",
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)

	stored, err := DecodeStoredOrgRecord(data)
	require.NoError(t, err)
	assert.Equal(t, RecordFormatLegacy, stored.Format)

	_, err = stored.CurrentRecord()
	require.Error(t, err)
	assert.True(t, IsUnsupportedFormat(err))
	assert.Contains(t, err.Error(), "upgrade")
}

func TestDecodeStoredOrgRecordUnknownFormat(t *testing.T) {
	_, err := DecodeStoredOrgRecord([]byte(`{"format":"mkdf-v9"}`))
	require.Error(t, err)
	assert.True(t, IsUnsupportedFormat(err))
}

func TestDecodeStoredOrgRecordMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":            nil,
		"not json":         []byte("not-json"),
		"unrecognizable":   []byte(`{"something":"else"}`),
		"envelope no body": []byte(`{"format":"mkdf-v1"}`),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeStoredOrgRecord(data)
			require.Error(t, err)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
}

func TestOrgRecordValidate(t *testing.T) {
	record := testOrgRecord(t)
	require.NoError(t, record.Validate())

	cases := []struct {
		name  string
		morph func(*OrganizationKeyRecord)
	}{
		{"missing org id", func(r *OrganizationKeyRecord) { r.OrgID = "" }},
		{"missing public key", func(r *OrganizationKeyRecord) { r.PublicKey = "" }},
		{"missing agreement key", func(r *OrganizationKeyRecord) { r.AgreementPublicKey = "" }},
		{"missing ciphertext", func(r *OrganizationKeyRecord) { r.PrivateKeyEncrypted = "" }},
		{"missing iv", func(r *OrganizationKeyRecord) { r.IV = "" }},
		{"missing passphrase salt", func(r *OrganizationKeyRecord) { r.Salt = "" }},
		{"missing fingerprint", func(r *OrganizationKeyRecord) { r.DeviceFingerprint = "" }},
		{"missing device salt", func(r *OrganizationKeyRecord) { r.CombinationSalt = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broken := *record
			tc.morph(&broken)
			err := broken.Validate()
			require.Error(t, err)
			assert.Equal(t, KindInvalidInput, KindOf(err))
		})
	}
}
