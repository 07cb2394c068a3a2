package keycore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prashant-S29/wosh-keycore/persist"
	"github.com/Prashant-S29/wosh-keycore/remote"
)

const (
	testPassphrase  = "correct-horse-battery-staple-42"
	testFingerprint = "fp-A"
)

func testEngine(t *testing.T, source remote.Source) *Engine {
	t.Helper()

	engine, err := New(Options{Iterations: testIterations}, persist.NewMemoryStore(), source, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return engine
}

func testFactors() FactorInput {
	return FactorInput{
		Passphrase:        testPassphrase,
		DeviceFingerprint: testFingerprint,
	}
}

// provisionOrg creates an organization plus one project on a throwaway
// engine and registers both records with the source, simulating the
// server-side registration the platform performs at signup.
func provisionOrg(t *testing.T, source *remote.MemorySource, orgID, projectID string) {
	t.Helper()

	// Provisioning is cache-only; the source receives the records the way
	// the platform would, so closing this engine must not touch it.
	engine := testEngine(t, nil)

	cfg := twoFactorConfig(t)
	record, err := engine.CreateOrganization(context.Background(), orgID, testFactors(), cfg)
	require.NoError(t, err)

	encoded, err := EncodeOrgRecord(record)
	require.NoError(t, err)
	source.RegisterOrgKeys(orgID, encoded)

	wrapped, err := engine.CreateProject(context.Background(), orgID, projectID)
	require.NoError(t, err)

	cached, err := engine.store.GetWrappedProjectKey(projectID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	source.RegisterProjectKeys(orgID, projectID, cached.Data)

	assert.Equal(t, AlgorithmAESGCMX25519, wrapped.Algorithm)
	require.NoError(t, engine.Close())
}

func TestNewEngineValidation(t *testing.T) {
	_, err := New(Options{}, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = New(Options{Iterations: 10}, persist.NewMemoryStore(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestNewEngineUnavailableStore(t *testing.T) {
	store := persist.NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := New(Options{}, store, nil, nil)
	require.Error(t, err)
	assert.True(t, IsStorageUnavailable(err))
}

func TestCreateOrganizationPersistsRecord(t *testing.T) {
	engine := testEngine(t, nil)

	record, err := engine.CreateOrganization(context.Background(), "org-1", testFactors(), twoFactorConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "org-1", record.OrgID)

	cached, err := engine.store.GetOrgRecord("org-1")
	require.NoError(t, err)
	require.NotNil(t, cached)

	stored, err := DecodeStoredOrgRecord(cached.Data)
	require.NoError(t, err)
	current, err := stored.CurrentRecord()
	require.NoError(t, err)
	assert.Equal(t, record.PublicKey, current.PublicKey)
}

func TestCreateProjectWithoutOrgFails(t *testing.T) {
	engine := testEngine(t, nil)

	_, err := engine.CreateProject(context.Background(), "org-missing", "proj-1")
	require.Error(t, err)
	assert.True(t, IsStorageUnavailable(err))
}

// Full lifecycle: provision on one device, recover cold (remote fill), then
// warm (cache hit), and confirm both paths return identical key bytes.
func TestRecoverProjectKeyColdAndWarmCache(t *testing.T) {
	source := remote.NewMemorySource()
	provisionOrg(t, source, "org-1", "proj-1")

	// Fresh engine with an empty local store: everything must come from
	// the remote source.
	engine := testEngine(t, source)

	req := RecoveryRequest{OrgID: "org-1", ProjectID: "proj-1", Factors: testFactors()}

	cold, err := engine.RecoverProjectKey(context.Background(), req)
	require.NoError(t, err)
	defer cold.Destroy()
	coldBytes := append([]byte(nil), cold.Bytes()...)

	// The remote fill must have warmed the local cache.
	cachedOrg, err := engine.store.GetOrgRecord("org-1")
	require.NoError(t, err)
	assert.NotNil(t, cachedOrg)
	cachedProj, err := engine.store.GetWrappedProjectKey("proj-1")
	require.NoError(t, err)
	assert.NotNil(t, cachedProj)

	// Warm pass: kill the remote source so only the cache can serve.
	require.NoError(t, source.Close())

	warm, err := engine.RecoverProjectKey(context.Background(), req)
	require.NoError(t, err)
	defer warm.Destroy()

	assert.Equal(t, coldBytes, warm.Bytes(), "cold and warm recoveries must yield identical key bytes")
}

func TestRecoverProjectKeyWrongPassphrase(t *testing.T) {
	source := remote.NewMemorySource()
	provisionOrg(t, source, "org-1", "proj-1")

	engine := testEngine(t, source)

	factors := testFactors()
	factors.Passphrase = "correct-horse-battery-staple-43"

	_, err := engine.RecoverProjectKey(context.Background(), RecoveryRequest{
		OrgID: "org-1", ProjectID: "proj-1", Factors: factors,
	})
	require.Error(t, err)
	assert.True(t, IsAuthenticationFailure(err))
}

func TestRecoverProjectKeyForeignDevice(t *testing.T) {
	source := remote.NewMemorySource()
	provisionOrg(t, source, "org-1", "proj-1")

	engine := testEngine(t, source)

	factors := testFactors()
	factors.DeviceFingerprint = "fp-B"

	_, err := engine.RecoverProjectKey(context.Background(), RecoveryRequest{
		OrgID: "org-1", ProjectID: "proj-1", Factors: factors,
	})
	require.Error(t, err)
	assert.True(t, IsDeviceMismatch(err), "a foreign device must be a device mismatch")
	assert.False(t, IsAuthenticationFailure(err), "never misreported as a credential failure")
}

func TestRecoverProjectKeyMissingEverywhere(t *testing.T) {
	source := remote.NewMemorySource()
	provisionOrg(t, source, "org-1", "proj-1")

	engine := testEngine(t, source)

	_, err := engine.RecoverProjectKey(context.Background(), RecoveryRequest{
		OrgID: "org-1", ProjectID: "proj-unknown", Factors: testFactors(),
	})
	require.Error(t, err)
	assert.True(t, IsStorageUnavailable(err))
}

func TestRecoverProjectKeyValidation(t *testing.T) {
	engine := testEngine(t, nil)

	_, err := engine.RecoverProjectKey(context.Background(), RecoveryRequest{ProjectID: "p"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = engine.RecoverProjectKey(context.Background(), RecoveryRequest{OrgID: "o"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestSessionKeyLifecycle(t *testing.T) {
	source := remote.NewMemorySource()
	provisionOrg(t, source, "org-1", "proj-1")

	engine := testEngine(t, source)

	// Before recovery: no session key.
	_, err := engine.SessionKey("proj-1")
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	recovered, err := engine.RecoverProjectKey(context.Background(), RecoveryRequest{
		OrgID: "org-1", ProjectID: "proj-1", Factors: testFactors(),
	})
	require.NoError(t, err)
	defer recovered.Destroy()

	session, err := engine.SessionKey("proj-1")
	require.NoError(t, err)
	defer session.Destroy()
	assert.Equal(t, recovered.Bytes(), session.Bytes())

	// Close purges the session cache.
	require.NoError(t, engine.Close())
	_, err = engine.SessionKey("proj-1")
	require.Error(t, err)
}

func TestEngineClosedRejectsOperations(t *testing.T) {
	engine := testEngine(t, nil)
	require.NoError(t, engine.Close())

	_, err := engine.CreateOrganization(context.Background(), "org-1", testFactors(), twoFactorConfig(t))
	require.Error(t, err)

	_, err = engine.CreateProject(context.Background(), "org-1", "proj-1")
	require.Error(t, err)

	_, err = engine.RecoverProjectKey(context.Background(), RecoveryRequest{
		OrgID: "org-1", ProjectID: "proj-1", Factors: testFactors(),
	})
	require.Error(t, err)

	// Double close is a no-op.
	assert.NoError(t, engine.Close())
}

func TestEngineFillsCacheFromRemoteOrgOnly(t *testing.T) {
	// Project cached locally but org record only remote: recovery must
	// fetch the org record and still proceed.
	source := remote.NewMemorySource()
	provisionOrg(t, source, "org-1", "proj-1")

	engine := testEngine(t, source)

	// Prime only the project record from the source.
	data, err := source.FetchProjectKeys(context.Background(), "org-1", "proj-1")
	require.NoError(t, err)
	require.NoError(t, engine.store.PutWrappedProjectKey("proj-1", "org-1", data))

	recovered, err := engine.RecoverProjectKey(context.Background(), RecoveryRequest{
		OrgID: "org-1", ProjectID: "proj-1", Factors: testFactors(),
	})
	require.NoError(t, err)
	recovered.Destroy()
}
