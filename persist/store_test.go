package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	fsStore, err := NewFileSystemStore(t.TempDir(), "")
	require.NoError(t, err)

	return map[string]Store{
		"filesystem": fsStore,
		"memory":     NewMemoryStore(),
	}
}

func TestStoreOrgRecordRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			// Miss before write
			got, err := store.GetOrgRecord("org-1")
			require.NoError(t, err)
			assert.Nil(t, got, "miss must be (nil, nil)")

			payload := []byte(`{"format":"mkdf-v1"}`)
			require.NoError(t, store.PutOrgRecord("org-1", payload))

			got, err = store.GetOrgRecord("org-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, payload, got.Data)
			assert.NotEmpty(t, got.Version)
		})
	}
}

func TestStoreWrappedProjectKeyRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			got, err := store.GetWrappedProjectKey("proj-1")
			require.NoError(t, err)
			assert.Nil(t, got)

			payload := []byte(`{"algorithm":"aes-256-gcm-x25519"}`)
			require.NoError(t, store.PutWrappedProjectKey("proj-1", "org-1", payload))

			got, err = store.GetWrappedProjectKey("proj-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, payload, got.Data)
		})
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			require.NoError(t, store.PutOrgRecord("org-1", []byte(`{"v":1}`)))
			require.NoError(t, store.PutOrgRecord("org-1", []byte(`{"v":2}`)))

			got, err := store.GetOrgRecord("org-1")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"v":2}`), got.Data)
		})
	}
}

func TestStoreRejectsBadIDs(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			for _, id := range []string{"", "../escape", "a/b", "has space"} {
				_, err := store.GetOrgRecord(id)
				assert.Error(t, err, "id %q should be rejected", id)

				err = store.PutOrgRecord(id, []byte("x"))
				assert.Error(t, err, "id %q should be rejected", id)
			}
		})
	}
}

func TestStoreRejectsEmptyPayload(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			assert.Error(t, store.PutOrgRecord("org-1", nil))
		})
	}
}

func TestFileSystemStoreSealing(t *testing.T) {
	dir := t.TempDir()

	sealed, err := NewFileSystemStore(dir, "cache-seal-pass")
	require.NoError(t, err)
	defer sealed.Close()

	payload := []byte(`{"organization_id":"org-1","device_fingerprint":"fp-A"}`)
	require.NoError(t, sealed.PutOrgRecord("org-1", payload))

	// On-disk bytes must not contain the plaintext payload.
	raw, err := os.ReadFile(filepath.Join(dir, "orgs", "org-1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "fp-A")

	// Same passphrase reads it back.
	got, err := sealed.GetOrgRecord("org-1")
	require.NoError(t, err)
	assert.Equal(t, payload, got.Data)

	// Wrong passphrase fails loudly.
	wrong, err := NewFileSystemStore(dir, "other-pass")
	require.NoError(t, err)
	_, err = wrong.GetOrgRecord("org-1")
	assert.Error(t, err)
}

func TestFileSystemStoreAtomicWriteLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileSystemStore(dir, "")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutOrgRecord("org-1", []byte(`{"v":1}`)))

	entries, err := os.ReadDir(filepath.Join(dir, "orgs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "org-1.json", entries[0].Name())
}

func TestFileSystemStorePing(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir(), "")
	require.NoError(t, err)
	assert.NoError(t, store.Ping())

	// A store pointed at a removed path must report unavailability.
	gone := filepath.Join(t.TempDir(), "sub")
	store2, err := NewFileSystemStore(gone, "")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(gone))
	assert.Error(t, store2.Ping())
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	assert.Error(t, store.Ping())
	_, err := store.GetOrgRecord("org-1")
	assert.Error(t, err)
	assert.Error(t, store.PutOrgRecord("org-1", []byte("x")))
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(StoreConfig{
		Type:   StoreTypeFileSystem,
		Config: map[string]interface{}{"base_path": t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &FileSystemStore{}, store)

	store, err = NewStore(StoreConfig{Type: StoreTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(StoreConfig{Type: "redis"})
	assert.Error(t, err)

	_, err = NewStore(StoreConfig{Type: StoreTypeFileSystem})
	assert.Error(t, err, "filesystem store requires base_path")
}
