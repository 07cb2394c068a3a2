package persist

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Prashant-S29/wosh-keycore/internal/crypto"
	"github.com/Prashant-S29/wosh-keycore/internal/debug"
)

const (
	FilePermissions os.FileMode = 0600
	DirPermissions  os.FileMode = 0700
)

// FileSystemStore implements Store on the local filesystem.
//
// Layout:
//
//	basePath/
//	├── orgs/<orgID>.json        # encoded organization key records
//	└── projects/<projectID>.json # encoded wrapped project key records
//
// Writes are atomic per record (temp file + rename in the same directory).
// When a sealing passphrase is configured, record files are encrypted at
// rest with a key derived from it (Argon2id + ChaCha20-Poly1305); the
// records themselves already contain only ciphertext, so sealing protects
// metadata (IDs, fingerprints, factor config), not keys.
type FileSystemStore struct {
	basePath    string
	orgsDir     string
	projectsDir string

	// sealPassphrase is optional; empty disables at-rest sealing.
	sealPassphrase string
}

// NewFileSystemStore initializes the directory layout and returns a store.
func NewFileSystemStore(basePath, sealPassphrase string) (*FileSystemStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	fs := &FileSystemStore{
		basePath:       basePath,
		orgsDir:        filepath.Join(basePath, "orgs"),
		projectsDir:    filepath.Join(basePath, "projects"),
		sealPassphrase: sealPassphrase,
	}

	for _, dir := range []string{fs.basePath, fs.orgsDir, fs.projectsDir} {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return fs, nil
}

func (fs *FileSystemStore) GetOrgRecord(orgID string) (*VersionedData, error) {
	if err := validateRecordID(orgID); err != nil {
		return nil, fmt.Errorf("invalid org ID: %w", err)
	}
	return fs.readRecord(filepath.Join(fs.orgsDir, orgID+".json"))
}

func (fs *FileSystemStore) PutOrgRecord(orgID string, data []byte) error {
	if err := validateRecordID(orgID); err != nil {
		return fmt.Errorf("invalid org ID: %w", err)
	}
	return fs.writeRecord(filepath.Join(fs.orgsDir, orgID+".json"), data)
}

func (fs *FileSystemStore) GetWrappedProjectKey(projectID string) (*VersionedData, error) {
	if err := validateRecordID(projectID); err != nil {
		return nil, fmt.Errorf("invalid project ID: %w", err)
	}
	return fs.readRecord(filepath.Join(fs.projectsDir, projectID+".json"))
}

func (fs *FileSystemStore) PutWrappedProjectKey(projectID, orgID string, data []byte) error {
	if err := validateRecordID(projectID); err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}
	if err := validateRecordID(orgID); err != nil {
		return fmt.Errorf("invalid org ID: %w", err)
	}
	return fs.writeRecord(filepath.Join(fs.projectsDir, projectID+".json"), data)
}

func (fs *FileSystemStore) Ping() error {
	info, err := os.Stat(fs.basePath)
	if err != nil {
		return fmt.Errorf("store path unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store path %s is not a directory", fs.basePath)
	}

	// Verify the path is actually writable, not just present.
	probe := filepath.Join(fs.basePath, ".probe")
	if err = os.WriteFile(probe, []byte("ok"), FilePermissions); err != nil {
		return fmt.Errorf("store path not writable: %w", err)
	}
	_ = os.Remove(probe)

	return nil
}

func (fs *FileSystemStore) Close() error {
	// Nothing held open between operations.
	return nil
}

// readRecord loads one record file. A missing file is a cache miss, not an
// error.
func (fs *FileSystemStore) readRecord(path string) (*VersionedData, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat record: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	if fs.sealPassphrase != "" {
		data, err = crypto.OpenWithPassphrase(data, fs.sealPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal record: %w", err)
		}
	}

	return &VersionedData{
		Data:      data,
		Version:   contentVersion(data),
		Timestamp: info.ModTime(),
	}, nil
}

// writeRecord writes a record file atomically: the payload lands in a temp
// file in the target directory and is renamed into place, so a concurrently
// reading recovery never sees a torn record even if this writer is killed.
func (fs *FileSystemStore) writeRecord(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty record payload")
	}

	payload := data
	if fs.sealPassphrase != "" {
		sealed, err := crypto.SealWithPassphrase(data, fs.sealPassphrase)
		if err != nil {
			return fmt.Errorf("failed to seal record: %w", err)
		}
		payload = sealed
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".record-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err = tmp.Chmod(FilePermissions); err != nil {
		cleanup()
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if _, err = tmp.Write(payload); err != nil {
		cleanup()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close record: %w", err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit record: %w", err)
	}

	debug.Print("wrote record %s (%d bytes)\n", path, len(payload))

	return nil
}

// contentVersion derives a stable version tag from the record content.
func contentVersion(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
