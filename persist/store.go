package persist

import (
	"fmt"
	"strings"
	"time"
)

// VersionedData is a stored record with its version information.
type VersionedData struct {
	Data      []byte
	Version   string // content hash
	Timestamp time.Time
}

// Store defines the local cache contract consumed by the key engine.
//
// The cache holds encoded organization key records and wrapped project key
// records. Everything secret inside them is already ciphertext by the time
// it reaches this layer; the store never sees key material in clear form.
//
// The cache is a pure optimization: a miss is not an error (Get methods
// return (nil, nil)), and the engine must keep working when the store is
// entirely unavailable. Ping exists so unavailability can be detected up
// front and reported distinctly instead of surfacing deep inside a recovery
// pipeline.
type Store interface {

	// GetOrgRecord returns the cached organization record, or (nil, nil)
	// when none is cached.
	GetOrgRecord(orgID string) (*VersionedData, error)

	// PutOrgRecord writes the encoded organization record. The write must
	// be atomic per record: a reader never observes a partially written
	// payload.
	PutOrgRecord(orgID string, data []byte) error

	// GetWrappedProjectKey returns the cached wrapped project key record,
	// or (nil, nil) when none is cached.
	GetWrappedProjectKey(projectID string) (*VersionedData, error)

	// PutWrappedProjectKey writes the encoded wrapped key record for the
	// project, associated with its owning organization. Last write wins;
	// wrapped content is immutable once created, so a concurrent double
	// write stores identical bytes.
	PutWrappedProjectKey(projectID, orgID string, data []byte) error

	// Ping tests that the store is usable.
	Ping() error

	// Close releases any resources the store holds.
	Close() error
}

// validateRecordID guards the identifiers used as storage keys against
// path traversal and similar abuse.
func validateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	if strings.Contains(id, "..") ||
		strings.Contains(id, "/") ||
		strings.Contains(id, "\\") ||
		strings.Contains(id, " ") {
		return fmt.Errorf("record ID contains invalid characters")
	}

	if len(id) > 100 {
		return fmt.Errorf("record ID too long (max 100 characters)")
	}

	return nil
}
