// Package remote provides the recovery-source contract the key engine falls
// back to on a local cache miss. The server is treated purely as a
// key-value source of already-wrapped material: it stores ciphertext and
// public keys, never secrets. Anything fetched from here is written back to
// the local cache before use, so subsequent recoveries stay local.
package remote

import "context"

// Source fetches registered key material for an organization or project.
type Source interface {

	// FetchOrgKeys returns the server-side encoded organization key record
	// (the same shape the engine stores locally). A missing organization is
	// an error, not a nil result: there is no further fallback.
	FetchOrgKeys(ctx context.Context, orgID string) ([]byte, error)

	// FetchProjectKeys returns the encoded wrapped project key record.
	FetchProjectKeys(ctx context.Context, orgID, projectID string) ([]byte, error)

	// Ping tests connectivity.
	Ping(ctx context.Context) error

	// Close releases any resources the source holds.
	Close() error
}
