package remote

import (
	"context"
	"fmt"
	"sync"
)

// MemorySource is an in-memory Source for tests and for single-process
// deployments that register and recover on the same machine.
type MemorySource struct {
	mu       sync.RWMutex
	orgs     map[string][]byte
	projects map[string][]byte
	closed   bool

	// FailPing forces Ping to report the source unreachable.
	FailPing bool
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		orgs:     make(map[string][]byte),
		projects: make(map[string][]byte),
	}
}

// RegisterOrgKeys stores an encoded organization key record for later fetches.
func (m *MemorySource) RegisterOrgKeys(orgID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[orgID] = append([]byte(nil), data...)
}

// RegisterProjectKeys stores an encoded wrapped project key record.
func (m *MemorySource) RegisterProjectKeys(orgID, projectID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[orgID+"/"+projectID] = append([]byte(nil), data...)
}

func (m *MemorySource) FetchOrgKeys(_ context.Context, orgID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("source is closed")
	}
	data, ok := m.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("organization %s not registered", orgID)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemorySource) FetchProjectKeys(_ context.Context, orgID, projectID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("source is closed")
	}
	data, ok := m.projects[orgID+"/"+projectID]
	if !ok {
		return nil, fmt.Errorf("project %s not registered under organization %s", projectID, orgID)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemorySource) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("source is closed")
	}
	if m.FailPing {
		return fmt.Errorf("remote source unreachable")
	}
	return nil
}

func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
