package persist

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and ephemeral sessions
// that must not touch disk. Contents vanish with the process.
type MemoryStore struct {
	mu       sync.RWMutex
	orgs     map[string][]byte
	projects map[string][]byte
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:     make(map[string][]byte),
		projects: make(map[string][]byte),
	}
}

func (m *MemoryStore) GetOrgRecord(orgID string) (*VersionedData, error) {
	if err := validateRecordID(orgID); err != nil {
		return nil, fmt.Errorf("invalid org ID: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	data, ok := m.orgs[orgID]
	if !ok {
		return nil, nil
	}
	return m.versioned(data), nil
}

func (m *MemoryStore) PutOrgRecord(orgID string, data []byte) error {
	if err := validateRecordID(orgID); err != nil {
		return fmt.Errorf("invalid org ID: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("empty record payload")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	m.orgs[orgID] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) GetWrappedProjectKey(projectID string) (*VersionedData, error) {
	if err := validateRecordID(projectID); err != nil {
		return nil, fmt.Errorf("invalid project ID: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	data, ok := m.projects[projectID]
	if !ok {
		return nil, nil
	}
	return m.versioned(data), nil
}

func (m *MemoryStore) PutWrappedProjectKey(projectID, orgID string, data []byte) error {
	if err := validateRecordID(projectID); err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}
	if err := validateRecordID(orgID); err != nil {
		return fmt.Errorf("invalid org ID: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("empty record payload")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	m.projects[projectID] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Ping() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.orgs = nil
	m.projects = nil
	return nil
}

func (m *MemoryStore) versioned(data []byte) *VersionedData {
	return &VersionedData{
		Data:      append([]byte(nil), data...),
		Version:   contentVersion(data),
		Timestamp: time.Now(),
	}
}
