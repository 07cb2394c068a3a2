package persist

import "fmt"

// StoreType identifies a cache backend.
type StoreType string

const (
	StoreTypeFileSystem StoreType = "filesystem"
	StoreTypeMemory     StoreType = "memory"
)

// StoreConfig selects and configures a cache backend.
type StoreConfig struct {
	Type   StoreType              `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// NewStore factory function to create cache backends.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeFileSystem:
		basePath, ok := config.Config["base_path"].(string)
		if !ok {
			return nil, fmt.Errorf("filesystem store requires 'base_path' in config")
		}
		sealPassphrase, _ := config.Config["seal_passphrase"].(string)
		return NewFileSystemStore(basePath, sealPassphrase)

	case StoreTypeMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
