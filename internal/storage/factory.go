// factory.go implements the storage backend registry, mapping backend names
// (local, s3, azure, gcs) to constructors.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/meertime/dataportal/internal/config"
)

// FactoryFunc creates a storage backend from configuration
type FactoryFunc func(*config.Config) (Storage, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]FactoryFunc)
)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Backends lists the registered backend names in sorted order
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the backend selected by storage.default_backend
func NewStorage(cfg *config.Config) (Storage, error) {
	mu.RLock()
	factory, ok := factories[cfg.Storage.DefaultBackend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (registered: %s)", cfg.Storage.DefaultBackend, strings.Join(Backends(), ", "))
	}

	return factory(cfg)
}
