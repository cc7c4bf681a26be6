package storage

import (
	"fmt"
	"sort"

	"github.com/orgspace/orgspace/internal/config"
)

// FactoryFunc builds a Storage from configuration.
type FactoryFunc func(cfg *config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates the backend selected by archive.backend.
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.Archive.Backend]
	if !ok {
		names := make([]string, 0, len(factories))
		for name := range factories {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unsupported storage backend: %s (registered: %v)", cfg.Archive.Backend, names)
	}
	return factory(cfg)
}
