// factory.go implements the document store backend registry, mapping backend names
// (mongo, memory) to constructor functions.
package docstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/orgspace/orgspace/internal/config"
)

// FactoryFunc builds a Store from configuration. The returned close function
// releases the backend's connections.
type FactoryFunc func(ctx context.Context, cfg *config.Config) (Store, func(context.Context) error, error)

var factories = make(map[string]FactoryFunc)

// Register registers a document store backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// New creates the document store selected by docstore.backend.
func New(ctx context.Context, cfg *config.Config) (Store, func(context.Context) error, error) {
	factory, ok := factories[cfg.DocStore.Backend]
	if !ok {
		names := make([]string, 0, len(factories))
		for name := range factories {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, nil, fmt.Errorf("unsupported document store backend: %s (registered: %v)", cfg.DocStore.Backend, names)
	}
	return factory(ctx, cfg)
}
