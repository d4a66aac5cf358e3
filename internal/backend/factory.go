package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/storyloom/storyloom-orchestrator/internal/pkg/config"
)

// Factory defines how to build an invoke function for a backend type.
// The "cloud" type is built in (see internal/registration); embedding
// applications register factories for their on-device engines. Factories
// are registered explicitly from cmd or the embedding host, never from
// init(), so there are no import side effects.
type Factory struct {
	// Type is the backend type identifier used in configuration.
	Type string

	// Description is a human-readable summary of the backend type.
	Description string

	// Create builds the invoke function from configuration.
	Create func(cfg config.BackendConfig) (InvokeFunc, error)

	// ValidateConfig performs type-specific validation. Optional.
	ValidateConfig func(cfg config.BackendConfig) error
}

var (
	factoryMu   sync.RWMutex
	factoryMap  = make(map[string]Factory)
	factoryList []Factory
)

// RegisterFactory registers a backend factory for a type. Panics on
// duplicate or incomplete registration: both are programmer errors caught
// at startup.
func RegisterFactory(f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("backend factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("backend factory %q must have a Create function", f.Type))
	}
	if _, exists := factoryMap[f.Type]; exists {
		panic(fmt.Sprintf("backend factory %q already registered", f.Type))
	}

	factoryMap[f.Type] = f
	factoryList = append(factoryList, f)
}

// GetFactory returns the factory for a backend type, if registered.
func GetFactory(backendType string) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[backendType]
	return f, ok
}

// ListFactoryTypes returns all registered backend type names, sorted.
func ListFactoryTypes() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	types := make([]string, 0, len(factoryList))
	for _, f := range factoryList {
		types = append(types, f.Type)
	}
	sort.Strings(types)
	return types
}

// IsRegistered returns true if a backend type is registered.
func IsRegistered(backendType string) bool {
	_, ok := GetFactory(backendType)
	return ok
}

// CreateFromFactory builds an invoke function using the registered
// factory for cfg.Type.
func CreateFromFactory(cfg config.BackendConfig) (InvokeFunc, error) {
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s (registered types: %v)", cfg.Type, ListFactoryTypes())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for backend type %s: %w", cfg.Type, err)
		}
	}

	return f.Create(cfg)
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[string]Factory)
	factoryList = nil
}
