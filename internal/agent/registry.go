package agent

import (
	"strings"
	"sync"
)

var (
	registry     = make(map[string]func() Agent)
	registryLock sync.RWMutex
)

// Register adds an agent factory under one alias, lower-cased, per spec
// §4.3's static alias-to-adapter mapping.
func Register(alias string, factory func() Agent) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[strings.ToLower(alias)] = factory
}

// Get resolves an adapter by name or alias, case-insensitively. Unknown
// names fail with *UnknownAdapterError.
func Get(name string) (Agent, error) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	factory, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, &UnknownAdapterError{Name: name}
	}

	return factory(), nil
}

// List returns every registered alias.
func List() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Exists reports whether a name or alias is registered.
func Exists(name string) bool {
	registryLock.RLock()
	defer registryLock.RUnlock()
	_, ok := registry[strings.ToLower(name)]
	return ok
}
