package events

import "sync"

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Init creates the process-wide registry if it does not exist yet and returns
// it. Calling Init again returns the same registry until Shutdown runs.
func Init() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// Default returns the process-wide registry, initializing it on first use.
func Default() *Registry {
	return Init()
}

// Shutdown drops every listener and discards the process-wide registry. A
// later Init starts from an empty registry.
func Shutdown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry != nil {
		defaultRegistry.Reset()
		defaultRegistry = nil
	}
}

// Register adds listener to the process-wide registry.
func Register(typ Type, listener Listener) Subscription {
	return Default().Register(typ, listener)
}

// Unregister removes sub from the process-wide registry.
func Unregister(sub Subscription) bool {
	return Default().Unregister(sub)
}

// Publish dispatches evt on the process-wide registry.
func Publish(evt Event) {
	Default().Publish(evt)
}
