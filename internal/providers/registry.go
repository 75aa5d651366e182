// Package providers holds the provider client registry and the built-in
// webhook client. Full Google and Notion REST clients live outside this
// service and are registered by the embedding application at startup.
package providers

import (
	"fmt"
	"sync"

	"github.com/bookedby/calendar-service/internal/calsync"
)

// Registry manages provider client registration and retrieval, keyed by the
// provider name stored on the integration record.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]calsync.ProviderClient
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]calsync.ProviderClient),
	}
}

// Register binds a provider name to its client.
func (r *Registry) Register(provider string, client calsync.ProviderClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = client
}

// ClientFor returns the client registered for the provider name.
func (r *Registry) ClientFor(provider string) (calsync.ProviderClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("no client registered for provider %q", provider)
	}
	return client, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
