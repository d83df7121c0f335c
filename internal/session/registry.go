package session

import (
	"sync"

	"github.com/tidwall/match"
)

// Provider is the capability set a provider implementation exposes to a
// Session. Implementations are plain structs selected by provider id;
// there is no inheritance hierarchy, only composition over a shared
// helper (see package provider's baseProvider).
type Provider interface {
	OnInitialize(sctx Context) (MatcherBuilder, error)
	OnMove(sctx Context, topIndex int) error
	OnKey(sctx Context, key string) error
	OnTerminate(sctx Context)
}

// ProviderFactory constructs a Provider for one session.
type ProviderFactory func() Provider

// Registry maps provider-id glob patterns to factories. A provider id
// like "lsp/*" registers one handler for a whole family of ids; patterns
// are tried in registration order and the first match wins.
type Registry struct {
	mu       sync.RWMutex
	patterns []string
	factory  map[string]ProviderFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factory: make(map[string]ProviderFactory)}
}

// Register associates pattern (a tidwall/match glob) with factory.
func (r *Registry) Register(pattern string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factory[pattern]; !exists {
		r.patterns = append(r.patterns, pattern)
	}
	r.factory[pattern] = factory
}

// Lookup finds the first registered pattern matching providerID and
// returns a freshly constructed Provider for it.
func (r *Registry) Lookup(providerID string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, pattern := range r.patterns {
		if match.Match(providerID, pattern) {
			return r.factory[pattern](), true
		}
	}
	return nil, false
}
