// Package provider discovers a session's candidate Source on first
// on_initialize, and supplies a small set of fully-specified known-
// provider adapters (buffer-lines, grep-line, tags) that plug into the
// generic session machinery in package session.
package provider

import (
	"context"

	"github.com/dshills/clapfilter/internal/session"
)

// Descriptor is what the editor returns in response to a provider_source
// request: either a literal list of candidates, a shell command to run,
// or nothing (the provider has no discoverable source, e.g. it streams
// results some other way).
type Descriptor struct {
	List    []string
	Command string
	None    bool
}

// EditorQuerier asks the connected editor for a provider's source
// descriptor. Implemented by the RPC Adapter.
type EditorQuerier interface {
	ProviderSource(ctx context.Context, providerID string) (Descriptor, error)
}

// BufferReader fetches the lines of an already-open editor buffer, used
// by the buffer-lines known provider.
type BufferReader interface {
	BufferLines(path string) ([]string, error)
}

// AlwaysRefresh reports whether providerID must re-run its shell command
// on every new_session rather than reusing a cache digest.
type AlwaysRefresh func(providerID string) bool

// baseProvider gives every known-provider adapter no-op defaults for the
// session.Provider capability set; adapters embed it and override only
// what they need, composition over an inheritance hierarchy.
type baseProvider struct{}

func (baseProvider) OnMove(sctx session.Context, topIndex int) error { return nil }
func (baseProvider) OnKey(sctx session.Context, key string) error    { return nil }
func (baseProvider) OnTerminate(sctx session.Context)                {}
