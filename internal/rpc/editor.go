package rpc

import (
	"context"
	"encoding/json"

	"github.com/dshills/clapfilter/internal/provider"
)

// EditorClient wraps an Adapter with the small set of outbound calls the
// core makes to the editor: provider_source discovery, display/preview
// updates, and echo/warn/set_var notifications.
type EditorClient struct {
	adapter *Adapter
}

// NewEditorClient wraps adapter.
func NewEditorClient(adapter *Adapter) *EditorClient {
	return &EditorClient{adapter: adapter}
}

// ProviderSource implements provider.EditorQuerier.
func (c *EditorClient) ProviderSource(ctx context.Context, providerID string) (provider.Descriptor, error) {
	var raw json.RawMessage
	if err := c.adapter.Call(ctx, "provider_source", providerID, &raw); err != nil {
		return provider.Descriptor{}, err
	}
	return decodeDescriptor(raw)
}

// decodeDescriptor interprets a provider_source result: [] (none), an
// array of strings (a literal list), or a single-element array holding
// a shell command string.
func decodeDescriptor(raw json.RawMessage) (provider.Descriptor, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return provider.Descriptor{}, err
	}
	switch len(list) {
	case 0:
		return provider.Descriptor{None: true}, nil
	case 1:
		return provider.Descriptor{Command: list[0]}, nil
	default:
		return provider.Descriptor{List: list}, nil
	}
}

// DisplayUpdate sends a display-update call to the editor.
func (c *EditorClient) DisplayUpdate(ctx context.Context, payload any) error {
	return c.adapter.Call(ctx, "display_update", payload, nil)
}

// PreviewUpdate sends a preview-update call to the editor.
func (c *EditorClient) PreviewUpdate(ctx context.Context, payload any) error {
	return c.adapter.Call(ctx, "preview_update", payload, nil)
}

// Warn sends a warn notification to the editor.
func (c *EditorClient) Warn(message string) error {
	return c.adapter.Notify("warn", message)
}

// Echo sends an echo notification to the editor.
func (c *EditorClient) Echo(message string) error {
	return c.adapter.Notify("echo", message)
}

// SetVar sends a set_var notification to the editor.
func (c *EditorClient) SetVar(name string, value any) error {
	return c.adapter.Notify("set_var", []any{name, value})
}

// BufferLines implements provider.BufferReader by asking the editor for
// an already-open buffer's lines.
func (c *EditorClient) BufferLines(path string) ([]string, error) {
	var lines []string
	err := c.adapter.Call(context.Background(), "buffer_lines", path, &lines)
	return lines, err
}
