package session

import "testing"

type stubProvider struct{ id string }

func (s *stubProvider) OnInitialize(sctx Context) (MatcherBuilder, error) { return nil, nil }
func (s *stubProvider) OnMove(sctx Context, topIndex int) error          { return nil }
func (s *stubProvider) OnKey(sctx Context, key string) error             { return nil }
func (s *stubProvider) OnTerminate(sctx Context)                         {}

func TestRegistryExactMatch(t *testing.T) {
	r := NewRegistry()
	r.Register("files", func() Provider { return &stubProvider{id: "files"} })

	p, ok := r.Lookup("files")
	if !ok {
		t.Fatalf("expected match for exact provider id")
	}
	if p.(*stubProvider).id != "files" {
		t.Fatalf("unexpected provider returned")
	}
}

func TestRegistryGlobFamily(t *testing.T) {
	r := NewRegistry()
	r.Register("lsp/*", func() Provider { return &stubProvider{id: "lsp"} })

	if _, ok := r.Lookup("lsp/references"); !ok {
		t.Fatalf("expected lsp/* to match lsp/references")
	}
	if _, ok := r.Lookup("buffers"); ok {
		t.Fatalf("expected no match for unrelated provider id")
	}
}

func TestRegistryFirstRegisteredPatternWins(t *testing.T) {
	r := NewRegistry()
	r.Register("lsp/*", func() Provider { return &stubProvider{id: "generic-lsp"} })
	r.Register("lsp/references", func() Provider { return &stubProvider{id: "specific"} })

	p, ok := r.Lookup("lsp/references")
	if !ok {
		t.Fatalf("expected a match")
	}
	if p.(*stubProvider).id != "generic-lsp" {
		t.Fatalf("expected first-registered pattern to win, got %q", p.(*stubProvider).id)
	}
}
