package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dshills/clapfilter/internal/cache"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/session"
)

type stubEditor struct {
	desc Descriptor
	err  error
}

func (s *stubEditor) ProviderSource(ctx context.Context, providerID string) (Descriptor, error) {
	return s.desc, s.err
}

func TestInitializerListDescriptor(t *testing.T) {
	editor := &stubEditor{desc: Descriptor{List: []string{"a.go", "b.go"}}}
	init := NewInitializer(nil, editor, nil, nil, nil)

	src, scale, err := init.Initialize(context.Background(), session.Context{ProviderID: "files"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scale.Count != 2 || scale.Kind != session.KindSmall {
		t.Fatalf("unexpected scale: %+v", scale)
	}
	defer src.Close()

	var got int
	for {
		_, ok, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			break
		}
		got++
	}
	if got != 2 {
		t.Fatalf("expected 2 items, got %d", got)
	}
}

func TestInitializerNoneDescriptorYieldsEmptySource(t *testing.T) {
	editor := &stubEditor{desc: Descriptor{None: true}}
	init := NewInitializer(nil, editor, nil, nil, nil)

	src, scale, err := init.Initialize(context.Background(), session.Context{ProviderID: "files"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scale.Count != 0 {
		t.Fatalf("expected empty scale, got %+v", scale)
	}
	_, ok, _ := src.Next(context.Background())
	if ok {
		t.Fatalf("expected immediately exhausted source")
	}
}

func TestInitializerReusesCacheDigest(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.NewStore(dir, 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Store("find .", "/cwd", strings.NewReader("one\ntwo\nthree\n")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	editor := &stubEditor{desc: Descriptor{Command: "find ."}}
	init := NewInitializer(nil, editor, store, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	src, scale, err := init.Initialize(ctx, session.Context{ProviderID: "files", Cwd: "/cwd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()
	if scale.Kind != session.KindCachedFile || scale.Count != 3 {
		t.Fatalf("expected cached-file reuse, got %+v", scale)
	}
}

func TestInitializerNoKnownNoEditorFails(t *testing.T) {
	init := NewInitializer(nil, nil, nil, nil, nil)
	_, scale, err := init.Initialize(context.Background(), session.Context{ProviderID: "files"})
	if err == nil {
		t.Fatalf("expected error with no editor connection")
	}
	if scale.Kind != session.KindInitializationFailed {
		t.Fatalf("expected InitializationFailed scale, got %+v", scale)
	}
}

func TestInitializerMatcherBuilderForKnownProviderOverridesDefault(t *testing.T) {
	reg := session.NewRegistry()
	RegisterKnown(reg, nil)
	init := NewInitializer(reg, nil, nil, nil, nil)

	mb := init.MatcherBuilderFor(session.Context{ProviderID: "grep-line"})
	if mb == nil {
		t.Fatal("expected a non-nil MatcherBuilder for grep-line")
	}
	m := mb("needle", session.Context{})
	line := "path/to/file.go:12:needle here"
	matched, ok := m.Match(match.Item{RawText: line, MatchText: line})
	if !ok {
		t.Fatal("expected grep-line scope to still match the query")
	}
	for _, idx := range matched.Result.Indices {
		if idx < strings.Index(line, "needle") {
			t.Fatalf("expected match indices confined to content after path:line:, got index %d in %q", idx, line)
		}
	}
}

func TestInitializerMatcherBuilderForUnknownProviderReturnsNil(t *testing.T) {
	reg := session.NewRegistry()
	RegisterKnown(reg, nil)
	init := NewInitializer(reg, nil, nil, nil, nil)

	if mb := init.MatcherBuilderFor(session.Context{ProviderID: "files"}); mb != nil {
		t.Fatal("expected nil MatcherBuilder for an unregistered provider id")
	}
}
