package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/clapfilter/internal/session"
)

type stubBuffers struct {
	lines map[string][]string
}

func (s *stubBuffers) BufferLines(path string) ([]string, error) {
	return s.lines[path], nil
}

func TestBufferLinesProviderSource(t *testing.T) {
	p := &BufferLinesProvider{Buffers: &stubBuffers{lines: map[string][]string{
		"main.go": {"package main", "func main() {}"},
	}}}

	src, scale, err := p.Source(context.Background(), session.Context{StartBuffer: "main.go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()
	if scale.Count != 2 {
		t.Fatalf("expected 2 lines, got %+v", scale)
	}
	item, ok, _ := src.Next(context.Background())
	if !ok || item.MatchText != "package main" {
		t.Fatalf("unexpected first item: %+v ok=%v", item, ok)
	}
}

func TestGrepLineScopeNarrowsToContent(t *testing.T) {
	scope, offset := grepLineScope("main.go:12:	fmt.Println(\"hi\")")
	if scope != "\tfmt.Println(\"hi\")" {
		t.Fatalf("unexpected scope: %q", scope)
	}
	if offset != len("main.go:12:") {
		t.Fatalf("unexpected offset: %d", offset)
	}
}

func TestTagsProviderParsesTagFile(t *testing.T) {
	dir := t.TempDir()
	tagsPath := filepath.Join(dir, "tags")
	content := "!_TAG_FILE_FORMAT\t2\t\nmain\tmain.go\t/^func main/\nHelper\thelper.go\t/^func Helper/\n"
	if err := os.WriteFile(tagsPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &TagsProvider{TagsFile: tagsPath}
	src, scale, err := p.Source(context.Background(), session.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()
	if scale.Count != 2 {
		t.Fatalf("expected 2 tags, got %+v", scale)
	}
}
