package provider

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/dshills/clapfilter/internal/filter"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/session"
)

// RegisterKnown installs the buffer-lines, grep-line, and tags adapters
// into reg under their conventional provider ids. A host process calls
// this once at startup before wiring package provider's Initializer to
// the registry it uses for Lookup.
func RegisterKnown(reg *session.Registry, buffers BufferReader) {
	reg.Register("buffer-lines", func() session.Provider {
		return &BufferLinesProvider{Buffers: buffers}
	})
	reg.Register("grep-line", func() session.Provider {
		return &GrepLineProvider{}
	})
	reg.Register("tags", func() session.Provider {
		return &TagsProvider{}
	})
}

// BufferLinesProvider fuzzy-searches the lines of the buffer the
// session was opened from, using the editor's own in-memory buffer
// contents rather than re-reading the file from disk.
type BufferLinesProvider struct {
	baseProvider
	Buffers BufferReader
}

func (p *BufferLinesProvider) OnInitialize(sctx session.Context) (session.MatcherBuilder, error) {
	return defaultMatcherBuilder, nil
}

// Source implements SpecializedSource.
func (p *BufferLinesProvider) Source(ctx context.Context, sctx session.Context) (filter.Source, session.ScaleEstimate, error) {
	if p.Buffers == nil {
		return filter.NewSliceSource(nil), session.ScaleEstimate{Kind: session.KindSmall}, nil
	}
	lines, err := p.Buffers.BufferLines(sctx.StartBuffer)
	if err != nil {
		return nil, session.ScaleEstimate{Kind: session.KindInitializationFailed, Msg: err.Error()}, err
	}
	items := make([]match.Item, len(lines))
	for i, l := range lines {
		items[i] = match.Item{RawText: fmt.Sprintf("%d: %s", i+1, l), MatchText: l}
	}
	return filter.NewSliceSource(items), session.ScaleEstimate{Kind: session.KindSmall, Count: len(items)}, nil
}

// GrepLineProvider fuzzy-searches the output of a ripgrep/grep-style
// invocation over files under the session's cwd; each candidate line
// has the conventional "path:line:text" body. Scoring is narrowed to the
// text after "path:line:" (grepLineScope) and no file-name bonus is
// applied.
type GrepLineProvider struct {
	baseProvider
}

func (p *GrepLineProvider) OnInitialize(sctx session.Context) (session.MatcherBuilder, error) {
	return func(query string, c session.Context) *match.Matcher {
		return match.NewMatcher(query, match.Options{
			Scope:          grepLineScope,
			FileNameBonus:  0,
			IsBasenameMatch: nil,
		})
	}, nil
}

// grepLineScope narrows scoring to the text after the second colon in a
// "path:line:text" body, so the query matches the content, not the
// file path or line number prefix.
func grepLineScope(line string) (string, int) {
	first := strings.IndexByte(line, ':')
	if first < 0 {
		return line, 0
	}
	second := strings.IndexByte(line[first+1:], ':')
	if second < 0 {
		return line, 0
	}
	offset := first + 1 + second + 1
	return line[offset:], offset
}

// TagsProvider extracts ctags-style tag lines ("name\tfile\tpattern")
// from a tags file under the session's cwd, in-process rather than by
// spawning ctags itself.
type TagsProvider struct {
	baseProvider
	TagsFile string // defaults to "tags" under sctx.Cwd
}

var tagLinePattern = regexp.MustCompile(`^([^\t]+)\t([^\t]+)\t(.+)$`)

func (p *TagsProvider) OnInitialize(sctx session.Context) (session.MatcherBuilder, error) {
	return defaultMatcherBuilder, nil
}

// Source implements SpecializedSource. Lines beginning with "!" (ctags
// metadata headers) are skipped.
func (p *TagsProvider) Source(ctx context.Context, sctx session.Context) (filter.Source, session.ScaleEstimate, error) {
	path := p.TagsFile
	if path == "" {
		path = sctx.Cwd + "/tags"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, session.ScaleEstimate{Kind: session.KindInitializationFailed, Msg: err.Error()}, err
	}
	defer f.Close()

	var items []match.Item
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "!") {
			continue
		}
		m := tagLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, file := m[1], m[2]
		display := fmt.Sprintf("%s\t%s", name, file)
		items = append(items, match.Item{RawText: display, MatchText: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, session.ScaleEstimate{Kind: session.KindInitializationFailed, Msg: err.Error()}, err
	}
	return filter.NewSliceSource(items), session.ScaleEstimate{Kind: session.KindSmall, Count: len(items)}, nil
}

// defaultMatcherBuilder builds a plain Matcher with no bonus
// configuration, used by adapters that don't need scope narrowing.
func defaultMatcherBuilder(query string, sctx session.Context) *match.Matcher {
	return match.NewMatcher(query, match.Options{Cwd: sctx.Cwd})
}
