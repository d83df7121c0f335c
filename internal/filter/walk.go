package filter

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/dshills/clapfilter/internal/match"
)

// WalkOptions configures a WalkSource.
type WalkOptions struct {
	Root string
	// Include, when non-empty, restricts results to files whose
	// relative path matches at least one doublestar glob.
	Include []string
	// Exclude drops files whose relative path matches any doublestar
	// glob, evaluated after Include.
	Exclude []string
	// RespectGitignore honors .gitignore files found along the walk.
	RespectGitignore bool
}

// WalkSource recursively walks a directory tree, yielding one Item per
// file whose path survives the include/exclude globs and any
// .gitignore rules encountered along the way.
type WalkSource struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	queue []match.Item
	done  bool
	err   error
	ready chan struct{}
}

// NewWalkSource starts walking opts.Root in a background goroutine and
// returns a Source that drains discovered files as they're found.
func NewWalkSource(ctx context.Context, opts WalkOptions) *WalkSource {
	ctx, cancel := context.WithCancel(ctx)
	ws := &WalkSource{ctx: ctx, cancel: cancel, ready: make(chan struct{}, 1)}
	go ws.walk(opts)
	return ws
}

func (ws *WalkSource) walk(opts WalkOptions) {
	ignores := newIgnoreSet(opts.RespectGitignore)

	walkErr := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ws.ctx.Done():
			return ws.ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(opts.Root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if opts.RespectGitignore {
				ignores.loadDir(path)
			}
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if ignores.matches(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if ignores.matches(rel, false) {
			return nil
		}
		if !globAllows(rel, opts.Include, opts.Exclude) {
			return nil
		}

		ws.push(match.Item{RawText: rel, MatchText: rel, Payload: path})
		return nil
	})

	ws.mu.Lock()
	ws.done = true
	ws.err = walkErr
	ws.mu.Unlock()
	ws.signal()
}

func globAllows(rel string, include, exclude []string) bool {
	slashRel := filepath.ToSlash(rel)
	if len(include) > 0 {
		matched := false
		for _, pat := range include {
			if ok, _ := doublestar.Match(pat, slashRel); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range exclude {
		if ok, _ := doublestar.Match(pat, slashRel); ok {
			return false
		}
	}
	return true
}

func (ws *WalkSource) push(item match.Item) {
	ws.mu.Lock()
	ws.queue = append(ws.queue, item)
	ws.mu.Unlock()
	ws.signal()
}

func (ws *WalkSource) signal() {
	select {
	case ws.ready <- struct{}{}:
	default:
	}
}

// Next implements Source. It drains a mutex-guarded queue and, when the
// queue is empty, blocks on the one-slot ready signal rather than on a
// producer/consumer channel of Items, so no channel buffer has to be
// sized for an unbounded walk.
func (ws *WalkSource) Next(ctx context.Context) (match.Item, bool, error) {
	for {
		ws.mu.Lock()
		if len(ws.queue) > 0 {
			item := ws.queue[0]
			ws.queue = ws.queue[1:]
			ws.mu.Unlock()
			return item, true, nil
		}
		done, err := ws.done, ws.err
		ws.mu.Unlock()
		if done {
			return match.Item{}, false, err
		}
		select {
		case <-ctx.Done():
			return match.Item{}, false, ctx.Err()
		case <-ws.ready:
		}
	}
}

// Close stops the walk.
func (ws *WalkSource) Close() error {
	ws.cancel()
	return nil
}

// ignoreSet collects every .gitignore found along a walk, in the order
// the walk reaches them. A path is ignored when any collected file
// matches it (matched against the path relative to the walk root); a
// later file's negation pattern does not un-ignore a path an earlier
// file matches.
type ignoreSet struct {
	enabled bool
	layers  []*gitignore.GitIgnore
	seen    map[string]bool
}

func newIgnoreSet(enabled bool) *ignoreSet {
	return &ignoreSet{enabled: enabled, seen: map[string]bool{}}
}

func (is *ignoreSet) loadDir(dir string) {
	if !is.enabled || is.seen[dir] {
		return
	}
	is.seen[dir] = true
	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return
	}
	gi, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return
	}
	is.layers = append(is.layers, gi)
}

func (is *ignoreSet) matches(rel string, isDir bool) bool {
	if !is.enabled || rel == "." {
		return false
	}
	p := filepath.ToSlash(rel)
	if isDir {
		p = strings.TrimSuffix(p, "/") + "/"
	}
	for _, gi := range is.layers {
		if gi.MatchesPath(p) {
			return true
		}
	}
	return false
}
