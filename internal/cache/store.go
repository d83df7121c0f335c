package cache

import (
	"bufio"
	"container/list"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// DefaultMaxEntries bounds the in-memory LRU; once exceeded, the least
// recently used digest is evicted and its backing file removed.
const DefaultMaxEntries = 100

// Store is the process-wide Cache Digest Store. Safe for concurrent use
// behind a single mutex; every critical section is a map/list operation
// or a small file write, never a long-running command.
type Store struct {
	mu         sync.Mutex
	dir        string
	indexPath  string
	maxEntries int
	items      map[string]*list.Element
	lru        *list.List
}

type entry struct {
	key    string
	digest Digest
}

// NewStore creates a Store backed by dir, which holds both the captured
// command-output files and the on-disk JSON index. dir is created if it
// does not exist.
func NewStore(dir string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	s := &Store{
		dir:        dir,
		indexPath:  filepath.Join(dir, "index.json"),
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
	}
	s.loadIndex()
	return s, nil
}

// Digest looks up a cached capture for (shellCommand, cwd) in the
// in-memory LRU, which NewStore populated from the on-disk index up
// front. A hit whose backing file no longer exists is treated as a
// miss and silently evicted.
func (s *Store) Digest(shellCommand, cwd string) (Digest, bool) {
	key := Key(shellCommand, cwd)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return Digest{}, false
	}
	s.lru.MoveToFront(elem)
	d := elem.Value.(*entry).digest //nolint:errcheck // list only contains *entry
	if s.fileExists(d.CachePath) {
		return d, true
	}
	s.removeLocked(elem)
	return Digest{}, false
}

// Store captures r (a command's stdout) into a new file under the cache
// directory, counts its lines, and installs a digest for
// (shellCommand, cwd). The file is written to a uuid-named temp path
// and atomically renamed into place so a reader never observes a
// partially-written cache file.
func (s *Store) Store(shellCommand, cwd string, r io.Reader) (Digest, error) {
	key := Key(shellCommand, cwd)
	tmpPath := filepath.Join(s.dir, uuid.New().String()+".tmp")
	finalPath := filepath.Join(s.dir, key)

	f, err := os.Create(tmpPath)
	if err != nil {
		return Digest{}, fmt.Errorf("cache: create temp file: %w", err)
	}

	var lines uint64
	w := bufio.NewWriter(f)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if _, err := w.WriteString(scanner.Text()); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return Digest{}, fmt.Errorf("cache: write line: %w", err)
		}
		w.WriteByte('\n')
		lines++
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return Digest{}, fmt.Errorf("cache: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return Digest{}, fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return Digest{}, fmt.Errorf("cache: rename into place: %w", err)
	}

	d := Digest{
		ShellCommand: shellCommand,
		Cwd:          cwd,
		TotalLines:   lines,
		CachePath:    finalPath,
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.insertLocked(key, d)
	err = s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return d, fmt.Errorf("cache: persist index: %w", err)
	}
	return d, nil
}

// insertLocked must be called with s.mu held.
func (s *Store) insertLocked(key string, d Digest) {
	if elem, ok := s.items[key]; ok {
		elem.Value.(*entry).digest = d //nolint:errcheck // list only contains *entry
		s.lru.MoveToFront(elem)
		return
	}
	if s.lru.Len() >= s.maxEntries {
		s.evictOldestLocked()
	}
	elem := s.lru.PushFront(&entry{key: key, digest: d})
	s.items[key] = elem
}

func (s *Store) evictOldestLocked() {
	elem := s.lru.Back()
	if elem != nil {
		s.removeLocked(elem)
	}
}

func (s *Store) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry) //nolint:errcheck // list only contains *entry
	s.lru.Remove(elem)
	delete(s.items, e.key)
	os.Remove(e.digest.CachePath)
}

func (s *Store) fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadIndex bulk-loads every entry of the on-disk index into the
// in-memory LRU. Called once from NewStore, before the Store is
// published to any other goroutine, so it runs without s.mu held.
// Entries are walked in the order sjson originally appended them
// (oldest first), so replaying them through insertLocked rebuilds the
// same recency order the index was persisted in. A backing file that
// no longer exists on disk is dropped rather than loaded.
func (s *Store) loadIndex() {
	raw, err := os.ReadFile(s.indexPath)
	if err != nil || !gjson.ValidBytes(raw) {
		return
	}
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		d := Digest{
			ShellCommand: value.Get("shellCommand").String(),
			Cwd:          value.Get("cwd").String(),
			TotalLines:   uint64(value.Get("totalLines").Int()),
			CachePath:    value.Get("cachePath").String(),
			CreatedAt:    time.UnixMilli(value.Get("createdAt").Int()),
		}
		if s.fileExists(d.CachePath) {
			s.insertLocked(key.String(), d)
		}
		return true
	})
}

// persistLocked rewrites the on-disk JSON index to reflect the current
// LRU contents. Must be called with s.mu held.
func (s *Store) persistLocked() error {
	raw := []byte("{}")
	var err error
	for e := s.lru.Back(); e != nil; e = e.Prev() {
		ent := e.Value.(*entry) //nolint:errcheck // list only contains *entry
		raw, err = sjson.SetBytes(raw, gjson.Escape(ent.key), map[string]any{
			"shellCommand": ent.digest.ShellCommand,
			"cwd":          ent.digest.Cwd,
			"totalLines":   ent.digest.TotalLines,
			"cachePath":    ent.digest.CachePath,
			"createdAt":    ent.digest.CreatedAt.UnixMilli(),
		})
		if err != nil {
			return err
		}
	}
	raw = pretty.Pretty(raw)

	tmpPath := s.indexPath + "." + uuid.New().String() + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.indexPath)
}

// Len reports the number of digests currently tracked in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
