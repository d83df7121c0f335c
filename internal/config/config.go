// Package config assembles clapfilterd's ambient process tunables: worker
// count, cache directory, Top-N capacity, debounce thresholds, the Top-N
// publish interval, and RPC framing mode. This is not the user-facing
// theme/keymap configuration layer an editor exposes — it is the small set
// of knobs the filter engine itself needs, loaded from a TOML file and
// layered with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dshills/clapfilter/internal/config/loader"
	"github.com/dshills/clapfilter/internal/obslog"
	"github.com/dshills/clapfilter/internal/session"
)

// EnvPrefix is the environment variable prefix clapfilterd recognizes.
const EnvPrefix = "CLAPFILTER_"

// RPCMode names a run mode in the config file or environment. Load
// records it in Config.RPCMode; cmd/clapfilterd does not read it and
// chooses between the daemon and batch mode from its -batch flag alone.
type RPCMode string

const (
	// RPCModeStdio names the daemon mode (RPC Adapter over stdin/stdout).
	RPCModeStdio RPCMode = "stdio"
	// RPCModeBatch names the one-shot batch mode.
	RPCModeBatch RPCMode = "batch"
)

// Config holds every ambient tunable clapfilterd reads at startup.
type Config struct {
	Workers         int
	CacheDir        string
	CacheMaxEntries int
	AlwaysRefresh   bool

	TopNCapacity int
	// UpdateInterval is loaded from topn.updateInterval, but
	// cmd/clapfilterd does not pass it to any topn.Window; windows use
	// topn.DefaultUpdateInterval.
	UpdateInterval time.Duration

	Debounce session.DebounceThresholds

	LogLevel string
	RPCMode  RPCMode
}

// Default returns the built-in defaults, used when no config file and no
// environment overrides are present.
func Default() Config {
	cacheDir := filepath.Join(defaultCacheRoot(), "clapfilter")
	return Config{
		Workers:         runtime.NumCPU(),
		CacheDir:        cacheDir,
		CacheMaxEntries: 100,
		AlwaysRefresh:   false,
		TopNCapacity:    100,
		UpdateInterval:  200 * time.Millisecond,
		Debounce:        session.DefaultDebounceThresholds(),
		LogLevel:        "info",
		RPCMode:         RPCModeStdio,
	}
}

func defaultCacheRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

// Load builds a Config by starting from Default, merging in a TOML file at
// path (if it exists; a missing file is not an error, per loader.Loader's
// contract), then layering environment variable overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	fileMap, err := loader.NewTOMLLoader(path).Load()
	if err != nil {
		return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
	}

	envMap, err := loader.NewEnvLoader(EnvPrefix).Load()
	if err != nil {
		return Config{}, fmt.Errorf("config: reading environment: %w", err)
	}

	merged := loader.DeepMerge(fileMap, envMap)
	for _, section := range loader.UnknownSections(merged) {
		obslog.Warn("ignoring unrecognized config section", "section", section)
	}
	applyMap(&cfg, merged)
	return cfg, nil
}

// applyMap overlays values found in m onto cfg, leaving defaults in place
// for anything m doesn't mention. m uses the same dot-path sections the
// env mapping table produces: filter.*, cache.*, topn.*, debounce.*,
// logging.*, rpc.*.
func applyMap(cfg *Config, m map[string]any) {
	if v, ok := intAt(m, "filter", "workers"); ok {
		cfg.Workers = v
	}
	if v, ok := stringAt(m, "cache", "dir"); ok {
		cfg.CacheDir = v
	}
	if v, ok := intAt(m, "cache", "maxEntries"); ok {
		cfg.CacheMaxEntries = v
	}
	if v, ok := boolAt(m, "cache", "alwaysRefresh"); ok {
		cfg.AlwaysRefresh = v
	}
	if v, ok := intAt(m, "topn", "capacity"); ok {
		cfg.TopNCapacity = v
	}
	if v, ok := durationAt(m, "topn", "updateInterval"); ok {
		cfg.UpdateInterval = v
	}
	if v, ok := durationAt(m, "debounce", "tiny"); ok {
		cfg.Debounce.Tiny = v
	}
	if v, ok := durationAt(m, "debounce", "small"); ok {
		cfg.Debounce.Small = v
	}
	if v, ok := durationAt(m, "debounce", "medium"); ok {
		cfg.Debounce.Medium = v
	}
	if v, ok := durationAt(m, "debounce", "large"); ok {
		cfg.Debounce.Large = v
	}
	if v, ok := durationAt(m, "debounce", "move"); ok {
		cfg.Debounce.OnMove = v
	}
	if v, ok := stringAt(m, "logging", "level"); ok {
		cfg.LogLevel = v
	}
	if v, ok := stringAt(m, "rpc", "mode"); ok {
		cfg.RPCMode = RPCMode(v)
	}
}

func sectionAt(m map[string]any, section string) (map[string]any, bool) {
	v, ok := m[section]
	if !ok {
		return nil, false
	}
	sub, ok := v.(map[string]any)
	return sub, ok
}

func intAt(m map[string]any, section, key string) (int, bool) {
	sub, ok := sectionAt(m, section)
	if !ok {
		return 0, false
	}
	switch v := sub[key].(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func stringAt(m map[string]any, section, key string) (string, bool) {
	sub, ok := sectionAt(m, section)
	if !ok {
		return "", false
	}
	s, ok := sub[key].(string)
	return s, ok
}

func boolAt(m map[string]any, section, key string) (bool, bool) {
	sub, ok := sectionAt(m, section)
	if !ok {
		return false, false
	}
	b, ok := sub[key].(bool)
	return b, ok
}

func durationAt(m map[string]any, section, key string) (time.Duration, bool) {
	sub, ok := sectionAt(m, section)
	if !ok {
		return 0, false
	}
	switch v := sub[key].(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, false
		}
		return d, true
	case int64:
		return time.Duration(v) * time.Millisecond, true
	case float64:
		return time.Duration(v) * time.Millisecond, true
	default:
		return 0, false
	}
}
