// Package config loads lyrad configuration from environment variables and an
// optional TOML file. The file part is reloaded when it changes on disk.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config holds the merged static (environment) and dynamic (file)
// configuration. A single instance is constructed in main and passed by
// pointer to every component that needs it.
type Config struct {
	static env

	mu       sync.RWMutex
	dynamic  fileConfig
	onReload []func()

	watcher *fsnotify.Watcher
	log     *logrus.Entry
}

type env struct {
	Socket         string        `envconfig:"LYRA_SOCK"`
	DataDir        string        `envconfig:"LYRA_DATA_DIR"`
	ConfigFile     string        `envconfig:"LYRA_CONFIG"`
	AppDirs        []string      `envconfig:"LYRA_APP_DIRS"`
	IndexCacheTTL  time.Duration `envconfig:"LYRA_INDEX_CACHE_TTL" default:"6h"`
	MaxResults     int           `envconfig:"LYRA_MAX_RESULTS" default:"50"`
	SlowSearch     time.Duration `envconfig:"LYRA_SLOW_SEARCH" default:"50ms"`
	CacheSize      int           `envconfig:"LYRA_SEARCH_CACHE_SIZE" default:"100"`
	DebounceShort  time.Duration `envconfig:"LYRA_DEBOUNCE_SHORT" default:"50ms"`
	DebounceLong   time.Duration `envconfig:"LYRA_DEBOUNCE_LONG" default:"120ms"`
	FrecencyMaxAge time.Duration `envconfig:"LYRA_FRECENCY_MAX_AGE" default:"2160h"`
}

type fileConfig struct {
	// Aliases maps an extra trigger token to the plugin name that should
	// own it, e.g. wp = "wallpaper".
	Aliases map[string]string `toml:"aliases"`
	Scoring Scoring           `toml:"scoring"`
}

// Scoring holds the tunable ranking parameters.
type Scoring struct {
	Cutoff       float64 `toml:"cutoff"`
	RecencyBoost float64 `toml:"recency_boost"`
	HourMult     float64 `toml:"hour_multiplier"`
	DayMult      float64 `toml:"day_multiplier"`
	WeekMult     float64 `toml:"week_multiplier"`
	OlderMult    float64 `toml:"older_multiplier"`
}

func defaultScoring() Scoring {
	return Scoring{
		Cutoff:       0.25,
		RecencyBoost: 0.3,
		HourMult:     4.0,
		DayMult:      2.0,
		WeekMult:     1.0,
		OlderMult:    0.5,
	}
}

// Load reads the environment and, when present, the TOML config file.
// A missing or unreadable file is not an error.
func Load() (*Config, error) {
	c := &Config{
		log: logrus.WithField("component", "config"),
	}

	if err := envconfig.Process("", &c.static); err != nil {
		return nil, err
	}

	if c.static.Socket == "" {
		dir := os.Getenv("XDG_RUNTIME_DIR")
		if dir == "" {
			dir = os.TempDir()
		}
		c.static.Socket = filepath.Join(dir, "lyrad.sock")
	}

	if c.static.DataDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		c.static.DataDir = filepath.Join(cacheDir, "lyra")
	}
	if err := os.MkdirAll(c.static.DataDir, 0o750); err != nil {
		return nil, err
	}

	if c.static.ConfigFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.static.ConfigFile = filepath.Join(home, ".config", "lyra", "lyra.toml")
		}
	}

	c.dynamic = fileConfig{Scoring: defaultScoring()}
	c.loadFile()

	return c, nil
}

func (c *Config) loadFile() {
	if c.static.ConfigFile == "" {
		return
	}

	next := fileConfig{Scoring: defaultScoring()}
	if _, err := toml.DecodeFile(c.static.ConfigFile, &next); err != nil {
		if !os.IsNotExist(err) {
			c.log.WithError(err).Warn("ignoring unreadable config file")
		}
		return
	}

	c.mu.Lock()
	c.dynamic = next
	fns := append([]func(){}, c.onReload...)
	c.mu.Unlock()
	c.log.WithField("path", c.static.ConfigFile).Debug("config file loaded")

	for _, fn := range fns {
		fn()
	}
}

// OnReload registers fn to run after every successful config file reload.
// Register before calling Watch.
func (c *Config) OnReload(fn func()) {
	c.mu.Lock()
	c.onReload = append(c.onReload, fn)
	c.mu.Unlock()
}

// Watch starts a watcher goroutine that reloads the TOML file when it is
// written. Returns immediately; Close stops the watcher.
func (c *Config) Watch() error {
	if c.static.ConfigFile == "" {
		return nil
	}

	dir := filepath.Dir(c.static.ConfigFile)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	c.watcher = watcher

	go c.watchLoop()
	return nil
}

func (c *Config) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Name != c.static.ConfigFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				c.loadFile()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.WithError(err).Warn("config watcher error")
		}
	}
}

// Close stops the config file watcher, if running.
func (c *Config) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// Socket returns the Unix socket path the daemon listens on.
func (c *Config) Socket() string { return c.static.Socket }

// DataDir returns the directory holding persisted caches and history.
func (c *Config) DataDir() string { return c.static.DataDir }

// AppDirs returns the desktop-entry directories in priority order
// (highest first).
func (c *Config) AppDirs() []string {
	if len(c.static.AppDirs) > 0 {
		out := make([]string, 0, len(c.static.AppDirs))
		for _, d := range c.static.AppDirs {
			d = strings.TrimSpace(d)
			if d != "" {
				out = append(out, expandPath(d))
			}
		}
		return out
	}

	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".local/share/applications"),
		"/usr/local/share/applications",
		"/usr/share/applications",
	}
}

// IndexCacheTTL returns how long the on-disk application index cache stays
// valid.
func (c *Config) IndexCacheTTL() time.Duration { return c.static.IndexCacheTTL }

// MaxResults returns the default result-list cap.
func (c *Config) MaxResults() int {
	if c.static.MaxResults <= 0 {
		return 50
	}
	return c.static.MaxResults
}

// SlowSearch returns the latency budget beyond which a search is logged as
// slow and its result is not cached.
func (c *Config) SlowSearch() time.Duration { return c.static.SlowSearch }

// CacheSize returns the search result cache capacity.
func (c *Config) CacheSize() int {
	if c.static.CacheSize <= 0 {
		return 100
	}
	return c.static.CacheSize
}

// DebounceShort returns the debounce delay for 1-3 rune queries.
func (c *Config) DebounceShort() time.Duration { return c.static.DebounceShort }

// DebounceLong returns the debounce delay for longer queries.
func (c *Config) DebounceLong() time.Duration { return c.static.DebounceLong }

// FrecencyMaxAge returns the age beyond which frecency records are pruned.
func (c *Config) FrecencyMaxAge() time.Duration { return c.static.FrecencyMaxAge }

// Aliases returns the trigger aliases from the config file as a
// token -> plugin-name map. The returned map is a copy.
func (c *Config) Aliases() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.dynamic.Aliases))
	for token, name := range c.dynamic.Aliases {
		out[token] = name
	}
	return out
}

// Scoring returns the current scoring parameters.
func (c *Config) Scoring() Scoring {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dynamic.Scoring
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return strings.Replace(path, "~", home, 1)
	}
	return path
}
