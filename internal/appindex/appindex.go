// Package appindex maintains the authoritative list of launchable
// applications, scanned from desktop-entry directories and cached on disk.
package appindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/lyra-sh/lyrad/internal/config"
)

const cacheFile = "apps_cache.json"

// Index owns the application snapshot. Readers always get an internally
// consistent slice; refresh builds a new slice off-thread and swaps it in
// atomically, bumping the generation counter.
type Index struct {
	cfg *config.Config
	log *logrus.Entry

	mu         sync.RWMutex
	snapshot   []AppRecord
	generation uint64
	loaded     bool

	// loadMu serializes the cold-start load so concurrent first callers
	// trigger exactly one scan.
	loadMu sync.Mutex

	watcher      *fsnotify.Watcher
	watchTimerMu sync.Mutex
	watchTimer   *time.Timer
}

// New creates an index. Nothing is scanned until Snapshot or RefreshAsync
// is called.
func New(cfg *config.Config) *Index {
	return &Index{
		cfg: cfg,
		log: logrus.WithField("component", "appindex"),
	}
}

// Snapshot returns the current application list. The first call loads a
// snapshot synchronously: from the disk cache when it is fresh enough,
// otherwise by a full scan. The returned slice must be treated as
// read-only.
func (idx *Index) Snapshot() []AppRecord {
	idx.mu.RLock()
	if idx.loaded {
		snap := idx.snapshot
		idx.mu.RUnlock()
		return snap
	}
	idx.mu.RUnlock()

	return idx.loadInitial()
}

// Generation returns the current index generation. It is bumped on every
// snapshot swap and is used by the search cache to invalidate stale
// entries.
func (idx *Index) Generation() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

// Current returns the snapshot together with the generation it belongs
// to, read under one lock. Callers keying caches by generation need the
// pair to be consistent.
func (idx *Index) Current() ([]AppRecord, uint64) {
	idx.mu.RLock()
	if idx.loaded {
		snap, gen := idx.snapshot, idx.generation
		idx.mu.RUnlock()
		return snap, gen
	}
	idx.mu.RUnlock()

	idx.loadInitial()

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.snapshot, idx.generation
}

// loadInitial performs the one-time cold-start load and returns the
// snapshot it adopted: the fresh disk cache when one exists (a background
// refresh then catches it up to reality), otherwise a synchronous scan.
func (idx *Index) loadInitial() []AppRecord {
	idx.loadMu.Lock()
	defer idx.loadMu.Unlock()

	idx.mu.RLock()
	if idx.loaded {
		snap := idx.snapshot
		idx.mu.RUnlock()
		return snap
	}
	idx.mu.RUnlock()

	if apps, ok := idx.loadDiskCache(); ok {
		idx.swap(apps)
		idx.log.WithField("apps", len(apps)).Debug("loaded index from disk cache")
		// Cache may lag reality; refresh in the background.
		idx.RefreshAsync(nil)
		return apps
	}

	apps := idx.scan()
	idx.swap(apps)
	idx.saveDiskCache(apps)
	idx.log.WithField("apps", len(apps)).Debug("initial scan complete")
	return apps
}

// RefreshAsync rescans all application directories off the calling
// goroutine. When the scan finishes the new snapshot is swapped in, the
// generation is bumped, and onComplete (if non-nil) is invoked with the
// new snapshot.
func (idx *Index) RefreshAsync(onComplete func([]AppRecord)) {
	go func() {
		apps := idx.scan()
		idx.swap(apps)
		idx.saveDiskCache(apps)
		idx.log.WithField("apps", len(apps)).Debug("refresh complete")
		if onComplete != nil {
			onComplete(apps)
		}
	}()
}

func (idx *Index) swap(apps []AppRecord) {
	idx.mu.Lock()
	idx.snapshot = apps
	idx.generation++
	idx.loaded = true
	idx.mu.Unlock()
}

// scan walks every configured directory in priority order, deduplicates by
// name (first occurrence wins) and returns the records sorted by
// lower-cased name. Unreadable directories are logged and skipped.
func (idx *Index) scan() []AppRecord {
	results := make(chan *AppRecord, 100)

	dirs := idx.cfg.AppDirs()
	go func() {
		defer close(results)
		for _, dir := range dirs {
			if err := scanDir(dir, results); err != nil {
				idx.log.WithError(err).WithField("dir", dir).Debug("skipping unreadable directory")
			}
		}
	}()

	seen := make(map[string]struct{})
	var apps []AppRecord
	for rec := range results {
		if _, dup := seen[rec.Name]; dup {
			continue
		}
		seen[rec.Name] = struct{}{}
		apps = append(apps, *rec)
	}

	sort.Slice(apps, func(i, j int) bool {
		return strings.ToLower(apps[i].Name) < strings.ToLower(apps[j].Name)
	})
	return apps
}

type diskCache struct {
	Timestamp time.Time   `json:"timestamp"`
	Apps      []AppRecord `json:"apps"`
}

func (idx *Index) cachePath() string {
	return filepath.Join(idx.cfg.DataDir(), cacheFile)
}

func (idx *Index) loadDiskCache() ([]AppRecord, bool) {
	data, err := os.ReadFile(idx.cachePath())
	if err != nil {
		return nil, false
	}

	var cached diskCache
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache is ignored, not deleted.
		idx.log.WithError(err).Warn("ignoring corrupted app cache")
		return nil, false
	}

	if time.Since(cached.Timestamp) > idx.cfg.IndexCacheTTL() {
		return nil, false
	}
	return cached.Apps, true
}

func (idx *Index) saveDiskCache(apps []AppRecord) {
	data, err := json.Marshal(diskCache{Timestamp: time.Now(), Apps: apps})
	if err != nil {
		return
	}

	path := idx.cachePath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		idx.log.WithError(err).Warn("failed to write app cache")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		idx.log.WithError(err).Warn("failed to replace app cache")
	}
}

// Watch starts watching the application directories and schedules a
// refresh shortly after any .desktop file changes. Changes are coalesced
// so a burst of writes triggers a single rescan.
func (idx *Index) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range idx.cfg.AppDirs() {
		if err := watcher.Add(dir); err != nil {
			idx.log.WithError(err).WithField("dir", dir).Debug("not watching directory")
		}
	}
	idx.watcher = watcher

	go idx.watchLoop()
	return nil
}

func (idx *Index) watchLoop() {
	for {
		select {
		case event, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".desktop") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				idx.scheduleRefresh()
			}
		case err, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
			idx.log.WithError(err).Warn("app directory watcher error")
		}
	}
}

func (idx *Index) scheduleRefresh() {
	idx.watchTimerMu.Lock()
	defer idx.watchTimerMu.Unlock()
	if idx.watchTimer != nil {
		idx.watchTimer.Stop()
	}
	idx.watchTimer = time.AfterFunc(2*time.Second, func() {
		idx.RefreshAsync(nil)
	})
}

// Close stops the directory watcher, if running.
func (idx *Index) Close() error {
	idx.watchTimerMu.Lock()
	if idx.watchTimer != nil {
		idx.watchTimer.Stop()
	}
	idx.watchTimerMu.Unlock()
	if idx.watcher != nil {
		return idx.watcher.Close()
	}
	return nil
}
