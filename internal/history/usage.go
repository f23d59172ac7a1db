// Package history tracks how often and how recently named items have been
// launched. The trackers are pure scoring inputs: they never decide what
// applications exist.
package history

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const usageFile = "usage_history.json"

// UsageTracker keeps a persistent launch count per item name.
type UsageTracker struct {
	mu     sync.RWMutex
	counts map[string]int

	saveMu sync.Mutex
	path   string
	log    *logrus.Entry
}

// NewUsageTracker loads usage_history.json from dataDir. A missing or
// corrupted file degrades to an empty table; when a journal is supplied,
// counts are rebuilt from it instead.
func NewUsageTracker(dataDir string, journal *Journal) *UsageTracker {
	t := &UsageTracker{
		counts: make(map[string]int),
		path:   filepath.Join(dataDir, usageFile),
		log:    logrus.WithField("component", "usage"),
	}

	err := loadJSON(t.path, &t.counts)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		t.counts = make(map[string]int)
	default:
		t.log.WithError(err).Warn("usage history unreadable, rebuilding")
		t.counts = make(map[string]int)
		if journal != nil {
			for name, count := range journal.Counts() {
				t.counts[name] = int(count)
			}
		}
	}
	if t.counts == nil {
		t.counts = make(map[string]int)
	}

	return t
}

// Increment bumps the count for name and persists the table in the
// background.
func (t *UsageTracker) Increment(name string) {
	t.mu.Lock()
	t.counts[name]++
	t.mu.Unlock()

	go t.persist()
}

// Count returns the launch count for name.
func (t *UsageTracker) Count(name string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[name]
}

// Weight maps an item's count into the multiplicative range [1.0, 1.1]
// relative to the observed min and max counts. Items with no history get
// the neutral 1.0.
func (t *UsageTracker) Weight(name string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count, ok := t.counts[name]
	if !ok || count == 0 {
		return 1.0
	}

	minCount, maxCount := count, count
	for _, c := range t.counts {
		if c < minCount {
			minCount = c
		}
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == minCount {
		return 1.1
	}
	return 1.0 + 0.1*float64(count-minCount)/float64(maxCount-minCount)
}

// Reset clears all counts, in memory and on disk.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	t.counts = make(map[string]int)
	t.mu.Unlock()
	go t.persist()
}

// Flush persists the current table synchronously.
func (t *UsageTracker) Flush() {
	t.persist()
}

// persist snapshots the table under the save lock, so concurrent writers
// can never replace a newer table with an older one.
func (t *UsageTracker) persist() {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.RLock()
	snapshot := make(map[string]int, len(t.counts))
	for name, count := range t.counts {
		snapshot[name] = count
	}
	t.mu.RUnlock()

	if err := saveJSON(t.path, snapshot); err != nil {
		t.log.WithError(err).Warn("failed to persist usage history")
	}
}
