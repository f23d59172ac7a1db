package history

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	frecencyFile = "frecency_history.json"
	ringSize     = 10
)

// Multipliers are the recency step-function weights. More recent use gets
// a larger multiplier: Hour > Day > Week > Older.
type Multipliers struct {
	Hour  float64
	Day   float64
	Week  float64
	Older float64
}

// DefaultMultipliers returns the standard recency steps.
func DefaultMultipliers() Multipliers {
	return Multipliers{Hour: 4.0, Day: 2.0, Week: 1.0, Older: 0.5}
}

// RecencyRecord is the persisted frecency state for one item.
type RecencyRecord struct {
	Count      int         `json:"count"`
	LastUsed   time.Time   `json:"last_used"`
	Timestamps []time.Time `json:"timestamps,omitempty"`
}

type frecencyTable struct {
	Items       map[string]*RecencyRecord `json:"items"`
	LastUpdated time.Time                 `json:"last_updated"`
}

// RecencyTracker keeps a frecency score per item: launch count weighted by
// how recently the item was last used. Normalized weights are cached and
// recomputed after any increment.
type RecencyTracker struct {
	mu    sync.RWMutex
	items map[string]*RecencyRecord

	weights      map[string]float64
	weightsValid bool

	mult func() Multipliers
	now  func() time.Time

	saveMu sync.Mutex
	path   string
	log    *logrus.Entry
}

// NewRecencyTracker loads frecency_history.json from dataDir. mult may be
// nil, in which case DefaultMultipliers is used. A corrupted file degrades
// to an empty table, rebuilt from the journal when one is supplied.
func NewRecencyTracker(dataDir string, journal *Journal, mult func() Multipliers) *RecencyTracker {
	if mult == nil {
		mult = func() Multipliers { return DefaultMultipliers() }
	}
	t := &RecencyTracker{
		items: make(map[string]*RecencyRecord),
		mult:  mult,
		now:   time.Now,
		path:  filepath.Join(dataDir, frecencyFile),
		log:   logrus.WithField("component", "frecency"),
	}

	var table frecencyTable
	err := loadJSON(t.path, &table)
	switch {
	case err == nil && table.Items != nil:
		t.items = table.Items
	case err == nil || os.IsNotExist(err):
	default:
		t.log.WithError(err).Warn("frecency history unreadable, rebuilding")
		if journal != nil {
			counts := journal.Counts()
			lasts := journal.LastLaunches()
			for name, count := range counts {
				rec := &RecencyRecord{Count: int(count)}
				if last, ok := lasts[name]; ok {
					rec.LastUsed = last
					rec.Timestamps = []time.Time{last}
				}
				t.items[name] = rec
			}
		}
	}

	return t
}

// Increment records a use of name: count goes up, last_used moves to now,
// and the bounded timestamp ring gains an entry. The cached weight table
// is invalidated and the table is persisted in the background.
func (t *RecencyTracker) Increment(name string) {
	now := t.now()

	t.mu.Lock()
	rec, ok := t.items[name]
	if !ok {
		rec = &RecencyRecord{}
		t.items[name] = rec
	}
	rec.Count++
	rec.LastUsed = now
	rec.Timestamps = append(rec.Timestamps, now)
	if len(rec.Timestamps) > ringSize {
		rec.Timestamps = rec.Timestamps[len(rec.Timestamps)-ringSize:]
	}
	t.weightsValid = false
	t.mu.Unlock()

	go t.persist()
}

// NormalizedWeight returns the item's frecency score normalized against
// the maximum observed score, in [0, 1]. Unknown items score 0.
func (t *RecencyTracker) NormalizedWeight(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.weightsValid {
		t.rebuildWeights()
	}
	return t.weights[name]
}

// rebuildWeights recomputes the normalized weight table. Caller holds the
// write lock.
func (t *RecencyTracker) rebuildWeights() {
	now := t.now()
	mult := t.mult()

	scores := make(map[string]float64, len(t.items))
	var maxScore float64
	for name, rec := range t.items {
		score := float64(rec.Count) * recencyMultiplier(now.Sub(rec.LastUsed), mult)
		scores[name] = score
		if score > maxScore {
			maxScore = score
		}
	}

	t.weights = make(map[string]float64, len(scores))
	if maxScore > 0 {
		for name, score := range scores {
			t.weights[name] = score / maxScore
		}
	}
	t.weightsValid = true
}

func recencyMultiplier(elapsed time.Duration, m Multipliers) float64 {
	switch {
	case elapsed <= time.Hour:
		return m.Hour
	case elapsed <= 24*time.Hour:
		return m.Day
	case elapsed <= 7*24*time.Hour:
		return m.Week
	default:
		return m.Older
	}
}

// Record returns a copy of the stored record for name.
func (t *RecencyTracker) Record(name string) (RecencyRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.items[name]
	if !ok {
		return RecencyRecord{}, false
	}
	return *rec, true
}

// PruneOldEntries removes records whose last use is older than maxAge, and
// records that have never accumulated a count. Intended to run
// periodically, not on every read.
func (t *RecencyTracker) PruneOldEntries(maxAge time.Duration) int {
	now := t.now()

	t.mu.Lock()
	var pruned int
	for name, rec := range t.items {
		if rec.Count == 0 || now.Sub(rec.LastUsed) > maxAge {
			delete(t.items, name)
			pruned++
		}
	}
	if pruned > 0 {
		t.weightsValid = false
	}
	t.mu.Unlock()

	if pruned > 0 {
		go t.persist()
	}
	return pruned
}

// Flush persists the current table synchronously.
func (t *RecencyTracker) Flush() {
	t.persist()
}

// persist snapshots the table under the save lock, so concurrent writers
// can never replace a newer table with an older one.
func (t *RecencyTracker) persist() {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.RLock()
	items := make(map[string]*RecencyRecord, len(t.items))
	for name, rec := range t.items {
		cp := *rec
		cp.Timestamps = append([]time.Time(nil), rec.Timestamps...)
		items[name] = &cp
	}
	snapshot := frecencyTable{Items: items, LastUpdated: time.Now()}
	t.mu.RUnlock()

	if err := saveJSON(t.path, snapshot); err != nil {
		t.log.WithError(err).Warn("failed to persist frecency history")
	}
}
