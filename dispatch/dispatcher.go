// Package dispatch wires input text through the trigger registry and
// falls back to ranked application search, feeding launch events into the
// usage and recency trackers.
package dispatch

import (
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/lyra-sh/lyrad/internal/appindex"
	"github.com/lyra-sh/lyrad/internal/config"
	"github.com/lyra-sh/lyrad/internal/history"
	"github.com/lyra-sh/lyrad/internal/search"
	"github.com/lyra-sh/lyrad/launcher"
)

// ResultSet is one dispatched answer. Seq increases with every submitted
// input; consumers must discard sets older than the newest they have
// seen, since a newer input supersedes an older in-flight one.
type ResultSet struct {
	Seq   uint64
	Input string

	// Trigger and Plugin are set when the input resolved to a plugin;
	// PluginResults then holds the plugin's answer for the residual
	// query.
	Trigger       string
	Plugin        launcher.Plugin
	PluginResults []launcher.Result

	// Apps holds the ranked application matches for free-text input.
	Apps []appindex.AppRecord

	// ShellCommand is set when the first word of unmatched input is an
	// executable on PATH, so the caller can offer running it directly.
	ShellCommand string
}

const resultBuffer = 8

// Dispatcher is the single entry point the UI layer talks to.
type Dispatcher struct {
	cfg      *config.Config
	registry *launcher.Registry
	engine   *search.Engine
	index    *appindex.Index
	usage    *history.UsageTracker
	recency  *history.RecencyTracker
	journal  *history.Journal

	debouncer *Debouncer
	results   chan ResultSet
	seq       atomic.Uint64

	log *logrus.Entry
}

// New builds a dispatcher over the given components.
func New(cfg *config.Config, registry *launcher.Registry, engine *search.Engine,
	index *appindex.Index, usage *history.UsageTracker, recency *history.RecencyTracker,
	journal *history.Journal) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		registry:  registry,
		engine:    engine,
		index:     index,
		usage:     usage,
		recency:   recency,
		journal:   journal,
		debouncer: NewDebouncer(cfg.DebounceShort(), cfg.DebounceLong()),
		results:   make(chan ResultSet, resultBuffer),
		log:       logrus.WithField("component", "dispatch"),
	}
}

// Resolve maps input text to (trigger, plugin, remainder) without side
// effects.
func (d *Dispatcher) Resolve(input string) (string, launcher.Plugin, string) {
	return d.registry.Resolve(input)
}

// Search runs a ranked application search directly, bypassing triggers
// and debouncing.
func (d *Dispatcher) Search(query string, maxResults int) []appindex.AppRecord {
	return d.engine.Search(query, maxResults)
}

// Dispatch resolves input synchronously: plugin results when a trigger
// matches, ranked application matches otherwise. Plain paths never block
// beyond the search itself.
func (d *Dispatcher) Dispatch(input string) ResultSet {
	set := ResultSet{Input: input}

	trigger, plugin, remainder := d.registry.Resolve(input)
	if plugin != nil {
		set.Trigger = trigger
		set.Plugin = plugin
		set.PluginResults = plugin.Query(remainder)
		return set
	}

	set.Apps = d.engine.Search(remainder, d.cfg.MaxResults())
	set.ShellCommand = shellCommand(remainder)
	return set
}

// Submit feeds one keystroke's worth of input through the debouncer. Only
// the last submission of a burst produces a ResultSet on Results.
func (d *Dispatcher) Submit(input string) uint64 {
	seq := d.seq.Add(1)
	d.debouncer.Trigger(input, func() {
		set := d.Dispatch(input)
		set.Seq = seq
		d.deliver(set)
	})
	return seq
}

// deliver pushes onto the bounded results channel, dropping the oldest
// pending set when the consumer has fallen behind.
func (d *Dispatcher) deliver(set ResultSet) {
	for {
		select {
		case d.results <- set:
			return
		default:
			select {
			case stale := <-d.results:
				d.log.WithField("seq", stale.Seq).Debug("dropped stale result set")
			default:
			}
		}
	}
}

// Results returns the channel the consumer loop drains each tick.
func (d *Dispatcher) Results() <-chan ResultSet {
	return d.results
}

// TrackLaunch records a successful launch of name in both trackers and
// the durable journal.
func (d *Dispatcher) TrackLaunch(name string) {
	d.usage.Increment(name)
	d.recency.Increment(name)
	if d.journal != nil {
		if err := d.journal.Record(name); err != nil {
			d.log.WithError(err).WithField("name", name).Warn("failed to journal launch")
		}
	}
}

// RefreshIndexAsync rescans the application directories in the
// background. The search cache needs no purge: its keys carry the index
// generation, so prior entries simply stop matching.
func (d *Dispatcher) RefreshIndexAsync(onComplete func([]appindex.AppRecord)) {
	d.index.RefreshAsync(onComplete)
}

// App looks up an application by exact name in the current snapshot.
func (d *Dispatcher) App(name string) (appindex.AppRecord, bool) {
	for _, rec := range d.index.Snapshot() {
		if rec.Name == name {
			return rec, true
		}
	}
	return appindex.AppRecord{}, false
}

// Generation returns the current application index generation.
func (d *Dispatcher) Generation() uint64 {
	return d.index.Generation()
}

// AppCount returns the size of the current snapshot.
func (d *Dispatcher) AppCount() int {
	return len(d.index.Snapshot())
}

// CacheStats reports the search cache's advisory counters.
func (d *Dispatcher) CacheStats() search.Stats {
	return d.engine.CacheStats()
}

// PruneHistory drops stale frecency records per the configured max age.
func (d *Dispatcher) PruneHistory() int {
	return d.recency.PruneOldEntries(d.cfg.FrecencyMaxAge())
}

// Close stops the debouncer. The results channel is left open; pending
// consumers drain what is buffered.
func (d *Dispatcher) Close() {
	d.debouncer.Stop()
}

// shellCommand returns the resolved executable when the input's first
// word is runnable from PATH, otherwise "".
func shellCommand(input string) string {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return ""
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return ""
	}
	return path
}
