// Package search ranks applications against free-text queries, weighting
// string similarity by usage and recency signals.
package search

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lyra-sh/lyrad/internal/appindex"
	"github.com/lyra-sh/lyrad/internal/config"
	"github.com/lyra-sh/lyrad/internal/history"
)

// Engine produces ranked, size-capped result lists. It is safe for
// concurrent use.
type Engine struct {
	cfg     *config.Config
	index   *appindex.Index
	usage   *history.UsageTracker
	recency *history.RecencyTracker
	cache   *resultCache
	log     *logrus.Entry
}

// New builds a search engine over the given index and trackers.
func New(cfg *config.Config, index *appindex.Index, usage *history.UsageTracker, recency *history.RecencyTracker) (*Engine, error) {
	cache, err := newResultCache(cfg.CacheSize())
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		index:   index,
		usage:   usage,
		recency: recency,
		cache:   cache,
		log:     logrus.WithField("component", "search"),
	}, nil
}

// Search returns up to maxResults applications ranked for query. An empty
// query returns the browse list: items ordered by recency weight, then
// usage weight, then index order. Results for non-empty queries are cached
// per (normalized query, index generation); a slow computation is logged
// and left uncached.
func (e *Engine) Search(query string, maxResults int) []appindex.AppRecord {
	if maxResults <= 0 {
		maxResults = e.cfg.MaxResults()
	}

	normalized := Normalize(query)
	if normalized == "" {
		return e.browse(maxResults)
	}

	apps, generation := e.index.Current()
	key := cacheKey{query: normalized, generation: generation}
	if cached, ok := e.cache.get(key); ok {
		return truncate(cached, maxResults)
	}

	start := time.Now()
	ranked := e.rank(normalized, apps)
	elapsed := time.Since(start)

	if elapsed > e.cfg.SlowSearch() {
		// Advisory only: the result is still returned, just not cached,
		// so one pathological query cannot pin a slow recomputation.
		e.log.WithFields(logrus.Fields{
			"query":   query,
			"elapsed": elapsed,
			"budget":  e.cfg.SlowSearch(),
		}).Warn("slow search")
	} else {
		e.cache.add(key, ranked)
	}

	return truncate(ranked, maxResults)
}

type scored struct {
	rec   appindex.AppRecord
	score float64
	order int
}

// rank scores every candidate above the similarity cutoff and returns the
// full ranked list, most relevant first.
func (e *Engine) rank(normalizedQuery string, apps []appindex.AppRecord) []appindex.AppRecord {
	scoring := e.cfg.Scoring()
	sc := newScorer(normalizedQuery)

	candidates := make([]scored, 0, len(apps))
	for i, rec := range apps {
		similarity := sc.score(Normalize(rec.Name))
		if similarity < scoring.Cutoff {
			if kw := e.keywordSimilarity(sc, rec); kw >= scoring.Cutoff {
				similarity = kw
			} else {
				continue
			}
		}

		final := similarity*e.usage.Weight(rec.Name) +
			e.recency.NormalizedWeight(rec.Name)*scoring.RecencyBoost
		candidates = append(candidates, scored{rec: rec, score: final, order: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	out := make([]appindex.AppRecord, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out
}

// keywordSimilarity lets an entry surface on keyword matches, slightly
// discounted so name matches always win ties.
func (e *Engine) keywordSimilarity(sc *scorer, rec appindex.AppRecord) float64 {
	var best float64
	for _, kw := range rec.Keywords {
		if s := sc.score(Normalize(kw)) * 0.9; s > best {
			best = s
		}
	}
	return best
}

// browse is the empty-query mode: everything the index knows, most
// recently and frequently used first.
func (e *Engine) browse(maxResults int) []appindex.AppRecord {
	apps := e.index.Snapshot()

	type weighted struct {
		rec     appindex.AppRecord
		recency float64
		usage   float64
		order   int
	}
	rows := make([]weighted, len(apps))
	for i, rec := range apps {
		rows[i] = weighted{
			rec:     rec,
			recency: e.recency.NormalizedWeight(rec.Name),
			usage:   e.usage.Weight(rec.Name),
			order:   i,
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].recency != rows[j].recency {
			return rows[i].recency > rows[j].recency
		}
		if rows[i].usage != rows[j].usage {
			return rows[i].usage > rows[j].usage
		}
		return rows[i].order < rows[j].order
	})

	out := make([]appindex.AppRecord, 0, maxResults)
	for _, row := range rows {
		if len(out) == maxResults {
			break
		}
		out = append(out, row.rec)
	}
	return out
}

// CacheStats reports hit/miss counters for diagnostics.
func (e *Engine) CacheStats() Stats {
	return e.cache.stats()
}

// PurgeCache drops every cached result list. Generation keying already
// invalidates stale entries logically; this is for explicit resets.
func (e *Engine) PurgeCache() {
	e.cache.purge()
}

func truncate(apps []appindex.AppRecord, max int) []appindex.AppRecord {
	if len(apps) <= max {
		return apps
	}
	return apps[:max]
}
