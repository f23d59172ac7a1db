package search

import (
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases s and strips diacritics, so "Éclair" matches
// "eclair".
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// scorer rates candidate names against one normalized query. The fuzzy
// subsequence score is normalized against the query's self-match score
// (the best any candidate could do), then blended with a length-closeness
// ratio so short exact-ish names outrank long ones with the same
// subsequence.
type scorer struct {
	query string
	self  float64
}

const (
	subsequenceWeight = 0.7
	lengthWeight      = 0.3
)

func newScorer(normalizedQuery string) *scorer {
	s := &scorer{query: normalizedQuery}
	if matches := fuzzy.Find(normalizedQuery, []string{normalizedQuery}); len(matches) > 0 {
		s.self = float64(matches[0].Score)
	}
	return s
}

// score returns a similarity in [0, 1] between the query and a normalized
// candidate name. 0 means no subsequence match at all.
func (s *scorer) score(name string) float64 {
	if s.query == "" || name == "" {
		return 0
	}
	if s.query == name {
		return 1.0
	}

	matches := fuzzy.Find(s.query, []string{name})
	if len(matches) == 0 {
		return 0
	}

	subsequence := 0.0
	if s.self > 0 {
		subsequence = float64(matches[0].Score) / s.self
	}
	if subsequence < 0 {
		subsequence = 0
	}
	if subsequence > 1 {
		subsequence = 1
	}

	ratio := float64(len(s.query)) / float64(len(name))
	if ratio > 1 {
		ratio = 1 / ratio
	}

	score := subsequenceWeight*subsequence + lengthWeight*ratio
	if score > 1 {
		score = 1
	}
	return score
}
