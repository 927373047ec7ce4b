// Package ranking orders cross-module candidates by a composite relevance score:
//
//	score = Module*module_weight + Text*text_relevance + recency_boost + Semantic*similarity
//
// The weights and the recency steps are policy, not derived optima; tune them here.
package ranking

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/search/query"
	"github.com/kailas-cloud/unisearch/internal/domain/search/result"
)

// Default weights.
const (
	DefaultModuleWeight   = 0.4
	DefaultTextWeight     = 0.5
	DefaultSemanticWeight = 0.0
)

// RecencyStep grants Boost to documents younger than MaxAge.
type RecencyStep struct {
	MaxAge time.Duration
	Boost  float64
}

// RecencySteps is checked in order; the first step a document fits wins. Older documents get 0.
var RecencySteps = []RecencyStep{
	{MaxAge: 24 * time.Hour, Boost: 0.30},
	{MaxAge: 7 * 24 * time.Hour, Boost: 0.20},
	{MaxAge: 30 * 24 * time.Hour, Boost: 0.10},
	{MaxAge: 90 * 24 * time.Hour, Boost: 0.05},
}

// SnippetLength is the snippet size in runes.
const SnippetLength = 160

// Weights scales the score components.
type Weights struct {
	Module   float64
	Text     float64
	Semantic float64
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{Module: DefaultModuleWeight, Text: DefaultTextWeight, Semantic: DefaultSemanticWeight}
}

// Candidate is one document to rank. Similarity is the cosine similarity from semantic
// recall and stays 0 for candidates that only came from module adapters.
type Candidate struct {
	Document   domain.SearchDocument
	Similarity float64
}

// Rank scores candidates and returns them in descending score order.
// Ties keep input order. Rank does not mutate its input.
func Rank(candidates []Candidate, queryText string, now time.Time, w Weights) []result.Ranked {
	phrase := strings.ToLower(strings.TrimSpace(queryText))
	words := uniqueWords(phrase)

	out := make([]result.Ranked, len(candidates))
	for i := range candidates {
		doc := candidates[i].Document
		score := w.Module*moduleWeight(&doc) +
			w.Text*TextRelevance(&doc, phrase, words) +
			RecencyBoost(doc.Timestamp, now) +
			w.Semantic*candidates[i].Similarity
		out[i] = result.Ranked{
			SearchDocument: doc,
			RelevanceScore: score,
			Snippet:        Snippet(doc.BodyText, phrase, words),
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// moduleWeight prefers the adapter-seeded prior and falls back to the module's fixed weight.
func moduleWeight(doc *domain.SearchDocument) float64 {
	if doc.Score > 0 {
		return doc.Score
	}
	return doc.Module.Weight()
}

// TextRelevance is 1 when the lower-cased phrase occurs in title+body, otherwise the share of
// query words present in the document. words must be the unique lower-cased query words.
func TextRelevance(doc *domain.SearchDocument, phrase string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	text := strings.ToLower(doc.Text())
	if phrase != "" && strings.Contains(text, phrase) {
		return 1
	}
	docWords := make(map[string]struct{})
	for _, w := range Words(text) {
		docWords[w] = struct{}{}
	}
	matched := 0
	for _, w := range words {
		if _, ok := docWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

// RecencyBoost maps document age to a step boost. Undated documents get 0.
func RecencyBoost(ts *time.Time, now time.Time) float64 {
	if ts == nil {
		return 0
	}
	age := now.Sub(*ts)
	for _, step := range RecencySteps {
		if age < step.MaxAge {
			return step.Boost
		}
	}
	return 0
}

// Words splits lower-cased text into letter/digit runs.
func Words(text string) []string {
	return query.Words(text)
}

func uniqueWords(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range Words(text) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Snippet cuts body to SnippetLength runes around the first phrase or word hit.
// Without a hit it returns the start of body.
func Snippet(body, phrase string, words []string) string {
	runes := []rune(body)
	if len(runes) <= SnippetLength {
		return body
	}

	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}
	hay := string(lowered)

	hit := -1
	if phrase != "" {
		hit = strings.Index(hay, phrase)
	}
	for _, w := range words {
		if hit >= 0 {
			break
		}
		hit = strings.Index(hay, w)
	}

	start := 0
	if hit > 0 {
		start = max(utf8.RuneCountInString(hay[:hit])-SnippetLength/4, 0)
	}
	end := min(start+SnippetLength, len(runes))
	if end == len(runes) {
		start = max(end-SnippetLength, 0)
	}

	s := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		s = "..." + s
	}
	if end < len(runes) {
		s += "..."
	}
	return s
}
