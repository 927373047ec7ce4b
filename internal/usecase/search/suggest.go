package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/unisearch/internal/domain/search/result"
)

// Limits for the hints returned with a result set.
const (
	suggestionSources  = 5
	maxSuggestions     = 5
	minSuggestionRunes = 4
	maxFuzzyMatches    = 3
	fuzzyPrefixRunes   = 3
)

// Suggestions returns the most frequent terms longer than three characters in the title and
// snippet of the top results, skipping terms already in the query. Ties keep first-seen order.
func Suggestions(ranked []result.Ranked, queryText string) []string {
	exclude := make(map[string]bool)
	for _, w := range queryWords(queryText) {
		exclude[w] = true
	}

	counts := make(map[string]int)
	var order []string
	for i := 0; i < len(ranked) && i < suggestionSources; i++ {
		text := strings.ToLower(ranked[i].Title + " " + ranked[i].Snippet)
		for _, w := range queryWords(text) {
			if utf8.RuneCountInString(w) < minSuggestionRunes || exclude[w] {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxSuggestions {
		order = order[:maxSuggestions]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// FuzzyMatches returns titles that do not contain the query but share a three-character word
// prefix with it: results that surfaced through approximate matching.
func FuzzyMatches(ranked []result.Ranked, queryText string) []string {
	phrase := strings.ToLower(strings.TrimSpace(queryText))
	var prefixes []string
	for _, w := range queryWords(queryText) {
		if p, ok := prefix(w); ok {
			prefixes = append(prefixes, p)
		}
	}

	out := []string{}
	seen := make(map[string]bool)
	for i := range ranked {
		if len(out) == maxFuzzyMatches {
			break
		}
		title := ranked[i].Title
		lower := strings.ToLower(title)
		if seen[title] || strings.Contains(lower, phrase) {
			continue
		}
		if sharesPrefix(queryWords(lower), prefixes) {
			seen[title] = true
			out = append(out, title)
		}
	}
	return out
}

func sharesPrefix(words, prefixes []string) bool {
	for _, w := range words {
		p, ok := prefix(w)
		if !ok {
			continue
		}
		for _, q := range prefixes {
			if p == q {
				return true
			}
		}
	}
	return false
}

func prefix(w string) (string, bool) {
	runes := []rune(w)
	if len(runes) < fuzzyPrefixRunes {
		return "", false
	}
	return string(runes[:fuzzyPrefixRunes]), true
}
