package result

import (
	"github.com/kailas-cloud/unisearch/internal/domain"
)

// Ranked is a document with its composite relevance score and a display snippet.
// Created fresh per query; persisted only inside a cache entry.
type Ranked struct {
	domain.SearchDocument
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet,omitempty"`
}

// Timings breaks down where a query spent its time, in milliseconds.
type Timings struct {
	TotalMs    int64            `json:"total_ms"`
	FanOutMs   int64            `json:"fan_out_ms"`
	RankMs     int64            `json:"rank_ms"`
	SemanticMs int64            `json:"semantic_ms,omitempty"`
	ModulesMs  map[string]int64 `json:"modules_ms,omitempty"`
}

// Entry is a cached, fully ranked result set.
type Entry struct {
	Results         []Ranked `json:"results"`
	TotalCount      int      `json:"total_count"`
	Timings         Timings  `json:"timings"`
	Suggestions     []string `json:"suggestions"`
	FuzzyMatches    []string `json:"fuzzy_matches"`
	ModulesSearched []string `json:"modules_searched"`
}

// Response is what the orchestrator returns for one query.
type Response struct {
	Entry
	Query         string `json:"query"`
	SearchTimeMs  int64  `json:"search_time_ms"`
	FromCache     bool   `json:"from_cache"`
	CorrelationID string `json:"correlation_id"`
}
