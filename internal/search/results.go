/*
Package search implements keyword search over learned workflow patterns.

Patterns are indexed in an in-memory Bleve index by name, description, tool
names and context tags, and ranked with BM25. The index holds only pattern
ids; callers resolve hits against their pattern repository.
*/
package search

// SearchResult is one matching pattern with its relevance score.
type SearchResult struct {
	PatternID string  `json:"pattern_id"`
	Score     float64 `json:"score"`
}

// PatternDocument is a pattern as stored in the search index.
type PatternDocument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tools       string `json:"tools"`
	Tags        string `json:"tags"`
	User        string `json:"user"`
	Type        string `json:"type"`
}
