package search

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const defaultLimit = 10

// SearchBM25 performs BM25 keyword search across all patterns.
func (i *Indexer) SearchBM25(text string, limit int) ([]SearchResult, error) {
	return i.search(i.buildMatchQuery(text), limit)
}

// SearchByUser performs BM25 search scoped to one user's patterns.
func (i *Indexer) SearchByUser(text, userID string, limit int) ([]SearchResult, error) {
	if userID == "" {
		return i.SearchBM25(text, limit)
	}

	userQuery := bleve.NewTermQuery(userID)
	userQuery.SetField("user")

	return i.search(bleve.NewConjunctionQuery(i.buildMatchQuery(text), userQuery), limit)
}

func (i *Indexer) search(q query.Query, limit int) ([]SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 {
		limit = defaultLimit
	}

	results, err := i.bleveIndex.Search(bleve.NewSearchRequestOptions(q, limit, 0, false))
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	return convertBleveResults(results), nil
}

// convertBleveResults converts Bleve search results to our SearchResult format.
func convertBleveResults(results *bleve.SearchResult) []SearchResult {
	searchResults := make([]SearchResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		searchResults = append(searchResults, SearchResult{
			PatternID: hit.ID,
			Score:     hit.Score,
		})
	}
	return searchResults
}
