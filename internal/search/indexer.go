package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/khanglvm/flowlearn/internal/learning"
)

// Indexer manages the search index for learned patterns.
type Indexer struct {
	bleveIndex bleve.Index
	mu         sync.RWMutex
}

// NewIndexer creates a new search indexer with in-memory Bleve index.
func NewIndexer() (*Indexer, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	return &Indexer{bleveIndex: index}, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	patternMapping := bleve.NewDocumentMapping()

	for _, field := range []string{"name", "description", "tools", "tags"} {
		patternMapping.AddFieldMappingsAt(field, bleve.NewTextFieldMapping())
	}

	// Exact-match filters
	userFieldMapping := bleve.NewKeywordFieldMapping()
	userFieldMapping.IncludeInAll = false
	patternMapping.AddFieldMappingsAt("user", userFieldMapping)
	patternMapping.AddFieldMappingsAt("type", bleve.NewKeywordFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", patternMapping)

	return indexMapping
}

// NewDocument builds the index document of a pattern. Tool names are
// indexed whole and split on underscores, so "slack" finds send_slack.
func NewDocument(p learning.WorkflowPattern) PatternDocument {
	tools := p.ToolNames()
	words := make([]string, 0, 2*len(tools))
	words = append(words, tools...)
	for _, t := range tools {
		if strings.Contains(t, "_") {
			words = append(words, strings.ReplaceAll(t, "_", " "))
		}
	}

	return PatternDocument{
		Name:        p.Name,
		Description: p.Description,
		Tools:       strings.Join(words, " "),
		Tags:        strings.Join(p.ContextTags, " "),
		User:        p.UserID,
		Type:        string(p.Type),
	}
}

// IndexPatterns adds or replaces patterns in the index.
func (i *Indexer) IndexPatterns(patterns ...learning.WorkflowPattern) error {
	if len(patterns) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.bleveIndex.NewBatch()
	for _, p := range patterns {
		if err := batch.Index(p.ID, NewDocument(p)); err != nil {
			return fmt.Errorf("failed to index pattern %s: %w", p.ID, err)
		}
	}

	if err := i.bleveIndex.Batch(batch); err != nil {
		return fmt.Errorf("failed to batch index patterns: %w", err)
	}

	return nil
}

// Remove deletes a pattern from the index.
func (i *Indexer) Remove(patternID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.bleveIndex.Delete(patternID); err != nil {
		return fmt.Errorf("failed to delete pattern %s: %w", patternID, err)
	}
	return nil
}

// Count returns the total number of indexed patterns.
func (i *Indexer) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}

	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}

	return nil
}

// buildMatchQuery creates a match query for BM25 search.
func (i *Indexer) buildMatchQuery(searchText string) query.Query {
	return bleve.NewMatchQuery(searchText)
}
