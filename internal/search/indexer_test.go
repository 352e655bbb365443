package search

import (
	"testing"

	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/trace"
)

func pattern(id, user string, tags []string, tools ...string) learning.WorkflowPattern {
	steps := make([]trace.Step, len(tools))
	for i, tool := range tools {
		steps[i] = trace.Step{Position: i + 1, ToolName: tool, Success: true}
	}
	return learning.WorkflowPattern{
		ID:          id,
		Type:        learning.PatternWorkflow,
		Name:        id,
		Description: "Auto-learned pattern",
		Steps:       steps,
		UserID:      user,
		ContextTags: tags,
	}
}

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	indexer, err := NewIndexer()
	if err != nil {
		t.Fatalf("failed to create indexer: %v", err)
	}
	t.Cleanup(func() { indexer.Close() })

	err = indexer.IndexPatterns(
		pattern("Pattern_1", "alice", []string{"mode:flow"}, "search_database", "send_slack"),
		pattern("Pattern_2", "bob", []string{"mode:basic", "time:morning"}, "send_email"),
		pattern("Pattern_3", "bob", nil, "search_database", "send_email"),
	)
	if err != nil {
		t.Fatalf("failed to index patterns: %v", err)
	}
	return indexer
}

func ids(results []SearchResult) map[string]bool {
	out := make(map[string]bool, len(results))
	for _, r := range results {
		out[r.PatternID] = true
	}
	return out
}

func TestIndexPatterns(t *testing.T) {
	indexer := newTestIndexer(t)

	count, err := indexer.Count()
	if err != nil {
		t.Fatalf("failed to get count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 indexed patterns, got %d", count)
	}

	// Re-indexing replaces the document.
	if err := indexer.IndexPatterns(pattern("Pattern_1", "alice", nil, "send_slack")); err != nil {
		t.Fatalf("failed to re-index: %v", err)
	}
	count, _ = indexer.Count()
	if count != 3 {
		t.Errorf("expected 3 indexed patterns after update, got %d", count)
	}
}

func TestSearchBM25(t *testing.T) {
	indexer := newTestIndexer(t)

	results, err := indexer.SearchBM25("send_email", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	got := ids(results)
	if len(got) != 2 || !got["Pattern_2"] || !got["Pattern_3"] {
		t.Errorf("expected Pattern_2 and Pattern_3, got %v", results)
	}
	for _, r := range results {
		if r.Score <= 0 {
			t.Errorf("expected positive score for %s, got %f", r.PatternID, r.Score)
		}
	}
}

func TestSearchBM25_ToolNameParts(t *testing.T) {
	indexer := newTestIndexer(t)

	results, err := indexer.SearchBM25("slack", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].PatternID != "Pattern_1" {
		t.Errorf("expected only Pattern_1, got %v", results)
	}
}

func TestSearchBM25_NoMatch(t *testing.T) {
	indexer := newTestIndexer(t)

	results, err := indexer.SearchBM25("kubernetes", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %v", results)
	}
}

func TestSearchByUser(t *testing.T) {
	indexer := newTestIndexer(t)

	results, err := indexer.SearchByUser("search_database", "bob", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].PatternID != "Pattern_3" {
		t.Errorf("expected only Pattern_3, got %v", results)
	}

	results, err = indexer.SearchByUser("search_database", "", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results without a user filter, got %d", len(results))
	}
}

func TestSearchLimit(t *testing.T) {
	indexer := newTestIndexer(t)

	results, err := indexer.SearchBM25("search_database send_email", 1)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestRemove(t *testing.T) {
	indexer := newTestIndexer(t)

	if err := indexer.Remove("Pattern_2"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	results, _ := indexer.SearchBM25("send_email", 10)
	if got := ids(results); got["Pattern_2"] {
		t.Error("removed pattern still found")
	}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument(pattern("Pattern_1", "alice", []string{"mode:flow", "role:admin"}, "search_database", "notify"))

	if doc.Tools != "search_database notify search database" {
		t.Errorf("unexpected tools text %q", doc.Tools)
	}
	if doc.Tags != "mode:flow role:admin" {
		t.Errorf("unexpected tags %q", doc.Tags)
	}
	if doc.User != "alice" || doc.Type != string(learning.PatternWorkflow) {
		t.Errorf("unexpected document %+v", doc)
	}
}
