package simulate

import (
	"slices"
	"testing"

	"github.com/khanglvm/flowlearn/internal/analytics"
)

func TestNewEpsilonGreedy(t *testing.T) {
	bandit := NewEpsilonGreedy(-1, 7)
	if bandit.Epsilon != defaultEpsilon {
		t.Errorf("expected Epsilon=%f, got %f", defaultEpsilon, bandit.Epsilon)
	}

	bandit = NewEpsilonGreedy(3, 7)
	if bandit.Epsilon != 1 {
		t.Errorf("expected Epsilon capped at 1, got %f", bandit.Epsilon)
	}
}

func TestSelectTool_SingleTool(t *testing.T) {
	bandit := NewEpsilonGreedy(1, 1)

	result, explored := bandit.SelectTool([]string{"tool_a"}, nil)
	if result != "tool_a" || explored {
		t.Errorf("expected 'tool_a' without exploration, got '%s' (explored=%v)", result, explored)
	}
}

func TestSelectTool_EmptyList(t *testing.T) {
	bandit := NewEpsilonGreedy(0, 1)

	result, _ := bandit.SelectTool(nil, nil)
	if result != "" {
		t.Errorf("expected empty string, got '%s'", result)
	}
}

func TestSelectTool_Exploitation(t *testing.T) {
	bandit := NewEpsilonGreedy(0, 42)
	ranked := []analytics.Recommendation{
		{Tool: "tool_b", Score: 0.9},
		{Tool: "tool_a", Score: 0.4},
	}

	result, explored := bandit.SelectTool([]string{"tool_a", "tool_b"}, ranked)
	if result != "tool_b" {
		t.Errorf("expected 'tool_b' (higher score), got '%s'", result)
	}
	if explored {
		t.Error("expected exploitation")
	}
}

func TestSelectTool_TriesUnrankedFirst(t *testing.T) {
	bandit := NewEpsilonGreedy(0, 42)
	ranked := []analytics.Recommendation{{Tool: "tool_a", Score: 0.9}}

	result, explored := bandit.SelectTool([]string{"tool_a", "tool_b", "tool_c"}, ranked)
	if result != "tool_b" {
		t.Errorf("expected first unranked 'tool_b', got '%s'", result)
	}
	if !explored {
		t.Error("expected an untried tool to count as exploration")
	}
}

func TestSelectTool_IgnoresRankingsOutsideCandidates(t *testing.T) {
	bandit := NewEpsilonGreedy(0, 42)
	ranked := []analytics.Recommendation{
		{Tool: "other", Score: 1},
		{Tool: "tool_b", Score: 0.8},
		{Tool: "tool_a", Score: 0.5},
	}

	result, _ := bandit.SelectTool([]string{"tool_a", "tool_b"}, ranked)
	if result != "tool_b" {
		t.Errorf("expected 'tool_b', got '%s'", result)
	}
}

func TestSelectTool_Exploration(t *testing.T) {
	bandit := NewEpsilonGreedy(1, 99)
	tools := []string{"tool_a", "tool_b", "tool_c"}
	ranked := []analytics.Recommendation{{Tool: "tool_a", Score: 1}}

	selections := make(map[string]int)
	for range 100 {
		result, explored := bandit.SelectTool(tools, ranked)
		if !explored {
			t.Fatal("expected every selection to explore with epsilon=1")
		}
		selections[result]++
	}

	for _, tool := range tools {
		if selections[tool] == 0 {
			t.Errorf("tool '%s' was never selected (exploration failed)", tool)
		}
	}
}

func TestSelectTool_SameSeedSameChoices(t *testing.T) {
	tools := []string{"tool_a", "tool_b", "tool_c", "tool_d"}
	a := NewEpsilonGreedy(0.5, 5)
	b := NewEpsilonGreedy(0.5, 5)

	for i := range 50 {
		ra, _ := a.SelectTool(tools, nil)
		rb, _ := b.SelectTool(tools, nil)
		if ra != rb {
			t.Fatalf("selection %d differs: %s vs %s", i, ra, rb)
		}
	}
}

func TestSelectRankedTools_SingleTool(t *testing.T) {
	bandit := NewEpsilonGreedy(0, 1)

	result := bandit.SelectRankedTools([]string{"tool_a"}, nil)
	if len(result) != 1 || result[0] != "tool_a" {
		t.Fatalf("expected [tool_a], got %v", result)
	}
}

func TestSelectRankedTools_Exploitation(t *testing.T) {
	bandit := NewEpsilonGreedy(0, 1)
	ranked := []analytics.Recommendation{
		{Tool: "tool_c", Score: 0.9},
		{Tool: "tool_a", Score: 0.3},
	}

	result := bandit.SelectRankedTools([]string{"tool_a", "tool_b", "tool_c"}, ranked)
	want := []string{"tool_c", "tool_a", "tool_b"}
	if !slices.Equal(result, want) {
		t.Errorf("expected %v, got %v", want, result)
	}
}

func TestSelectRankedTools_Exploration(t *testing.T) {
	bandit := NewEpsilonGreedy(1, 3)
	tools := []string{"tool_a", "tool_b", "tool_c"}

	result := bandit.SelectRankedTools(tools, nil)
	if len(result) != 3 {
		t.Fatalf("expected 3 results, got %d", len(result))
	}

	sorted := slices.Clone(result)
	slices.Sort(sorted)
	if !slices.Equal(sorted, tools) {
		t.Errorf("expected a permutation of %v, got %v", tools, result)
	}
}
