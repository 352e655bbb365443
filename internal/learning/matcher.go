package learning

import "github.com/khanglvm/flowlearn/internal/trace"

// match is a stored pattern that a trace is similar enough to.
type match struct {
	pattern    WorkflowPattern
	similarity float64
}

// bestMatch returns the stored pattern that tools should be attributed to.
// A candidate must have exactly len(tools) steps and a sequence similarity of
// at least threshold. Among candidates the highest similarity wins, then the
// most recently updated, then the highest confidence, then the oldest.
func bestMatch(patterns []WorkflowPattern, tools []string, threshold float64) (match, bool) {
	var (
		best  match
		found bool
	)
	for _, p := range patterns {
		if len(p.Steps) != len(tools) {
			continue
		}
		sim := trace.SequenceSimilarity(p.ToolNames(), tools)
		if sim < threshold {
			continue
		}
		cand := match{pattern: p, similarity: sim}
		if !found || preferMatch(cand, best) {
			best, found = cand, true
		}
	}
	return best, found
}

// preferMatch reports whether a should be chosen over b.
func preferMatch(a, b match) bool {
	if a.similarity != b.similarity {
		return a.similarity > b.similarity
	}
	if !a.pattern.UpdatedAt.Equal(b.pattern.UpdatedAt) {
		return a.pattern.UpdatedAt.After(b.pattern.UpdatedAt)
	}
	if a.pattern.Confidence != b.pattern.Confidence {
		return a.pattern.Confidence > b.pattern.Confidence
	}
	return a.pattern.CreatedAt.Before(b.pattern.CreatedAt)
}
