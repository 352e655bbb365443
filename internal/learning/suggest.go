package learning

import (
	"math"
	"sort"

	"github.com/khanglvm/flowlearn/internal/trace"
)

const (
	// ownerWeight is added when the pattern belongs to the requesting user.
	ownerWeight = 0.3

	// tagWeight scales the share of pattern tags present in the request.
	tagWeight = 0.3

	// confidenceWeight scales the pattern's confidence.
	confidenceWeight = 0.4

	// minSuggestionScore is the score a candidate must exceed.
	minSuggestionScore = 0.5
)

// Candidate is a pattern with its match score for one request.
type Candidate struct {
	Pattern WorkflowPattern
	Score   float64
}

// MatchScore rates how well p fits a request from userID with the given
// context tags. Formula: (0.3*owner + 0.3*tag overlap + 0.4*confidence) *
// success rate, capped at 1.
func MatchScore(p WorkflowPattern, userID string, tags []string) float64 {
	score := 0.0
	if p.UserID == userID {
		score += ownerWeight
	}
	if len(tags) > 0 {
		common := trace.CommonTags(p.ContextTags, tags)
		score += tagWeight * float64(common) / float64(max(len(p.ContextTags), 1))
	}
	score += confidenceWeight * p.Confidence
	score *= p.SuccessRate
	return math.Min(1.0, score)
}

// RankCandidates scores every pattern with confidence of at least
// minConfidence and returns those scoring above 0.5, best first. Equal scores
// are ordered by confidence and then by id.
func RankCandidates(patterns []WorkflowPattern, userID string, tags []string, minConfidence float64) []Candidate {
	var out []Candidate
	for _, p := range patterns {
		if p.Confidence < minConfidence {
			continue
		}
		score := MatchScore(p, userID, tags)
		if score > minSuggestionScore {
			out = append(out, Candidate{Pattern: p, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Pattern.Confidence != b.Pattern.Confidence {
			return a.Pattern.Confidence > b.Pattern.Confidence
		}
		return a.Pattern.ID < b.Pattern.ID
	})
	return out
}
