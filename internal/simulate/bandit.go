package simulate

import (
	"math/rand"
	"slices"

	"github.com/khanglvm/flowlearn/internal/analytics"
)

// defaultEpsilon is the exploration rate (0.1 = 10% explore, 90% exploit).
const defaultEpsilon = 0.1

// EpsilonGreedy implements an ε-greedy multi-armed bandit over tool
// recommendations. It is not safe for concurrent use; give each run its own.
type EpsilonGreedy struct {
	// Epsilon is the exploration rate.
	Epsilon float64

	rng *rand.Rand
}

// NewEpsilonGreedy creates a bandit drawing from a source seeded with seed.
// A negative epsilon uses the default rate.
func NewEpsilonGreedy(epsilon float64, seed int64) *EpsilonGreedy {
	if epsilon < 0 {
		epsilon = defaultEpsilon
	}
	return &EpsilonGreedy{
		Epsilon: min(epsilon, 1),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// SelectTool picks one of candidates. With probability ε it explores with a
// uniform choice. Otherwise candidates without a ranking are tried first, in
// input order, and then the best ranked candidate is exploited. explored
// reports whether the choice was not the exploit of a ranking.
func (e *EpsilonGreedy) SelectTool(candidates []string, ranked []analytics.Recommendation) (tool string, explored bool) {
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0], false
	}

	if e.rng.Float64() < e.Epsilon {
		return candidates[e.rng.Intn(len(candidates))], true
	}

	for _, c := range candidates {
		if !slices.ContainsFunc(ranked, func(r analytics.Recommendation) bool { return r.Tool == c }) {
			return c, true
		}
	}
	for _, r := range ranked {
		if slices.Contains(candidates, r.Tool) {
			return r.Tool, false
		}
	}
	return candidates[0], false
}

// SelectRankedTools orders candidates: ranked candidates first by score,
// the rest in input order. When exploring the whole list is shuffled.
func (e *EpsilonGreedy) SelectRankedTools(candidates []string, ranked []analytics.Recommendation) []string {
	if len(candidates) <= 1 {
		return slices.Clone(candidates)
	}

	if e.rng.Float64() < e.Epsilon {
		shuffled := slices.Clone(candidates)
		e.rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		return shuffled
	}

	out := make([]string, 0, len(candidates))
	for _, r := range ranked {
		if slices.Contains(candidates, r.Tool) && !slices.Contains(out, r.Tool) {
			out = append(out, r.Tool)
		}
	}
	for _, c := range candidates {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Float64 draws from the bandit's source, so one seed drives a whole run.
func (e *EpsilonGreedy) Float64() float64 {
	return e.rng.Float64()
}
