package verification

import (
	"fmt"
	"math"
	"slices"
	"time"
)

const (
	// executionSuccessRate is the step success rate from which an execution
	// counts as successful.
	executionSuccessRate = 0.8

	// correctSelectionAccuracy is the accuracy above which a tool selection
	// counts as correct.
	correctSelectionAccuracy = 0.8

	// optimalAccuracy and optimalRelevance define an optimal selection.
	optimalAccuracy  = 0.8
	optimalRelevance = 0.7

	// comparisonWindow is the number of executions averaged for the
	// initial and current values.
	comparisonWindow = 3

	businessHourStart = 9
	businessHourEnd   = 18
)

// ToolAccuracy is the Jaccard index of the actual and expected tool sets.
// Two empty sets are a perfect match.
func ToolAccuracy(actual, expected []string) float64 {
	a := toSet(actual)
	e := toSet(expected)
	if len(a) == 0 && len(e) == 0 {
		return 1.0
	}
	inter := 0
	for t := range a {
		if _, ok := e[t]; ok {
			inter++
		}
	}
	union := len(a) + len(e) - inter
	return float64(inter) / float64(union)
}

// ContextRelevance scores how well tools fit the context at time now.
// Slack during business hours (9-18) or email outside them adds 0.2;
// an urgent context served by emergency_mail or send_slack adds 0.3.
func ContextRelevance(tools []string, context map[string]any, now time.Time) float64 {
	score := 0.5
	if len(context) == 0 || len(tools) == 0 {
		return score
	}

	hour := now.Hour()
	if hour >= businessHourStart && hour <= businessHourEnd {
		if slices.Contains(tools, "send_slack") {
			score += 0.2
		}
	} else if slices.Contains(tools, "send_email") {
		score += 0.2
	}

	if urgency, _ := context["urgency"].(string); urgency == "high" {
		if slices.Contains(tools, "emergency_mail") || slices.Contains(tools, "send_slack") {
			score += 0.3
		}
	}
	return math.Min(1.0, score)
}

// ExpectedTools reads the "expected_tools" entry of a context, accepting
// both []string and a decoded JSON array.
func ExpectedTools(context map[string]any) []string {
	switch v := context["expected_tools"].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// flowAccumulator folds flow-mode executions into PatternMetrics in
// constant time per execution. Executions arrive in execution-number order.
type flowAccumulator struct {
	m       PatternMetrics
	learned map[string]struct{}

	baselineSum, optimizedSum float64
	baselineN, optimizedN     int
	confidenceSum             float64
	suggestedAfterBaseline    int
}

func newFlowAccumulator(userID string) *flowAccumulator {
	return &flowAccumulator{
		m: PatternMetrics{
			ScenarioID:      string(ScenarioFlowPatternLearning),
			UserID:          userID,
			ConfidenceTrend: []float64{},
		},
		learned: make(map[string]struct{}),
	}
}

func (a *flowAccumulator) add(e ExecutionMetrics) {
	a.m.TotalExecutions++
	a.m.LastUpdated = e.Timestamp
	if e.ExecutionNumber <= lastBaselineExecution {
		a.baselineSum += e.TotalExecutionTime
		a.baselineN++
	} else {
		a.optimizedSum += e.TotalExecutionTime
		a.optimizedN++
	}

	if !e.PatternSuggested {
		return
	}
	a.m.PatternSuggestionsMade++
	if e.PatternAccepted {
		a.m.CorrectPatternSuggestions++
	}
	a.m.ConfidenceTrend = append(a.m.ConfidenceTrend, e.PatternConfidence)
	a.confidenceSum += e.PatternConfidence

	if e.ExecutionNumber > lastBaselineExecution {
		a.suggestedAfterBaseline++
		if e.PatternID != "" {
			a.learned[e.PatternID] = struct{}{}
		}
	}

	if e.MatchedPatternID != "" {
		a.m.AdaptationTests++
		if e.MatchedPatternID == e.PatternID && e.ExecutionSuccess {
			a.m.SuccessfulAdaptations++
		}
	}
}

// metrics derives the ratios. The returned ConfidenceTrend aliases the
// accumulator's slice.
func (a *flowAccumulator) metrics() PatternMetrics {
	m := a.m
	m.PatternsLearned = len(a.learned)
	if m.PatternSuggestionsMade > 0 {
		m.PatternSuggestionAccuracy = float64(m.CorrectPatternSuggestions) / float64(m.PatternSuggestionsMade)
	}
	if n := len(m.ConfidenceTrend); n > 0 {
		m.AvgPatternConfidence = a.confidenceSum / float64(n)
	}
	if a.optimizedN > 0 {
		m.PatternLearningSuccessRate = float64(a.suggestedAfterBaseline) / float64(a.optimizedN)
	}
	if m.AdaptationTests > 0 {
		m.PatternAdaptationRate = float64(m.SuccessfulAdaptations) / float64(m.AdaptationTests)
	}

	if a.baselineN > 0 {
		m.BaselineAvgTime = a.baselineSum / float64(a.baselineN)
	}
	if a.optimizedN > 0 {
		m.OptimizedAvgTime = a.optimizedSum / float64(a.optimizedN)
		if m.BaselineAvgTime > 0 {
			m.TimeImprovementPercentage = (m.BaselineAvgTime - m.OptimizedAvgTime) / m.BaselineAvgTime
		}
	}
	return m
}

// toolAccumulator folds basic-mode executions into ToolSelectionMetrics in
// constant time per execution. Only the first and the latest
// comparisonWindow accuracies are kept.
type toolAccumulator struct {
	m ToolSelectionMetrics

	initial, recent []float64
	relevanceSum    float64
	optimal         int
}

func newToolAccumulator(userID string) *toolAccumulator {
	return &toolAccumulator{
		m: ToolSelectionMetrics{
			ScenarioID:          string(ScenarioBasicToolSelection),
			UserID:              userID,
			SatisfactionHistory: []float64{},
		},
		initial: make([]float64, 0, comparisonWindow),
		recent:  make([]float64, 0, comparisonWindow),
	}
}

func (a *toolAccumulator) add(e ExecutionMetrics) {
	a.m.TotalRequests++
	a.m.LastUpdated = e.Timestamp

	acc := e.ToolSelectionAccuracy
	if len(a.initial) < comparisonWindow {
		a.initial = append(a.initial, acc)
	}
	if len(a.recent) == comparisonWindow {
		copy(a.recent, a.recent[1:])
		a.recent = a.recent[:comparisonWindow-1]
	}
	a.recent = append(a.recent, acc)

	a.relevanceSum += e.ContextRelevanceScore
	if acc > correctSelectionAccuracy {
		a.m.CorrectToolSelections++
	}
	if acc >= optimalAccuracy && e.ContextRelevanceScore >= optimalRelevance {
		a.optimal++
	}
	if r := e.UserSatisfactionRating; r != nil && *r > 0 {
		a.m.SatisfactionHistory = append(a.m.SatisfactionHistory, float64(*r))
	}
}

// metrics derives the ratios. The returned SatisfactionHistory aliases the
// accumulator's slice.
func (a *toolAccumulator) metrics() ToolSelectionMetrics {
	m := a.m
	if m.TotalRequests == 0 {
		return m
	}

	n := float64(m.TotalRequests)
	m.IntentRecognitionAccuracy = float64(m.CorrectToolSelections) / n
	m.OptimalToolSelectionRate = float64(a.optimal) / n
	m.ContextOptimizationScore = a.relevanceSum / n

	m.InitialAccuracy = mean(a.initial)
	if m.TotalRequests > comparisonWindow {
		m.CurrentAccuracy = mean(a.recent)
		if m.InitialAccuracy > 0 {
			m.AccuracyImprovement = (m.CurrentAccuracy - m.InitialAccuracy) / m.InitialAccuracy
		}
	}

	hist := m.SatisfactionHistory
	if len(hist) > 0 {
		m.InitialSatisfaction = mean(hist[:min(comparisonWindow, len(hist))])
	}
	if len(hist) > comparisonWindow {
		m.CurrentSatisfaction = mean(hist[len(hist)-comparisonWindow:])
		if m.InitialSatisfaction > 0 {
			m.SatisfactionImprovement = m.CurrentSatisfaction - m.InitialSatisfaction
		}
	}
	return m
}

// summarizePhase aggregates the executions of one phase.
func summarizePhase(scenario ScenarioType, execs []ExecutionMetrics) PhaseSummary {
	s := PhaseSummary{ExecutionCount: len(execs)}
	if len(execs) == 0 {
		return s
	}

	var times, rates, confidences, accuracies, relevance, ratings []float64
	for _, e := range execs {
		times = append(times, e.TotalExecutionTime)
		rates = append(rates, e.SuccessRate)
		if e.PatternSuggested {
			s.PatternSuggestions++
		}
		if e.PatternAccepted {
			s.PatternAcceptances++
		}
		if e.PatternConfidence > 0 {
			confidences = append(confidences, e.PatternConfidence)
		}
		accuracies = append(accuracies, e.ToolSelectionAccuracy)
		relevance = append(relevance, e.ContextRelevanceScore)
		if r := e.UserSatisfactionRating; r != nil && *r > 0 {
			ratings = append(ratings, float64(*r))
		}
	}
	s.AvgExecutionTime = mean(times)
	s.AvgSuccessRate = mean(rates)

	if scenario == ScenarioFlowPatternLearning {
		s.AvgConfidence = mean(confidences)
	} else {
		s.PatternSuggestions, s.PatternAcceptances = 0, 0
		s.AvgToolAccuracy = mean(accuracies)
		s.AvgContextRelevance = mean(relevance)
		s.AvgSatisfaction = mean(ratings)
	}
	return s
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
