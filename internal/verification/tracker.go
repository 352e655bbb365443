package verification

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type streamKey struct {
	user     string
	scenario ScenarioType
}

// Tracker records scenario executions and maintains per-user accumulators.
// It is safe for concurrent use; execution numbers are assigned under its
// lock so they stay strictly increasing per (user, scenario).
type Tracker struct {
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	executions  []ExecutionMetrics
	streams     map[streamKey][]int
	flow        map[string]*flowAccumulator
	basic       map[string]*toolAccumulator
	transitions []PhaseTransition
}

// NewTracker returns an empty tracker. A nil logger discards output.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger:   logger,
		now:      time.Now,
		streams:  make(map[streamKey][]int),
		flow:     make(map[string]*flowAccumulator),
		basic:    make(map[string]*toolAccumulator),
	}
}

// TrackExecution numbers in, classifies its phase, updates the scenario
// accumulators and returns the recorded metrics.
func (t *Tracker) TrackExecution(in Input) (ExecutionMetrics, *PhaseTransition, error) {
	if !in.Scenario.Valid() {
		return ExecutionMetrics{}, nil, fmt.Errorf("%w: %q", ErrUnknownScenario, in.Scenario)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := streamKey{in.UserID, in.Scenario}
	n := len(t.streams[key]) + 1

	m := ExecutionMetrics{
		ID:                 uuid.NewString(),
		SessionID:          in.SessionID,
		UserID:             in.UserID,
		Scenario:           in.Scenario,
		ExecutionNumber:    n,
		Phase:              PhaseFor(n),
		TotalExecutionTime: in.TotalTime,
		StepExecutionTimes: slices.Clone(in.StepTimes),
		MatchedPatternID:   in.MatchedPatternID,
		SuccessRate:        in.SuccessRate,
		ExecutionSuccess:   in.SuccessRate >= executionSuccessRate,
		Context:            maps.Clone(in.Context),
		Timestamp:          now,
	}
	if in.Suggestion != nil {
		m.PatternSuggested = true
		m.PatternID = in.Suggestion.PatternID
		m.PatternConfidence = in.Suggestion.Confidence
		m.PatternAccepted = in.Suggestion.Accepted
	}
	if in.Scenario == ScenarioBasicToolSelection {
		m.ActualTools = slices.Clone(in.Tools)
		m.ExpectedTools = in.ExpectedTools
		if m.ExpectedTools == nil {
			m.ExpectedTools = ExpectedTools(in.Context)
		}
		m.ToolSelectionAccuracy = ToolAccuracy(m.ActualTools, m.ExpectedTools)
		m.ContextRelevanceScore = ContextRelevance(m.ActualTools, in.Context, now)
	}
	if in.Rating != nil {
		r := *in.Rating
		m.UserSatisfactionRating = &r
	}

	tr := t.apply(m)
	t.logger.Info("tracked verification execution",
		zap.String("user_id", m.UserID),
		zap.String("scenario", string(m.Scenario)),
		zap.Int("execution_number", n),
		zap.String("phase", string(m.Phase)))

	return m.Clone(), tr, nil
}

// apply appends m, records a transition and folds m into the accumulators of
// its user. Caller holds t.mu.
func (t *Tracker) apply(m ExecutionMetrics) *PhaseTransition {
	key := streamKey{m.UserID, m.Scenario}
	t.streams[key] = append(t.streams[key], len(t.executions))
	t.executions = append(t.executions, m.Clone())

	var tr *PhaseTransition
	if n := m.ExecutionNumber; n > 1 {
		if prev := PhaseFor(n - 1); prev != m.Phase {
			tr = &PhaseTransition{
				UserID:         m.UserID,
				Scenario:       m.Scenario,
				From:           prev,
				To:             m.Phase,
				ExecutionCount: n,
				Timestamp:      m.Timestamp,
			}
			t.transitions = append(t.transitions, *tr)
			t.logger.Info("phase transition",
				zap.String("user_id", m.UserID),
				zap.String("scenario", string(m.Scenario)),
				zap.String("from", string(prev)),
				zap.String("to", string(m.Phase)))
		}
	}

	switch m.Scenario {
	case ScenarioFlowPatternLearning:
		acc, ok := t.flow[m.UserID]
		if !ok {
			acc = newFlowAccumulator(m.UserID)
			t.flow[m.UserID] = acc
		}
		acc.add(m)
	case ScenarioBasicToolSelection:
		acc, ok := t.basic[m.UserID]
		if !ok {
			acc = newToolAccumulator(m.UserID)
			t.basic[m.UserID] = acc
		}
		acc.add(m)
	}
	return tr
}

// stream returns the executions of key ordered by execution number.
// Caller holds t.mu.
func (t *Tracker) stream(key streamKey) []ExecutionMetrics {
	idx := t.streams[key]
	out := make([]ExecutionMetrics, len(idx))
	for i, j := range idx {
		out[i] = t.executions[j]
	}
	return out
}

// Replay rebuilds the tracker from a persisted metrics stream, replacing any
// state. Each (user, scenario) stream is applied in execution-number order.
func (t *Tracker) Replay(metrics []ExecutionMetrics) {
	sorted := slices.Clone(metrics)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ExecutionNumber != b.ExecutionNumber {
			return a.ExecutionNumber < b.ExecutionNumber
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	t.executions = nil
	t.transitions = nil
	t.streams = make(map[streamKey][]int)
	t.flow = make(map[string]*flowAccumulator)
	t.basic = make(map[string]*toolAccumulator)

	for _, m := range sorted {
		if !m.Scenario.Valid() {
			continue
		}
		t.apply(m)
	}
	t.logger.Info("replayed verification metrics", zap.Int("executions", len(t.executions)))
}

// PatternMetrics returns the flow-mode accumulators of userID. The zero
// value (with ids filled) is returned for users without flow executions.
func (t *Tracker) PatternMetrics(userID string) PatternMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.patternMetrics(userID)
}

// patternMetrics copies the flow accumulators of userID. Caller holds t.mu.
func (t *Tracker) patternMetrics(userID string) PatternMetrics {
	acc, ok := t.flow[userID]
	if !ok {
		acc = newFlowAccumulator(userID)
	}
	pm := acc.metrics()
	pm.ConfidenceTrend = slices.Clone(pm.ConfidenceTrend)
	return pm
}

// ToolSelectionMetrics returns the basic-mode accumulators of userID.
func (t *Tracker) ToolSelectionMetrics(userID string) ToolSelectionMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.toolMetrics(userID)
}

// toolMetrics copies the basic accumulators of userID. Caller holds t.mu.
func (t *Tracker) toolMetrics(userID string) ToolSelectionMetrics {
	acc, ok := t.basic[userID]
	if !ok {
		acc = newToolAccumulator(userID)
	}
	tm := acc.metrics()
	tm.SatisfactionHistory = slices.Clone(tm.SatisfactionHistory)
	return tm
}

// Executions returns the executions of userID across scenarios, or of all
// users when userID is empty, in tracking order.
func (t *Tracker) Executions(userID string) []ExecutionMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.userExecutions(userID)
}

// userExecutions copies the executions of userID. Caller holds t.mu.
func (t *Tracker) userExecutions(userID string) []ExecutionMetrics {
	var out []ExecutionMetrics
	for _, e := range t.executions {
		if userID == "" || e.UserID == userID {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Transitions returns the recorded phase transitions of userID.
func (t *Tracker) Transitions(userID string) []PhaseTransition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []PhaseTransition
	for _, tr := range t.transitions {
		if tr.UserID == userID {
			out = append(out, tr)
		}
	}
	return out
}

// PhaseAnalysis summarises each phase of a user's scenario.
func (t *Tracker) PhaseAnalysis(userID string, scenario ScenarioType) (PhaseAnalysis, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stream := t.stream(streamKey{userID, scenario})
	if len(stream) == 0 {
		return PhaseAnalysis{}, fmt.Errorf("%w for user %s in %s", ErrNoData, userID, scenario)
	}

	groups := make(map[Phase][]ExecutionMetrics)
	for _, e := range stream {
		groups[e.Phase] = append(groups[e.Phase], e)
	}
	a := PhaseAnalysis{
		UserID:      userID,
		Scenario:    scenario,
		Phases:      make(map[Phase]PhaseSummary, len(groups)),
		Transitions: []PhaseTransition{},
	}
	for phase, execs := range groups {
		a.Phases[phase] = summarizePhase(scenario, execs)
	}
	for _, tr := range t.transitions {
		if tr.UserID == userID && tr.Scenario == scenario {
			a.Transitions = append(a.Transitions, tr)
		}
	}
	return a, nil
}

// Dashboard returns real-time figures across all users. Users count as
// active when they executed within the last hour.
func (t *Tracker) Dashboard() Dashboard {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	cutoff := now.Add(-time.Hour)
	d := Dashboard{
		Timestamp:         now,
		PhaseDistribution: make(map[Phase]int),
		TotalExecutions:   len(t.executions),
	}

	active := make(map[string]struct{})
	latest := make(map[string]ExecutionMetrics)
	rates := make([]float64, 0, len(t.executions))
	for _, e := range t.executions {
		rates = append(rates, e.SuccessRate)
		if !e.Timestamp.Before(cutoff) {
			active[e.UserID] = struct{}{}
			d.RecentExecutions++
		}
		if cur, ok := latest[e.UserID]; !ok || !e.Timestamp.Before(cur.Timestamp) {
			latest[e.UserID] = e
		}
	}
	for _, e := range latest {
		d.PhaseDistribution[e.Phase]++
	}
	d.ActiveUsers = len(active)
	d.TotalUsers = len(latest)
	d.AvgSuccessRate = mean(rates)

	var confidences []float64
	for _, acc := range t.flow {
		pm := acc.metrics()
		d.TotalPatternsLearned += pm.PatternsLearned
		if pm.AvgPatternConfidence > 0 {
			confidences = append(confidences, pm.AvgPatternConfidence)
		}
	}
	d.AvgPatternConfidence = mean(confidences)
	return d
}
