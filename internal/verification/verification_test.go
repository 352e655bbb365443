package verification

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(hour int) *Tracker {
	tr := NewTracker(nil)
	base := time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC)
	tick := 0
	tr.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return tr
}

func intp(v int) *int { return &v }

func TestPhaseFor(t *testing.T) {
	tests := []struct {
		n    int
		want Phase
	}{
		{1, PhaseBaseline}, {3, PhaseBaseline},
		{4, PhaseLearning}, {10, PhaseLearning},
		{11, PhaseValidation}, {50, PhaseValidation},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PhaseFor(tt.n), "n=%d", tt.n)
	}

	prev := PhaseFor(1).Ordinal()
	for n := 2; n <= 30; n++ {
		cur := PhaseFor(n).Ordinal()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario("flow")
	require.NoError(t, err)
	assert.Equal(t, ScenarioFlowPatternLearning, s)

	s, err = ParseScenario("1.2_basic_mode_tool_selection")
	require.NoError(t, err)
	assert.Equal(t, ScenarioBasicToolSelection, s)

	_, err = ParseScenario("2.0")
	assert.Error(t, err)
}

func TestToolAccuracy(t *testing.T) {
	assert.Equal(t, 1.0, ToolAccuracy([]string{"A", "B"}, []string{"A", "B"}))
	assert.Equal(t, 0.0, ToolAccuracy([]string{"A"}, []string{"B"}))
	assert.Equal(t, 1.0, ToolAccuracy(nil, []string{}))
	assert.Equal(t, 0.0, ToolAccuracy([]string{"A"}, nil))
	assert.InDelta(t, 2.0/3.0, ToolAccuracy([]string{"A", "B", "B"}, []string{"A", "B", "C"}), 1e-9)
}

func TestContextRelevance(t *testing.T) {
	work := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	night := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)
	urgent := map[string]any{"urgency": "high"}
	normal := map[string]any{"urgency": "normal"}

	assert.Equal(t, 0.5, ContextRelevance([]string{"send_slack"}, nil, work))
	assert.Equal(t, 0.5, ContextRelevance(nil, urgent, work))
	assert.InDelta(t, 0.7, ContextRelevance([]string{"send_slack"}, normal, work), 1e-9)
	assert.InDelta(t, 1.0, ContextRelevance([]string{"send_slack"}, urgent, work), 1e-9)
	assert.InDelta(t, 0.7, ContextRelevance([]string{"send_email"}, normal, night), 1e-9)
	assert.InDelta(t, 0.8, ContextRelevance([]string{"emergency_mail"}, urgent, night), 1e-9)
	assert.Equal(t, 0.5, ContextRelevance([]string{"send_email"}, normal, work))
}

func TestExpectedTools(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ExpectedTools(map[string]any{"expected_tools": []string{"a", "b"}}))
	assert.Equal(t, []string{"a"}, ExpectedTools(map[string]any{"expected_tools": []any{"a"}}))
	assert.Nil(t, ExpectedTools(nil))
}

func TestTrackExecution_PhasesAndTransitions(t *testing.T) {
	tr := newTestTracker(10)

	var transitions []*PhaseTransition
	for i := 1; i <= 12; i++ {
		m, pt, err := tr.TrackExecution(Input{
			SessionID:   "s",
			UserID:      "alice",
			Scenario:    ScenarioFlowPatternLearning,
			TotalTime:   10,
			SuccessRate: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, i, m.ExecutionNumber)
		assert.Equal(t, PhaseFor(i), m.Phase)
		if pt != nil {
			transitions = append(transitions, pt)
		}
	}

	require.Len(t, transitions, 2)
	assert.Equal(t, PhaseBaseline, transitions[0].From)
	assert.Equal(t, PhaseLearning, transitions[0].To)
	assert.Equal(t, 4, transitions[0].ExecutionCount)
	assert.Equal(t, 11, transitions[1].ExecutionCount)
	assert.Len(t, tr.Transitions("alice"), 2)

	// Numbering is independent per scenario and per user.
	m, _, err := tr.TrackExecution(Input{UserID: "alice", Scenario: ScenarioBasicToolSelection})
	require.NoError(t, err)
	assert.Equal(t, 1, m.ExecutionNumber)
	m, _, err = tr.TrackExecution(Input{UserID: "bob", Scenario: ScenarioFlowPatternLearning})
	require.NoError(t, err)
	assert.Equal(t, 1, m.ExecutionNumber)
}

func TestTrackExecution_UnknownScenario(t *testing.T) {
	tr := newTestTracker(10)
	_, _, err := tr.TrackExecution(Input{UserID: "alice", Scenario: "3.0"})
	assert.True(t, errors.Is(err, ErrUnknownScenario))
	assert.Empty(t, tr.Executions(""))
}

func flowRun(tr *Tracker, t *testing.T, total float64, sugg *SuggestionInfo, matched string) {
	t.Helper()
	_, _, err := tr.TrackExecution(Input{
		SessionID:        "s",
		UserID:           "alice",
		Scenario:         ScenarioFlowPatternLearning,
		Tools:            []string{"search_db", "generate_msg", "send_slack"},
		TotalTime:        total,
		SuccessRate:      1,
		Suggestion:       sugg,
		MatchedPatternID: matched,
	})
	require.NoError(t, err)
}

func TestPatternMetrics_FlowScenario(t *testing.T) {
	tr := newTestTracker(10)
	for range 3 {
		flowRun(tr, t, 10, nil, "p1")
	}
	flowRun(tr, t, 6, &SuggestionInfo{PatternID: "p1", Confidence: 0.9, Accepted: true}, "p1")
	flowRun(tr, t, 6, &SuggestionInfo{PatternID: "p1", Confidence: 0.95, Accepted: true}, "p1")
	flowRun(tr, t, 6, &SuggestionInfo{PatternID: "p1", Confidence: 1.0, Accepted: false}, "p2")

	pm := tr.PatternMetrics("alice")
	assert.Equal(t, 6, pm.TotalExecutions)
	assert.Equal(t, 3, pm.PatternSuggestionsMade)
	assert.Equal(t, 2, pm.CorrectPatternSuggestions)
	assert.InDelta(t, 2.0/3.0, pm.PatternSuggestionAccuracy, 1e-9)
	assert.Equal(t, []float64{0.9, 0.95, 1.0}, pm.ConfidenceTrend)
	assert.InDelta(t, 0.95, pm.AvgPatternConfidence, 1e-9)
	assert.Equal(t, 1, pm.PatternsLearned)
	assert.Equal(t, 1.0, pm.PatternLearningSuccessRate)
	assert.Equal(t, 10.0, pm.BaselineAvgTime)
	assert.Equal(t, 6.0, pm.OptimizedAvgTime)
	assert.InDelta(t, 0.4, pm.TimeImprovementPercentage, 1e-9)
	assert.Equal(t, 3, pm.AdaptationTests)
	assert.Equal(t, 2, pm.SuccessfulAdaptations)
	assert.InDelta(t, 2.0/3.0, pm.PatternAdaptationRate, 1e-9)
}

func basicRun(tr *Tracker, t *testing.T, actual, expected []string, urgency string, rating *int) {
	t.Helper()
	_, _, err := tr.TrackExecution(Input{
		SessionID:   "s",
		UserID:      "bob",
		Scenario:    ScenarioBasicToolSelection,
		Tools:       actual,
		TotalTime:   2,
		SuccessRate: 1,
		Context:     map[string]any{"mode": "basic", "urgency": urgency, "expected_tools": expected},
		Rating:      rating,
	})
	require.NoError(t, err)
}

func TestToolSelectionMetrics_BasicScenario(t *testing.T) {
	tr := newTestTracker(10)
	slack := []string{"search_db", "send_slack"}

	basicRun(tr, t, []string{"search_db"}, slack, "normal", intp(3))
	basicRun(tr, t, slack, slack, "normal", intp(3))
	basicRun(tr, t, slack, slack, "high", nil)
	basicRun(tr, t, slack, slack, "high", intp(4))
	basicRun(tr, t, slack, slack, "high", intp(5))

	tm := tr.ToolSelectionMetrics("bob")
	assert.Equal(t, 5, tm.TotalRequests)
	assert.Equal(t, 4, tm.CorrectToolSelections)
	assert.Equal(t, 0.8, tm.IntentRecognitionAccuracy)
	assert.InDelta(t, (0.5+1+1)/3.0, tm.InitialAccuracy, 1e-9)
	assert.Equal(t, 1.0, tm.CurrentAccuracy)
	assert.InDelta(t, 0.2, tm.AccuracyImprovement, 1e-9)
	assert.Equal(t, 0.8, tm.OptimalToolSelectionRate)
	assert.Equal(t, []float64{3, 3, 4, 5}, tm.SatisfactionHistory)
	assert.InDelta(t, 10.0/3.0, tm.InitialSatisfaction, 1e-9)
	assert.Equal(t, 4.0, tm.CurrentSatisfaction)
	assert.InDelta(t, 4.0-10.0/3.0, tm.SatisfactionImprovement, 1e-9)
	// search only 0.5, slack in office hours 0.7, urgent slack 1.0.
	assert.InDelta(t, (0.5+0.7+1+1+1)/5.0, tm.ContextOptimizationScore, 1e-9)
}

func TestToolSelectionMetrics_WindowSlides(t *testing.T) {
	tr := newTestTracker(10)
	slack := []string{"search_db", "send_slack"}

	for range 3 {
		basicRun(tr, t, []string{"search_db"}, slack, "normal", intp(2))
	}
	for range 7 {
		basicRun(tr, t, slack, slack, "normal", intp(5))
	}

	tm := tr.ToolSelectionMetrics("bob")
	assert.Equal(t, 10, tm.TotalRequests)
	assert.Equal(t, 0.5, tm.InitialAccuracy)
	assert.Equal(t, 1.0, tm.CurrentAccuracy)
	assert.Equal(t, 1.0, tm.AccuracyImprovement)
	assert.Equal(t, 2.0, tm.InitialSatisfaction)
	assert.Equal(t, 5.0, tm.CurrentSatisfaction)
	assert.Len(t, tm.SatisfactionHistory, 10)
	assert.Equal(t, 0.7, tm.IntentRecognitionAccuracy)
}

func TestGenerateReport_ConsistentUnderConcurrentWrites(t *testing.T) {
	tr := NewTracker(nil)
	const writes = 2000

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for range writes {
			_, _, err := tr.TrackExecution(Input{
				UserID:      "u",
				Scenario:    ScenarioFlowPatternLearning,
				TotalTime:   1,
				SuccessRate: 1,
				Suggestion:  &SuggestionInfo{PatternID: "p1", Confidence: 0.9, Accepted: true},
			})
			if err != nil {
				t.Errorf("track failed: %v", err)
				return
			}
		}
	}()

	reports := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		r := tr.GenerateReport("u")
		reports++
		if r.TotalExecutions != r.FlowModeResults.TotalExecutions {
			t.Fatalf("report mixes snapshots: %d executions, %d in flow results",
				r.TotalExecutions, r.FlowModeResults.TotalExecutions)
		}
		if got := len(r.FlowModeResults.ConfidenceTrend); got != r.FlowModeResults.PatternSuggestionsMade {
			t.Fatalf("confidence trend has %d entries for %d suggestions", got, r.FlowModeResults.PatternSuggestionsMade)
		}
	}
	wg.Wait()

	r := tr.GenerateReport("u")
	assert.Equal(t, writes, r.TotalExecutions)
	assert.Equal(t, writes, r.FlowModeResults.TotalExecutions)
	assert.Positive(t, reports)
}

func TestEvaluate_Thresholds(t *testing.T) {
	pm := PatternMetrics{
		PatternSuggestionAccuracy: 0.95,
		TimeImprovementPercentage: 0.25,
		PatternAdaptationRate:     0.80,
		AvgPatternConfidence:      0.80,
	}
	tm := ToolSelectionMetrics{
		InitialAccuracy:           0.70,
		CurrentAccuracy:           0.90,
		IntentRecognitionAccuracy: 0.88,
		OptimalToolSelectionRate:  0.85,
		SatisfactionImprovement:   0.01,
	}

	want := map[string]bool{
		CriterionPatternLearning:     true,
		CriterionTimeReduction:       true,
		CriterionPatternAdaptation:   true,
		CriterionIntentAccuracy:      true,
		CriterionToolSelection:       true,
		CriterionContextOptimization: true,
		CriterionUserSatisfaction:    true,
		CriterionLearningRetention:   true,
	}
	if diff := cmp.Diff(want, Evaluate(pm, tm)); diff != "" {
		t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
	}

	pm.PatternSuggestionAccuracy = 0.949
	tm.SatisfactionImprovement = 0
	tm.InitialAccuracy = 0.69
	want[CriterionPatternLearning] = false
	want[CriterionUserSatisfaction] = false
	want[CriterionIntentAccuracy] = false
	if diff := cmp.Diff(want, Evaluate(pm, tm)); diff != "" {
		t.Errorf("Evaluate() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildReport(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	pm := PatternMetrics{
		PatternSuggestionAccuracy: 1.0,
		TimeImprovementPercentage: 0.4,
		AvgPatternConfidence:      0.9,
	}
	tm := ToolSelectionMetrics{AccuracyImprovement: 0.3}

	r := BuildReport("alice", pm, tm, 12, now.Add(-time.Hour), now, now)
	assert.Equal(t, 3, r.CriteriaMet)
	assert.Equal(t, 8, r.TotalCriteria)
	assert.Equal(t, 3.0/8.0, r.PassRate)
	assert.Equal(t, 12, r.TotalExecutions)
	assert.InDelta(t, 0.35, r.AverageImprovement, 1e-9)
	assert.Equal(t, []string{
		"Pattern learning reduced execution time by 40.0%.",
		"Tool selection accuracy improved by 30.0%.",
		"High pattern confidence indicates stable learning.",
	}, r.KeyInsights)
	assert.Len(t, r.Recommendations, 5)
	assert.NotEmpty(t, r.ID)
}

func TestGenerateReport_EmptyUser(t *testing.T) {
	tr := newTestTracker(10)
	r := tr.GenerateReport("ghost")

	assert.Equal(t, "ghost", r.UserID)
	assert.Zero(t, r.TotalExecutions)
	assert.Zero(t, r.CriteriaMet)
	assert.Zero(t, r.PassRate)
	assert.Len(t, r.Recommendations, 8)
	assert.Empty(t, r.KeyInsights)
	assert.Equal(t, r.TestPeriodStart, r.TestPeriodEnd)
}

func TestGenerateReport_TestPeriod(t *testing.T) {
	tr := newTestTracker(10)
	flowRun(tr, t, 5, nil, "")
	flowRun(tr, t, 5, nil, "")

	r := tr.GenerateReport("alice")
	execs := tr.Executions("alice")
	assert.Equal(t, execs[0].Timestamp, r.TestPeriodStart)
	assert.Equal(t, execs[1].Timestamp, r.TestPeriodEnd)
	assert.Equal(t, 2, r.TotalExecutions)
}

func TestPhaseAnalysis(t *testing.T) {
	tr := newTestTracker(10)
	for range 3 {
		flowRun(tr, t, 10, nil, "")
	}
	flowRun(tr, t, 6, &SuggestionInfo{PatternID: "p1", Confidence: 0.9, Accepted: true}, "p1")

	a, err := tr.PhaseAnalysis("alice", ScenarioFlowPatternLearning)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Phases[PhaseBaseline].ExecutionCount)
	assert.Equal(t, 10.0, a.Phases[PhaseBaseline].AvgExecutionTime)
	assert.Equal(t, 1, a.Phases[PhaseLearning].PatternAcceptances)
	assert.Equal(t, 0.9, a.Phases[PhaseLearning].AvgConfidence)
	require.Len(t, a.Transitions, 1)

	_, err = tr.PhaseAnalysis("alice", ScenarioBasicToolSelection)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDashboard(t *testing.T) {
	tr := newTestTracker(10)
	for range 4 {
		flowRun(tr, t, 10, &SuggestionInfo{PatternID: "p1", Confidence: 0.9, Accepted: true}, "p1")
	}
	basicRun(tr, t, []string{"a"}, []string{"a"}, "normal", nil)

	d := tr.Dashboard()
	assert.Equal(t, 2, d.ActiveUsers)
	assert.Equal(t, 2, d.TotalUsers)
	assert.Equal(t, 5, d.TotalExecutions)
	assert.Equal(t, 5, d.RecentExecutions)
	assert.Equal(t, 1, d.TotalPatternsLearned)
	assert.InDelta(t, 0.9, d.AvgPatternConfidence, 1e-9)
	assert.Equal(t, map[Phase]int{PhaseLearning: 1, PhaseBaseline: 1}, d.PhaseDistribution)
	assert.Equal(t, 1.0, d.AvgSuccessRate)
}

func TestReplay_RebuildsAccumulators(t *testing.T) {
	tr := newTestTracker(10)
	for range 3 {
		flowRun(tr, t, 10, nil, "")
	}
	flowRun(tr, t, 5, &SuggestionInfo{PatternID: "p1", Confidence: 0.9, Accepted: true}, "p1")
	basicRun(tr, t, []string{"a"}, []string{"a"}, "normal", intp(4))

	stream := tr.Executions("")
	// Shuffle the persisted order.
	stream[0], stream[3] = stream[3], stream[0]

	fresh := newTestTracker(10)
	fresh.Replay(stream)

	if diff := cmp.Diff(tr.PatternMetrics("alice"), fresh.PatternMetrics("alice")); diff != "" {
		t.Errorf("pattern metrics mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tr.ToolSelectionMetrics("bob"), fresh.ToolSelectionMetrics("bob")); diff != "" {
		t.Errorf("tool metrics mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, fresh.Transitions("alice"), 1)

	m, _, err := fresh.TrackExecution(Input{UserID: "alice", Scenario: ScenarioFlowPatternLearning})
	require.NoError(t, err)
	assert.Equal(t, 5, m.ExecutionNumber)
}
