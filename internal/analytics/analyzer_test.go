package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func newTestAnalyzer() *Analyzer {
	a := NewAnalyzer(DefaultConfig(), nil, nil)
	a.now = func() time.Time { return testNow }
	return a
}

func usage(tool, user string, success bool, execTime float64, at time.Time) ToolUsage {
	return ToolUsage{
		ToolName:      tool,
		UserID:        user,
		SessionID:     "s-" + user,
		ExecutionTime: execTime,
		Success:       success,
		Context:       map[string]any{"mode": "basic", "user_role": "analyst"},
		Timestamp:     at,
	}
}

func TestCombinationKey_OrderInvariant(t *testing.T) {
	assert.Equal(t, "search_db_send_slack", CombinationKey([]string{"send_slack", "search_db"}))
	assert.Equal(t, CombinationKey([]string{"a", "b", "a"}), CombinationKey([]string{"b", "a", "a"}))
	assert.NotEqual(t, CombinationKey([]string{"a", "b"}), CombinationKey([]string{"a", "b", "b"}))
}

func TestTrackToolCombination_RunningMeans(t *testing.T) {
	a := newTestAnalyzer()

	a.TrackToolCombination([]string{"search_db", "send_slack"}, "alice", "s1", 1.0, true, nil)
	c := a.TrackToolCombination([]string{"send_slack", "search_db"}, "alice", "s2", 3.0, true, nil)

	assert.Equal(t, "search_db_send_slack", c.Key)
	assert.Equal(t, 2.0, c.AverageExecutionTime)
	assert.Equal(t, 1.0, c.SuccessRate)
	assert.Equal(t, 2, c.UsageCount)
	assert.Equal(t, "default", c.ContextPattern)
	assert.Len(t, a.repo.Combinations(), 1)

	c = a.TrackToolCombination([]string{"search_db", "send_slack"}, "alice", "s3", 2.0, false, nil)
	assert.InDelta(t, 2.0/3.0, c.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, c.AverageExecutionTime, 1e-9)
}

func TestTrackToolUsage_Preference(t *testing.T) {
	a := newTestAnalyzer()

	_, err := a.TrackToolUsage(usage("search_db", "alice", true, 1.0, testNow))
	require.NoError(t, err)

	pref, ok := a.repo.Preference("alice", "search_db")
	require.True(t, ok)
	// 1.0 mean + 0.08 bonus, capped.
	assert.Equal(t, 1.0, pref.PreferenceScore)
	assert.Equal(t, 1, pref.UsageFrequency)
	assert.Equal(t, []string{"mode_basic", "role_analyst"}, pref.ContextTags)

	_, err = a.TrackToolUsage(usage("search_db", "alice", false, 5.0, testNow))
	require.NoError(t, err)
	pref, _ = a.repo.Preference("alice", "search_db")
	assert.InDelta(t, 0.5, pref.PreferenceScore, 1e-9)
	assert.Equal(t, 2, pref.UsageFrequency)
}

func TestTrackToolUsage_Invalid(t *testing.T) {
	a := newTestAnalyzer()

	_, err := a.TrackToolUsage(ToolUsage{UserID: "alice"})
	assert.Error(t, err)

	_, err = a.TrackToolUsage(ToolUsage{ToolName: "x", ExecutionTime: -1})
	assert.Error(t, err)
	assert.Empty(t, a.repo.Usages())
}

func TestPreferenceScore_Window(t *testing.T) {
	samples := make([]float64, 0, 15)
	for range 5 {
		samples = append(samples, 0)
	}
	for range 10 {
		samples = append(samples, 1)
	}
	// Only the last 10 samples count; no latency bonus at 5s.
	assert.Equal(t, 1.0, PreferenceScore(samples, 5.0, 10))
	assert.InDelta(t, 2.0/3.0, PreferenceScore(samples, 10.0, 15), 1e-9)
	assert.Zero(t, PreferenceScore(nil, 0, 10))
}

func TestRecommendations_UnknownToolExcluded(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.TrackToolUsage(usage("search_db", "alice", true, 1.0, testNow))
	require.NoError(t, err)

	recs := a.Recommendations("alice", map[string]any{"mode": "basic"}, []string{"search_db", "never_used"})
	require.Len(t, recs, 1)
	assert.Equal(t, "search_db", recs[0].Tool)
	// 0.4*1.0 + 0.2*1/2 + 0.3*1.0 + 0.1*1.0
	assert.InDelta(t, 0.9, recs[0].Score, 1e-9)
}

func TestRecommendations_OrderAndRecency(t *testing.T) {
	a := newTestAnalyzer()
	old := testNow.Add(-48 * time.Hour)
	for range 3 {
		_, err := a.TrackToolUsage(usage("send_email", "bob", true, 1.0, old))
		require.NoError(t, err)
	}
	_, err := a.TrackToolUsage(usage("send_slack", "bob", false, 1.0, testNow))
	require.NoError(t, err)

	recs := a.Recommendations("alice", nil, []string{"send_slack", "send_email"})
	// alice has no preferences: send_email scores 0.3 (old usage only),
	// send_slack scores 0.0 and is dropped.
	require.Len(t, recs, 1)
	assert.Equal(t, "send_email", recs[0].Tool)
	assert.InDelta(t, 0.3, recs[0].Score, 1e-9)
}

func TestOptimalCombination(t *testing.T) {
	a := newTestAnalyzer()
	flow := map[string]any{"mode": "flow"}

	for range 10 {
		a.TrackToolCombination([]string{"search_db", "generate_msg", "send_slack"}, "alice", "s", 2.0, true, flow)
	}
	a.TrackToolCombination([]string{"search_db", "send_email"}, "alice", "s", 0.5, false, flow)
	a.TrackToolCombination([]string{"search_db"}, "alice", "s", 0.1, true, map[string]any{"mode": "basic"})

	got := a.OptimalCombination(flow, 0)
	// 0.6 + 0.1 + 0.2 = 0.9 beats 0 + 0.4 + 0.02 = 0.42.
	assert.Equal(t, []string{"search_db", "generate_msg", "send_slack"}, got)

	assert.Equal(t, []string{"search_db", "send_email"}, a.OptimalCombination(flow, 2))
	assert.Nil(t, a.OptimalCombination(map[string]any{"mode": "other"}, 5))
}

func TestCalculateTrend(t *testing.T) {
	assert.Equal(t, TrendInsufficientData, CalculateTrend(nil))
	assert.Equal(t, TrendInsufficientData, CalculateTrend([]float64{1}))
	assert.Equal(t, TrendImproving, CalculateTrend([]float64{0.2, 0.5, 0.9}))
	assert.Equal(t, TrendDeclining, CalculateTrend([]float64{1, 0.5}))
	assert.Equal(t, TrendStable, CalculateTrend([]float64{0.8, 0.82, 0.8}))
}

func TestPerformance(t *testing.T) {
	a := newTestAnalyzer()
	day1 := testNow.Add(-48 * time.Hour)
	day2 := testNow.Add(-24 * time.Hour)
	for _, u := range []ToolUsage{
		usage("search_db", "alice", false, 2, day1),
		usage("search_db", "bob", true, 4, day2),
		usage("search_db", "alice", true, 3, testNow),
		usage("search_db", "alice", true, 3, testNow.AddDate(0, 0, -30)),
	} {
		_, err := a.TrackToolUsage(u)
		require.NoError(t, err)
	}

	perf, err := a.Performance("search_db", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, perf.TotalUses)
	assert.InDelta(t, 2.0/3.0, perf.SuccessRate, 1e-9)
	assert.Equal(t, 3.0, perf.AverageExecutionTime)
	assert.Equal(t, 2, perf.UniqueUsers)
	assert.Len(t, perf.DailySuccessRates, 3)
	assert.Equal(t, 0.0, perf.DailySuccessRates[day1.Format("2006-01-02")])
	assert.InDelta(t, 2.0/3.0, perf.ContextPerformance["mode_basic_role_analyst"], 1e-9)
	assert.Equal(t, TrendImproving, perf.PerformanceTrend)

	_, err = a.Performance("unknown", 7)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestUserInsights(t *testing.T) {
	a := newTestAnalyzer()
	for i := range 4 {
		_, err := a.TrackToolUsage(usage("search_db", "alice", i != 0, 1, testNow))
		require.NoError(t, err)
	}
	_, err := a.TrackToolUsage(usage("send_slack", "alice", true, 1, testNow.Add(-time.Hour)))
	require.NoError(t, err)
	a.RecordFeedbackImprovement("s1", "alice", "accuracy", 0.5, 0.75)

	in, err := a.UserInsights("alice")
	require.NoError(t, err)
	assert.Equal(t, 5, in.TotalToolUses)
	assert.Equal(t, []ToolCount{{"search_db", 4}, {"send_slack", 1}}, in.MostUsedTools)
	assert.Equal(t, []ToolRate{{"search_db", 0.75}}, in.BestPerformingTools)
	assert.Equal(t, []int{14, 13}, in.PeakUsageHours)
	assert.Equal(t, 0.8, in.OverallSuccessRate)
	assert.InDelta(t, 50.0, in.RecentImprovements["accuracy"], 1e-9)
	assert.Contains(t, in.Preferences, "send_slack")

	_, err = a.UserInsights("nobody")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSystemReport(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.SystemReport()
	require.ErrorIs(t, err, ErrNoData)

	for _, u := range []ToolUsage{
		usage("search_db", "alice", true, 1, testNow),
		usage("search_db", "bob", false, 1, testNow.AddDate(0, 0, -10)),
		usage("send_slack", "bob", true, 1, testNow),
		usage("send_email", "bob", true, 1, testNow),
	} {
		_, err := a.TrackToolUsage(u)
		require.NoError(t, err)
	}
	a.TrackToolCombination([]string{"search_db"}, "alice", "s", 1, true, nil)
	for range 3 {
		a.TrackToolCombination([]string{"search_db", "send_slack"}, "bob", "s", 1, true, nil)
	}

	r, err := a.SystemReport()
	require.NoError(t, err)
	assert.Equal(t, 4, r.TotalToolUses)
	assert.Equal(t, 0.75, r.OverallSuccessRate)
	assert.Equal(t, 1.0, r.RecentSuccessRate)
	assert.Equal(t, 2, r.UniqueUsers)
	assert.Equal(t, 2.0, r.AvgToolsPerUser)
	assert.Equal(t, ToolCount{"search_db", 2}, r.PopularTools[0])
	assert.Equal(t, 2, r.TotalCombinations)
	assert.Equal(t, 3, r.BestCombinations[0].UsageCount)
	assert.InDelta(t, 0.25, r.ImprovementTrend, 1e-9)
}

func TestLoad_RebuildsPreferences(t *testing.T) {
	a := newTestAnalyzer()
	for i := range 3 {
		_, err := a.TrackToolUsage(usage("search_db", "alice", i < 2, 1, testNow.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	a.TrackToolCombination([]string{"search_db", "send_slack"}, "alice", "s", 2, true, nil)

	b := newTestAnalyzer()
	b.Load(a.repo.Usages(), a.repo.Combinations())

	want, _ := a.repo.Preference("alice", "search_db")
	got, ok := b.repo.Preference("alice", "search_db")
	require.True(t, ok)
	assert.Equal(t, want.PreferenceScore, got.PreferenceScore)
	assert.Equal(t, want.SatisfactionScores, got.SatisfactionScores)
	assert.Len(t, b.repo.Combinations(), 1)
}
