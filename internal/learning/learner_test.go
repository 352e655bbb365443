package learning

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/flowlearn/internal/trace"
)

func newTestLearner(t *testing.T) *Learner {
	t.Helper()
	l := NewLearner(DefaultConfig(), nil, nil)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return l
}

func steps(t *testing.T, tools ...string) []trace.Step {
	t.Helper()
	calls := make([]trace.Call, len(tools))
	for i, tool := range tools {
		calls[i] = trace.Call{Tool: tool, ExecutionTime: 1, Success: true}
	}
	s, err := trace.Steps(calls)
	require.NoError(t, err)
	return s
}

func run(user string, success bool, total float64, s []trace.Step) Execution {
	return Execution{
		SessionID: "sess-" + user,
		UserID:    user,
		Steps:     s,
		Success:   success,
		TotalTime: total,
		Context:   map[string]any{"mode": "flow", "user_role": "operator"},
	}
}

func TestTrackExecution_ThreeSuccessesThenFailure(t *testing.T) {
	l := newTestLearner(t)
	s := steps(t, "search_db", "send_slack")

	first := l.TrackExecution(run("alice", true, 2.0, s))
	assert.True(t, first.Created)
	assert.Equal(t, 1, first.Pattern.TotalExecutions)
	assert.Equal(t, 0.3, first.Pattern.Confidence)
	assert.Equal(t, "Pattern_1", first.Pattern.Name)
	assert.Equal(t, []string{"mode_flow", "role_operator"}, first.Pattern.ContextTags)

	l.TrackExecution(run("alice", true, 2.0, s))
	third := l.TrackExecution(run("alice", true, 2.0, s))

	assert.False(t, third.Created)
	assert.Equal(t, first.Pattern.ID, third.Pattern.ID)
	assert.Equal(t, 3, third.Pattern.TotalExecutions)
	assert.Equal(t, 1.0, third.Pattern.SuccessRate)
	assert.Equal(t, 1.0, third.Pattern.Confidence)
	assert.InDelta(t, 2.0, third.Pattern.AverageExecutionTime, 1e-9)

	fourth := l.TrackExecution(run("alice", false, 2.0, s))
	assert.Equal(t, first.Pattern.ID, fourth.Pattern.ID)
	assert.Equal(t, 1.0, fourth.Similarity)
	assert.Equal(t, 0.75, fourth.Pattern.SuccessRate)
	assert.InDelta(t, 0.9, fourth.Pattern.Confidence, 1e-9)
	assert.Equal(t, 1, l.patterns.Len())
	assert.Len(t, l.Executions(), 4)
}

func TestTrackExecution_DifferentLengthCreatesPattern(t *testing.T) {
	l := newTestLearner(t)

	a := l.TrackExecution(run("alice", true, 1, steps(t, "search_db", "send_slack")))
	b := l.TrackExecution(run("alice", true, 1, steps(t, "search_db", "send_slack", "send_email")))

	assert.NotEqual(t, a.Pattern.ID, b.Pattern.ID)
	assert.Equal(t, "Pattern_2", b.Pattern.Name)
}

func TestTrackExecution_BelowSimilarityCreatesPattern(t *testing.T) {
	l := newTestLearner(t)

	a := l.TrackExecution(run("alice", true, 1, steps(t, "a", "b", "c", "d")))
	// 0.75 similarity is below the 0.8 threshold.
	b := l.TrackExecution(run("alice", true, 1, steps(t, "a", "b", "c", "x")))

	assert.NotEqual(t, a.Pattern.ID, b.Pattern.ID)
	assert.True(t, b.Created)
}

func TestTrackExecution_EmptyTraceMatchesOnlyEmpty(t *testing.T) {
	l := newTestLearner(t)

	a := l.TrackExecution(run("alice", true, 0, nil))
	b := l.TrackExecution(run("bob", false, 0, nil))
	c := l.TrackExecution(run("alice", true, 1, steps(t, "search_db")))

	assert.Equal(t, a.Pattern.ID, b.Pattern.ID)
	assert.NotEqual(t, a.Pattern.ID, c.Pattern.ID)
	assert.Equal(t, 0.5, b.Pattern.SuccessRate)
}

func TestBestMatch_TieBreak(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := steps(t, "a", "b")
	older := WorkflowPattern{ID: "older", Steps: s, UpdatedAt: t0, CreatedAt: t0}
	newer := WorkflowPattern{ID: "newer", Steps: s, UpdatedAt: t0.Add(time.Hour), CreatedAt: t0}

	m, ok := bestMatch([]WorkflowPattern{older, newer}, []string{"a", "b"}, 0.8)
	require.True(t, ok)
	assert.Equal(t, "newer", m.pattern.ID)

	lowConf := WorkflowPattern{ID: "low", Steps: s, UpdatedAt: t0, Confidence: 0.3, CreatedAt: t0}
	highConf := WorkflowPattern{ID: "high", Steps: s, UpdatedAt: t0, Confidence: 0.9, CreatedAt: t0.Add(time.Hour)}
	m, ok = bestMatch([]WorkflowPattern{lowConf, highConf}, []string{"a", "b"}, 0.8)
	require.True(t, ok)
	assert.Equal(t, "high", m.pattern.ID)

	first := WorkflowPattern{ID: "first", Steps: s, UpdatedAt: t0, CreatedAt: t0}
	second := WorkflowPattern{ID: "second", Steps: s, UpdatedAt: t0, CreatedAt: t0.Add(time.Minute)}
	m, ok = bestMatch([]WorkflowPattern{second, first}, []string{"a", "b"}, 0.8)
	require.True(t, ok)
	assert.Equal(t, "first", m.pattern.ID)
}

func TestBestMatch_PrefersHigherSimilarity(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	near := WorkflowPattern{ID: "near", Steps: steps(t, "a", "b", "c", "d", "e", "x"), UpdatedAt: t0.Add(time.Hour)}
	exact := WorkflowPattern{ID: "exact", Steps: steps(t, "a", "b", "c", "d", "e", "f"), UpdatedAt: t0}

	m, ok := bestMatch([]WorkflowPattern{near, exact}, []string{"a", "b", "c", "d", "e", "f"}, 0.8)
	require.True(t, ok)
	assert.Equal(t, "exact", m.pattern.ID)
	assert.Equal(t, 1.0, m.similarity)
}

func TestSuggestPattern_EmptyStore(t *testing.T) {
	l := newTestLearner(t)
	assert.Nil(t, l.SuggestPattern("alice", "s1", map[string]any{"mode": "flow"}))
}

func TestSuggestPattern_RequiresConfidence(t *testing.T) {
	l := newTestLearner(t)
	s := steps(t, "search_db", "generate_msg", "send_slack")

	l.TrackExecution(run("alice", true, 3, s))
	l.TrackExecution(run("alice", true, 3, s))
	assert.Nil(t, l.SuggestPattern("alice", "s1", map[string]any{"mode": "flow"}), "confidence 0.3 must not be suggested")

	out := l.TrackExecution(run("alice", true, 3, s))
	got := l.SuggestPattern("alice", "s1", map[string]any{"mode": "flow", "user_role": "operator"})
	require.NotNil(t, got)
	assert.Equal(t, out.Pattern.ID, got.PatternID)
	// (0.3 owner + 0.3 * 2/2 tags + 0.4 * 1.0) * 1.0, capped at 1.
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)

	stored, ok := l.Suggestion(got.ID)
	require.True(t, ok)
	assert.False(t, stored.HasFeedback())
}

func TestSuggestPattern_OtherUserNeedsTags(t *testing.T) {
	l := newTestLearner(t)
	s := steps(t, "search_db", "send_slack")
	for range 3 {
		l.TrackExecution(run("alice", true, 2, s))
	}

	// 0.4 * 1.0 = 0.4 for a stranger without tags.
	assert.Nil(t, l.SuggestPattern("bob", "s2", nil))

	got := l.SuggestPattern("bob", "s2", map[string]any{"mode": "flow"})
	require.NotNil(t, got)
	assert.InDelta(t, 0.55, got.Confidence, 1e-9)
}

func TestSubmitFeedback_PositiveWithSuccess(t *testing.T) {
	l := newTestLearner(t)
	s := steps(t, "search_db", "send_slack")
	for range 3 {
		l.TrackExecution(run("alice", true, 2, s))
	}
	out := l.TrackExecution(run("alice", false, 2, s))
	require.InDelta(t, 0.9, out.Pattern.Confidence, 1e-9)

	sugg := l.SuggestPattern("alice", "sess-alice", map[string]any{"mode": "flow"})
	require.NotNil(t, sugg)

	p, err := l.SubmitFeedback(Feedback{
		SuggestionID:    sugg.ID,
		Accepted:        true,
		Rating:          5,
		Comments:        "spot on",
		ExecutionResult: map[string]any{"success": true},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	assert.Equal(t, 5, p.TotalExecutions)
	assert.Equal(t, 4, p.SuccessfulExecutions)
	assert.Equal(t, 0.8, p.SuccessRate)

	stored, _ := l.Suggestion(sugg.ID)
	require.NotNil(t, stored.Accepted)
	assert.True(t, *stored.Accepted)
	assert.Equal(t, 5, *stored.Rating)

	execs := l.Executions()
	last := execs[len(execs)-1]
	require.NotNil(t, last.FeedbackRating)
	assert.Equal(t, 5, *last.FeedbackRating)
	assert.Equal(t, "spot on", last.FeedbackComments)

	latest, ok := l.LatestExecution(p.ID, "sess-alice")
	require.True(t, ok)
	assert.Equal(t, last.ID, latest.ID)
	_, ok = l.LatestExecution(p.ID, "other-session")
	assert.False(t, ok)

	_, err = l.SubmitFeedback(Feedback{SuggestionID: sugg.ID, Accepted: true, Rating: 5})
	assert.ErrorIs(t, err, ErrFeedbackAlreadyRecorded)
}

func TestSubmitFeedback_NegativeAndUnrated(t *testing.T) {
	l := newTestLearner(t)
	out := l.TrackExecution(run("alice", true, 2, steps(t, "search_db")))

	p, err := l.SubmitFeedback(Feedback{PatternID: out.Pattern.ID, Accepted: false})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p.Confidence, 1e-9)

	// Accepted without a rating counts as negative.
	p, err = l.SubmitFeedback(Feedback{PatternID: out.Pattern.ID, Accepted: true})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p.Confidence, 1e-9)
	assert.Equal(t, 1, p.TotalExecutions)
}

func TestSubmitFeedback_Errors(t *testing.T) {
	l := newTestLearner(t)

	_, err := l.SubmitFeedback(Feedback{PatternID: "missing", Accepted: true, Rating: 4})
	assert.True(t, errors.Is(err, ErrPatternNotFound))

	_, err = l.SubmitFeedback(Feedback{SuggestionID: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownSuggestion))
}

func TestConfidenceStaysBounded(t *testing.T) {
	l := newTestLearner(t)
	s := steps(t, "search_db", "send_slack")
	id := l.TrackExecution(run("alice", true, 1, s)).Pattern.ID

	for i := range 40 {
		l.TrackExecution(run("alice", i%3 != 0, float64(i), s))
		_, err := l.SubmitFeedback(Feedback{
			PatternID:       id,
			Accepted:        i%2 == 0,
			Rating:          i % 6,
			ExecutionResult: map[string]any{"success": i%4 == 0},
		})
		require.NoError(t, err)

		p, _ := l.Pattern(id)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
		assert.GreaterOrEqual(t, p.SuccessRate, 0.0)
		assert.LessOrEqual(t, p.SuccessRate, 1.0)
		assert.LessOrEqual(t, p.SuccessfulExecutions, p.TotalExecutions)
	}
}

func TestMetrics(t *testing.T) {
	l := newTestLearner(t)
	s := steps(t, "search_db", "send_slack")
	for range 3 {
		l.TrackExecution(run("alice", true, 2, s))
	}
	l.TrackExecution(run("bob", false, 4, steps(t, "send_email")))

	all := l.Metrics("")
	assert.Equal(t, 2, all.TotalPatternsLearned)
	assert.Equal(t, 1, all.ConfidentPatterns)
	assert.Equal(t, 0.5, all.LearningEffectiveness)
	assert.Equal(t, 0.5, all.AverageSuccessRate)
	assert.Equal(t, 3.0, all.AverageExecutionTime)
	assert.Equal(t, 0.75, all.RecentSuccessRate)
	assert.Equal(t, 4, all.TotalExecutions)
	assert.Equal(t, 2, all.PatternsByType[PatternWorkflow])

	alice := l.Metrics("alice")
	assert.Equal(t, 1, alice.TotalPatternsLearned)
	assert.Equal(t, 1.0, alice.RecentSuccessRate)

	none := l.Metrics("nobody")
	assert.Zero(t, none.TotalPatternsLearned)
	assert.Zero(t, none.AverageSuccessRate)
}

func TestUserPatternsAndLoad(t *testing.T) {
	l := newTestLearner(t)
	l.TrackExecution(run("alice", true, 1, steps(t, "a")))
	l.TrackExecution(run("bob", true, 1, steps(t, "b", "c")))

	assert.Len(t, l.UserPatterns("alice"), 1)
	assert.Empty(t, l.UserPatterns("carol"))

	fresh := newTestLearner(t)
	fresh.Load(l.patterns.List(), l.Executions())
	assert.Len(t, fresh.UserPatterns("bob"), 1)

	out := fresh.TrackExecution(run("carol", true, 1, steps(t, "z", "z", "z")))
	assert.Equal(t, "Pattern_3", out.Pattern.Name)
}

func TestTrackExecution_ConcurrentIdenticalTraces(t *testing.T) {
	l := newTestLearner(t)
	l.now = time.Now
	s := steps(t, "search_db", "generate_msg", "send_slack")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.TrackExecution(run("alice", i%5 != 0, 1, s))
		}()
	}
	wg.Wait()

	require.Equal(t, 1, l.patterns.Len())
	p := l.patterns.List()[0]
	assert.Equal(t, 50, p.TotalExecutions)
	assert.Equal(t, 40, p.SuccessfulExecutions)
}

func TestReadsAreCopies(t *testing.T) {
	l := newTestLearner(t)
	out := l.TrackExecution(run("alice", true, 1, steps(t, "search_db")))

	p, ok := l.Pattern(out.Pattern.ID)
	require.True(t, ok)
	p.ContextTags[0] = "mutated"
	p.Steps[0].ToolName = "mutated"

	again, _ := l.Pattern(out.Pattern.ID)
	assert.Equal(t, "mode_flow", again.ContextTags[0])
	assert.Equal(t, "search_db", again.Steps[0].ToolName)
}
