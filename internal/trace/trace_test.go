package trace

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSteps_ConvertsCalls(t *testing.T) {
	calls := []Call{
		{Tool: "search_db", Parameters: map[string]any{"q": "she"}, ExecutionTime: 1.5, Success: true, Output: "3 rows"},
		{Tool: "send_slack", ExecutionTime: 0.5, Success: false},
	}

	steps, err := Steps(calls)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, 1, steps[0].Position)
	assert.Equal(t, "search_db", steps[0].ToolName)
	assert.Equal(t, "3 rows", steps[0].OutputSummary)
	assert.Equal(t, 2, steps[1].Position)
	assert.False(t, steps[1].Success)
	assert.Equal(t, []string{"search_db", "send_slack"}, ToolNames(steps))
	assert.Equal(t, []float64{1.5, 0.5}, StepTimes(steps))
}

func TestSteps_EmptyTraceIsValid(t *testing.T) {
	steps, err := Steps(nil)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestSteps_MissingTool(t *testing.T) {
	_, err := Steps([]Call{{Tool: "ok"}, {ExecutionTime: 1}})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, 2, verr.Index)
	assert.Equal(t, "Tool", verr.Field)
	assert.Equal(t, "required", verr.Reason)
}

func TestSteps_NegativeTime(t *testing.T) {
	_, err := Steps([]Call{{Tool: "search_db", ExecutionTime: -1}})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "ExecutionTime", verr.Field)
}

func TestSteps_TruncatesOutput(t *testing.T) {
	steps, err := Steps([]Call{{Tool: "generate_msg", Output: strings.Repeat("é", 500)}})
	require.NoError(t, err)
	assert.Equal(t, 200, len([]rune(steps[0].OutputSummary)))
}

func TestSteps_DoesNotAliasParameters(t *testing.T) {
	params := map[string]any{"channel": "#ops"}
	steps, err := Steps([]Call{{Tool: "send_slack", Parameters: params}})
	require.NoError(t, err)

	params["channel"] = "#changed"
	assert.Equal(t, "#ops", steps[0].Parameters["channel"])

	clone := CloneSteps(steps)
	clone[0].Parameters["channel"] = "#clone"
	assert.Equal(t, "#ops", steps[0].Parameters["channel"])
}

func TestSequenceSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"search_db", "send_slack"}, []string{"search_db", "send_slack"}, 1.0},
		{"both empty", nil, []string{}, 1.0},
		{"disjoint", []string{"a", "b"}, []string{"c", "d"}, 0.0},
		{"one substitution of four", []string{"a", "b", "c", "d"}, []string{"a", "b", "c", "x"}, 0.75},
		{"empty vs non-empty", nil, []string{"a"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SequenceSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSequenceSimilarity_Symmetric(t *testing.T) {
	seqs := [][]string{
		{"search_db", "generate_msg", "send_slack"},
		{"send_slack", "search_db", "generate_msg"},
		{"a", "b", "a", "c", "b"},
		{"b", "a", "c", "a"},
		{},
	}
	for _, a := range seqs {
		assert.Equal(t, 1.0, SequenceSimilarity(a, a))
		for _, b := range seqs {
			assert.Equal(t, SequenceSimilarity(a, b), SequenceSimilarity(b, a), "a=%v b=%v", a, b)
		}
	}
}

func TestContextTags(t *testing.T) {
	ctx := map[string]any{
		"mode":        "flow",
		"user_role":   "operator",
		"time_of_day": "morning",
		"urgency":     "high",
	}

	assert.Equal(t, []string{"mode_flow", "role_operator", "time_morning"}, ContextTags(ctx))
	assert.Equal(t, "mode_flow_role_operator_time_morning", ContextPattern(ctx))
}

func TestContextPattern_Default(t *testing.T) {
	assert.Equal(t, DefaultContextPattern, ContextPattern(nil))
	assert.Equal(t, DefaultContextPattern, ContextPattern(map[string]any{"urgency": "high"}))
	assert.Empty(t, ContextTags(nil))
}

func TestCommonAndMergeTags(t *testing.T) {
	assert.Equal(t, 1, CommonTags([]string{"mode_flow", "role_ops"}, []string{"mode_flow", "mode_flow", "time_am"}))
	assert.Equal(t, 0, CommonTags(nil, []string{"x"}))
	assert.Equal(t, []string{"a", "b", "c"}, MergeTags([]string{"a", "b"}, []string{"b", "c"}))
}
