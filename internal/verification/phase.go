/*
Package verification tracks scenario executions through the baseline,
learning and validation phases and evaluates the learning success criteria.

Executions are numbered per (user, scenario). The number alone decides the
phase: runs 1-3 are baseline, 4-10 learning and 11 onwards validation. All
per-user accumulators are derived from the stream of ExecutionMetrics, so a
persisted stream can be replayed to rebuild them.
*/
package verification

import "fmt"

// Phase is a verification phase.
type Phase string

const (
	PhaseBaseline   Phase = "baseline"
	PhaseLearning   Phase = "learning"
	PhaseValidation Phase = "validation"
)

const (
	lastBaselineExecution = 3
	lastLearningExecution = 10
)

// PhaseFor returns the phase of the n-th execution (1-based).
func PhaseFor(n int) Phase {
	switch {
	case n <= lastBaselineExecution:
		return PhaseBaseline
	case n <= lastLearningExecution:
		return PhaseLearning
	default:
		return PhaseValidation
	}
}

// Ordinal orders phases: baseline 0, learning 1, validation 2.
func (p Phase) Ordinal() int {
	switch p {
	case PhaseBaseline:
		return 0
	case PhaseLearning:
		return 1
	case PhaseValidation:
		return 2
	}
	return -1
}

// ScenarioType identifies a verification scenario.
type ScenarioType string

const (
	// ScenarioFlowPatternLearning measures pattern suggestions in flow mode.
	ScenarioFlowPatternLearning ScenarioType = "1.1_flow_mode_pattern_learning"

	// ScenarioBasicToolSelection measures tool selection in basic mode.
	ScenarioBasicToolSelection ScenarioType = "1.2_basic_mode_tool_selection"
)

// ParseScenario accepts the full scenario id or the short forms "flow"
// and "basic".
func ParseScenario(s string) (ScenarioType, error) {
	switch s {
	case string(ScenarioFlowPatternLearning), "flow", "1.1":
		return ScenarioFlowPatternLearning, nil
	case string(ScenarioBasicToolSelection), "basic", "1.2":
		return ScenarioBasicToolSelection, nil
	}
	return "", fmt.Errorf("unknown scenario %q", s)
}

// Valid reports whether s is a known scenario.
func (s ScenarioType) Valid() bool {
	return s == ScenarioFlowPatternLearning || s == ScenarioBasicToolSelection
}
