package verification

import (
	"errors"
	"maps"
	"slices"
	"time"
)

var (
	// ErrNoData is returned when a user has no executions for a scenario.
	ErrNoData = errors.New("no execution data found")

	// ErrUnknownScenario is returned for executions with an invalid scenario.
	ErrUnknownScenario = errors.New("unknown scenario")
)

// SuggestionInfo describes the pattern suggestion shown for an execution.
type SuggestionInfo struct {
	PatternID  string  `json:"pattern_id"`
	Confidence float64 `json:"confidence_score"`
	Accepted   bool    `json:"accepted"`
}

// Input is one execution to track.
type Input struct {
	SessionID string
	UserID    string
	Scenario  ScenarioType

	// Tools are the tools the agent actually called, in order.
	Tools     []string
	StepTimes []float64
	TotalTime float64

	// SuccessRate is the share of successful steps.
	SuccessRate float64
	Context     map[string]any

	// ExpectedTools overrides context["expected_tools"] when set.
	ExpectedTools []string

	// Suggestion is set when a pattern was suggested before the run.
	Suggestion *SuggestionInfo

	// MatchedPatternID is the pattern the run was attributed to.
	MatchedPatternID string

	// Rating is the user's satisfaction rating (1-5), if given.
	Rating *int
}

// ExecutionMetrics is the recorded view of one tracked execution.
type ExecutionMetrics struct {
	ID              string       `json:"execution_id"`
	SessionID       string       `json:"session_id"`
	UserID          string       `json:"user_id"`
	Scenario        ScenarioType `json:"scenario_type"`
	ExecutionNumber int          `json:"execution_number"`
	Phase           Phase        `json:"phase"`

	TotalExecutionTime float64   `json:"total_execution_time"`
	StepExecutionTimes []float64 `json:"step_execution_times"`

	PatternSuggested  bool    `json:"pattern_suggested"`
	PatternID         string  `json:"pattern_id,omitempty"`
	PatternConfidence float64 `json:"pattern_confidence"`
	PatternAccepted   bool    `json:"pattern_accepted"`
	MatchedPatternID  string  `json:"matched_pattern_id,omitempty"`

	ExpectedTools         []string `json:"expected_tools,omitempty"`
	ActualTools           []string `json:"actual_tools,omitempty"`
	ToolSelectionAccuracy float64  `json:"tool_selection_accuracy"`
	ContextRelevanceScore float64  `json:"context_relevance_score"`

	SuccessRate            float64        `json:"success_rate"`
	ExecutionSuccess       bool           `json:"execution_success"`
	UserSatisfactionRating *int           `json:"user_satisfaction_rating,omitempty"`
	Context                map[string]any `json:"context,omitempty"`
	Timestamp              time.Time      `json:"timestamp"`
}

// Clone returns a deep copy of m.
func (m ExecutionMetrics) Clone() ExecutionMetrics {
	m.StepExecutionTimes = slices.Clone(m.StepExecutionTimes)
	m.ExpectedTools = slices.Clone(m.ExpectedTools)
	m.ActualTools = slices.Clone(m.ActualTools)
	m.Context = maps.Clone(m.Context)
	if m.UserSatisfactionRating != nil {
		r := *m.UserSatisfactionRating
		m.UserSatisfactionRating = &r
	}
	return m
}

// PatternMetrics accumulates the flow-mode pattern learning results of a user.
type PatternMetrics struct {
	ScenarioID string `json:"scenario_id"`
	UserID     string `json:"user_id"`

	TotalExecutions            int     `json:"total_executions"`
	PatternsLearned            int     `json:"patterns_learned"`
	PatternLearningSuccessRate float64 `json:"pattern_learning_success_rate"`

	PatternSuggestionsMade    int     `json:"pattern_suggestions_made"`
	CorrectPatternSuggestions int     `json:"correct_pattern_suggestions"`
	PatternSuggestionAccuracy float64 `json:"pattern_suggestion_accuracy"`

	BaselineAvgTime           float64 `json:"baseline_avg_time"`
	OptimizedAvgTime          float64 `json:"optimized_avg_time"`
	TimeImprovementPercentage float64 `json:"time_improvement_percentage"`

	AvgPatternConfidence float64   `json:"avg_pattern_confidence"`
	ConfidenceTrend      []float64 `json:"confidence_trend"`

	AdaptationTests       int     `json:"adaptation_tests"`
	SuccessfulAdaptations int     `json:"successful_adaptations"`
	PatternAdaptationRate float64 `json:"pattern_adaptation_rate"`

	LastUpdated time.Time `json:"last_updated"`
}

// ToolSelectionMetrics accumulates the basic-mode tool selection results of
// a user.
type ToolSelectionMetrics struct {
	ScenarioID string `json:"scenario_id"`
	UserID     string `json:"user_id"`

	TotalRequests             int     `json:"total_requests"`
	CorrectToolSelections     int     `json:"correct_tool_selections"`
	IntentRecognitionAccuracy float64 `json:"intent_recognition_accuracy"`
	InitialAccuracy           float64 `json:"initial_accuracy"`
	CurrentAccuracy           float64 `json:"current_accuracy"`
	AccuracyImprovement       float64 `json:"accuracy_improvement"`

	ContextOptimizationScore float64 `json:"context_optimization_score"`
	OptimalToolSelectionRate float64 `json:"optimal_tool_selection_rate"`

	InitialSatisfaction     float64   `json:"initial_satisfaction"`
	CurrentSatisfaction     float64   `json:"current_satisfaction"`
	SatisfactionImprovement float64   `json:"satisfaction_improvement"`
	SatisfactionHistory     []float64 `json:"satisfaction_history"`

	LastUpdated time.Time `json:"last_updated"`
}

// PhaseTransition records an execution that moved a user into a new phase.
type PhaseTransition struct {
	UserID         string       `json:"user_id"`
	Scenario       ScenarioType `json:"scenario_type"`
	From           Phase        `json:"from_phase"`
	To             Phase        `json:"to_phase"`
	ExecutionCount int          `json:"execution_count"`
	Timestamp      time.Time    `json:"timestamp"`
}

// PhaseSummary aggregates the executions of one phase. Pattern fields are
// filled for the flow scenario and tool fields for the basic scenario.
type PhaseSummary struct {
	ExecutionCount   int     `json:"execution_count"`
	AvgExecutionTime float64 `json:"avg_execution_time"`
	AvgSuccessRate   float64 `json:"avg_success_rate"`

	PatternSuggestions int     `json:"pattern_suggestions,omitempty"`
	PatternAcceptances int     `json:"pattern_acceptances,omitempty"`
	AvgConfidence      float64 `json:"avg_confidence,omitempty"`

	AvgToolAccuracy     float64 `json:"avg_tool_accuracy,omitempty"`
	AvgContextRelevance float64 `json:"avg_context_relevance,omitempty"`
	AvgSatisfaction     float64 `json:"avg_satisfaction,omitempty"`
}

// PhaseAnalysis breaks a user's scenario down by phase.
type PhaseAnalysis struct {
	UserID      string                 `json:"user_id"`
	Scenario    ScenarioType           `json:"scenario_type"`
	Phases      map[Phase]PhaseSummary `json:"phase_analysis"`
	Transitions []PhaseTransition      `json:"transition_history"`
}

// Dashboard is a point-in-time view across all users.
type Dashboard struct {
	Timestamp            time.Time     `json:"timestamp"`
	ActiveUsers          int           `json:"active_users"`
	TotalPatternsLearned int           `json:"total_patterns_learned"`
	AvgPatternConfidence float64       `json:"avg_pattern_confidence"`
	PhaseDistribution    map[Phase]int `json:"phase_distribution"`
	RecentExecutions     int           `json:"recent_executions"`
	TotalUsers           int           `json:"total_users"`
	TotalExecutions      int           `json:"total_executions"`
	AvgSuccessRate       float64       `json:"avg_success_rate"`
}
