package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/logging"
	"github.com/khanglvm/flowlearn/internal/storage"
	"github.com/khanglvm/flowlearn/internal/trace"
	"github.com/khanglvm/flowlearn/internal/verification"
)

// TrackRequest is one completed run reported by the orchestration layer.
type TrackRequest struct {
	SessionID string       `json:"session_id" validate:"required"`
	UserID    string       `json:"user_id"`
	Trace     []trace.Call `json:"execution_trace"`
	Success   bool         `json:"success"`

	// TotalTime is the wall time of the run in seconds. Zero sums the
	// step times.
	TotalTime float64        `json:"total_execution_time" validate:"gte=0"`
	Context   map[string]any `json:"context,omitempty"`

	// Scenario, when set, also records the run in the verification tracker.
	Scenario verification.ScenarioType `json:"scenario_type,omitempty"`

	// SuggestionID links the run to a suggestion previously returned by
	// SuggestPattern. SuggestionAccepted tells whether the caller followed it.
	SuggestionID       string `json:"suggestion_id,omitempty"`
	SuggestionAccepted bool   `json:"suggestion_accepted,omitempty"`

	// Suggestion describes a suggestion made outside this engine. It takes
	// precedence over SuggestionID.
	Suggestion *verification.SuggestionInfo `json:"suggestion,omitempty"`

	ExpectedTools []string `json:"expected_tools,omitempty"`
	Rating        *int     `json:"user_satisfaction_rating,omitempty" validate:"omitempty,gte=1,lte=5"`
}

// TrackResult reports what TrackExecution recorded.
type TrackResult struct {
	ExecutionID string                   `json:"execution_id"`
	PatternID   string                   `json:"pattern_id"`
	Created     bool                     `json:"pattern_created"`
	Similarity  float64                  `json:"similarity"`
	Pattern     learning.WorkflowPattern `json:"pattern"`

	Combination  *analytics.ToolCombination      `json:"combination,omitempty"`
	Verification *verification.ExecutionMetrics `json:"verification,omitempty"`
	Transition   *verification.PhaseTransition  `json:"phase_transition,omitempty"`
}

// TrackExecution validates req, attributes its trace to a pattern, records
// per-tool analytics and, for scenario runs, the verification metrics.
// Invalid requests are rejected before any state changes.
func (e *Engine) TrackExecution(ctx context.Context, req TrackRequest) (TrackResult, error) {
	start := time.Now()
	log := logging.For(logging.WithSession(ctx, req.SessionID, req.UserID), e.logger)

	if err := e.validate.Struct(req); err != nil {
		return TrackResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	steps, err := trace.Steps(req.Trace)
	if err != nil {
		return TrackResult{}, err
	}
	if req.Scenario != "" && !req.Scenario.Valid() {
		return TrackResult{}, fmt.Errorf("%w: %q", verification.ErrUnknownScenario, req.Scenario)
	}
	suggestion, err := e.suggestionInfo(req)
	if err != nil {
		return TrackResult{}, err
	}

	total := req.TotalTime
	if total == 0 {
		for _, t := range trace.StepTimes(steps) {
			total += t
		}
	}

	outcome := e.learner.TrackExecution(learning.Execution{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Steps:     steps,
		Success:   req.Success,
		TotalTime: total,
		Context:   req.Context,
	})
	res := TrackResult{
		ExecutionID: outcome.Execution.ID,
		PatternID:   outcome.Pattern.ID,
		Created:     outcome.Created,
		Similarity:  outcome.Similarity,
		Pattern:     outcome.Pattern,
	}
	records := []storage.Record{
		storage.PatternRecord(outcome.Pattern),
		storage.ExecutionRecord(outcome.Execution),
	}
	e.reindex(ctx, outcome.Pattern)

	for _, s := range steps {
		u, err := e.analyzer.TrackToolUsage(analytics.ToolUsage{
			ToolName:       s.ToolName,
			UserID:         req.UserID,
			SessionID:      req.SessionID,
			ExecutionTime:  s.ExecutionTime,
			Success:        s.Success,
			Context:        req.Context,
			ParametersUsed: s.Parameters,
		})
		if err != nil {
			// Steps are already validated; a failure here is a bug.
			log.Error("failed to track tool usage", zap.String("tool", s.ToolName), zap.Error(err))
			continue
		}
		records = append(records, storage.UsageRecord(u))
	}
	if len(steps) > 0 {
		combo := e.analyzer.TrackToolCombination(trace.ToolNames(steps), req.UserID, req.SessionID, total, req.Success, req.Context)
		res.Combination = &combo
		records = append(records, storage.CombinationRecord(combo))
	}

	if req.Scenario != "" {
		in := verification.Input{
			SessionID:     req.SessionID,
			UserID:        req.UserID,
			Scenario:      req.Scenario,
			Tools:         trace.ToolNames(steps),
			StepTimes:     trace.StepTimes(steps),
			TotalTime:     total,
			SuccessRate:   stepSuccessRate(steps, req.Success),
			Context:       req.Context,
			ExpectedTools: req.ExpectedTools,
			Suggestion:    suggestion,
			Rating:        req.Rating,
		}
		if req.Scenario == verification.ScenarioFlowPatternLearning {
			in.MatchedPatternID = outcome.Pattern.ID
		}
		m, tr, err := e.tracker.TrackExecution(in)
		if err != nil {
			return res, fmt.Errorf("track verification: %w", err)
		}
		res.Verification = &m
		res.Transition = tr
		records = append(records, storage.MetricsRecord(m))
		if tr != nil {
			e.metrics.RecordTransition(string(tr.To))
		}
	}

	e.persist(ctx, records...)
	e.metrics.RecordAttribution(outcome.Created)
	e.metrics.RecordExecution(string(req.Scenario), req.Success, time.Since(start))

	log.Debug("tracked execution",
		zap.String("pattern_id", res.PatternID),
		zap.Bool("created", res.Created),
		zap.Float64("similarity", res.Similarity),
		zap.Int("steps", len(steps)))
	return res, nil
}

// suggestionInfo resolves the suggestion a run followed, if any.
func (e *Engine) suggestionInfo(req TrackRequest) (*verification.SuggestionInfo, error) {
	if req.Suggestion != nil {
		info := *req.Suggestion
		return &info, nil
	}
	if req.SuggestionID == "" {
		return nil, nil
	}
	s, ok := e.learner.Suggestion(req.SuggestionID)
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", req.SuggestionID, ErrNotFound)
	}
	return &verification.SuggestionInfo{
		PatternID:  s.PatternID,
		Confidence: s.Confidence,
		Accepted:   req.SuggestionAccepted,
	}, nil
}

// stepSuccessRate is the fraction of successful steps. A run without steps
// counts as fully successful or failed by its overall flag.
func stepSuccessRate(steps []trace.Step, success bool) float64 {
	if len(steps) == 0 {
		if success {
			return 1
		}
		return 0
	}
	ok := 0
	for _, s := range steps {
		if s.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(steps))
}
