package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/logging"
	"github.com/khanglvm/flowlearn/internal/storage"
	"github.com/khanglvm/flowlearn/internal/verification"
)

// SuggestPattern returns the best learned pattern for a request, or nil when
// no pattern qualifies. input is the user's request text; matching works on
// the user and context only.
func (e *Engine) SuggestPattern(ctx context.Context, input, userID, sessionID string, reqContext map[string]any) (*learning.PatternSuggestion, error) {
	s := e.learner.SuggestPattern(userID, sessionID, reqContext)
	e.metrics.RecordSuggestion(s != nil)

	log := logging.For(ctx, e.logger)
	if s == nil {
		log.Debug("no pattern suggestion", zap.String("user_id", userID), zap.Int("input_len", len(input)))
		return nil, nil
	}
	log.Debug("pattern suggested",
		zap.String("suggestion_id", s.ID),
		zap.String("pattern_id", s.PatternID),
		zap.Float64("score", s.Confidence))
	return s, nil
}

// SubmitPatternFeedback applies feedback to a pattern and returns the
// updated pattern.
func (e *Engine) SubmitPatternFeedback(ctx context.Context, fb learning.Feedback) (learning.WorkflowPattern, error) {
	if err := e.validate.Struct(fb); err != nil {
		return learning.WorkflowPattern{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if fb.SuggestionID == "" && fb.PatternID == "" {
		return learning.WorkflowPattern{}, fmt.Errorf("%w: suggestion_id or pattern_id is required", ErrInvalidRequest)
	}

	p, err := e.learner.SubmitFeedback(fb)
	if err != nil {
		if errors.Is(err, learning.ErrPatternNotFound) {
			return learning.WorkflowPattern{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return learning.WorkflowPattern{}, err
	}

	records := []storage.Record{storage.PatternRecord(p)}
	if fb.SuggestionID != "" {
		if s, ok := e.learner.Suggestion(fb.SuggestionID); ok {
			if exec, ok := e.learner.LatestExecution(s.PatternID, s.SessionID); ok {
				records = append(records, storage.ExecutionRecord(exec))
			}
		}
	}
	e.reindex(ctx, p)
	e.persist(ctx, records...)
	e.metrics.RecordFeedback(fb.Accepted)

	logging.For(ctx, e.logger).Debug("feedback applied",
		zap.String("pattern_id", p.ID),
		zap.Float64("confidence", p.Confidence))
	return p, nil
}

// GetPatternByID returns a pattern or an error wrapping ErrNotFound.
func (e *Engine) GetPatternByID(ctx context.Context, id string) (learning.WorkflowPattern, error) {
	p, ok := e.learner.Pattern(id)
	if !ok {
		return learning.WorkflowPattern{}, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// PatternMatch is a pattern found by SearchPatterns.
type PatternMatch struct {
	Pattern learning.WorkflowPattern `json:"pattern"`
	Score   float64                  `json:"score"`
}

// SearchPatterns finds patterns by tool names, context tags, name or
// description, best match first. A non-empty userID restricts the search to
// that user's patterns.
func (e *Engine) SearchPatterns(ctx context.Context, query, userID string, limit int) ([]PatternMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	hits, err := e.index.SearchByUser(query, userID, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]PatternMatch, 0, len(hits))
	for _, h := range hits {
		if p, ok := e.learner.Pattern(h.PatternID); ok {
			matches = append(matches, PatternMatch{Pattern: p, Score: h.Score})
		}
	}
	logging.For(ctx, e.logger).Debug("pattern search",
		zap.String("query", query),
		zap.String("user_id", userID),
		zap.Int("matches", len(matches)))
	return matches, nil
}

// GetUserPatterns returns the patterns owned by userID.
func (e *Engine) GetUserPatterns(ctx context.Context, userID string) []learning.WorkflowPattern {
	return e.learner.UserPatterns(userID)
}

// LearningMetrics summarises learned patterns and, for a single user, the
// scenario accumulators.
type LearningMetrics struct {
	learning.Metrics

	Flow  *verification.PatternMetrics       `json:"flow_mode,omitempty"`
	Basic *verification.ToolSelectionMetrics `json:"basic_mode,omitempty"`
}

// GetLearningMetrics summarises the patterns of userID, or of every user
// when userID is empty.
func (e *Engine) GetLearningMetrics(ctx context.Context, userID string) LearningMetrics {
	m := LearningMetrics{Metrics: e.learner.Metrics(userID)}
	if userID == "" {
		return m
	}
	if pm := e.tracker.PatternMetrics(userID); pm.TotalExecutions > 0 {
		m.Flow = &pm
	}
	if tm := e.tracker.ToolSelectionMetrics(userID); tm.TotalRequests > 0 {
		m.Basic = &tm
	}
	return m
}

// GetToolRecommendations ranks the available tools for a request.
func (e *Engine) GetToolRecommendations(ctx context.Context, input, userID string, reqContext map[string]any, available []string) []analytics.Recommendation {
	recs := e.analyzer.Recommendations(userID, reqContext, available)
	logging.For(ctx, e.logger).Debug("tool recommendations",
		zap.String("user_id", userID),
		zap.Int("available", len(available)),
		zap.Int("recommended", len(recs)))
	return recs
}

// GetOptimalToolCombination returns the tools of the best scoring recorded
// combination for the context, or nil. Capabilities are recorded for
// diagnostics; tools carry no capability metadata to filter on.
func (e *Engine) GetOptimalToolCombination(ctx context.Context, capabilities []string, reqContext map[string]any, maxTools int) []string {
	tools := e.analyzer.OptimalCombination(reqContext, maxTools)
	logging.For(ctx, e.logger).Debug("optimal tool combination",
		zap.Strings("capabilities", capabilities),
		zap.Strings("tools", tools))
	return tools
}

// RecordFeedbackImprovement stores a before/after measurement.
func (e *Engine) RecordFeedbackImprovement(ctx context.Context, sessionID, userID, metricType string, before, after float64) analytics.FeedbackMetric {
	m := e.analyzer.RecordFeedbackImprovement(sessionID, userID, metricType, before, after)
	e.persist(ctx, storage.FeedbackRecord(m))
	return m
}

// GenerateComprehensiveReport evaluates the success criteria for userID.
func (e *Engine) GenerateComprehensiveReport(ctx context.Context, userID string) (verification.Report, error) {
	if userID == "" {
		return verification.Report{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	r := e.tracker.GenerateReport(userID)
	e.metrics.SetCriteriaMet(userID, r.CriteriaMet)

	logging.For(ctx, e.logger).Info("generated validation report",
		zap.String("user_id", userID),
		zap.Int("criteria_met", r.CriteriaMet),
		zap.Int("total_executions", r.TotalExecutions))
	return r, nil
}

// PhaseAnalysis summarises each phase of a user's scenario. Users without
// executions in the scenario yield an error wrapping verification.ErrNoData.
func (e *Engine) PhaseAnalysis(ctx context.Context, userID string, scenario verification.ScenarioType) (verification.PhaseAnalysis, error) {
	if !scenario.Valid() {
		return verification.PhaseAnalysis{}, fmt.Errorf("%w: %q", verification.ErrUnknownScenario, scenario)
	}
	return e.tracker.PhaseAnalysis(userID, scenario)
}

// Dashboard returns real-time verification figures across users.
func (e *Engine) Dashboard(ctx context.Context) verification.Dashboard {
	return e.tracker.Dashboard()
}

// ToolPerformance analyses one tool over the last days.
func (e *Engine) ToolPerformance(ctx context.Context, tool string, days int) (analytics.ToolPerformance, error) {
	return e.analyzer.Performance(tool, days)
}

// UserToolInsights summarises one user's tool usage.
func (e *Engine) UserToolInsights(ctx context.Context, userID string) (analytics.UserInsights, error) {
	return e.analyzer.UserInsights(userID)
}

// SystemAnalytics summarises all tracked tool usage.
func (e *Engine) SystemAnalytics(ctx context.Context) (analytics.SystemReport, error) {
	return e.analyzer.SystemReport()
}
