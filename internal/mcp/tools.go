package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/engine"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/trace"
	"github.com/khanglvm/flowlearn/internal/verification"
)

type callInput struct {
	Tool          string         `json:"tool" jsonschema:"Name of the invoked tool"`
	Parameters    map[string]any `json:"parameters,omitempty" jsonschema:"Arguments the tool was called with"`
	ExecutionTime float64        `json:"execution_time,omitempty" jsonschema:"Wall time of the call in seconds"`
	Success       bool           `json:"success" jsonschema:"Whether the call succeeded"`
	Output        any            `json:"output,omitempty" jsonschema:"Tool output; only a short summary is kept"`
}

type trackInput struct {
	SessionID          string         `json:"session_id" jsonschema:"Session the run belongs to"`
	UserID             string         `json:"user_id,omitempty" jsonschema:"User who made the request; empty for system-wide runs"`
	Trace              []callInput    `json:"execution_trace" jsonschema:"Tool calls of the run in execution order"`
	Success            bool           `json:"success" jsonschema:"Whether the run as a whole succeeded"`
	TotalTime          float64        `json:"total_execution_time,omitempty" jsonschema:"Wall time of the run in seconds; defaults to the sum of the call times"`
	Context            map[string]any `json:"context,omitempty" jsonschema:"Request context; mode, user_role and time_of_day become pattern tags"`
	Scenario           string         `json:"scenario_type,omitempty" jsonschema:"Learning scenario to also record the run in: flow, basic, 1.1 or 1.2"`
	SuggestionID       string         `json:"suggestion_id,omitempty" jsonschema:"Suggestion returned by suggest_pattern for this run"`
	SuggestionAccepted bool           `json:"suggestion_accepted,omitempty" jsonschema:"Whether the suggested workflow was followed"`
	ExpectedTools      []string       `json:"expected_tools,omitempty" jsonschema:"Tools that should have been chosen (tool selection scenario)"`
	Rating             int            `json:"user_satisfaction_rating,omitempty" jsonschema:"User satisfaction from 1 to 5"`
}

type suggestInput struct {
	Request   string         `json:"request" jsonschema:"The user's request text"`
	UserID    string         `json:"user_id,omitempty" jsonschema:"User making the request"`
	SessionID string         `json:"session_id,omitempty" jsonschema:"Current session"`
	Context   map[string]any `json:"context,omitempty" jsonschema:"Request context (mode, user_role, time_of_day)"`
}

type suggestOutput struct {
	Suggested  bool                        `json:"suggested"`
	Message    string                      `json:"message,omitempty"`
	Suggestion *learning.PatternSuggestion `json:"suggestion,omitempty"`
	Tools      []string                    `json:"tools,omitempty"`
	Pattern    *learning.WorkflowPattern   `json:"pattern,omitempty"`
}

type feedbackInput struct {
	SuggestionID    string         `json:"suggestion_id,omitempty" jsonschema:"Suggestion being rated"`
	PatternID       string         `json:"pattern_id,omitempty" jsonschema:"Pattern being rated when no suggestion id is known"`
	Accepted        bool           `json:"accepted" jsonschema:"Whether the suggestion was accepted"`
	Rating          int            `json:"rating,omitempty" jsonschema:"Rating from 1 to 5"`
	Comments        string         `json:"comments,omitempty" jsonschema:"Free-form comments"`
	ExecutionResult map[string]any `json:"execution_result,omitempty" jsonschema:"Outcome of running the suggested workflow, e.g. {\"success\": true}"`
}

type patternInput struct {
	PatternID string `json:"pattern_id" jsonschema:"The pattern_id returned by track_execution or suggest_pattern (not the Pattern_N display name)"`
}

type searchInput struct {
	Query  string `json:"query" jsonschema:"Keywords: tool names (send_slack or slack), context tags or pattern names"`
	UserID string `json:"user_id,omitempty" jsonschema:"Only search this user's patterns"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 10)"`
}

type metricsInput struct {
	UserID          string `json:"user_id,omitempty" jsonschema:"User to summarise; empty for all users"`
	IncludePatterns bool   `json:"include_patterns,omitempty" jsonschema:"Also list the user's learned patterns"`
}

type metricsOutput struct {
	engine.LearningMetrics
	Patterns []learning.WorkflowPattern `json:"patterns,omitempty"`
}

type recommendInput struct {
	Request        string         `json:"request,omitempty" jsonschema:"The user's request text"`
	UserID         string         `json:"user_id,omitempty" jsonschema:"User making the request"`
	Context        map[string]any `json:"context,omitempty" jsonschema:"Request context (mode, user_role, time_of_day)"`
	AvailableTools []string       `json:"available_tools" jsonschema:"Tools the agent can choose from"`
	MaxTools       int            `json:"max_tools,omitempty" jsonschema:"When set, also return the best recorded combination of at most this many tools"`
	Capabilities   []string       `json:"capabilities,omitempty" jsonschema:"Capabilities the request needs"`
}

type recommendOutput struct {
	Recommendations    []analytics.Recommendation `json:"recommendations"`
	OptimalCombination []string                   `json:"optimal_combination,omitempty"`
}

type reportInput struct {
	UserID   string `json:"user_id,omitempty" jsonschema:"User to evaluate; empty returns the cross-user dashboard"`
	Scenario string `json:"scenario_type,omitempty" jsonschema:"When set, return the per-phase analysis of this scenario (flow, basic, 1.1 or 1.2)"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "track_execution",
		Description: `Record a completed run so its tool sequence can be learned.

WHEN TO USE: After every run that called tools, successful or not.

Runs with a similar tool sequence (same length, similarity >= 0.8) reinforce
an existing pattern; others create a new one. Pass suggestion_id when the run
followed a suggest_pattern result.`,
	}, s.handleTrackExecution)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "suggest_pattern",
		Description: `Get a learned workflow for a request before planning one.

WHEN TO USE: At the start of a request. If a suggestion is returned, run its
tools in order instead of planning from scratch.

Only patterns with confidence >= 0.8 are suggested.`,
	}, s.handleSuggestPattern)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "submit_feedback",
		Description: `Report whether a suggested workflow helped.

WHEN TO USE: After acting on a suggest_pattern result.

Accepted suggestions with a rating raise the pattern's confidence; others
lower it.`,
	}, s.handleSubmitFeedback)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "get_pattern",
		Description: `Get one learned workflow pattern with its steps and statistics.

WHEN TO USE: To inspect a pattern referenced by a suggestion or a tracked run.`,
	}, s.handleGetPattern)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_patterns",
		Description: `Find learned workflow patterns by keyword (BM25 ranking).

WHEN TO USE: To check whether a workflow using a given tool was learned, or to
browse a user's patterns by tool or context.

Example: search_patterns(query="slack", user_id="alice")`,
	}, s.handleSearchPatterns)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "learning_metrics",
		Description: `Summarise what has been learned for a user or for everyone.

Returns: pattern counts, learning effectiveness and, when scenarios were
tracked, the flow and tool selection metrics.`,
	}, s.handleLearningMetrics)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "tool_recommendations",
		Description: `Rank candidate tools for a request from past usage.

WHEN TO USE: When several tools could serve a request and no pattern was
suggested.

Tools with no usable history are left out of the ranking.`,
	}, s.handleToolRecommendations)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "validation_report",
		Description: `Evaluate the learning success criteria.

WHEN TO USE: To check whether learning is working for a user.

With user_id: the comprehensive report. With user_id and scenario_type: the
per-phase analysis. Without user_id: the cross-user dashboard.`,
	}, s.handleValidationReport)
}

func (s *Server) handleTrackExecution(ctx context.Context, _ *mcp.CallToolRequest, in trackInput) (*mcp.CallToolResult, any, error) {
	req := engine.TrackRequest{
		SessionID:          in.SessionID,
		UserID:             in.UserID,
		Trace:              make([]trace.Call, len(in.Trace)),
		Success:            in.Success,
		TotalTime:          in.TotalTime,
		Context:            in.Context,
		SuggestionID:       in.SuggestionID,
		SuggestionAccepted: in.SuggestionAccepted,
		ExpectedTools:      in.ExpectedTools,
	}
	for i, c := range in.Trace {
		req.Trace[i] = trace.Call{
			Tool:          c.Tool,
			Parameters:    c.Parameters,
			ExecutionTime: c.ExecutionTime,
			Success:       c.Success,
			Output:        c.Output,
		}
	}
	if in.Scenario != "" {
		sc, err := verification.ParseScenario(in.Scenario)
		if err != nil {
			return s.fail("track_execution", fmt.Errorf("%w: %w", verification.ErrUnknownScenario, err))
		}
		req.Scenario = sc
	}
	if in.Rating != 0 {
		rating := in.Rating
		req.Rating = &rating
	}

	res, err := s.engine.TrackExecution(ctx, req)
	if err != nil {
		return s.fail("track_execution", err)
	}
	return textResult(res)
}

func (s *Server) handleSuggestPattern(ctx context.Context, _ *mcp.CallToolRequest, in suggestInput) (*mcp.CallToolResult, any, error) {
	sug, err := s.engine.SuggestPattern(ctx, in.Request, in.UserID, in.SessionID, in.Context)
	if err != nil {
		return s.fail("suggest_pattern", err)
	}
	if sug == nil {
		return textResult(suggestOutput{
			Message: "No confident pattern for this request. Plan the workflow and report it with track_execution.",
		})
	}

	out := suggestOutput{Suggested: true, Suggestion: sug}
	if p, err := s.engine.GetPatternByID(ctx, sug.PatternID); err == nil {
		out.Tools = p.ToolNames()
		out.Pattern = &p
	}
	return textResult(out)
}

func (s *Server) handleSubmitFeedback(ctx context.Context, _ *mcp.CallToolRequest, in feedbackInput) (*mcp.CallToolResult, any, error) {
	p, err := s.engine.SubmitPatternFeedback(ctx, learning.Feedback{
		SuggestionID:    in.SuggestionID,
		PatternID:       in.PatternID,
		Accepted:        in.Accepted,
		Rating:          in.Rating,
		Comments:        in.Comments,
		ExecutionResult: in.ExecutionResult,
	})
	if err != nil {
		return s.fail("submit_feedback", err)
	}
	return textResult(p)
}

func (s *Server) handleGetPattern(ctx context.Context, _ *mcp.CallToolRequest, in patternInput) (*mcp.CallToolResult, any, error) {
	p, err := s.engine.GetPatternByID(ctx, in.PatternID)
	if err != nil {
		return s.fail("get_pattern", fmt.Errorf("pattern %q: %w", in.PatternID, err))
	}
	return textResult(p)
}

func (s *Server) handleSearchPatterns(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
	matches, err := s.engine.SearchPatterns(ctx, in.Query, in.UserID, in.Limit)
	if err != nil {
		return s.fail("search_patterns", err)
	}
	return textResult(map[string]any{
		"query":   in.Query,
		"count":   len(matches),
		"matches": matches,
	})
}

func (s *Server) handleLearningMetrics(ctx context.Context, _ *mcp.CallToolRequest, in metricsInput) (*mcp.CallToolResult, any, error) {
	out := metricsOutput{LearningMetrics: s.engine.GetLearningMetrics(ctx, in.UserID)}
	if in.IncludePatterns {
		out.Patterns = s.engine.GetUserPatterns(ctx, in.UserID)
	}
	return textResult(out)
}

func (s *Server) handleToolRecommendations(ctx context.Context, _ *mcp.CallToolRequest, in recommendInput) (*mcp.CallToolResult, any, error) {
	out := recommendOutput{
		Recommendations: s.engine.GetToolRecommendations(ctx, in.Request, in.UserID, in.Context, in.AvailableTools),
	}
	if out.Recommendations == nil {
		out.Recommendations = []analytics.Recommendation{}
	}
	if in.MaxTools > 0 {
		out.OptimalCombination = s.engine.GetOptimalToolCombination(ctx, in.Capabilities, in.Context, in.MaxTools)
	}
	return textResult(out)
}

func (s *Server) handleValidationReport(ctx context.Context, _ *mcp.CallToolRequest, in reportInput) (*mcp.CallToolResult, any, error) {
	if in.UserID == "" {
		return textResult(s.engine.Dashboard(ctx))
	}

	if in.Scenario != "" {
		sc, err := verification.ParseScenario(in.Scenario)
		if err != nil {
			return s.fail("validation_report", fmt.Errorf("%w: %w", verification.ErrUnknownScenario, err))
		}
		pa, err := s.engine.PhaseAnalysis(ctx, in.UserID, sc)
		if err != nil {
			return s.fail("validation_report", err)
		}
		return textResult(pa)
	}

	r, err := s.engine.GenerateComprehensiveReport(ctx, in.UserID)
	if err != nil {
		return s.fail("validation_report", err)
	}
	return textResult(r)
}

// fail logs a tool error. The SDK reports it to the client as a tool result
// with IsError set.
func (s *Server) fail(tool string, err error) (*mcp.CallToolResult, any, error) {
	s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	return nil, nil, err
}

func textResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
