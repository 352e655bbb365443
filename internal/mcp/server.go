/*
Package mcp implements the flowlearn tool server.

It exposes the learning engine to AI clients as MCP tools over stdio:
  - track_execution: Record a completed run and learn from its tool sequence
  - suggest_pattern: Ask for a learned workflow before planning
  - submit_feedback: Report whether a suggestion helped
  - get_pattern: Inspect one learned workflow pattern
  - search_patterns: Find learned patterns by tool, tag or name
  - learning_metrics: Summarise what has been learned
  - tool_recommendations: Rank tools for a request from usage history
  - validation_report: Evaluate the success criteria of the learning scenarios
*/
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/engine"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/verification"
	"github.com/khanglvm/flowlearn/internal/version"
)

// Engine is the part of the learning engine the tools call into.
type Engine interface {
	TrackExecution(ctx context.Context, req engine.TrackRequest) (engine.TrackResult, error)
	SuggestPattern(ctx context.Context, input, userID, sessionID string, reqContext map[string]any) (*learning.PatternSuggestion, error)
	SubmitPatternFeedback(ctx context.Context, fb learning.Feedback) (learning.WorkflowPattern, error)
	GetPatternByID(ctx context.Context, id string) (learning.WorkflowPattern, error)
	GetUserPatterns(ctx context.Context, userID string) []learning.WorkflowPattern
	SearchPatterns(ctx context.Context, query, userID string, limit int) ([]engine.PatternMatch, error)
	GetLearningMetrics(ctx context.Context, userID string) engine.LearningMetrics
	GetToolRecommendations(ctx context.Context, input, userID string, reqContext map[string]any, available []string) []analytics.Recommendation
	GetOptimalToolCombination(ctx context.Context, capabilities []string, reqContext map[string]any, maxTools int) []string
	GenerateComprehensiveReport(ctx context.Context, userID string) (verification.Report, error)
	PhaseAnalysis(ctx context.Context, userID string, scenario verification.ScenarioType) (verification.PhaseAnalysis, error)
	Dashboard(ctx context.Context) verification.Dashboard
}

// Config configures the tool server.
type Config struct {
	// Name is the implementation name reported to clients (default: "flowlearn")
	Name string

	// Version is the implementation version (default: the build version)
	Version string

	Logger *zap.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "flowlearn",
		Version: version.Implementation(),
		Logger:  zap.NewNop(),
	}
}

// Server serves the learning engine as MCP tools.
type Server struct {
	mcp    *mcp.Server
	engine Engine
	logger *zap.Logger
}

// NewServer creates a tool server over eng and registers every tool.
func NewServer(cfg *Config, eng Engine) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		engine: eng,
		logger: cfg.Logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over transport and returns immediately.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
