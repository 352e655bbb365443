/*
Package simulate drives the learning engine with scripted agent sessions.

A simulated agent plans tool calls, asks the engine for a learned pattern
first and follows it when one is suggested. Tool latencies and failures are
synthetic and reproducible from a seed, so a run measures the learning loop
rather than real tools.
*/
package simulate

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/engine"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/logging"
	"github.com/khanglvm/flowlearn/internal/trace"
	"github.com/khanglvm/flowlearn/internal/verification"
)

// planningTime is the time in seconds an agent spends planning a request
// it has no pattern for.
const planningTime = 2.0

// defaultLatency is used for tools missing from Options.Latency.
const defaultLatency = 1.0

// DefaultLatency holds the nominal execution time of the simulated tools.
var DefaultLatency = map[string]float64{
	"analyze_text":    0.7,
	"search_database": 1.5,
	"send_slack":      0.5,
	"send_email":      0.8,
	"emergency_mail":  0.6,
}

// DefaultReliability holds the success probability of the simulated tools.
// Tools not listed always succeed.
var DefaultReliability = map[string]float64{
	"send_email":     0.7,
	"emergency_mail": 0.5,
}

// Backend is the subset of the engine a simulation needs.
type Backend interface {
	TrackExecution(ctx context.Context, req engine.TrackRequest) (engine.TrackResult, error)
	SuggestPattern(ctx context.Context, input, userID, sessionID string, reqContext map[string]any) (*learning.PatternSuggestion, error)
	SubmitPatternFeedback(ctx context.Context, fb learning.Feedback) (learning.WorkflowPattern, error)
	GetPatternByID(ctx context.Context, id string) (learning.WorkflowPattern, error)
	GetToolRecommendations(ctx context.Context, input, userID string, reqContext map[string]any, available []string) []analytics.Recommendation
	GetLearningMetrics(ctx context.Context, userID string) engine.LearningMetrics
	RecordFeedbackImprovement(ctx context.Context, sessionID, userID, metricType string, before, after float64) analytics.FeedbackMetric
}

// Options tunes a Simulator.
type Options struct {
	// Seed drives every random draw. Runs with equal seeds are identical.
	Seed int64

	// Epsilon is the exploration rate of basic-mode tool choice. Negative
	// uses the default of 0.1.
	Epsilon float64

	// Jitter is the relative latency noise, e.g. 0.1 for ±10%.
	Jitter float64

	// Executions overrides the scenario's execution count when positive.
	Executions int

	// Concurrency bounds parallel user runs in RunUsers. Zero means one
	// goroutine per user.
	Concurrency int

	Latency     map[string]float64
	Reliability map[string]float64
	Logger      *zap.Logger
}

// DefaultOptions returns the standard simulation settings.
func DefaultOptions() Options {
	return Options{
		Seed:        1,
		Epsilon:     defaultEpsilon,
		Jitter:      0.1,
		Latency:     DefaultLatency,
		Reliability: DefaultReliability,
	}
}

// Iteration is the outcome of one simulated request.
type Iteration struct {
	Number        int      `json:"iteration"`
	SessionID     string   `json:"session_id"`
	Message       string   `json:"message"`
	Tools         []string `json:"tools_used"`
	ExecutionTime float64  `json:"execution_time"`
	SuccessRate   float64  `json:"success_rate"`
	Explored      bool     `json:"explored,omitempty"`

	PatternSuggested  bool    `json:"pattern_suggested"`
	PatternID         string  `json:"pattern_id,omitempty"`
	PatternConfidence float64 `json:"pattern_confidence"`

	ToolAccuracy float64            `json:"tool_accuracy"`
	Phase        verification.Phase `json:"phase"`
}

// Result is the outcome of one scenario run for one user.
type Result struct {
	ScenarioID   string                             `json:"scenario_id"`
	ScenarioName string                             `json:"scenario_name"`
	UserID       string                             `json:"user_id"`
	Iterations   []Iteration                        `json:"execution_results"`
	Flow         *verification.PatternMetrics       `json:"flow_metrics,omitempty"`
	Basic        *verification.ToolSelectionMetrics `json:"basic_metrics,omitempty"`
	CompletedAt  time.Time                          `json:"completion_time"`
}

// Simulator runs scenarios against a Backend.
type Simulator struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
}

// New creates a simulator.
func New(backend Backend, opts Options) *Simulator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Latency == nil {
		opts.Latency = DefaultLatency
	}
	if opts.Reliability == nil {
		opts.Reliability = DefaultReliability
	}
	return &Simulator{backend: backend, opts: opts, logger: opts.Logger}
}

// RunUsers runs sc for every user concurrently. Each user draws from its own
// source derived from the seed. The first failure cancels the other runs.
func (s *Simulator) RunUsers(ctx context.Context, sc Scenario, users []string) ([]Result, error) {
	results := make([]Result, len(users))
	g, gCtx := errgroup.WithContext(ctx)
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for i, user := range users {
		g.Go(func() error {
			r, err := s.run(gCtx, sc, user, s.opts.Seed+int64(i))
			if err != nil {
				return fmt.Errorf("user %s: %w", user, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Run executes sc for one user.
func (s *Simulator) Run(ctx context.Context, sc Scenario, userID string) (Result, error) {
	return s.run(ctx, sc, userID, s.opts.Seed)
}

func (s *Simulator) run(ctx context.Context, sc Scenario, userID string, seed int64) (Result, error) {
	if !sc.Type.Valid() {
		return Result{}, fmt.Errorf("%w: %q", verification.ErrUnknownScenario, sc.Type)
	}
	n := sc.Executions
	if s.opts.Executions > 0 {
		n = s.opts.Executions
	}

	a := &agent{
		sim:    s,
		sc:     sc,
		userID: userID,
		policy: NewEpsilonGreedy(s.opts.Epsilon, seed),
	}
	log := s.logger.With(zap.String("scenario", sc.ID), zap.String("user_id", userID))
	log.Info("starting scenario", zap.Int("executions", n))

	res := Result{ScenarioID: sc.ID, ScenarioName: sc.Name, UserID: userID}
	for i := range n {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		it, err := a.execute(ctx, i)
		if err != nil {
			return res, fmt.Errorf("iteration %d: %w", i+1, err)
		}
		res.Iterations = append(res.Iterations, it)
		log.Debug("iteration complete",
			zap.Int("iteration", it.Number),
			zap.Float64("execution_time", it.ExecutionTime),
			zap.Bool("pattern_suggested", it.PatternSuggested))
	}

	m := s.backend.GetLearningMetrics(ctx, userID)
	res.Flow, res.Basic = m.Flow, m.Basic
	s.recordImprovement(ctx, sc, userID, m)
	res.CompletedAt = time.Now()

	log.Info("scenario completed", zap.Int("iterations", len(res.Iterations)))
	return res, nil
}

// recordImprovement stores the before/after figure the scenario targets.
func (s *Simulator) recordImprovement(ctx context.Context, sc Scenario, userID string, m engine.LearningMetrics) {
	session := fmt.Sprintf("scenario_%s_%s", sc.ID, userID)
	switch {
	case sc.Type == verification.ScenarioFlowPatternLearning && m.Flow != nil && m.Flow.OptimizedAvgTime > 0:
		s.backend.RecordFeedbackImprovement(ctx, session, userID, "execution_time", m.Flow.BaselineAvgTime, m.Flow.OptimizedAvgTime)
	case sc.Type == verification.ScenarioBasicToolSelection && m.Basic != nil && m.Basic.CurrentAccuracy > 0:
		s.backend.RecordFeedbackImprovement(ctx, session, userID, "tool_selection_accuracy", m.Basic.InitialAccuracy, m.Basic.CurrentAccuracy)
	}
}

// agent is one simulated user working through a scenario.
type agent struct {
	sim    *Simulator
	sc     Scenario
	userID string
	policy *EpsilonGreedy
}

func (a *agent) execute(ctx context.Context, i int) (Iteration, error) {
	sc := a.sc
	it := Iteration{
		Number:    i + 1,
		SessionID: fmt.Sprintf("scenario_%s_%s_%d", sc.ID, a.userID, i+1),
		Message:   sc.Message(i),
	}
	ctx = logging.WithSession(ctx, it.SessionID, a.userID)
	reqContext := map[string]any{"mode": sc.Mode, "simulated": true}
	if sc.Urgency != "" {
		reqContext["urgency"] = sc.Urgency
	}

	suggestion, err := a.sim.backend.SuggestPattern(ctx, it.Message, a.userID, it.SessionID, reqContext)
	if err != nil {
		return it, err
	}

	var tools []string
	overhead := planningTime
	if suggestion != nil {
		p, err := a.sim.backend.GetPatternByID(ctx, suggestion.PatternID)
		if err != nil {
			return it, err
		}
		tools = p.ToolNames()
		overhead = 0
		it.PatternSuggested = true
		it.PatternID = p.ID
		it.PatternConfidence = suggestion.Confidence
	} else {
		tools, it.Explored = a.plan(ctx, it.Message, reqContext)
	}

	calls := a.invoke(tools, it.Message)
	success := true
	for _, c := range calls {
		success = success && c.Success
	}
	it.Tools = tools
	if sc.Type == verification.ScenarioBasicToolSelection {
		it.ToolAccuracy = verification.ToolAccuracy(tools, sc.ExpectedTools)
	}

	req := engine.TrackRequest{
		SessionID:     it.SessionID,
		UserID:        a.userID,
		Trace:         calls,
		Success:       success,
		Context:       reqContext,
		Scenario:      sc.Type,
		ExpectedTools: sc.ExpectedTools,
	}
	if suggestion != nil {
		req.SuggestionID = suggestion.ID
		req.SuggestionAccepted = true
	}
	if sc.Type == verification.ScenarioBasicToolSelection {
		rating := satisfaction(it.ToolAccuracy, success)
		req.Rating = &rating
	}
	total := overhead
	for _, c := range calls {
		total += c.ExecutionTime
	}
	req.TotalTime = total

	res, err := a.sim.backend.TrackExecution(ctx, req)
	if err != nil {
		return it, err
	}
	it.ExecutionTime = total
	if res.Verification != nil {
		it.SuccessRate = res.Verification.SuccessRate
		it.Phase = res.Verification.Phase
	}

	if suggestion != nil {
		rating := 5
		if !success {
			rating = 2
		}
		_, err := a.sim.backend.SubmitPatternFeedback(ctx, learning.Feedback{
			SuggestionID:    suggestion.ID,
			Accepted:        success,
			Rating:          rating,
			ExecutionResult: map[string]any{"success": success},
		})
		if err != nil {
			return it, fmt.Errorf("submit feedback: %w", err)
		}
	}
	return it, nil
}

// plan chooses the tools for a request without a suggestion.
func (a *agent) plan(ctx context.Context, message string, reqContext map[string]any) ([]string, bool) {
	if len(a.sc.Workflow) > 0 {
		return slices.Clone(a.sc.Workflow), false
	}
	ranked := a.sim.backend.GetToolRecommendations(ctx, message, a.userID, reqContext, a.sc.Candidates)
	tool, explored := a.policy.SelectTool(a.sc.Candidates, ranked)
	if tool == "" {
		return nil, explored
	}
	return []string{tool}, explored
}

// invoke fabricates the calls of tools with synthetic latency and outcome.
func (a *agent) invoke(tools []string, message string) []trace.Call {
	opts := a.sim.opts
	calls := make([]trace.Call, 0, len(tools))
	for _, tool := range tools {
		latency, ok := opts.Latency[tool]
		if !ok {
			latency = defaultLatency
		}
		if opts.Jitter > 0 {
			latency *= 1 + opts.Jitter*(2*a.policy.Float64()-1)
		}
		success := true
		if p, ok := opts.Reliability[tool]; ok {
			success = a.policy.Float64() < p
		}
		output := fmt.Sprintf("Simulated %s execution", tool)
		if !success {
			output = fmt.Sprintf("Simulated %s failure", tool)
		}
		calls = append(calls, trace.Call{
			Tool:          tool,
			Parameters:    map[string]any{"text": message},
			ExecutionTime: math.Round(latency*1000) / 1000,
			Success:       success,
			Output:        output,
		})
	}
	return calls
}

// satisfaction maps a selection outcome onto a 1-5 rating.
func satisfaction(accuracy float64, success bool) int {
	switch {
	case !success:
		return 2
	case accuracy >= 1:
		return 5
	default:
		return 3
	}
}

// ScenarioStatus reports a user's progress through a scenario.
type ScenarioStatus struct {
	ScenarioID          string  `json:"scenario_id"`
	UserID              string  `json:"user_id"`
	Progress            float64 `json:"progress"`
	CurrentPhase        string  `json:"current_phase"`
	ExecutionsCompleted int     `json:"executions_completed"`
	TargetExecutions    int     `json:"target_executions"`
}

// Status reports how far userID is through sc.
func Status(ctx context.Context, backend Backend, sc Scenario, userID string) ScenarioStatus {
	st := ScenarioStatus{
		ScenarioID:       sc.ID,
		UserID:           userID,
		CurrentPhase:     "not_started",
		TargetExecutions: sc.Executions,
	}
	m := backend.GetLearningMetrics(ctx, userID)
	switch sc.Type {
	case verification.ScenarioFlowPatternLearning:
		if m.Flow != nil {
			st.ExecutionsCompleted = m.Flow.TotalExecutions
		}
	case verification.ScenarioBasicToolSelection:
		if m.Basic != nil {
			st.ExecutionsCompleted = m.Basic.TotalRequests
		}
	}
	if st.ExecutionsCompleted > 0 {
		st.CurrentPhase = string(verification.PhaseFor(st.ExecutionsCompleted))
		if sc.Executions > 0 {
			st.Progress = math.Min(float64(st.ExecutionsCompleted)/float64(sc.Executions), 1)
		}
	}
	return st
}
