package learning

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/trace"
)

// Config holds the thresholds of the learner.
type Config struct {
	// LearningThreshold is the execution count from which confidence
	// follows the success rate.
	LearningThreshold int

	// ConfidenceThreshold is the confidence a pattern needs to be suggested.
	ConfidenceThreshold float64

	// SimilarityThreshold is the minimum tool-sequence similarity for a
	// trace to match a pattern.
	SimilarityThreshold float64

	// SuggestionMinConfidence pre-filters suggestion candidates.
	SuggestionMinConfidence float64

	// InitialConfidence is assigned to newly created patterns.
	InitialConfidence float64

	// RecentWindow bounds the executions counted as recent in Metrics.
	RecentWindow time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		LearningThreshold:       3,
		ConfidenceThreshold:     0.8,
		SimilarityThreshold:     0.8,
		SuggestionMinConfidence: 0.5,
		InitialConfidence:       0.3,
		RecentWindow:            7 * 24 * time.Hour,
	}
}

// Execution is a validated trace to attribute to a pattern.
type Execution struct {
	SessionID string
	UserID    string
	Steps     []trace.Step
	Success   bool
	TotalTime float64
	Context   map[string]any
}

// Outcome describes how an execution was attributed.
type Outcome struct {
	Execution PatternExecution
	Pattern   WorkflowPattern

	// Created is true when no stored pattern matched.
	Created bool

	// Similarity to the matched pattern; 1.0 for created patterns.
	Similarity float64
}

// Learner matches traces to patterns and serves suggestions.
// It is safe for concurrent use; matching and creation happen under a
// single lock so concurrent identical traces never create duplicates.
type Learner struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	patterns    PatternRepository
	executions  []PatternExecution
	suggestions map[string]*PatternSuggestion
	created     int
}

// NewLearner creates a learner over repo. A nil repo uses a
// MemoryRepository and a nil logger discards output.
func NewLearner(cfg Config, repo PatternRepository, logger *zap.Logger) *Learner {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		patterns:    repo,
		suggestions: make(map[string]*PatternSuggestion),
		created:     repo.Len(),
	}
}

// TrackExecution attributes exec to the best matching pattern, creating a
// new pattern when none matches, and records the execution.
func (l *Learner) TrackExecution(exec Execution) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tools := trace.ToolNames(exec.Steps)

	var (
		pattern WorkflowPattern
		created bool
		sim     = 1.0
	)
	if m, ok := bestMatch(l.patterns.List(), tools, l.cfg.SimilarityThreshold); ok {
		pattern, sim = m.pattern, m.similarity
	} else {
		l.created++
		created = true
		pattern = WorkflowPattern{
			ID:          uuid.NewString(),
			Type:        PatternWorkflow,
			Name:        fmt.Sprintf("Pattern_%d", l.created),
			Description: fmt.Sprintf("Auto-learned pattern with %d steps", len(exec.Steps)),
			Steps:       trace.CloneSteps(exec.Steps),
			UserID:      exec.UserID,
			ContextTags: trace.ContextTags(exec.Context),
			Confidence:  l.cfg.InitialConfidence,
			CreatedAt:   now,
		}
	}

	ApplyExecution(&pattern, exec.Success, exec.TotalTime, l.cfg.LearningThreshold)
	pattern.UpdatedAt = now
	l.patterns.Put(pattern)

	record := PatternExecution{
		ID:            uuid.NewString(),
		PatternID:     pattern.ID,
		SessionID:     exec.SessionID,
		UserID:        exec.UserID,
		ExecutionTime: exec.TotalTime,
		Success:       exec.Success,
		Context:       maps.Clone(exec.Context),
		ExecutedAt:    now,
	}
	l.executions = append(l.executions, record)

	if created {
		l.logger.Info("created pattern",
			zap.String("pattern_id", pattern.ID),
			zap.String("user_id", exec.UserID),
			zap.Int("steps", len(exec.Steps)))
	} else {
		l.logger.Debug("matched pattern",
			zap.String("pattern_id", pattern.ID),
			zap.Float64("similarity", sim),
			zap.Float64("confidence", pattern.Confidence))
	}

	return Outcome{
		Execution:  record.Clone(),
		Pattern:    pattern.Clone(),
		Created:    created,
		Similarity: sim,
	}
}

// SuggestPattern returns the best learned pattern for a request, or nil when
// no candidate passes both the score and the confidence gate.
func (l *Learner) SuggestPattern(userID, sessionID string, context map[string]any) *PatternSuggestion {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.patterns.Len() == 0 {
		return nil
	}

	ranked := RankCandidates(l.patterns.List(), userID, trace.ContextTags(context), l.cfg.SuggestionMinConfidence)
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]
	if top.Pattern.Confidence < l.cfg.ConfidenceThreshold {
		l.logger.Debug("top candidate below confidence threshold",
			zap.String("pattern_id", top.Pattern.ID),
			zap.Float64("confidence", top.Pattern.Confidence))
		return nil
	}

	s := &PatternSuggestion{
		ID:          uuid.NewString(),
		PatternID:   top.Pattern.ID,
		UserID:      userID,
		SessionID:   sessionID,
		Confidence:  top.Score,
		SuggestedAt: l.now(),
	}
	l.suggestions[s.ID] = s

	l.logger.Info("suggested pattern",
		zap.String("pattern_id", s.PatternID),
		zap.String("user_id", userID),
		zap.Float64("score", s.Confidence))

	out := s.Clone()
	return &out
}

// SubmitFeedback applies fb to its pattern and returns the updated pattern.
//
// Feedback for a known suggestion is applied at most once. Feedback without a
// suggestion id, or naming one this learner never made, is applied directly
// to fb.PatternID.
func (l *Learner) SubmitFeedback(fb Feedback) (WorkflowPattern, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	patternID := fb.PatternID
	var sugg *PatternSuggestion
	if fb.SuggestionID != "" {
		if s, ok := l.suggestions[fb.SuggestionID]; ok {
			if s.HasFeedback() {
				return WorkflowPattern{}, fmt.Errorf("%w: %s", ErrFeedbackAlreadyRecorded, fb.SuggestionID)
			}
			sugg = s
			if patternID == "" {
				patternID = s.PatternID
			}
		} else if patternID == "" {
			return WorkflowPattern{}, fmt.Errorf("%w: %s", ErrUnknownSuggestion, fb.SuggestionID)
		}
	}

	pattern, ok := l.patterns.Get(patternID)
	if !ok {
		return WorkflowPattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, patternID)
	}

	ApplyFeedback(&pattern, fb.Accepted, fb.Rating, fb.ExecutionSucceeded())
	pattern.UpdatedAt = l.now()
	l.patterns.Put(pattern)

	if sugg != nil {
		accepted := fb.Accepted
		sugg.Accepted = &accepted
		if fb.Rating > 0 {
			rating := fb.Rating
			sugg.Rating = &rating
		}
		sugg.ExecutionResult = maps.Clone(fb.ExecutionResult)
		l.attachFeedback(sugg.PatternID, sugg.SessionID, fb)
	}

	l.logger.Info("applied pattern feedback",
		zap.String("pattern_id", pattern.ID),
		zap.Bool("accepted", fb.Accepted),
		zap.Int("rating", fb.Rating),
		zap.Float64("confidence", pattern.Confidence))

	return pattern.Clone(), nil
}

// attachFeedback records the rating on the latest execution of the pattern
// in the suggestion's session.
func (l *Learner) attachFeedback(patternID, sessionID string, fb Feedback) {
	for i := len(l.executions) - 1; i >= 0; i-- {
		e := &l.executions[i]
		if e.PatternID != patternID || e.SessionID != sessionID {
			continue
		}
		if e.FeedbackRating != nil {
			return
		}
		if fb.Rating > 0 {
			rating := fb.Rating
			e.FeedbackRating = &rating
		}
		e.FeedbackComments = fb.Comments
		return
	}
}

// LatestExecution returns the most recent execution of patternID in
// sessionID.
func (l *Learner) LatestExecution(patternID, sessionID string) (PatternExecution, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.executions) - 1; i >= 0; i-- {
		e := l.executions[i]
		if e.PatternID == patternID && e.SessionID == sessionID {
			return e.Clone(), true
		}
	}
	return PatternExecution{}, false
}

// Pattern returns the pattern with the given id.
func (l *Learner) Pattern(id string) (WorkflowPattern, bool) {
	return l.patterns.Get(id)
}

// Suggestion returns a suggestion made by this learner.
func (l *Learner) Suggestion(id string) (PatternSuggestion, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.suggestions[id]
	if !ok {
		return PatternSuggestion{}, false
	}
	return s.Clone(), true
}

// UserPatterns returns the patterns owned by userID in creation order.
func (l *Learner) UserPatterns(userID string) []WorkflowPattern {
	var out []WorkflowPattern
	for _, p := range l.patterns.List() {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// Executions returns every recorded execution in tracking order.
func (l *Learner) Executions() []PatternExecution {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]PatternExecution, len(l.executions))
	for i, e := range l.executions {
		out[i] = e.Clone()
	}
	return out
}

// Metrics summarises the patterns of userID, or of all users when userID is
// empty. TotalExecutions always counts every tracked execution.
func (l *Learner) Metrics(userID string) Metrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m := Metrics{PatternsByType: make(map[PatternType]int)}

	var sumRate, sumTime float64
	for _, p := range l.patterns.List() {
		m.PatternsByType[p.Type]++
		if userID != "" && p.UserID != userID {
			continue
		}
		m.TotalPatternsLearned++
		if p.Confidence >= l.cfg.ConfidenceThreshold {
			m.ConfidentPatterns++
		}
		sumRate += p.SuccessRate
		sumTime += p.AverageExecutionTime
	}
	denom := float64(max(1, m.TotalPatternsLearned))
	m.LearningEffectiveness = float64(m.ConfidentPatterns) / denom
	m.AverageSuccessRate = sumRate / denom
	m.AverageExecutionTime = sumTime / denom

	cutoff := l.now().Add(-l.cfg.RecentWindow)
	recent, recentOK := 0, 0
	for _, e := range l.executions {
		if e.ExecutedAt.Before(cutoff) {
			continue
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		recent++
		if e.Success {
			recentOK++
		}
	}
	m.RecentSuccessRate = float64(recentOK) / float64(max(1, recent))
	m.TotalExecutions = len(l.executions)
	return m
}

// Load seeds the learner with previously persisted state. Patterns already
// present are replaced. Pattern names continue from the loaded count.
func (l *Learner) Load(patterns []WorkflowPattern, executions []PatternExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range patterns {
		l.patterns.Put(p)
	}
	for _, e := range executions {
		l.executions = append(l.executions, e.Clone())
	}
	l.created = max(l.created, l.patterns.Len())

	l.logger.Info("loaded patterns",
		zap.Int("patterns", len(patterns)),
		zap.Int("executions", len(executions)))
}
