/*
Package learning clusters execution traces into workflow patterns and
suggests learned patterns for new requests.

A trace matches a stored pattern when both have the same number of steps and
their tool-name sequences are at least 80% similar. Each matched or newly
created pattern carries running success statistics and a confidence score,
which explicit feedback on suggestions can raise or lower.
*/
package learning

import (
	"errors"
	"maps"
	"time"

	"github.com/khanglvm/flowlearn/internal/trace"
)

// PatternType classifies what a pattern captures.
type PatternType string

const (
	PatternWorkflow       PatternType = "workflow"
	PatternToolSelection  PatternType = "tool_selection"
	PatternUserPreference PatternType = "user_preference"
)

var (
	// ErrPatternNotFound is returned when a pattern id is unknown.
	ErrPatternNotFound = errors.New("pattern not found")

	// ErrUnknownSuggestion is returned when feedback names a suggestion that
	// was never made and carries no pattern id to fall back on.
	ErrUnknownSuggestion = errors.New("unknown suggestion")

	// ErrFeedbackAlreadyRecorded is returned when a suggestion already
	// carries feedback.
	ErrFeedbackAlreadyRecorded = errors.New("feedback already recorded for suggestion")
)

// WorkflowPattern is a learned tool sequence with its aggregate statistics.
type WorkflowPattern struct {
	ID                   string       `json:"pattern_id"`
	Type                 PatternType  `json:"pattern_type"`
	Name                 string       `json:"name"`
	Description          string       `json:"description"`
	Steps                []trace.Step `json:"steps"`
	TotalExecutions      int          `json:"total_executions"`
	SuccessfulExecutions int          `json:"successful_executions"`
	SuccessRate          float64      `json:"success_rate"`
	AverageExecutionTime float64      `json:"average_execution_time"`

	// UserID is the owning user. Empty means the pattern is system-wide.
	UserID      string    `json:"user_id,omitempty"`
	ContextTags []string  `json:"context_tags"`
	Confidence  float64   `json:"confidence_score"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToolNames returns the pattern's ordered tool sequence.
func (p WorkflowPattern) ToolNames() []string {
	return trace.ToolNames(p.Steps)
}

// Clone returns a deep copy of p.
func (p WorkflowPattern) Clone() WorkflowPattern {
	p.Steps = trace.CloneSteps(p.Steps)
	p.ContextTags = append([]string(nil), p.ContextTags...)
	return p
}

// PatternExecution records one tracked run attributed to a pattern.
type PatternExecution struct {
	ID               string         `json:"execution_id"`
	PatternID        string         `json:"pattern_id"`
	SessionID        string         `json:"session_id"`
	UserID           string         `json:"user_id"`
	ExecutionTime    float64        `json:"execution_time"`
	Success          bool           `json:"success"`
	FeedbackRating   *int           `json:"feedback_rating,omitempty"`
	FeedbackComments string         `json:"feedback_comments,omitempty"`
	Context          map[string]any `json:"context"`
	ExecutedAt       time.Time      `json:"executed_at"`
}

// Clone returns a deep copy of e.
func (e PatternExecution) Clone() PatternExecution {
	e.Context = maps.Clone(e.Context)
	if e.FeedbackRating != nil {
		r := *e.FeedbackRating
		e.FeedbackRating = &r
	}
	return e
}

// PatternSuggestion is a pattern offered to a user for a new request.
type PatternSuggestion struct {
	ID        string `json:"suggestion_id"`
	PatternID string `json:"pattern_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`

	// Confidence is the match score at suggestion time.
	Confidence  float64   `json:"confidence_score"`
	SuggestedAt time.Time `json:"suggested_at"`

	Accepted        *bool          `json:"accepted,omitempty"`
	Rating          *int           `json:"user_rating,omitempty"`
	ExecutionResult map[string]any `json:"execution_result,omitempty"`
}

// HasFeedback reports whether feedback was already applied.
func (s PatternSuggestion) HasFeedback() bool {
	return s.Accepted != nil
}

// Clone returns a deep copy of s.
func (s PatternSuggestion) Clone() PatternSuggestion {
	if s.Accepted != nil {
		a := *s.Accepted
		s.Accepted = &a
	}
	if s.Rating != nil {
		r := *s.Rating
		s.Rating = &r
	}
	s.ExecutionResult = maps.Clone(s.ExecutionResult)
	return s
}

// Feedback is a judgement on a suggestion.
type Feedback struct {
	SuggestionID string `json:"suggestion_id,omitempty"`
	PatternID    string `json:"pattern_id,omitempty"`
	Accepted     bool   `json:"accepted"`

	// Rating is 1-5; zero means unrated.
	Rating          int            `json:"rating,omitempty" validate:"gte=0,lte=5"`
	Comments        string         `json:"comments,omitempty"`
	ExecutionResult map[string]any `json:"execution_result,omitempty"`
}

// ExecutionSucceeded reports whether the execution result carries a true
// "success" flag.
func (f Feedback) ExecutionSucceeded() bool {
	ok, _ := f.ExecutionResult["success"].(bool)
	return ok
}

// Metrics summarises the learned patterns of one user or of all users.
type Metrics struct {
	TotalPatternsLearned  int                 `json:"total_patterns_learned"`
	ConfidentPatterns     int                 `json:"confident_patterns"`
	LearningEffectiveness float64             `json:"learning_effectiveness"`
	AverageSuccessRate    float64             `json:"average_success_rate"`
	AverageExecutionTime  float64             `json:"average_execution_time"`
	RecentSuccessRate     float64             `json:"recent_success_rate"`
	TotalExecutions       int                 `json:"total_executions"`

	// PatternsByType always counts the patterns of every user.
	PatternsByType map[PatternType]int `json:"patterns_by_type"`
}
