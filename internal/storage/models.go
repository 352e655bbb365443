/*
Package storage provides data models for persisted learning state.

A Record carries one entity to be written; a Snapshot is everything read back
on warm start.
*/
package storage

import (
	"github.com/khanglvm/flowlearn/internal/analytics"
	"github.com/khanglvm/flowlearn/internal/learning"
	"github.com/khanglvm/flowlearn/internal/verification"
)

// RecordKind identifies the entity carried by a Record.
type RecordKind string

const (
	KindPattern          RecordKind = "pattern"
	KindPatternExecution RecordKind = "pattern_execution"
	KindToolUsage        RecordKind = "tool_usage"
	KindToolCombination  RecordKind = "tool_combination"
	KindFeedbackMetric   RecordKind = "feedback_metric"
	KindExecutionMetrics RecordKind = "execution_metrics"
)

// Record is a single entity to persist. Exactly one payload field matching
// Kind is set. Patterns, pattern executions and combinations are upserted;
// the other kinds are appended.
type Record struct {
	Kind RecordKind

	Pattern     *learning.WorkflowPattern
	Execution   *learning.PatternExecution
	Usage       *analytics.ToolUsage
	Combination *analytics.ToolCombination
	Feedback    *analytics.FeedbackMetric
	Metrics     *verification.ExecutionMetrics
}

func (r Record) valid() bool {
	switch r.Kind {
	case KindPattern:
		return r.Pattern != nil
	case KindPatternExecution:
		return r.Execution != nil
	case KindToolUsage:
		return r.Usage != nil
	case KindToolCombination:
		return r.Combination != nil
	case KindFeedbackMetric:
		return r.Feedback != nil
	case KindExecutionMetrics:
		return r.Metrics != nil
	}
	return true
}

// PatternRecord wraps a pattern.
func PatternRecord(p learning.WorkflowPattern) Record {
	p = p.Clone()
	return Record{Kind: KindPattern, Pattern: &p}
}

// ExecutionRecord wraps a pattern execution.
func ExecutionRecord(e learning.PatternExecution) Record {
	e = e.Clone()
	return Record{Kind: KindPatternExecution, Execution: &e}
}

// UsageRecord wraps a tool usage.
func UsageRecord(u analytics.ToolUsage) Record {
	return Record{Kind: KindToolUsage, Usage: &u}
}

// CombinationRecord wraps a tool combination.
func CombinationRecord(c analytics.ToolCombination) Record {
	return Record{Kind: KindToolCombination, Combination: &c}
}

// FeedbackRecord wraps a feedback improvement metric.
func FeedbackRecord(m analytics.FeedbackMetric) Record {
	return Record{Kind: KindFeedbackMetric, Feedback: &m}
}

// MetricsRecord wraps verification execution metrics.
func MetricsRecord(m verification.ExecutionMetrics) Record {
	m = m.Clone()
	return Record{Kind: KindExecutionMetrics, Metrics: &m}
}

// Snapshot is the persisted state read back on start.
type Snapshot struct {
	Patterns        []learning.WorkflowPattern      `json:"patterns"`
	Executions      []learning.PatternExecution     `json:"pattern_executions"`
	Usages          []analytics.ToolUsage           `json:"tool_usage"`
	Combinations    []analytics.ToolCombination     `json:"tool_combinations"`
	FeedbackMetrics []analytics.FeedbackMetric      `json:"feedback_metrics"`
	Metrics         []verification.ExecutionMetrics `json:"execution_metrics"`
}

// Stats reports row counts per table.
type Stats struct {
	Path              string `json:"path"`
	Enabled           bool   `json:"enabled"`
	Patterns          int    `json:"patterns"`
	PatternExecutions int    `json:"pattern_executions"`
	ToolUsages        int    `json:"tool_usage"`
	Combinations      int    `json:"tool_combinations"`
	FeedbackMetrics   int    `json:"feedback_metrics"`
	ExecutionMetrics  int    `json:"execution_metrics"`
}
