/*
Package analytics tracks individual tool usage and tool combinations and
turns that history into per-user preferences and tool recommendations.
*/
package analytics

import (
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// ErrNoData is returned by reports that have no usage to summarise.
var ErrNoData = errors.New("no analytics data available")

// ToolUsage is one tool invocation. Records are append-only.
type ToolUsage struct {
	ToolName       string         `json:"tool_name" validate:"required"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id"`
	ExecutionTime  float64        `json:"execution_time" validate:"gte=0"`
	Success        bool           `json:"success"`
	Context        map[string]any `json:"context,omitempty"`
	ParametersUsed map[string]any `json:"parameters_used,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

func (u ToolUsage) clone() ToolUsage {
	u.Context = maps.Clone(u.Context)
	u.ParametersUsed = maps.Clone(u.ParametersUsed)
	return u
}

// ToolCombination aggregates executions that used the same multiset of tools.
type ToolCombination struct {
	Key                  string    `json:"combination_key"`
	Tools                []string  `json:"tools"`
	SuccessRate          float64   `json:"success_rate"`
	AverageExecutionTime float64   `json:"average_execution_time"`
	UsageCount           int       `json:"usage_count"`
	ContextPattern       string    `json:"context_pattern"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (c ToolCombination) clone() ToolCombination {
	c.Tools = slices.Clone(c.Tools)
	return c
}

// CombinationKey returns the canonical key of a tool multiset: the sorted
// names joined by "_". Duplicates are kept.
func CombinationKey(tools []string) string {
	sorted := slices.Clone(tools)
	sort.Strings(sorted)
	return strings.Join(sorted, "_")
}

// UserToolPreference is how well a tool has served one user.
type UserToolPreference struct {
	UserID             string    `json:"user_id"`
	ToolName           string    `json:"tool_name"`
	PreferenceScore    float64   `json:"preference_score"`
	ContextTags        []string  `json:"context_tags"`
	UsageFrequency     int       `json:"usage_frequency"`
	LastUsed           time.Time `json:"last_used"`
	SatisfactionScores []float64 `json:"satisfaction_scores"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (p UserToolPreference) clone() UserToolPreference {
	p.ContextTags = slices.Clone(p.ContextTags)
	p.SatisfactionScores = slices.Clone(p.SatisfactionScores)
	return p
}

// FeedbackMetric records a before/after measurement attributed to feedback.
type FeedbackMetric struct {
	SessionID             string    `json:"session_id"`
	UserID                string    `json:"user_id"`
	MetricType            string    `json:"metric_type"`
	BeforeValue           float64   `json:"before_value"`
	AfterValue            float64   `json:"after_value"`
	ImprovementPercentage float64   `json:"improvement_percentage"`
	Timestamp             time.Time `json:"timestamp"`
}

// Recommendation is a candidate tool with its score.
type Recommendation struct {
	Tool  string  `json:"tool"`
	Score float64 `json:"score"`
}

// ToolCount pairs a tool with a usage count.
type ToolCount struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// ToolRate pairs a tool with a success rate.
type ToolRate struct {
	Tool        string  `json:"tool"`
	SuccessRate float64 `json:"success_rate"`
}

// ToolPerformance summarises one tool over a period.
type ToolPerformance struct {
	ToolName             string             `json:"tool_name"`
	PeriodDays           int                `json:"period_days"`
	TotalUses            int                `json:"total_uses"`
	SuccessRate          float64            `json:"success_rate"`
	AverageExecutionTime float64            `json:"average_execution_time"`
	UniqueUsers          int                `json:"unique_users"`
	DailySuccessRates    map[string]float64 `json:"daily_success_rates"`
	ContextPerformance   map[string]float64 `json:"context_performance"`
	PerformanceTrend     Trend              `json:"performance_trend"`
}

// UserInsights summarises one user's tool usage.
type UserInsights struct {
	UserID              string             `json:"user_id"`
	TotalToolUses       int                `json:"total_tool_uses"`
	MostUsedTools       []ToolCount        `json:"most_used_tools"`
	BestPerformingTools []ToolRate         `json:"best_performing_tools"`
	PeakUsageHours      []int              `json:"peak_usage_hours"`
	OverallSuccessRate  float64            `json:"overall_success_rate"`
	RecentImprovements  map[string]float64 `json:"recent_improvements"`
	Preferences         map[string]float64 `json:"preferences"`
}

// CombinationStat is a combination's ranking entry in SystemReport.
type CombinationStat struct {
	Tools       []string `json:"tools"`
	SuccessRate float64  `json:"success_rate"`
	UsageCount  int      `json:"usage_count"`
}

// SystemReport summarises all tracked usage.
type SystemReport struct {
	TotalToolUses      int               `json:"total_tool_uses"`
	OverallSuccessRate float64           `json:"overall_success_rate"`
	RecentSuccessRate  float64           `json:"recent_success_rate"`
	UniqueUsers        int               `json:"unique_users"`
	AvgToolsPerUser    float64           `json:"avg_tools_per_user"`
	PopularTools       []ToolCount       `json:"popular_tools"`
	BestCombinations   []CombinationStat `json:"best_combinations"`
	TotalCombinations  int               `json:"total_combinations"`
	ImprovementTrend   float64           `json:"improvement_trend"`
}
