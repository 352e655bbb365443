package verification

// Criterion is one named pass/fail learning goal.
type Criterion struct {
	Name string

	// Recommendation is reported when the criterion is not met.
	Recommendation string

	met func(PatternMetrics, ToolSelectionMetrics) bool
}

// Met evaluates the criterion.
func (c Criterion) Met(pm PatternMetrics, tm ToolSelectionMetrics) bool {
	return c.met(pm, tm)
}

// Criterion names.
const (
	CriterionPatternLearning     = "pattern_learning_95_percent"
	CriterionTimeReduction       = "time_reduction_25_percent"
	CriterionPatternAdaptation   = "pattern_adaptation_80_percent"
	CriterionIntentAccuracy      = "intent_accuracy_70_to_90"
	CriterionToolSelection       = "tool_selection_88_percent"
	CriterionContextOptimization = "context_optimization_85_percent"
	CriterionUserSatisfaction    = "user_satisfaction_improvement"
	CriterionLearningRetention   = "learning_retention_stability"
)

// Criteria lists the success criteria in report order.
var Criteria = []Criterion{
	{
		Name:           CriterionPatternLearning,
		Recommendation: "Pattern suggestion accuracy is below 95%; collect more accepted executions before relying on suggestions.",
		met: func(pm PatternMetrics, _ ToolSelectionMetrics) bool {
			return pm.PatternSuggestionAccuracy >= 0.95
		},
	},
	{
		Name:           CriterionTimeReduction,
		Recommendation: "Execution time dropped by less than 25%; consider running independent steps in parallel.",
		met: func(pm PatternMetrics, _ ToolSelectionMetrics) bool {
			return pm.TimeImprovementPercentage >= 0.25
		},
	},
	{
		Name:           CriterionPatternAdaptation,
		Recommendation: "Fewer than 80% of similar requests reused the suggested pattern; review the similarity threshold.",
		met: func(pm PatternMetrics, _ ToolSelectionMetrics) bool {
			return pm.PatternAdaptationRate >= 0.80
		},
	},
	{
		Name:           CriterionIntentAccuracy,
		Recommendation: "Tool selection accuracy did not rise from 70% to 90%; add expected tools to more requests.",
		met: func(_ PatternMetrics, tm ToolSelectionMetrics) bool {
			return tm.InitialAccuracy >= 0.70 && tm.CurrentAccuracy >= 0.90
		},
	},
	{
		Name:           CriterionToolSelection,
		Recommendation: "Fewer than 88% of tool selections were correct; refine tool preferences per context.",
		met: func(_ PatternMetrics, tm ToolSelectionMetrics) bool {
			return tm.IntentRecognitionAccuracy >= 0.88
		},
	},
	{
		Name:           CriterionContextOptimization,
		Recommendation: "Fewer than 85% of selections fit their context; weigh urgency and time of day more heavily.",
		met: func(_ PatternMetrics, tm ToolSelectionMetrics) bool {
			return tm.OptimalToolSelectionRate >= 0.85
		},
	},
	{
		Name:           CriterionUserSatisfaction,
		Recommendation: "User satisfaction has not improved; collect feedback more actively to strengthen personalisation.",
		met: func(_ PatternMetrics, tm ToolSelectionMetrics) bool {
			return tm.SatisfactionImprovement > 0
		},
	},
	{
		Name:           CriterionLearningRetention,
		Recommendation: "Average pattern confidence is below 0.80; learned patterns are not yet stable.",
		met: func(pm PatternMetrics, _ ToolSelectionMetrics) bool {
			return pm.AvgPatternConfidence >= 0.80
		},
	},
}

// Evaluate returns the outcome of every criterion by name.
func Evaluate(pm PatternMetrics, tm ToolSelectionMetrics) map[string]bool {
	out := make(map[string]bool, len(Criteria))
	for _, c := range Criteria {
		out[c.Name] = c.Met(pm, tm)
	}
	return out
}
