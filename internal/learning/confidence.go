package learning

import "math"

const (
	// confidenceBoost scales success rate into confidence once a pattern
	// has enough executions.
	confidenceBoost = 1.2

	// positiveFeedbackStep is added to confidence on accepted, rated feedback.
	positiveFeedbackStep = 0.1

	// negativeFeedbackStep is subtracted on any other feedback.
	negativeFeedbackStep = 0.05
)

// ApplyExecution folds one execution into p's statistics. Confidence is only
// recomputed once TotalExecutions reaches threshold.
func ApplyExecution(p *WorkflowPattern, success bool, executionTime float64, threshold int) {
	p.TotalExecutions++
	if success {
		p.SuccessfulExecutions++
	}
	p.SuccessRate = successRate(p.SuccessfulExecutions, p.TotalExecutions)

	n := float64(p.TotalExecutions)
	p.AverageExecutionTime = (p.AverageExecutionTime*(n-1) + executionTime) / n

	if p.TotalExecutions >= threshold {
		p.Confidence = clamp(math.Min(1.0, p.SuccessRate*confidenceBoost))
	}
}

// ApplyFeedback adjusts p for a judgement on one of its suggestions.
// Accepted feedback with a rating raises confidence and, when the execution
// succeeded, counts one more successful execution. Anything else lowers it.
func ApplyFeedback(p *WorkflowPattern, accepted bool, rating int, executionSucceeded bool) {
	if accepted && rating > 0 {
		p.Confidence = clamp(p.Confidence + positiveFeedbackStep)
		if executionSucceeded {
			p.SuccessfulExecutions++
			p.TotalExecutions++
			p.SuccessRate = successRate(p.SuccessfulExecutions, p.TotalExecutions)
		}
		return
	}
	p.Confidence = clamp(p.Confidence - negativeFeedbackStep)
}

func successRate(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return clamp(float64(successful) / float64(total))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
