/*
Package trace defines the execution trace model consumed by the learning engine.

A trace is the ordered list of tool calls an agent produced for one run. Calls
arrive from the orchestration layer as loosely typed records and are validated
here before any scoring logic sees them.
*/
package trace

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// maxOutputSummary is the number of runes kept from a tool's output.
const maxOutputSummary = 200

var validate = validator.New()

// Call is one raw tool invocation as reported by the orchestration layer.
type Call struct {
	// Tool is the name of the invoked tool.
	Tool string `json:"tool" validate:"required"`

	// Parameters are the arguments the tool was called with.
	Parameters map[string]any `json:"parameters,omitempty"`

	// ExecutionTime is the wall time of the call in seconds.
	ExecutionTime float64 `json:"execution_time" validate:"gte=0"`

	// Success reports whether the tool call succeeded.
	Success bool `json:"success"`

	// Output is the raw tool output. Only a short summary is kept.
	Output any `json:"output,omitempty"`
}

// Step is a validated, immutable tool call at a fixed position in a run.
type Step struct {
	// Position is the 1-based ordinal of the call within its run.
	Position int `json:"step_id"`

	// ToolName is the name of the invoked tool.
	ToolName string `json:"tool_name"`

	// Parameters are the arguments the tool was called with.
	Parameters map[string]any `json:"parameters"`

	// ExecutionTime is the wall time of the call in seconds.
	ExecutionTime float64 `json:"execution_time"`

	// Success reports whether the tool call succeeded.
	Success bool `json:"success"`

	// OutputSummary is the output truncated to 200 runes.
	OutputSummary string `json:"output_summary"`
}

// ValidationError reports a call that cannot be turned into a Step.
type ValidationError struct {
	// Index is the 1-based position of the offending call.
	Index int
	// Field is the offending field name.
	Field string
	// Reason is the failed rule (e.g. "required", "gte").
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid trace call %d: field %s failed %q", e.Index, e.Field, e.Reason)
}

// Steps validates calls and converts them into ordered steps.
// An empty trace is valid and yields an empty slice.
func Steps(calls []Call) ([]Step, error) {
	steps := make([]Step, 0, len(calls))
	for i, call := range calls {
		if err := validate.Struct(call); err != nil {
			return nil, toValidationError(i+1, err)
		}

		steps = append(steps, Step{
			Position:      i + 1,
			ToolName:      call.Tool,
			Parameters:    copyParams(call.Parameters),
			ExecutionTime: call.ExecutionTime,
			Success:       call.Success,
			OutputSummary: summarize(call.Output),
		})
	}
	return steps, nil
}

// ToolNames returns the ordered tool names of steps.
func ToolNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.ToolName
	}
	return names
}

// StepTimes returns the ordered execution times of steps.
func StepTimes(steps []Step) []float64 {
	times := make([]float64, len(steps))
	for i, s := range steps {
		times[i] = s.ExecutionTime
	}
	return times
}

// CloneSteps returns a copy of steps that shares no maps with the input.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		s.Parameters = copyParams(s.Parameters)
		out[i] = s
	}
	return out
}

func toValidationError(index int, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{
			Index:  index,
			Field:  fieldErrs[0].Field(),
			Reason: fieldErrs[0].Tag(),
		}
	}
	return fmt.Errorf("invalid trace call %d: %w", index, err)
}

func summarize(output any) string {
	if output == nil {
		return ""
	}
	runes := []rune(fmt.Sprint(output))
	if len(runes) > maxOutputSummary {
		runes = runes[:maxOutputSummary]
	}
	return string(runes)
}

func copyParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
