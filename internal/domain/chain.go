package domain

import "context"

// ChainStep is one stage of a chain: a tool reference plus its options.
type ChainStep struct {
	ToolID  string  `json:"tool_id" yaml:"tool"`
	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// Clone returns a copy whose options can be mutated independently.
func (s ChainStep) Clone() ChainStep {
	return ChainStep{ToolID: s.ToolID, Options: s.Options.Clone()}
}

// StepResult is the outcome recorded for one step position.
// An empty Error means the step either succeeded or was skipped.
type StepResult struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the step carries an error.
func (r StepResult) Failed() bool { return r.Error != "" }

// ChainRunner executes an ordered list of steps over an initial input.
type ChainRunner interface {
	Run(ctx context.Context, input string, steps []ChainStep) []StepResult
}

// CloneSteps deep-copies a step slice.
func CloneSteps(steps []ChainStep) []ChainStep {
	if steps == nil {
		return nil
	}
	out := make([]ChainStep, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}
