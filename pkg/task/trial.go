package task

import "time"

// TrialSpec is the immutable description of one planned trial. The runner
// reads it; nothing mutates it after the plan is built.
type TrialSpec struct {
	Index int `json:"index"`

	Factors

	// Easy marks forced-easy warm-up trials of the training variant.
	Easy bool `json:"easy,omitempty"`

	Pair      int    `json:"pair"`
	Identical bool   `json:"identical"`
	Stim1     string `json:"stim1"`
	Stim2     string `json:"stim2"`

	PromptType  int      `json:"prompt_type"`
	Labels      [2]Label `json:"labels"`
	Instruction string   `json:"instruction"`
	Motor       string   `json:"motor"`
	Correct     *Side    `json:"correct,omitempty"`

	Fixation time.Duration `json:"fixation"`
	Delay    time.Duration `json:"delay"`

	// BlockEnd is set on the last trial of every block but the final one,
	// where a break screen follows.
	BlockEnd bool `json:"block_end"`

	// Intermission, when non-empty, is shown before the trial starts and
	// waits for the continue key.
	Intermission string `json:"intermission,omitempty"`
}

// AxisName is the decision axis as a display string.
func (t *TrialSpec) AxisName() string {
	return t.Axis().String()
}
