// Package runner executes the trial plan frame by frame: each trial is a
// fixed sequence of phases, every phase onset is logged, marked and
// flashed, and responses are collected with frame-accurate timing.
package runner

import (
	"fmt"

	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// Phase is one state of the trial state machine.
type Phase int

const (
	PhaseFixation Phase = iota + 1
	PhasePreInstruction
	PhaseStim1
	PhaseDelay
	PhaseStim2
	PhasePostInstruction
	PhaseResponsePrompt
	PhaseResponseWait
	PhaseResponseFeedback
	PhaseTrialEnd
)

var phaseNames = [...]string{
	PhaseFixation:         "FIXATION",
	PhasePreInstruction:   "PRE_INSTRUCTION",
	PhaseStim1:            "STIM1",
	PhaseDelay:            "DELAY",
	PhaseStim2:            "STIM2",
	PhasePostInstruction:  "POST_INSTRUCTION",
	PhaseResponsePrompt:   "RESPONSE_PROMPT",
	PhaseResponseWait:     "RESPONSE_WAIT",
	PhaseResponseFeedback: "RESPONSE_FEEDBACK",
	PhaseTrialEnd:         "TRIAL_END",
}

func (p Phase) String() string {
	if p >= PhaseFixation && p <= PhaseTrialEnd {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if p < PhaseFixation || p > PhaseTrialEnd {
		return nil, fmt.Errorf("runner: invalid phase: %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// Sequence returns the phases a trial will pass through when the
// participant responds. The instruction goes before the stimuli or after
// them depending on cue timing. RESPONSE_FEEDBACK is skipped at run time
// when nothing was submitted.
func Sequence(spec *task.TrialSpec) []Phase {
	seq := []Phase{PhaseFixation}
	if spec.Cue == task.PreStimulus {
		seq = append(seq, PhasePreInstruction)
	}
	seq = append(seq, PhaseStim1, PhaseDelay, PhaseStim2)
	if spec.Cue != task.PreStimulus {
		seq = append(seq, PhasePostInstruction)
	}
	return append(seq, PhaseResponsePrompt, PhaseResponseWait, PhaseResponseFeedback, PhaseTrialEnd)
}
