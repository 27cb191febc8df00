package runner

import (
	"context"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/device"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// runTrial takes one trial through its phase sequence.
func (r *Runner) runTrial(ctx context.Context, spec *task.TrialSpec) (*session.TrialResult, error) {
	t := &trial{
		spec: spec,
		res:  &session.TrialResult{Index: spec.Index, Outcome: session.OutcomeNone},
	}
	tm := r.cfg.Timing
	n := spec.Index + 1

	for _, p := range Sequence(spec) {
		if err := r.control(ctx); err != nil {
			return nil, err
		}

		switch p {
		case PhaseFixation:
			onset := r.enter(t, p, r.fixation, device.FixationOn, "trial %d", n)
			t.res.Start = onset
			r.holdFrom(onset, spec.Fixation, r.fixation)

		case PhasePreInstruction, PhasePostInstruction:
			r.instruction(t, p)

		case PhaseStim1:
			r.stimulus(t, p, spec.Stim1, tm.Stim1)

		case PhaseDelay:
			onset := r.enter(t, p, r.fixation, device.DelayOn, "trial %d", n)
			r.holdFrom(onset, spec.Delay, r.fixation)

		case PhaseStim2:
			r.stimulus(t, p, spec.Stim2, tm.Stim2)

		case PhaseResponsePrompt:
			draw := func() { r.text(spec.Motor) }
			onset := r.enter(t, p, draw, device.ResponsePromptOn, "%s", spec.Motor)
			r.holdFrom(onset, tm.ResponsePrompt, draw)

		case PhaseResponseWait:
			if spec.Response == task.Slider {
				r.sliderResponse(t)
			} else {
				r.buttonResponse(t)
			}

		case PhaseResponseFeedback:
			if t.res.Outcome == session.OutcomeSubmitted {
				r.feedback(t)
			}

		case PhaseTrialEnd:
			onset := r.enter(t, p, nil, device.TrialEnd, "trial %d", n)
			r.holdFrom(onset, tm.ITI, nil)
			t.res.End = r.clock.Now()
		}
	}
	return t.res, nil
}

func (r *Runner) stimulus(t *trial, p Phase, path string, d time.Duration) {
	draw := func() { r.display.DrawImage(r.cfg.Layout.Center(), path) }
	onset := r.enter(t, p, draw, device.StimulusOn, "%s %s", p, path)
	r.holdFrom(onset, d, draw)
	r.events.Emit(device.StimulusOff, "%s", p)
}

// instruction shows the instruction for the minimum duration, then
// accepts the dismiss key until the maximum. Presses made during the
// minimum do not count.
func (r *Runner) instruction(t *trial, p Phase) {
	tm := r.cfg.Timing
	key := r.cfg.Keys.Dismiss
	draw := func() { r.text(t.spec.Instruction) }

	onset := r.enter(t, p, draw, device.InstructionOn, "%s", t.spec.Instruction)
	r.holdFrom(onset, tm.InstructionMin, draw)
	r.input.Discard(key)

	end := time.Duration(-1)
	for r.clock.Now()-onset < tm.InstructionMax {
		if evs := r.input.Poll(key); len(evs) > 0 {
			end = evs[0].At
			break
		}
		r.frame(draw)
	}
	if end < 0 {
		end = r.clock.Now()
	}

	viewed := end - onset
	t.res.InstructionTime = &viewed
	r.events.Emit(device.InstructionOff, "viewed %.3fs", viewed.Seconds())
}

// feedback dims the chosen label and holds it.
func (r *Runner) feedback(t *trial) {
	side := *t.res.Response
	draw := func() {
		r.labels(t.spec, side)
		if t.spec.Response == task.Slider && len(t.res.Slider) > 0 {
			last := t.res.Slider[len(t.res.Slider)-1]
			r.display.DrawSlider(r.cfg.Layout.Slider(), last.Position, r.cfg.Slider.HalfRange)
		}
	}
	onset := r.enter(t, PhaseResponseFeedback, draw, device.FeedbackOn, "side %s", side)
	r.holdFrom(onset, r.cfg.Timing.FeedbackHold, draw)
}
