package runner

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/device"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// buttonResponse waits for the first of the two response keys. The first
// press inside the window wins; response time is measured from the onset
// of the response screen.
func (r *Runner) buttonResponse(t *trial) {
	k := r.cfg.Keys
	limit := r.cfg.Timing.ResponseMax
	draw := func() { r.labels(t.spec, 0) }

	r.input.Discard(k.First, k.Second)
	onset := r.enter(t, PhaseResponseWait, draw, device.ResponseOn, "%s/%s", t.spec.Labels[0], t.spec.Labels[1])

	for {
		for _, ev := range r.input.Poll(k.First, k.Second) {
			rt := ev.At - onset
			if rt > limit {
				continue
			}
			if rt < 0 {
				rt = 0
			}
			side, marker := task.SideFirst, device.ResponseUp
			if ev.Key == k.Second {
				side, marker = task.SideSecond, device.ResponseDown
			}
			t.res.Response = side.Ptr()
			t.res.ResponseTime = &rt
			t.res.Outcome = session.OutcomeSubmitted
			r.events.Emit(marker, "side %s rt %.3f", side, rt.Seconds())
			return
		}
		if r.clock.Now()-onset >= limit {
			break
		}
		r.frame(draw)
	}
	r.events.Emit(device.ResponseTimeout, "trial %d", t.spec.Index+1)
}

// sliderSide maps a slider position to a response side: left of the
// midpoint is the first label, right of it the second.
func sliderSide(steps int) (task.Side, bool) {
	switch {
	case steps < 0:
		return task.SideFirst, true
	case steps > 0:
		return task.SideSecond, true
	default:
		return 0, false
	}
}

// sliderResponse runs the continuous scale. The marker moves in whole
// steps and is clamped at both poles. Every frame appends a trace sample.
// Submitting at the midpoint is ignored and the wait goes on; at the
// deadline a non-zero position still records a side, without a time.
func (r *Runner) sliderResponse(t *trial) {
	k := r.cfg.Keys
	sc := r.cfg.Slider
	limit := r.cfg.Timing.ResponseMax

	maxSteps := int(math.Round(sc.HalfRange / sc.Step))
	steps, touched := 0, false
	pos := func() float64 { return float64(steps) * sc.Step }

	reminder := fmt.Sprintf("Press %s to confirm your answer", strings.ToUpper(k.SliderSubmit))
	onset := r.clock.Now()
	draw := func() {
		r.labels(t.spec, 0)
		r.display.DrawSlider(r.cfg.Layout.Slider(), pos(), sc.HalfRange)
		if r.clock.Now()-onset >= r.cfg.Timing.SliderReminder {
			r.display.DrawText(r.cfg.Layout.Reminder(), reminder, device.TextSmall)
		}
	}
	sample := func(at time.Duration) {
		t.res.Slider = append(t.res.Slider, session.SliderSample{Position: pos(), At: at})
	}

	r.input.Discard(k.SliderLeft, k.SliderRight, k.SliderSubmit)
	onset = r.enter(t, PhaseResponseWait, draw, device.ResponseOn, "%s/%s", t.spec.Labels[0], t.spec.Labels[1])
	sample(0)

	for {
		for _, ev := range r.input.Poll(k.SliderLeft, k.SliderRight, k.SliderSubmit) {
			at := ev.At - onset
			if at > limit {
				continue
			}
			switch ev.Key {
			case k.SliderLeft:
				if steps > -maxSteps {
					steps--
				}
				touched = true
			case k.SliderRight:
				if steps < maxSteps {
					steps++
				}
				touched = true
			case k.SliderSubmit:
				side, ok := sliderSide(steps)
				if !ok {
					r.events.Note("SLIDER_MIDPOINT_SUBMIT", "trial %d ignored", t.spec.Index+1)
					continue
				}
				if at < 0 {
					at = 0
				}
				sample(at)
				t.res.Response = side.Ptr()
				t.res.ResponseTime = &at
				t.res.Outcome = session.OutcomeSubmitted
				r.events.Emit(sliderMarker(side), "side %s rt %.3f pos %.2f", side, at.Seconds(), pos())
				return
			}
		}
		if r.clock.Now()-onset >= limit {
			break
		}
		sample(r.frame(draw) - onset)
	}

	sample(r.clock.Now() - onset)
	if side, ok := sliderSide(steps); ok {
		t.res.Response = side.Ptr()
	}
	if touched {
		t.res.Outcome = session.OutcomeUnconfirmed
	}
	r.events.Emit(device.ResponseTimeout, "trial %d pos %.2f", t.spec.Index+1, pos())
}

func sliderMarker(s task.Side) device.MarkerEvent {
	if s == task.SideFirst {
		return device.ResponseLeft
	}
	return device.ResponseRight
}
