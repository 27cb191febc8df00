package runner

import (
	"log"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/device"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// trial is the mutable state of the trial in progress.
type trial struct {
	spec *task.TrialSpec
	res  *session.TrialResult
}

// frame draws and presents one frame, adding the photodiode square while
// a flash is pending. It returns the frame onset.
func (r *Runner) frame(draw func()) time.Duration {
	r.display.Clear()
	if draw != nil {
		draw()
	}
	if r.flashLeft > 0 {
		r.display.DrawFlash(r.cfg.Layout.Photodiode())
		r.flashLeft--
	}
	return r.display.Present()
}

// hold shows draw for at least d and returns the first frame's onset.
func (r *Runner) hold(d time.Duration, draw func()) time.Duration {
	onset := r.frame(draw)
	r.holdFrom(onset, d, draw)
	return onset
}

// holdFrom keeps redrawing until d has elapsed since onset.
func (r *Runner) holdFrom(onset, d time.Duration, draw func()) {
	for r.clock.Now()-onset < d {
		r.frame(draw)
	}
}

// enter presents the first frame of a phase, then logs it, sends its
// marker and forwards it to the eye tracker. The photodiode square goes
// on the same frame.
func (r *Runner) enter(t *trial, p Phase, draw func(), ev device.MarkerEvent, format string, args ...interface{}) time.Duration {
	if r.events.Reg.Enabled(device.NamePhotodiode) {
		r.flashLeft = r.cfg.Devices.FlashFrames
	}
	onset := r.frame(draw)
	t.res.Onsets = append(t.res.Onsets, session.PhaseOnset{Phase: p.String(), At: onset})
	r.events.Emit(ev, format, args...)
	for _, o := range r.obs {
		o.PhaseStarted(t.spec.Index, p, onset)
	}
	if r.sess.Debug {
		log.Printf("[runner] trial %d %s at %s", t.spec.Index+1, p, onset)
	}
	return onset
}

func (r *Runner) text(s string) {
	r.display.DrawText(r.cfg.Layout.Text(), s, device.TextNormal)
}

func (r *Runner) fixation() {
	r.display.DrawFixation(r.cfg.Layout.Center())
}

// labels draws the two response options. dimmed is the side to
// de-emphasize, or zero for none.
func (r *Runner) labels(spec *task.TrialSpec, dimmed task.Side) {
	rects := r.cfg.Layout.Labels(spec.Response == task.Button)
	for i, l := range spec.Labels {
		style := device.TextNormal
		if task.Side(i+1) == dimmed {
			style = device.TextDimmed
		}
		r.display.DrawText(rects[i], string(l), style)
	}
}
