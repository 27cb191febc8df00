package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/renee-tung/WMInstructionTask/pkg/device"
)

// control is the safe point between phases: an abort key or a cancelled
// context ends the session, the pause key blocks until continue.
func (r *Runner) control(ctx context.Context) error {
	if r.aborted(ctx) {
		return errAbort
	}
	if len(r.input.Poll(r.cfg.Keys.Pause)) == 0 {
		return nil
	}
	return r.pause(ctx)
}

func (r *Runner) aborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return len(r.input.Poll(r.cfg.Keys.Abort...)) > 0
}

// pause blocks on the continue key or an abort. Phase timers are not
// affected: the pause only happens between phases.
func (r *Runner) pause(ctx context.Context) error {
	next := r.sess.CompletedTrials() + 1
	r.events.Emit(device.PauseOn, "before trial %d", next)
	r.notify(device.PauseOn.String(), fmt.Sprintf("before trial %d", next))

	text := fmt.Sprintf("%s\nPress %s to continue", PauseText, strings.ToUpper(r.cfg.Keys.Continue))
	r.input.Discard(r.cfg.Keys.Continue)
	for {
		r.frame(func() { r.text(text) })
		if r.aborted(ctx) {
			return errAbort
		}
		if len(r.input.Poll(r.cfg.Keys.Continue)) > 0 {
			break
		}
	}

	r.events.Emit(device.PauseOff, "before trial %d", next)
	r.notify(device.PauseOff.String(), "")
	return nil
}

// waitForContinue shows text until the continue key. There is no time
// limit.
func (r *Runner) waitForContinue(ctx context.Context, text string) error {
	r.events.Emit(device.IntermissionOn, "%s", strings.ReplaceAll(text, "\n", " "))
	r.notify(device.IntermissionOn.String(), text)

	r.input.Discard(r.cfg.Keys.Continue)
	for {
		r.frame(func() { r.text(text) })
		if r.aborted(ctx) {
			return errAbort
		}
		if len(r.input.Poll(r.cfg.Keys.Continue)) > 0 {
			return nil
		}
	}
}
