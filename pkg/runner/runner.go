package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// Screen texts.
const (
	StartText    = "Wait for start!"
	PauseText    = "Paused"
	BreakText    = "Break time!"
	FinishedText = "The task is complete. Thank you!"
)

// finishedHold is how long the closing screen stays up.
const finishedHold = 3 * time.Second

// errAbort unwinds the trial loop when the operator presses an abort key.
var errAbort = errors.New("runner: aborted by operator")

// Checkpointer persists each completed trial before the next one starts.
type Checkpointer interface {
	AppendTrial(r *session.TrialResult) error
	Finish(s *session.Session) error
}

// Observer is told about progress. Implementations must not block the
// frame loop.
type Observer interface {
	PhaseStarted(trial int, phase Phase, onset time.Duration)
	TrialFinished(spec *task.TrialSpec, r *session.TrialResult)
	SessionEvent(event, detail string)
}

// TrialSink receives every completed trial, e.g. a results database. A
// failing sink is dropped for the rest of the session.
type TrialSink interface {
	Name() string
	SaveTrial(ctx context.Context, s *session.Session, spec *task.TrialSpec, r *session.TrialResult) error
}

// Options wires the runner to its collaborators. Display, Input, Clock and
// Events are required.
type Options struct {
	Display    device.Display
	Input      device.Input
	Clock      device.Clock
	Events     *device.Events
	Checkpoint Checkpointer
	Observers  []Observer
	Sinks      []TrialSink
}

// Runner drives one session through its plan.
type Runner struct {
	cfg     *config.Config
	sess    *session.Session
	display device.Display
	input   device.Input
	clock   device.Clock
	events  *device.Events
	store   Checkpointer
	obs     []Observer
	sinks   []TrialSink

	// flashLeft is the number of frames the photodiode square still shows.
	flashLeft int
}

// New creates a runner for sess.
func New(cfg *config.Config, sess *session.Session, opts Options) *Runner {
	if opts.Events.Reg != nil {
		opts.Events.Reg.Register(device.NamePhotodiode, cfg.Devices.Photodiode)
	}
	return &Runner{
		cfg:     cfg,
		sess:    sess,
		display: opts.Display,
		input:   opts.Input,
		clock:   opts.Clock,
		events:  opts.Events,
		store:   opts.Checkpoint,
		obs:     opts.Observers,
		sinks:   opts.Sinks,
	}
}

// Session returns the session being run.
func (r *Runner) Session() *session.Session {
	return r.sess
}

// Run executes every remaining trial of the plan. Trials already recorded
// in the session (a resumed checkpoint) are skipped.
//
// An operator abort returns SESSION_ABORTED and a panic inside the loop
// returns SESSION_CRASHED. In both cases the session keeps every trial
// completed so far and the checkpoint is closed with an end line.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			reason := fmt.Sprint(p)
			log.Printf("[runner] crashed: %s\n%s", reason, debug.Stack())
			r.sess.MarkCrashed(reason)
			r.events.Emit(device.SessionCrashed, "%s", reason)
			r.notify(device.SessionCrashed.String(), reason)
			r.finish(false)
			err = taskerrors.Session(taskerrors.ErrSessionCrashed, "session crashed: "+reason).
				WithContext("trial", fmt.Sprint(r.sess.CompletedTrials()))
		}
	}()

	err = r.loop(ctx)
	switch {
	case err == nil:
		r.finish(true)
		return nil
	case errors.Is(err, errAbort):
		done := r.sess.CompletedTrials()
		log.Printf("[runner] aborted after %d trials", done)
		r.sess.MarkAborted()
		r.events.Emit(device.SessionAborted, "after trial %d", done)
		r.notify(device.SessionAborted.String(), fmt.Sprintf("after trial %d", done))
		r.finish(false)
		return taskerrors.Session(taskerrors.ErrSessionAborted, "session aborted by operator").
			WithContext("trial", fmt.Sprint(done))
	default:
		r.finish(false)
		return err
	}
}

func (r *Runner) loop(ctx context.Context) error {
	p := r.sess.Plan
	start := r.sess.CompletedTrials()
	if start >= p.Len() {
		return nil
	}

	r.events.EyeCall(device.EyeTracker.StartRecording)
	if start == 0 {
		r.events.Emit(device.ExperimentOn, "%s %s", r.sess.Name, r.sess.Variant)
	} else {
		r.events.Emit(device.ExperimentOn, "%s %s resume at trial %d", r.sess.Name, r.sess.Variant, start+1)
	}
	r.notify(device.ExperimentOn.String(), r.sess.Name)

	if err := r.waitForContinue(ctx, StartText); err != nil {
		return err
	}

	for i := start; i < p.Len(); i++ {
		spec := &p.Trials[i]
		if err := r.control(ctx); err != nil {
			return err
		}
		if spec.Intermission != "" {
			if err := r.waitForContinue(ctx, spec.Intermission); err != nil {
				return err
			}
		}
		blk := p.BlockOf(i)
		if i == start || p.Trials[i-1].BlockEnd {
			r.events.Emit(device.BlockOn, "block %d", blk+1)
		}

		res, err := r.runTrial(ctx, spec)
		if err != nil {
			return err
		}
		if err := r.commit(ctx, spec, res); err != nil {
			return err
		}

		if spec.BlockEnd || i == p.Len()-1 {
			acc := r.sess.BlockAccuracy(blk)
			r.events.Emit(device.BlockOff, "block %d accuracy %.1f", blk+1, acc)
			if spec.BlockEnd {
				if err := r.waitForContinue(ctx, BreakScreen(acc)); err != nil {
					return err
				}
			}
		}
	}

	acc, scored := r.sess.FinalAccuracy()
	log.Printf("[runner] session complete: %.1f%% correct over %d scored trials", acc, scored)
	r.hold(finishedHold, func() { r.text(FinishedScreen(acc)) })
	return nil
}

// commit records a trial, checkpoints it and hands it to observers and
// sinks. A checkpoint failure stops the session: running on without a
// durable record is worse than stopping.
func (r *Runner) commit(ctx context.Context, spec *task.TrialSpec, res *session.TrialResult) error {
	r.sess.Record(res)
	if r.store != nil {
		if err := r.store.AppendTrial(res); err != nil {
			return err
		}
	}
	for _, o := range r.obs {
		o.TrialFinished(spec, res)
	}

	kept := r.sinks[:0]
	for _, s := range r.sinks {
		if err := s.SaveTrial(ctx, r.sess, spec, res); err != nil {
			log.Printf("[runner] %s disabled for the rest of the session: %v", s.Name(), err)
			continue
		}
		kept = append(kept, s)
	}
	r.sinks = kept
	return nil
}

// finish stops recording, stamps the session and closes the checkpoint.
func (r *Runner) finish(completed bool) {
	r.events.Emit(device.ExperimentOff, "%d/%d trials", r.sess.CompletedTrials(), r.sess.Plan.Len())
	r.events.EyeCall(device.EyeTracker.StopRecording)
	r.notify(device.ExperimentOff.String(), "")
	r.sess.End(time.Now(), completed)
	if r.store != nil {
		if err := r.store.Finish(r.sess); err != nil {
			log.Printf("[runner] closing checkpoint: %v", err)
		}
	}
}

func (r *Runner) notify(event, detail string) {
	for _, o := range r.obs {
		o.SessionEvent(event, detail)
	}
}

// FinishedScreen is the closing text.
func FinishedScreen(accuracy float64) string {
	return fmt.Sprintf("%s\nYour accuracy was %.0f%%", FinishedText, accuracy)
}

// BreakScreen is the text shown between blocks.
func BreakScreen(accuracy float64) string {
	return fmt.Sprintf("%s\nYour accuracy was %.0f%%", BreakText, accuracy)
}
