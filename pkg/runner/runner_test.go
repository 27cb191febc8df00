package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/plan"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/sim"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

const ms = time.Millisecond

// -----------------------------------------------------------------------------
// Test rig
// -----------------------------------------------------------------------------

// recorder observes the runner and lets a test react to phase onsets.
type recorder struct {
	phases   map[int][]Phase
	finished []int
	events   []string

	onPhase func(trial int, p Phase, onset time.Duration)
	onTrial func(spec *task.TrialSpec)
}

func (r *recorder) PhaseStarted(trial int, p Phase, onset time.Duration) {
	r.phases[trial] = append(r.phases[trial], p)
	if r.onPhase != nil {
		r.onPhase(trial, p, onset)
	}
}

func (r *recorder) TrialFinished(spec *task.TrialSpec, _ *session.TrialResult) {
	r.finished = append(r.finished, spec.Index)
	if r.onTrial != nil {
		r.onTrial(spec)
	}
}

func (r *recorder) SessionEvent(event, _ string) {
	r.events = append(r.events, event)
}

// memStore is an in-memory Checkpointer.
type memStore struct {
	trials   []int
	finished bool
	err      error
}

func (m *memStore) AppendTrial(r *session.TrialResult) error {
	if m.err != nil {
		return m.err
	}
	m.trials = append(m.trials, r.Index)
	return nil
}

func (m *memStore) Finish(*session.Session) error {
	m.finished = true
	return nil
}

type rig struct {
	cfg     *config.Config
	clock   *sim.Clock
	display *sim.Display
	input   *sim.Input
	markers *sim.Markers
	log     *sim.Log
	reg     *device.Registry
	rec     *recorder
	store   *memStore
	sess    *session.Session
	opts    Options

	// onFrame handlers run after every present, before the auto-continue.
	onFrame []func(f sim.Frame)
}

func testConfig() *config.Config {
	cfg := config.Default(config.VariantMain)
	cfg.Timing = config.TimingConfig{
		Fixation:       100 * ms,
		InstructionMin: 200 * ms,
		InstructionMax: 400 * ms,
		Stim1:          100 * ms,
		Delay:          100 * ms,
		Stim2:          100 * ms,
		ResponsePrompt: 100 * ms,
		ResponseMax:    500 * ms,
		FeedbackHold:   50 * ms,
		ITI:            50 * ms,
		SliderReminder: 300 * ms,
		Refresh:        10 * ms,
	}
	cfg.Slider = config.SliderConfig{Step: 0.25, HalfRange: 1}
	cfg.Devices.Photodiode = true
	cfg.Devices.FlashFrames = 2
	return cfg
}

func spec(i int, resp task.Modality, cue task.CueTiming, correct *task.Side) task.TrialSpec {
	return task.TrialSpec{
		Index:       i,
		Factors:     task.Factors{Category: task.Cars, Response: resp, Cue: cue},
		Stim1:       "cars/pair1/a.jpg",
		Stim2:       "cars/pair1/b.jpg",
		PromptType:  1,
		Labels:      [2]task.Label{task.LabelFirst, task.LabelSecond},
		Instruction: "Which car is newer?",
		Motor:       task.MotorText(resp),
		Correct:     correct,
		Fixation:    100 * ms,
		Delay:       100 * ms,
	}
}

// newRig builds a session over trials split into blocks of perBlock.
// Wait screens are answered with the continue key automatically.
func newRig(t *testing.T, perBlock int, trials ...task.TrialSpec) *rig {
	t.Helper()
	for i := range trials {
		trials[i].Index = i
		trials[i].BlockEnd = (i+1)%perBlock == 0 && i < len(trials)-1
	}
	p := &plan.Plan{
		Variant:        config.VariantMain,
		Blocks:         (len(trials) + perBlock - 1) / perBlock,
		TrialsPerBlock: perBlock,
		Trials:         trials,
	}

	cfg := testConfig()
	clock := &sim.Clock{}
	rg := &rig{
		cfg:     cfg,
		clock:   clock,
		display: sim.NewDisplay(clock, cfg.Timing.Refresh),
		input:   sim.NewInput(clock),
		markers: &sim.Markers{Clock: clock},
		log:     &sim.Log{},
		reg:     device.NewRegistry(),
		rec:     &recorder{phases: make(map[int][]Phase)},
		store:   &memStore{},
		sess:    session.New(config.Intake{Participant: "P01"}, config.VariantMain, p, time.Now()),
	}
	codes, err := device.NewCodeTable(nil)
	if err != nil {
		t.Fatal(err)
	}
	rg.opts = Options{
		Display:    rg.display,
		Input:      rg.input,
		Clock:      clock,
		Events:     device.NewEvents(codes, rg.markers, rg.log, nil, rg.reg),
		Checkpoint: rg.store,
		Observers:  []Observer{rg.rec},
	}
	rg.display.OnPresent = func(f sim.Frame) {
		for _, h := range rg.onFrame {
			h(f)
		}
		if f.HasText(StartText) || f.HasText(BreakText) {
			rg.input.PressNow(cfg.Keys.Continue)
		}
	}
	return rg
}

func (rg *rig) run(t *testing.T) error {
	t.Helper()
	return New(rg.cfg, rg.sess, rg.opts).Run(context.Background())
}

// pressAt queues key at offset after the onset of phase p on trial n.
func (rg *rig) pressAt(n int, p Phase, key string, offset time.Duration) {
	prev := rg.rec.onPhase
	rg.rec.onPhase = func(trial int, ph Phase, onset time.Duration) {
		if prev != nil {
			prev(trial, ph, onset)
		}
		if trial == n && ph == p {
			rg.input.Press(key, onset+offset)
		}
	}
}

func (rg *rig) result(t *testing.T, i int) *session.TrialResult {
	t.Helper()
	r, ok := rg.sess.Result(i)
	if !ok {
		t.Fatalf("no result for trial %d", i)
	}
	return r
}

func onsetOf(t *testing.T, r *session.TrialResult, p Phase) time.Duration {
	t.Helper()
	at, ok := r.Onset(p.String())
	if !ok {
		t.Fatalf("trial %d has no %s onset", r.Index, p)
	}
	return at
}

// -----------------------------------------------------------------------------
// Phase sequence
// -----------------------------------------------------------------------------

func TestSequence(t *testing.T) {
	tests := []struct {
		name string
		cue  task.CueTiming
		want []Phase
	}{
		{"pre cue", task.PreStimulus, []Phase{
			PhaseFixation, PhasePreInstruction, PhaseStim1, PhaseDelay, PhaseStim2,
			PhaseResponsePrompt, PhaseResponseWait, PhaseResponseFeedback, PhaseTrialEnd,
		}},
		{"post cue", task.PostStimulus, []Phase{
			PhaseFixation, PhaseStim1, PhaseDelay, PhaseStim2, PhasePostInstruction,
			PhaseResponsePrompt, PhaseResponseWait, PhaseResponseFeedback, PhaseTrialEnd,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := spec(0, task.Button, tt.cue, nil)
			got := Sequence(&s)
			if len(got) != len(tt.want) {
				t.Fatalf("Sequence = %v", got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("phase %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPhase_String(t *testing.T) {
	if PhaseStim2.String() != "STIM2" || PhaseResponseWait.String() != "RESPONSE_WAIT" {
		t.Error("unexpected phase names")
	}
	if Phase(99).String() != "Phase(99)" {
		t.Errorf("invalid phase = %q", Phase(99).String())
	}
	if _, err := Phase(0).MarshalText(); err == nil {
		t.Error("MarshalText(0) should fail")
	}
}

// -----------------------------------------------------------------------------
// Session loop
// -----------------------------------------------------------------------------

func TestRun_PhaseOrderAndSideEffects(t *testing.T) {
	rg := newRig(t, 2,
		spec(0, task.Button, task.PreStimulus, task.SideFirst.Ptr()),
		spec(1, task.Button, task.PostStimulus, task.SideFirst.Ptr()),
	)
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.First, 100*ms)
	rg.pressAt(1, PhaseResponseWait, rg.cfg.Keys.First, 100*ms)

	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 0; i < 2; i++ {
		s := rg.sess.Plan.Trials[i]
		want := Sequence(&s)
		got := rg.rec.phases[i]
		if len(got) != len(want) {
			t.Fatalf("trial %d phases = %v, want %v", i, got, want)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("trial %d phase %d = %s, want %s", i, j, got[j], want[j])
			}
		}
		if n := len(rg.result(t, i).Onsets); n != len(want) {
			t.Errorf("trial %d onsets = %d, want %d", i, n, len(want))
		}
	}

	// Every event went to the log and the marker channel in the same order.
	if len(rg.markers.Codes) != len(rg.log.Entries) {
		t.Fatalf("markers = %d, log lines = %d", len(rg.markers.Codes), len(rg.log.Entries))
	}
	codes, _ := device.NewCodeTable(nil)
	for i, e := range rg.log.Entries {
		var ev device.MarkerEvent
		if err := ev.UnmarshalText([]byte(e.Event)); err != nil {
			t.Fatalf("log event %q: %v", e.Event, err)
		}
		if rg.markers.Codes[i] != codes.Code(ev) {
			t.Errorf("marker %d = %d, want code of %s", i, rg.markers.Codes[i], e.Event)
		}
	}

	events := rg.log.Events()
	if events[0] != "EXPERIMENT_ON" || events[len(events)-1] != "EXPERIMENT_OFF" {
		t.Errorf("events start %s end %s", events[0], events[len(events)-1])
	}
	if n := rg.log.Count("STIMULUS_ON"); n != 4 {
		t.Errorf("STIMULUS_ON count = %d, want 4", n)
	}
	if n := rg.log.Count("RESPONSE_UP"); n != 2 {
		t.Errorf("RESPONSE_UP count = %d, want 2", n)
	}
	if !rg.sess.Completed || !rg.store.finished {
		t.Error("session should be completed and checkpoint finished")
	}
}

func TestRun_PhotodiodeFlashOnPhaseOnsets(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := rg.result(t, 0)
	frames := map[time.Duration]sim.Frame{}
	for _, f := range rg.display.Frames {
		frames[f.Onset] = f
	}
	for _, o := range r.Onsets {
		if f := frames[o.At]; !f.Has(sim.OpFlash) {
			t.Errorf("%s onset frame has no flash", o.Phase)
		}
		if f := frames[o.At+rg.cfg.Timing.Refresh]; !f.Has(sim.OpFlash) {
			t.Errorf("%s second frame has no flash", o.Phase)
		}
	}

	fix := onsetOf(t, r, PhaseFixation)
	if f := frames[fix+2*rg.cfg.Timing.Refresh]; f.Has(sim.OpFlash) {
		t.Error("flash held longer than FlashFrames")
	}
}

func TestRun_PhaseDurations(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PostStimulus, nil))
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := rg.result(t, 0)

	tests := []struct {
		from, to Phase
		want     time.Duration
	}{
		{PhaseFixation, PhaseStim1, 100 * ms},
		{PhaseStim1, PhaseDelay, 100 * ms},
		{PhaseDelay, PhaseStim2, 100 * ms},
		{PhaseStim2, PhasePostInstruction, 100 * ms},
		{PhasePostInstruction, PhaseResponsePrompt, 400 * ms},
		{PhaseResponsePrompt, PhaseResponseWait, 100 * ms},
		{PhaseResponseWait, PhaseTrialEnd, 500 * ms},
	}
	for _, tt := range tests {
		if got := onsetOf(t, r, tt.to) - onsetOf(t, r, tt.from); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if r.Start != onsetOf(t, r, PhaseFixation) || r.End-onsetOf(t, r, PhaseTrialEnd) != 50*ms {
		t.Errorf("start %v end %v", r.Start, r.End)
	}
}

// -----------------------------------------------------------------------------
// Instruction
// -----------------------------------------------------------------------------

func TestInstruction_ViewingTime(t *testing.T) {
	tests := []struct {
		name    string
		presses []time.Duration
		want    time.Duration
	}{
		{"dismissed after minimum", []time.Duration{250 * ms}, 250 * ms},
		{"press during minimum ignored", []time.Duration{50 * ms}, 400 * ms},
		{"early press then dismiss", []time.Duration{50 * ms, 300 * ms}, 300 * ms},
		{"no press runs to maximum", nil, 400 * ms},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
			for _, at := range tt.presses {
				rg.pressAt(0, PhasePreInstruction, rg.cfg.Keys.Dismiss, at)
			}
			if err := rg.run(t); err != nil {
				t.Fatalf("Run: %v", err)
			}
			r := rg.result(t, 0)
			if r.InstructionTime == nil || *r.InstructionTime != tt.want {
				t.Errorf("InstructionTime = %v, want %v", r.InstructionTime, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Discrete response
// -----------------------------------------------------------------------------

func TestButton_Response(t *testing.T) {
	tests := []struct {
		name   string
		key    func(k config.KeysConfig) string
		side   task.Side
		marker string
	}{
		{"first key", func(k config.KeysConfig) string { return k.First }, task.SideFirst, "RESPONSE_UP"},
		{"second key", func(k config.KeysConfig) string { return k.Second }, task.SideSecond, "RESPONSE_DOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
			rg.pressAt(0, PhaseResponseWait, tt.key(rg.cfg.Keys), 120*ms)
			if err := rg.run(t); err != nil {
				t.Fatalf("Run: %v", err)
			}
			r := rg.result(t, 0)
			if r.Response == nil || *r.Response != tt.side {
				t.Errorf("Response = %v, want %s", r.Response, tt.side)
			}
			if r.ResponseTime == nil || *r.ResponseTime != 120*ms {
				t.Errorf("ResponseTime = %v, want 120ms", r.ResponseTime)
			}
			if r.Outcome != session.OutcomeSubmitted {
				t.Errorf("Outcome = %s", r.Outcome)
			}
			if rg.log.Count(tt.marker) != 1 {
				t.Errorf("%s not logged once", tt.marker)
			}
			// The response ends the wait at once.
			wait := onsetOf(t, r, PhaseResponseWait)
			if fb := onsetOf(t, r, PhaseResponseFeedback); fb-wait != 120*ms {
				t.Errorf("feedback onset %v after wait", fb-wait)
			}
		})
	}
}

func TestButton_FirstPressWins(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.Second, 100*ms)
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.First, 100*ms)
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := rg.result(t, 0); r.Response == nil || *r.Response != task.SideSecond {
		t.Errorf("Response = %v, want 2", r.Response)
	}
}

func TestButton_PressBeforeWindowIgnored(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
	rg.pressAt(0, PhaseResponsePrompt, rg.cfg.Keys.First, 10*ms)
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := rg.result(t, 0); r.Response != nil {
		t.Errorf("Response = %v, want undefined", *r.Response)
	}
}

func TestButton_TimeoutLeavesUndefined(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, task.SideFirst.Ptr()))
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := rg.result(t, 0)
	if r.Response != nil || r.ResponseTime != nil {
		t.Errorf("Response = %v, ResponseTime = %v, want both undefined", r.Response, r.ResponseTime)
	}
	if r.Outcome != session.OutcomeNone {
		t.Errorf("Outcome = %s", r.Outcome)
	}
	if rg.log.Count("RESPONSE_TIMEOUT") != 1 {
		t.Error("RESPONSE_TIMEOUT not logged")
	}
	if _, ok := r.Onset(PhaseResponseFeedback.String()); ok {
		t.Error("feedback shown without a response")
	}
}

func TestFeedback_DimsChosenLabel(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.Second, 50*ms)
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	fb := onsetOf(t, rg.result(t, 0), PhaseResponseFeedback)
	for _, f := range rg.display.Frames {
		if f.Onset != fb {
			continue
		}
		for _, op := range f.Ops {
			if op.Kind != sim.OpText {
				continue
			}
			dimmed := op.Style == device.TextDimmed
			if dimmed != (op.Text == string(task.LabelSecond)) {
				t.Errorf("label %q dimmed = %v", op.Text, dimmed)
			}
		}
		return
	}
	t.Fatal("feedback frame not found")
}

// -----------------------------------------------------------------------------
// Slider response
// -----------------------------------------------------------------------------

func TestSlider_ClampAndSubmit(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Slider, task.PreStimulus, nil))
	for i := 0; i < 6; i++ {
		rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.SliderRight, time.Duration(10+10*i)*ms)
	}
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.SliderSubmit, 200*ms)
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := rg.result(t, 0)
	if r.Response == nil || *r.Response != task.SideSecond {
		t.Fatalf("Response = %v, want 2", r.Response)
	}
	if r.ResponseTime == nil || *r.ResponseTime != 200*ms {
		t.Errorf("ResponseTime = %v, want 200ms", r.ResponseTime)
	}
	if len(r.Slider) < 2 {
		t.Fatalf("trace = %v", r.Slider)
	}
	for _, s := range r.Slider {
		if s.Position > 1 || s.Position < -1 {
			t.Errorf("sample %+v beyond the pole", s)
		}
	}
	if last := r.Slider[len(r.Slider)-1]; last.Position != 1 || last.At != 200*ms {
		t.Errorf("last sample = %+v, want position 1 at 200ms", last)
	}
	if rg.log.Count("RESPONSE_RIGHT") != 1 {
		t.Error("RESPONSE_RIGHT not logged")
	}
}

func TestSlider_MidpointSubmitIgnored(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Slider, task.PreStimulus, nil))
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.SliderSubmit, 50*ms)
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.SliderLeft, 100*ms)
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.SliderSubmit, 150*ms)
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := rg.result(t, 0)
	if r.Response == nil || *r.Response != task.SideFirst {
		t.Fatalf("Response = %v, want 1", r.Response)
	}
	if r.ResponseTime == nil || *r.ResponseTime != 150*ms {
		t.Errorf("ResponseTime = %v, want 150ms", r.ResponseTime)
	}
	if rg.log.Count("SLIDER_MIDPOINT_SUBMIT") != 1 {
		t.Error("midpoint submit not noted")
	}
}

func TestSlider_Deadline(t *testing.T) {
	tests := []struct {
		name    string
		moves   []string
		side    *task.Side
		outcome session.Outcome
	}{
		{"moved but not confirmed", []string{"left"}, task.SideFirst.Ptr(), session.OutcomeUnconfirmed},
		{"moved back to midpoint", []string{"left", "right"}, nil, session.OutcomeUnconfirmed},
		{"never touched", nil, nil, session.OutcomeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rg := newRig(t, 1, spec(0, task.Slider, task.PreStimulus, nil))
			for i, k := range tt.moves {
				rg.pressAt(0, PhaseResponseWait, k, time.Duration(50+50*i)*ms)
			}
			if err := rg.run(t); err != nil {
				t.Fatalf("Run: %v", err)
			}
			r := rg.result(t, 0)
			if (r.Response == nil) != (tt.side == nil) || (r.Response != nil && *r.Response != *tt.side) {
				t.Errorf("Response = %v, want %v", r.Response, tt.side)
			}
			if r.ResponseTime != nil {
				t.Errorf("ResponseTime = %v, want undefined", *r.ResponseTime)
			}
			if r.Outcome != tt.outcome {
				t.Errorf("Outcome = %s, want %s", r.Outcome, tt.outcome)
			}
			if len(r.Slider) == 0 {
				t.Error("trace is empty")
			}
		})
	}
}

func TestSlider_ReminderAfterDelay(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Slider, task.PreStimulus, nil))
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wait := onsetOf(t, rg.result(t, 0), PhaseResponseWait)
	for _, f := range rg.display.Frames {
		if f.Onset < wait || f.Onset >= wait+rg.cfg.Timing.ResponseMax {
			continue
		}
		want := f.Onset-wait >= rg.cfg.Timing.SliderReminder
		if got := f.HasText("to confirm your answer"); got != want {
			t.Errorf("frame at +%v reminder = %v, want %v", f.Onset-wait, got, want)
		}
	}
}

// -----------------------------------------------------------------------------
// Blocks and control keys
// -----------------------------------------------------------------------------

func TestRun_BlockBreakShowsAccuracy(t *testing.T) {
	rg := newRig(t, 2,
		spec(0, task.Button, task.PreStimulus, task.SideFirst.Ptr()),
		spec(1, task.Button, task.PreStimulus, task.SideFirst.Ptr()),
		spec(2, task.Button, task.PreStimulus, task.SideFirst.Ptr()),
		spec(3, task.Button, task.PreStimulus, task.SideFirst.Ptr()),
	)
	rg.pressAt(0, PhaseResponseWait, rg.cfg.Keys.First, 50*ms)
	rg.pressAt(1, PhaseResponseWait, rg.cfg.Keys.Second, 50*ms)
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	breaks := map[string]bool{}
	for _, f := range rg.display.Frames {
		for _, op := range f.Ops {
			if op.Kind == sim.OpText && strings.HasPrefix(op.Text, BreakText) {
				breaks[op.Text] = true
			}
		}
	}
	if len(breaks) != 1 || !breaks[BreakScreen(50)] {
		t.Errorf("break screens = %v, want only %q", breaks, BreakScreen(50))
	}
	if rg.log.Count("BLOCK_ON") != 2 || rg.log.Count("BLOCK_OFF") != 2 {
		t.Errorf("block events on=%d off=%d", rg.log.Count("BLOCK_ON"), rg.log.Count("BLOCK_OFF"))
	}
}

func TestRun_IntermissionWaitsForContinue(t *testing.T) {
	s := spec(1, task.Button, task.PostStimulus, nil)
	s.Intermission = plan.MidpointMessage
	rg := newRig(t, 2, spec(0, task.Button, task.PreStimulus, nil), s)

	shown := 0
	rg.onFrame = append(rg.onFrame, func(f sim.Frame) {
		if f.HasText(plan.MidpointMessage) {
			shown++
			if shown == 3 {
				rg.input.PressNow(rg.cfg.Keys.Continue)
			}
		}
	})
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if shown != 3 {
		t.Errorf("midpoint screen frames = %d, want 3", shown)
	}
	if rg.sess.CompletedTrials() != 2 {
		t.Errorf("completed = %d", rg.sess.CompletedTrials())
	}
}

func TestRun_Abort(t *testing.T) {
	rg := newRig(t, 2,
		spec(0, task.Button, task.PreStimulus, nil),
		spec(1, task.Button, task.PreStimulus, nil),
	)
	rg.pressAt(1, PhaseStim1, rg.cfg.Keys.Abort[0], 0)

	err := rg.run(t)
	if !taskerrors.IsCode(err, taskerrors.ErrSessionAborted) {
		t.Fatalf("Run error = %v, want SESSION_ABORTED", err)
	}
	if rg.sess.CompletedTrials() != 1 || !rg.sess.Aborted || rg.sess.Completed {
		t.Errorf("completed=%d aborted=%v done=%v", rg.sess.CompletedTrials(), rg.sess.Aborted, rg.sess.Completed)
	}
	if got := rg.rec.phases[1]; got[len(got)-1] != PhaseStim1 {
		t.Errorf("trial 2 ran past the abort: %v", got)
	}
	if rg.log.Count("SESSION_ABORTED") != 1 || rg.log.Count("EXPERIMENT_OFF") != 1 {
		t.Error("abort teardown events missing")
	}
	if !rg.store.finished {
		t.Error("checkpoint not finished after abort")
	}
}

func TestRun_PauseDoesNotShortenPhases(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
	rg.pressAt(0, PhaseStim1, rg.cfg.Keys.Pause, 0)

	paused := 0
	rg.onFrame = append(rg.onFrame, func(f sim.Frame) {
		if f.HasText(PauseText) {
			paused++
			if paused == 5 {
				rg.input.PressNow(rg.cfg.Keys.Continue)
			}
		}
	})
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if paused != 5 {
		t.Errorf("pause frames = %d, want 5", paused)
	}
	if rg.log.Count("PAUSE_ON") != 1 || rg.log.Count("PAUSE_OFF") != 1 {
		t.Error("pause events missing")
	}
	r := rg.result(t, 0)
	if d := onsetOf(t, r, PhaseDelay) - onsetOf(t, r, PhaseStim1); d != 150*ms {
		// 100ms of stimulus plus five pause frames.
		t.Errorf("stim1 -> delay = %v, want 150ms", d)
	}
}

func TestRun_PauseThenAbort(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
	rg.pressAt(0, PhaseFixation, rg.cfg.Keys.Pause, 0)
	rg.onFrame = append(rg.onFrame, func(f sim.Frame) {
		if f.HasText(PauseText) {
			rg.input.PressNow(rg.cfg.Keys.Abort[1])
		}
	})
	if err := rg.run(t); !taskerrors.IsCode(err, taskerrors.ErrSessionAborted) {
		t.Fatalf("Run error = %v, want SESSION_ABORTED", err)
	}
	if rg.log.Count("PAUSE_OFF") != 0 {
		t.Error("PAUSE_OFF logged after abort")
	}
}

func TestRun_CancelledContextAborts(t *testing.T) {
	rg := newRig(t, 1, spec(0, task.Button, task.PreStimulus, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(rg.cfg, rg.sess, rg.opts).Run(ctx)
	if !taskerrors.IsCode(err, taskerrors.ErrSessionAborted) {
		t.Fatalf("Run error = %v", err)
	}
	if rg.sess.CompletedTrials() != 0 {
		t.Error("no trial should run")
	}
}

// -----------------------------------------------------------------------------
// Persistence and failures
// -----------------------------------------------------------------------------

func TestRun_CheckpointsEveryTrial(t *testing.T) {
	rg := newRig(t, 3,
		spec(0, task.Button, task.PreStimulus, nil),
		spec(1, task.Slider, task.PostStimulus, nil),
		spec(2, task.Button, task.PostStimulus, nil),
	)
	ckpt, err := session.CreateCheckpoint(t.TempDir(), rg.sess, 0)
	if err != nil {
		t.Fatal(err)
	}
	rg.opts.Checkpoint = ckpt

	checked := 0
	rg.rec.onTrial = func(s *task.TrialSpec) {
		rec, err := session.Recover(ckpt.Path())
		if err != nil {
			t.Fatalf("Recover after trial %d: %v", s.Index, err)
		}
		if rec.CompletedTrials() != s.Index+1 {
			t.Errorf("checkpoint after trial %d holds %d trials", s.Index, rec.CompletedTrials())
		}
		checked++
	}
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if checked != 3 {
		t.Errorf("checked %d trials", checked)
	}

	rec, err := session.Recover(ckpt.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Completed || rec.CompletedTrials() != 3 {
		t.Errorf("recovered completed=%v trials=%d", rec.Completed, rec.CompletedTrials())
	}
}

func TestRun_CheckpointFailureStops(t *testing.T) {
	rg := newRig(t, 2,
		spec(0, task.Button, task.PreStimulus, nil),
		spec(1, task.Button, task.PreStimulus, nil),
	)
	rg.store.err = taskerrors.IO(taskerrors.ErrCheckpointWriteFailed, "disk full")
	err := rg.run(t)
	if !taskerrors.IsCode(err, taskerrors.ErrCheckpointWriteFailed) {
		t.Fatalf("Run error = %v", err)
	}
	if len(rg.rec.phases[1]) != 0 {
		t.Error("second trial started after checkpoint failure")
	}
}

func TestRun_CrashReturnsPartialSession(t *testing.T) {
	rg := newRig(t, 3,
		spec(0, task.Button, task.PreStimulus, nil),
		spec(1, task.Button, task.PreStimulus, nil),
		spec(2, task.Button, task.PreStimulus, nil),
	)
	rg.rec.onTrial = func(s *task.TrialSpec) {
		if s.Index == 1 {
			panic("stimulus decoder exploded")
		}
	}

	err := rg.run(t)
	if !taskerrors.IsCode(err, taskerrors.ErrSessionCrashed) {
		t.Fatalf("Run error = %v, want SESSION_CRASHED", err)
	}
	if rg.sess.CompletedTrials() != 2 {
		t.Errorf("completed = %d, want 2", rg.sess.CompletedTrials())
	}
	if !strings.Contains(rg.sess.CrashReason, "exploded") || rg.sess.Completed {
		t.Errorf("crash reason %q completed %v", rg.sess.CrashReason, rg.sess.Completed)
	}
	if rg.log.Count("SESSION_CRASHED") != 1 {
		t.Error("SESSION_CRASHED not logged")
	}
	if !rg.store.finished {
		t.Error("checkpoint not finished after crash")
	}
}

func TestRun_FailingMarkerDeviceDoesNotStopRun(t *testing.T) {
	rg := newRig(t, 2,
		spec(0, task.Button, task.PreStimulus, nil),
		spec(1, task.Slider, task.PostStimulus, nil),
	)
	rg.markers.FailAfter = 3

	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rg.reg.Enabled(device.NameMarkers) {
		t.Error("markers should be disabled after a failure")
	}
	if len(rg.markers.Codes) != 3 {
		t.Errorf("codes sent = %d, want 3", len(rg.markers.Codes))
	}
	if rg.sess.CompletedTrials() != 2 || rg.log.Count("TRIAL_END") != 2 {
		t.Error("run did not complete after the marker failure")
	}
}

func TestRun_Resume(t *testing.T) {
	rg := newRig(t, 2,
		spec(0, task.Button, task.PreStimulus, nil),
		spec(1, task.Button, task.PreStimulus, nil),
	)
	rg.sess.Record(&session.TrialResult{Index: 0, Outcome: session.OutcomeNone})

	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rg.rec.phases[0]) != 0 || len(rg.rec.phases[1]) == 0 {
		t.Errorf("phases = %v", rg.rec.phases)
	}
	if !strings.Contains(rg.log.Entries[0].Message, "resume at trial 2") {
		t.Errorf("first log line = %+v", rg.log.Entries[0])
	}
	if len(rg.store.trials) != 1 || rg.store.trials[0] != 1 {
		t.Errorf("checkpointed = %v", rg.store.trials)
	}
}

type failingSink struct{ calls int }

func (s *failingSink) Name() string { return "resultsdb" }

func (s *failingSink) SaveTrial(context.Context, *session.Session, *task.TrialSpec, *session.TrialResult) error {
	s.calls++
	return errors.New("connection refused")
}

func TestRun_FailingSinkDropped(t *testing.T) {
	rg := newRig(t, 2,
		spec(0, task.Button, task.PreStimulus, nil),
		spec(1, task.Button, task.PreStimulus, nil),
	)
	sink := &failingSink{}
	rg.opts.Sinks = []TrialSink{sink}
	if err := rg.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.calls != 1 {
		t.Errorf("sink calls = %d, want 1", sink.calls)
	}
}
