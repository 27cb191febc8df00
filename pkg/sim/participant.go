package sim

import (
	"math/rand"
	"strings"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// Participant answers a session through a scripted keyboard. It watches
// each presented frame and, when a new screen appears, queues the key
// presses a cooperative participant would make.
type Participant struct {
	Input  *Input
	Keys   config.KeysConfig
	Timing config.TimingConfig
	Rand   *rand.Rand

	// Waits are texts of screens that wait for the continue key.
	Waits []string

	// RT is the base response latency; up to RT of uniform noise is added.
	RT time.Duration

	// Miss is the probability of letting a response window time out.
	Miss float64

	// Responses counts response screens answered.
	Responses int

	last string
}

// NewParticipant creates a participant driving in with cfg's keys.
func NewParticipant(in *Input, cfg *config.Config, seed int64, waits ...string) *Participant {
	return &Participant{
		Input:  in,
		Keys:   cfg.Keys,
		Timing: cfg.Timing,
		Rand:   rand.New(rand.NewSource(seed)),
		Waits:  waits,
		RT:     400 * time.Millisecond,
	}
}

// Attach makes the participant watch d.
func (p *Participant) Attach(d *Display) {
	d.OnPresent = p.See
}

// signature identifies a screen. The photodiode square, the slider
// position and small reminder text do not make a new screen.
func signature(f Frame) string {
	var b strings.Builder
	for _, op := range f.Ops {
		switch {
		case op.Kind == OpFlash:
			continue
		case op.Kind == OpText && op.Style == device.TextSmall:
			continue
		case op.Kind == OpText:
			b.WriteString("t:" + op.Text + "|")
		case op.Kind == OpImage:
			b.WriteString("i:" + op.Text + "|")
		case op.Kind == OpFixation:
			b.WriteString("+|")
		case op.Kind == OpSlider:
			b.WriteString("s|")
		}
	}
	return b.String()
}

func (p *Participant) latency() time.Duration {
	d := p.RT
	if p.RT > 0 {
		d += time.Duration(p.Rand.Int63n(int64(p.RT)))
	}
	return d
}

// See reacts to one presented frame.
func (p *Participant) See(f Frame) {
	sig := signature(f)
	if sig == p.last {
		return
	}
	p.last = sig

	texts := 0
	for _, op := range f.Ops {
		if op.Kind == OpText && op.Style != device.TextSmall {
			texts++
		}
	}

	switch {
	case p.isWait(f):
		p.Input.Press(p.Keys.Continue, f.Onset+p.latency())
	case f.Has(OpSlider) && texts == 2:
		p.slide(f.Onset)
	case texts == 2:
		p.button(f.Onset)
	case texts == 1 && !p.isMotor(f):
		// An instruction: read it for a while after the minimum.
		p.Input.Press(p.Keys.Dismiss, f.Onset+p.Timing.InstructionMin+p.latency())
	}
}

func (p *Participant) isWait(f Frame) bool {
	for _, w := range p.Waits {
		if f.HasText(w) {
			return true
		}
	}
	return false
}

func (p *Participant) isMotor(f Frame) bool {
	return f.HasText(task.MotorText(task.Button)) || f.HasText(task.MotorText(task.Slider))
}

func (p *Participant) missed() bool {
	return p.Miss > 0 && p.Rand.Float64() < p.Miss
}

func (p *Participant) button(onset time.Duration) {
	if p.missed() {
		return
	}
	p.Responses++
	key := p.Keys.First
	if p.Rand.Intn(2) == 1 {
		key = p.Keys.Second
	}
	p.Input.Press(key, onset+p.latency())
}

func (p *Participant) slide(onset time.Duration) {
	if p.missed() {
		return
	}
	p.Responses++
	key := p.Keys.SliderLeft
	if p.Rand.Intn(2) == 1 {
		key = p.Keys.SliderRight
	}
	at := onset + p.latency()
	for i, n := 0, 1+p.Rand.Intn(4); i < n; i++ {
		p.Input.Press(key, at)
		at += 50 * time.Millisecond
	}
	p.Input.Press(p.Keys.SliderSubmit, at+p.latency())
}
