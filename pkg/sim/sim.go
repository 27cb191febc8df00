// Package sim provides deterministic stand-ins for the task's hardware: a
// virtual clock, a recording display and a scripted keyboard. Rehearsal
// runs and tests drive the full trial state machine through it.
package sim

import (
	"strings"
	"sync"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
)

// Clock is a virtual session clock. It only moves when advanced.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now implements device.Clock.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep implements device.Clock by advancing virtual time.
func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// OpKind identifies a draw call.
type OpKind int

const (
	OpText OpKind = iota
	OpImage
	OpFixation
	OpSlider
	OpFlash
)

// Op is one recorded draw call.
type Op struct {
	Kind     OpKind
	Rect     config.Rect
	Text     string
	Style    device.TextStyle
	Position float64
}

// Frame is everything drawn before one Present.
type Frame struct {
	Onset time.Duration
	Ops   []Op
}

// HasText reports whether any text op contains s.
func (f Frame) HasText(s string) bool {
	for _, op := range f.Ops {
		if op.Kind == OpText && strings.Contains(op.Text, s) {
			return true
		}
	}
	return false
}

// Has reports whether the frame contains an op of kind k.
func (f Frame) Has(k OpKind) bool {
	for _, op := range f.Ops {
		if op.Kind == k {
			return true
		}
	}
	return false
}

// Slider returns the slider position drawn in the frame.
func (f Frame) Slider() (float64, bool) {
	for _, op := range f.Ops {
		if op.Kind == OpSlider {
			return op.Position, true
		}
	}
	return 0, false
}

// Display records frames and advances the clock one refresh per Present.
type Display struct {
	Clock   *Clock
	Refresh time.Duration

	// OnPresent, if set, sees every frame after it is shown. Scripted
	// participants use it to react to what is on screen.
	OnPresent func(f Frame)

	// Keep retains every frame in Frames.
	Keep bool

	Frames  []Frame
	Count   int
	pending []Op
}

// NewDisplay creates a display at the given refresh interval.
func NewDisplay(clock *Clock, refresh time.Duration) *Display {
	return &Display{Clock: clock, Refresh: refresh, Keep: true}
}

func (d *Display) Clear() {
	d.pending = d.pending[:0]
}

func (d *Display) DrawText(r config.Rect, text string, style device.TextStyle) {
	d.pending = append(d.pending, Op{Kind: OpText, Rect: r, Text: text, Style: style})
}

func (d *Display) DrawImage(r config.Rect, path string) {
	d.pending = append(d.pending, Op{Kind: OpImage, Rect: r, Text: path})
}

func (d *Display) DrawFixation(r config.Rect) {
	d.pending = append(d.pending, Op{Kind: OpFixation, Rect: r})
}

func (d *Display) DrawSlider(r config.Rect, position, _ float64) {
	d.pending = append(d.pending, Op{Kind: OpSlider, Rect: r, Position: position})
}

func (d *Display) DrawFlash(r config.Rect) {
	d.pending = append(d.pending, Op{Kind: OpFlash, Rect: r})
}

// Present implements device.Display. The frame's onset is the time before
// the refresh interval elapses.
func (d *Display) Present() time.Duration {
	f := Frame{Onset: d.Clock.Now(), Ops: append([]Op(nil), d.pending...)}
	d.Count++
	if d.Keep {
		d.Frames = append(d.Frames, f)
	}
	d.Clock.Advance(d.Refresh)
	if d.OnPresent != nil {
		d.OnPresent(f)
	}
	return f.Onset
}

// Input is a scripted keyboard. Presses become visible once the clock
// reaches their time stamp.
type Input struct {
	Clock *Clock

	mu     sync.Mutex
	events []device.KeyEvent
}

// NewInput creates an empty keyboard on clock.
func NewInput(clock *Clock) *Input {
	return &Input{Clock: clock}
}

// Press queues a key press at time at.
func (in *Input) Press(key string, at time.Duration) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.events = append(in.events, device.KeyEvent{Key: key, At: at})
}

// PressNow queues a key press at the current time.
func (in *Input) PressNow(key string) {
	in.Press(key, in.Clock.Now())
}

// Pending returns the number of queued presses.
func (in *Input) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.events)
}

func contains(keys []string, k string) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}

// Poll implements device.Input.
func (in *Input) Poll(keys ...string) []device.KeyEvent {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := in.Clock.Now()
	var out []device.KeyEvent
	kept := in.events[:0]
	for _, ev := range in.events {
		if ev.At <= now && contains(keys, ev.Key) {
			out = append(out, ev)
		} else {
			kept = append(kept, ev)
		}
	}
	in.events = kept
	return out
}

// Discard implements device.Input. Only presses already due are dropped.
func (in *Input) Discard(keys ...string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	now := in.Clock.Now()
	kept := in.events[:0]
	for _, ev := range in.events {
		due := ev.At <= now
		if due && (len(keys) == 0 || contains(keys, ev.Key)) {
			continue
		}
		kept = append(kept, ev)
	}
	in.events = kept
}

// Markers records sent codes with their send time.
type Markers struct {
	Clock *Clock
	Codes []byte
	At    []time.Duration

	// FailAfter makes every send after the first n fail. Zero never fails.
	FailAfter int
}

// Send implements device.MarkerSender.
func (m *Markers) Send(code byte) device.Result {
	if m.FailAfter > 0 && len(m.Codes) >= m.FailAfter {
		return device.Fail("simulated marker failure")
	}
	m.Codes = append(m.Codes, code)
	if m.Clock != nil {
		m.At = append(m.At, m.Clock.Now())
	}
	return device.Ok()
}

// Entry is one recorded event-log line.
type Entry struct {
	Event   string
	Message string
}

// Log records event-log lines in memory.
type Log struct {
	mu      sync.Mutex
	Entries []Entry
}

// Append implements device.EventLogger.
func (l *Log) Append(_ time.Time, event, message string) device.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, Entry{Event: event, Message: message})
	return device.Ok()
}

// Close implements device.EventLogger.
func (l *Log) Close() error { return nil }

// Events returns the recorded event names in order.
func (l *Log) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = e.Event
	}
	return out
}

// Count returns how many times event was logged.
func (l *Log) Count(event string) int {
	n := 0
	for _, e := range l.Events() {
		if e == event {
			n++
		}
	}
	return n
}
