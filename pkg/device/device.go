// Package device defines the collaborators the trial runner talks to:
// display, keyboard, clock, event markers, the event log and the eye
// tracker. Every hardware call returns a Result the runner inspects once.
package device

import (
	"fmt"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
)

// Result is the outcome of a collaborator call.
type Result struct {
	OK     bool
	Reason string
}

// Ok is a successful Result.
func Ok() Result {
	return Result{OK: true}
}

// Fail is a failed Result with a reason.
func Fail(reason string) Result {
	return Result{Reason: reason}
}

// Failf is Fail with a formatted reason.
func Failf(format string, args ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// FromError maps a nil error to Ok and anything else to Fail.
func FromError(err error) Result {
	if err == nil {
		return Ok()
	}
	return Fail(err.Error())
}

// Clock is the session time base. Now is measured from session start.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// TextStyle selects how a text item is drawn.
type TextStyle int

const (
	TextNormal TextStyle = iota
	TextDimmed           // de-emphasized, e.g. a chosen label after response
	TextSmall            // reminders
)

// Display draws a frame and flips it on Present.
type Display interface {
	Clear()
	DrawText(r config.Rect, text string, style TextStyle)
	DrawImage(r config.Rect, path string)
	DrawFixation(r config.Rect)
	DrawSlider(r config.Rect, position, halfRange float64)
	DrawFlash(r config.Rect)

	// Present shows the frame and returns its onset time on the session clock.
	Present() time.Duration
}

// KeyEvent is a key press stamped on the session clock.
type KeyEvent struct {
	Key string
	At  time.Duration
}

// Input is a buffered keyboard (or button box). Poll never blocks.
type Input interface {
	// Poll removes and returns buffered presses of the given keys in
	// arrival order. Presses of other keys stay buffered.
	Poll(keys ...string) []KeyEvent

	// Discard drops buffered presses of the given keys, or all presses
	// when no key is named.
	Discard(keys ...string)
}

// MarkerSender writes one event code to the acquisition system.
type MarkerSender interface {
	Send(code byte) Result
}

// EventLogger appends one line per experiment event.
type EventLogger interface {
	Append(at time.Time, event, message string) Result
	Close() error
}

// EyeTracker is the eye-tracking collaborator.
type EyeTracker interface {
	Calibrate() Result
	StartRecording() Result
	StopRecording() Result
	Message(text string) Result

	// Retrieve copies the recording file into dir.
	Retrieve(dir string) Result
	Close() error
}
