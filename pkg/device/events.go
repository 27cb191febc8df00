package device

import (
	"fmt"
	"os"
	"time"

	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
)

// Collaborator names in the registry.
const (
	NameMarkers    = "markers"
	NameEventLog   = "eventlog"
	NameEyeTracker = "eyetracker"
	NamePhotodiode = "photodiode"
)

// Events fans one experiment event out to the event log, the marker
// channel and the eye tracker. Each target is optional and guarded by the
// registry, so a failing device never interrupts the trial loop.
type Events struct {
	Codes   *CodeTable
	Markers MarkerSender
	Log     EventLogger
	Eye     EyeTracker
	Reg     *Registry

	// Wall stamps log lines. Defaults to time.Now.
	Wall func() time.Time
}

// NewEvents registers the given collaborators; nil ones are registered as
// disabled.
func NewEvents(codes *CodeTable, markers MarkerSender, logger EventLogger, eye EyeTracker, reg *Registry) *Events {
	reg.Register(NameMarkers, markers != nil)
	reg.Register(NameEventLog, logger != nil)
	reg.Register(NameEyeTracker, eye != nil)
	return &Events{Codes: codes, Markers: markers, Log: logger, Eye: eye, Reg: reg, Wall: time.Now}
}

// Emit logs the event, sends its marker code and forwards it to the eye
// tracker, in that order.
func (e *Events) Emit(ev MarkerEvent, format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	if e.Log != nil && e.Reg.Enabled(NameEventLog) {
		e.Reg.Check(NameEventLog, e.Log.Append(e.wall(), ev.String(), msg))
	}
	if e.Markers != nil && e.Reg.Enabled(NameMarkers) {
		e.Reg.Check(NameMarkers, e.Markers.Send(e.Codes.Code(ev)))
	}
	if e.Eye != nil && e.Reg.Enabled(NameEyeTracker) {
		text := ev.String()
		if msg != "" {
			text += " " + msg
		}
		e.Reg.Check(NameEyeTracker, e.Eye.Message(text))
	}
}

// Note writes an event-log line only. It is used for bookkeeping events
// that have no marker code.
func (e *Events) Note(event, format string, args ...interface{}) {
	if e.Log == nil || !e.Reg.Enabled(NameEventLog) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	e.Reg.Check(NameEventLog, e.Log.Append(e.wall(), event, msg))
}

// EyeCall runs one eye-tracker call through the registry.
func (e *Events) EyeCall(call func(EyeTracker) Result) bool {
	if e.Eye == nil || !e.Reg.Enabled(NameEyeTracker) {
		return false
	}
	return e.Reg.Check(NameEyeTracker, call(e.Eye))
}

// Calibrate runs eye-tracker calibration. It fails only when a tracker is
// attached and calibration does not complete; the session must not start
// in that case.
func (e *Events) Calibrate() error {
	if e.Eye == nil || !e.Reg.Enabled(NameEyeTracker) {
		return nil
	}
	res := e.Eye.Calibrate()
	if e.Reg.Check(NameEyeTracker, res) {
		e.Note("CALIBRATED", "")
		return nil
	}
	return taskerrors.Device(taskerrors.ErrEyeTrackerCalibration, "eye-tracker calibration failed: "+res.Reason).
		WithContext(taskerrors.ContextDevice, NameEyeTracker)
}

// RetrieveRecording copies the eye-tracker recording into dir. A tracker
// disabled during the session still gets the call, since the file holds
// everything recorded before the failure.
func (e *Events) RetrieveRecording(dir string) Result {
	if e.Eye == nil {
		return Fail("no eye tracker")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FromError(err)
	}
	return e.Eye.Retrieve(dir)
}

func (e *Events) wall() time.Time {
	if e.Wall == nil {
		return time.Now()
	}
	return e.Wall()
}

// Close closes the event log and the eye tracker.
func (e *Events) Close() error {
	var first error
	if e.Log != nil {
		first = e.Log.Close()
	}
	if e.Eye != nil {
		if err := e.Eye.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
