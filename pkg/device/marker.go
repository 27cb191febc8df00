package device

import (
	"encoding"
	"fmt"
	"sort"

	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
)

// MarkerEvent names an experiment event that is logged and marked.
type MarkerEvent int

const (
	ExperimentOn MarkerEvent = iota + 1
	ExperimentOff
	BlockOn
	BlockOff
	FixationOn
	InstructionOn
	InstructionOff
	StimulusOn
	StimulusOff
	DelayOn
	ResponsePromptOn
	ResponseOn
	ResponseLeft
	ResponseRight
	ResponseUp
	ResponseDown
	ResponseTimeout
	FeedbackOn
	TrialEnd
	PauseOn
	PauseOff
	IntermissionOn
	SessionAborted
	SessionCrashed
)

const lastMarkerEvent = SessionCrashed

var markerNames = [...]string{
	ExperimentOn:     "EXPERIMENT_ON",
	ExperimentOff:    "EXPERIMENT_OFF",
	BlockOn:          "BLOCK_ON",
	BlockOff:         "BLOCK_OFF",
	FixationOn:       "FIXATION_ON",
	InstructionOn:    "INSTRUCTION_ON",
	InstructionOff:   "INSTRUCTION_OFF",
	StimulusOn:       "STIMULUS_ON",
	StimulusOff:      "STIMULUS_OFF",
	DelayOn:          "DELAY_ON",
	ResponsePromptOn: "RESPONSE_PROMPT_ON",
	ResponseOn:       "RESPONSE_ON",
	ResponseLeft:     "RESPONSE_LEFT",
	ResponseRight:    "RESPONSE_RIGHT",
	ResponseUp:       "RESPONSE_UP",
	ResponseDown:     "RESPONSE_DOWN",
	ResponseTimeout:  "RESPONSE_TIMEOUT",
	FeedbackOn:       "FEEDBACK_ON",
	TrialEnd:         "TRIAL_END",
	PauseOn:          "PAUSE_ON",
	PauseOff:         "PAUSE_OFF",
	IntermissionOn:   "INTERMISSION_ON",
	SessionAborted:   "SESSION_ABORTED",
	SessionCrashed:   "SESSION_CRASHED",
}

var markerByName = func() map[string]MarkerEvent {
	m := make(map[string]MarkerEvent, len(markerNames))
	for ev := ExperimentOn; ev <= lastMarkerEvent; ev++ {
		m[markerNames[ev]] = ev
	}
	return m
}()

var (
	_ fmt.Stringer             = MarkerEvent(0)
	_ encoding.TextMarshaler   = MarkerEvent(0)
	_ encoding.TextUnmarshaler = (*MarkerEvent)(nil)
)

func (e MarkerEvent) isValid() bool {
	return e >= ExperimentOn && e <= lastMarkerEvent
}

// String returns the log name of the event ("STIMULUS_ON").
func (e MarkerEvent) String() string {
	if e.isValid() {
		return markerNames[e]
	}
	return fmt.Sprintf("MarkerEvent(%d)", int(e))
}

// MarshalText implements encoding.TextMarshaler.
func (e MarkerEvent) MarshalText() ([]byte, error) {
	if !e.isValid() {
		return nil, fmt.Errorf("device: invalid marker event: %d", int(e))
	}
	return []byte(markerNames[e]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *MarkerEvent) UnmarshalText(text []byte) error {
	v, ok := markerByName[string(text)]
	if !ok {
		return fmt.Errorf("device: invalid marker event: %q", text)
	}
	*e = v
	return nil
}

// defaultCodes is the hardware code of each event.
var defaultCodes = map[MarkerEvent]byte{
	ExperimentOn:     1,
	ExperimentOff:    2,
	BlockOn:          3,
	BlockOff:         4,
	FixationOn:       10,
	InstructionOn:    20,
	InstructionOff:   21,
	StimulusOn:       30,
	StimulusOff:      31,
	DelayOn:          32,
	ResponsePromptOn: 40,
	ResponseOn:       41,
	ResponseLeft:     42,
	ResponseRight:    43,
	ResponseUp:       44,
	ResponseDown:     45,
	ResponseTimeout:  46,
	FeedbackOn:       47,
	TrialEnd:         50,
	PauseOn:          60,
	PauseOff:         61,
	IntermissionOn:   62,
	SessionAborted:   254,
	SessionCrashed:   255,
}

// CodeTable maps every event to a distinct one-byte code.
type CodeTable struct {
	codes map[MarkerEvent]byte
}

// NewCodeTable starts from the built-in codes and applies overrides keyed
// by event name. Unknown names, codes outside 1-255 and duplicate codes
// are configuration errors.
func NewCodeTable(overrides map[string]int) (*CodeTable, error) {
	codes := make(map[MarkerEvent]byte, len(defaultCodes))
	for ev, c := range defaultCodes {
		codes[ev] = c
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ev, ok := markerByName[name]
		if !ok {
			return nil, taskerrors.Configf(taskerrors.ErrMarkerUnknownEvent, "unknown marker event %q", name).
				WithContext(taskerrors.ContextEvent, name)
		}
		c := overrides[name]
		if c < 1 || c > 255 {
			return nil, taskerrors.Configf(taskerrors.ErrMarkerCodeInvalid, "marker code %d out of range", c).
				WithContext(taskerrors.ContextEvent, name)
		}
		codes[ev] = byte(c)
	}

	seen := make(map[byte]MarkerEvent, len(codes))
	for ev := ExperimentOn; ev <= lastMarkerEvent; ev++ {
		c, ok := codes[ev]
		if !ok {
			return nil, taskerrors.Internal(taskerrors.ErrMarkerUnknownEvent, "event without code: "+ev.String())
		}
		if other, dup := seen[c]; dup {
			return nil, taskerrors.Configf(taskerrors.ErrMarkerCodeInvalid,
				"marker code %d shared by %s and %s", c, other, ev).
				WithContext(taskerrors.ContextEvent, ev.String())
		}
		seen[c] = ev
	}
	return &CodeTable{codes: codes}, nil
}

// Code returns the code of ev.
func (t *CodeTable) Code(ev MarkerEvent) byte {
	return t.codes[ev]
}

// Lines lists "NAME<TAB>code" entries in event order, for the operator.
func (t *CodeTable) Lines() []string {
	out := make([]string, 0, len(t.codes))
	for ev := ExperimentOn; ev <= lastMarkerEvent; ev++ {
		out = append(out, fmt.Sprintf("%s\t%d", ev, t.codes[ev]))
	}
	return out
}
