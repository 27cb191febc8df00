// Package task defines the verbal instruction working-memory task: its
// factors, the trial description handed to the runner, the instruction
// wording and the correct-response rules.
package task

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Category is the stimulus category shown on a trial.
type Category int

const (
	Animals Category = iota + 1
	Cars
	Faces
	Fruits
)

// AllCategories lists the categories in design order.
var AllCategories = []Category{Animals, Cars, Faces, Fruits}

var (
	categoryNames  = [...]string{Animals: "Animals", Cars: "Cars", Faces: "Faces", Fruits: "Fruits"}
	categoryByName = map[string]Category{"Animals": Animals, "Cars": Cars, "Faces": Faces, "Fruits": Fruits}
)

var (
	_ fmt.Stringer             = Category(0)
	_ encoding.TextMarshaler   = Category(0)
	_ encoding.TextUnmarshaler = (*Category)(nil)
)

func (c Category) isValid() bool {
	return c >= Animals && c <= Fruits
}

// String returns the folder name of the category ("Animals", "Cars"...).
func (c Category) String() string {
	if c.isValid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.isValid() {
		return nil, fmt.Errorf("task: invalid category: %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	v, ok := categoryByName[string(text)]
	if !ok {
		return fmt.Errorf("task: invalid category: %q", text)
	}
	*c = v
	return nil
}

// Axis is the decision dimension a trial asks about.
type Axis int

const (
	AxisNew Axis = iota + 1
	AxisIdentical
	AxisCount
	AxisColorful
)

var (
	axisNames  = [...]string{AxisNew: "New", AxisIdentical: "Identical", AxisCount: "Count", AxisColorful: "Colorful"}
	axisByName = map[string]Axis{"New": AxisNew, "Identical": AxisIdentical, "Count": AxisCount, "Colorful": AxisColorful}
)

func (a Axis) isValid() bool {
	return a >= AxisNew && a <= AxisColorful
}

func (a Axis) String() string {
	if a.isValid() {
		return axisNames[a]
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Axis) MarshalText() ([]byte, error) {
	if !a.isValid() {
		return nil, fmt.Errorf("task: invalid axis: %d", int(a))
	}
	return []byte(axisNames[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Axis) UnmarshalText(text []byte) error {
	v, ok := axisByName[string(text)]
	if !ok {
		return fmt.Errorf("task: invalid axis: %q", text)
	}
	*a = v
	return nil
}

// categoryAxes maps each category to its two decision axes. Trials select
// an axis by index (0 or 1) into this table.
var categoryAxes = map[Category][2]Axis{
	Animals: {AxisColorful, AxisCount},
	Cars:    {AxisNew, AxisColorful},
	Faces:   {AxisNew, AxisIdentical},
	Fruits:  {AxisCount, AxisIdentical},
}

// AxesOf returns the two axes available for c.
func AxesOf(c Category) [2]Axis {
	return categoryAxes[c]
}

// AxisFor returns the axis at index i (0 or 1) of c's axis pair.
func AxisFor(c Category, i int) Axis {
	axes, ok := categoryAxes[c]
	if !ok || i < 0 || i > 1 {
		return 0
	}
	return axes[i]
}

// Modality is the response method of a trial.
type Modality int

const (
	Button Modality = iota
	Slider
)

func (m Modality) String() string {
	switch m {
	case Button:
		return "button"
	case Slider:
		return "slider"
	default:
		return fmt.Sprintf("Modality(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Modality) MarshalText() ([]byte, error) {
	if m != Button && m != Slider {
		return nil, fmt.Errorf("task: invalid modality: %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Modality) UnmarshalText(text []byte) error {
	switch string(text) {
	case "button":
		*m = Button
	case "slider":
		*m = Slider
	default:
		return fmt.Errorf("task: invalid modality: %q", text)
	}
	return nil
}

// CueTiming places the instruction before or after the two stimuli.
type CueTiming int

const (
	PreStimulus CueTiming = iota + 1
	PostStimulus
)

func (c CueTiming) String() string {
	switch c {
	case PreStimulus:
		return "pre"
	case PostStimulus:
		return "post"
	default:
		return fmt.Sprintf("CueTiming(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CueTiming) MarshalText() ([]byte, error) {
	if c != PreStimulus && c != PostStimulus {
		return nil, fmt.Errorf("task: invalid cue timing: %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CueTiming) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pre":
		*c = PreStimulus
	case "post":
		*c = PostStimulus
	default:
		return fmt.Errorf("task: invalid cue timing: %q", text)
	}
	return nil
}

// Side is a response position: the first label (left or top) or the
// second (right or bottom). Undefined sides are carried as a nil *Side.
type Side int

const (
	SideFirst  Side = 1
	SideSecond Side = 2
)

var (
	_ json.Marshaler   = Side(0)
	_ json.Unmarshaler = (*Side)(nil)
)

// Ptr returns a pointer to a copy of s.
func (s Side) Ptr() *Side {
	return &s
}

func (s Side) String() string {
	switch s {
	case SideFirst:
		return "1"
	case SideSecond:
		return "2"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// MarshalJSON writes the side as its 1-based position.
func (s Side) MarshalJSON() ([]byte, error) {
	if s != SideFirst && s != SideSecond {
		return nil, fmt.Errorf("task: invalid side: %d", int(s))
	}
	return json.Marshal(int(s))
}

// UnmarshalJSON reads a 1-based position.
func (s *Side) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task: invalid side: %s", data)
	}
	if n != 1 && n != 2 {
		return fmt.Errorf("task: invalid side: %d", n)
	}
	*s = Side(n)
	return nil
}

// Factors is one cell of the factorial design.
type Factors struct {
	Category Category  `json:"category"`
	AxisIdx  int       `json:"axis_index"`
	AntiTask bool      `json:"anti_task"`
	Prompt   bool      `json:"prompt_variant"`
	Phrasing bool      `json:"equivalent_variant"`
	Response Modality  `json:"response_variant"`
	Cue      CueTiming `json:"cue_timing"`
}

// Axis resolves the trial axis from the category and axis index.
func (f Factors) Axis() Axis {
	return AxisFor(f.Category, f.AxisIdx)
}

// Variant is anti-task plus prompt variant (0, 1 or 2). Variant 1 asks for
// the stimulus that has the feature (more colorful, more items, newer).
func (f Factors) Variant() int {
	v := 0
	if f.AntiTask {
		v++
	}
	if f.Prompt {
		v++
	}
	return v
}
