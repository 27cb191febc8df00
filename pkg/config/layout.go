package config

// Rect is a screen region in pixels, origin at the top-left corner.
type Rect struct {
	X, Y, W, H int
}

// Layout is the fixed screen geometry of the task.
type Layout struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// StimulusSize is the side of the square stimulus area.
	StimulusSize int `yaml:"stimulus_size"`

	// LabelOffset is the distance from the centre to each response label.
	LabelOffset int `yaml:"label_offset"`

	// PhotodiodeSize is the side of the flash square in the bottom-right corner.
	PhotodiodeSize int `yaml:"photodiode_size"`
}

// DefaultLayout is sized for a 1920x1080 display.
func DefaultLayout() Layout {
	return Layout{
		Width:          1920,
		Height:         1080,
		StimulusSize:   600,
		LabelOffset:    250,
		PhotodiodeSize: 80,
	}
}

const labelW, labelH = 300, 120

// Center is the stimulus area.
func (l Layout) Center() Rect {
	s := l.StimulusSize
	return Rect{X: (l.Width - s) / 2, Y: (l.Height - s) / 2, W: s, H: s}
}

// Text is the full-width band used for instructions.
func (l Layout) Text() Rect {
	return Rect{X: 0, Y: l.Height/2 - labelH, W: l.Width, H: 2 * labelH}
}

// Labels returns the first and second label regions. Button trials stack
// them vertically, slider trials place them left and right.
func (l Layout) Labels(vertical bool) [2]Rect {
	cx, cy := l.Width/2, l.Height/2
	if vertical {
		return [2]Rect{
			{X: cx - labelW/2, Y: cy - l.LabelOffset - labelH/2, W: labelW, H: labelH},
			{X: cx - labelW/2, Y: cy + l.LabelOffset - labelH/2, W: labelW, H: labelH},
		}
	}
	return [2]Rect{
		{X: cx - l.LabelOffset - labelW/2, Y: cy - labelH/2, W: labelW, H: labelH},
		{X: cx + l.LabelOffset - labelW/2, Y: cy - labelH/2, W: labelW, H: labelH},
	}
}

// Slider is the track of the continuous scale, below the labels.
func (l Layout) Slider() Rect {
	w := 2 * l.LabelOffset
	return Rect{X: l.Width/2 - w/2, Y: l.Height/2 + labelH, W: w, H: 20}
}

// Reminder is the line below the slider used for the confirm reminder.
func (l Layout) Reminder() Rect {
	s := l.Slider()
	return Rect{X: 0, Y: s.Y + s.H + labelH/2, W: l.Width, H: labelH / 2}
}

// Photodiode is the flash square in the bottom-right corner.
func (l Layout) Photodiode() Rect {
	s := l.PhotodiodeSize
	return Rect{X: l.Width - s, Y: l.Height - s, W: s, H: s}
}
