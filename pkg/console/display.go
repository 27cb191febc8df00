// Package console runs the task in a terminal: a character-cell rendition
// of the stimulus display and a raw-mode keyboard. It is meant for
// rehearsing sessions and checking configurations on a machine without
// the stimulus screen; timing is only as good as the terminal.
package console

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	"github.com/renee-tung/WMInstructionTask/pkg/help"
)

const (
	clearScreen = "\033[2J"
	cursorHome  = "\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

type cell struct {
	r     rune
	style string
}

// Display draws frames as a grid of terminal cells. Layout coordinates
// are scaled to the grid.
type Display struct {
	out     io.Writer
	clock   device.Clock
	layout  config.Layout
	refresh time.Duration

	cols, rows int
	grid       [][]cell

	last    string
	started bool
	next    time.Duration
}

var _ device.Display = (*Display)(nil)

// NewDisplay creates a cols x rows display. Present paces frames at
// refresh on clock.
func NewDisplay(out io.Writer, clock device.Clock, layout config.Layout, cols, rows int, refresh time.Duration) *Display {
	if cols < 20 {
		cols = 20
	}
	if rows < 10 {
		rows = 10
	}
	d := &Display{
		out:     out,
		clock:   clock,
		layout:  layout,
		refresh: refresh,
		cols:    cols,
		rows:    rows,
	}
	d.grid = make([][]cell, rows)
	for i := range d.grid {
		d.grid[i] = make([]cell, cols)
	}
	d.Clear()
	return d
}

// Size returns the grid size in cells.
func (d *Display) Size() (cols, rows int) {
	return d.cols, d.rows
}

// Clear blanks the back buffer.
func (d *Display) Clear() {
	for y := range d.grid {
		for x := range d.grid[y] {
			d.grid[y][x] = cell{r: ' '}
		}
	}
}

// DrawText wraps text inside r and centers it.
func (d *Display) DrawText(r config.Rect, text string, style device.TextStyle) {
	x0, y0, w, h := d.cells(r)
	lines := help.Wrap(text, w)
	if len(lines) > h && h < d.rows {
		// Let long instructions spill over the band rather than clip them.
		grow := len(lines) - h
		y0 -= grow / 2
		h += grow
	}
	top := y0 + (h-len(lines))/2
	for i, line := range lines {
		runes := []rune(line)
		left := x0 + (w-len(runes))/2
		d.put(left, top+i, runes, textStyle(style))
	}
}

// DrawImage draws a framed box with the image's file name.
func (d *Display) DrawImage(r config.Rect, path string) {
	x0, y0, w, h := d.cells(r)
	if w < 3 || h < 3 {
		d.put(x0, y0, []rune(filepath.Base(path)), "")
		return
	}
	box := help.NewBox(w - 2)
	d.put(x0, y0, []rune(box.Top()), "")
	for y := y0 + 1; y < y0+h-1; y++ {
		d.put(x0, y, []rune(box.EmptyRow()), "")
	}
	d.put(x0, y0+h-1, []rune(box.Bottom()), "")

	name := []rune(help.TruncateVisible(filepath.Base(path), w-4))
	d.put(x0+(w-len(name))/2, y0+h/2, name, help.ColorBold)
}

// DrawFixation draws a cross at the center of r.
func (d *Display) DrawFixation(r config.Rect) {
	x0, y0, w, h := d.cells(r)
	d.put(x0+w/2, y0+h/2, []rune{'+'}, help.ColorBold)
}

// DrawSlider draws the track with a tick at zero and the knob at
// position, where ±halfRange are the track ends.
func (d *Display) DrawSlider(r config.Rect, position, halfRange float64) {
	x0, y0, w, h := d.cells(r)
	if w < 3 {
		return
	}
	y := y0 + h/2
	track := make([]rune, w)
	for i := range track {
		track[i] = '─'
	}
	track[0], track[w-1] = '├', '┤'
	track[w/2] = '┼'
	d.put(x0, y, track, help.ColorGray)

	if halfRange <= 0 {
		return
	}
	frac := (position + halfRange) / (2 * halfRange)
	frac = math.Max(0, math.Min(1, frac))
	knob := x0 + int(math.Round(frac*float64(w-1)))
	d.put(knob, y, []rune{'●'}, help.ColorBold+help.ColorCyan)
}

// DrawFlash fills r.
func (d *Display) DrawFlash(r config.Rect) {
	x0, y0, w, h := d.cells(r)
	row := []rune(strings.Repeat("█", w))
	for y := y0; y < y0+h; y++ {
		d.put(x0, y, row, "")
	}
}

// Present writes the frame when it changed, then waits out the rest of
// the refresh interval. It returns the frame's onset.
func (d *Display) Present() time.Duration {
	frame := d.render()
	if !d.started {
		fmt.Fprint(d.out, hideCursor+clearScreen)
		d.started = true
	}
	if frame != d.last {
		fmt.Fprint(d.out, cursorHome+frame)
		d.last = frame
	}

	onset := d.clock.Now()
	if d.next > onset {
		d.clock.Sleep(d.next - onset)
		onset = d.clock.Now()
	}
	d.next = onset + d.refresh
	return onset
}

// Close restores the cursor.
func (d *Display) Close() error {
	if d.started {
		fmt.Fprint(d.out, help.ColorReset+showCursor+"\r\n")
	}
	return nil
}

// Frame returns the back buffer as plain text.
func (d *Display) Frame() string {
	var b strings.Builder
	for y := range d.grid {
		for _, c := range d.grid[y] {
			b.WriteRune(c.r)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (d *Display) render() string {
	var b strings.Builder
	for y := range d.grid {
		style := ""
		for _, c := range d.grid[y] {
			if c.style != style {
				b.WriteString(help.ColorReset)
				b.WriteString(c.style)
				style = c.style
			}
			b.WriteRune(c.r)
		}
		if style != "" {
			b.WriteString(help.ColorReset)
		}
		// Raw mode does not translate \n.
		b.WriteString("\r\n")
	}
	return b.String()
}

// cells scales a layout rectangle to the grid. Width and height are at
// least one cell.
func (d *Display) cells(r config.Rect) (x, y, w, h int) {
	lw, lh := d.layout.Width, d.layout.Height
	if lw <= 0 || lh <= 0 {
		return 0, 0, d.cols, d.rows
	}
	x = r.X * d.cols / lw
	y = r.Y * d.rows / lh
	w = (r.X+r.W)*d.cols/lw - x
	h = (r.Y+r.H)*d.rows/lh - y
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return x, y, w, h
}

// put writes runes from (x, y), clipping at the grid edges.
func (d *Display) put(x, y int, runes []rune, style string) {
	if y < 0 || y >= d.rows {
		return
	}
	for i, r := range runes {
		cx := x + i
		if cx < 0 || cx >= d.cols {
			continue
		}
		d.grid[y][cx] = cell{r: r, style: style}
	}
}

func textStyle(s device.TextStyle) string {
	switch s {
	case device.TextDimmed:
		return help.ColorGray
	case device.TextSmall:
		return help.ColorDim
	default:
		return ""
	}
}
