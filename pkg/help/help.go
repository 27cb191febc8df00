// Package help renders the operator-facing reference for wmtask: the
// command-line flags grouped by purpose and the key bindings in force for
// a session. It also provides the box drawing and ANSI styling helpers the
// terminal display uses.
//
// Usage:
//
//	r := help.NewRenderer(os.Stderr)
//	r.RenderUsage("wmtask")       // all flags, grouped
//	r.RenderKeys(cfg.Keys)        // session key bindings
//	r.RenderFlag("resume")        // one flag in detail
//
// Output is sized for 80-column terminals. Without color support the
// escape codes degrade to plain text.
package help

import "io"

// Box drawing characters. Rounded corners.
const (
	BoxTopLeft     = "╭"
	BoxTopRight    = "╮"
	BoxBottomLeft  = "╰"
	BoxBottomRight = "╯"

	BoxHorizontal = "─"
	BoxVertical   = "│"

	BoxTeeLeft  = "├"
	BoxTeeRight = "┤"
)

// ANSI color codes for styled output.
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorGray   = "\033[90m"
)

// Renderer formats and writes help output.
type Renderer struct {
	w io.Writer
}

// NewRenderer creates a renderer that writes to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}
