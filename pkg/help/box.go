package help

import "strings"

// Box draws bordered rows of a fixed inner width.
type Box struct {
	Width int
}

// NewBox creates a box with the given inner width.
func NewBox(width int) *Box {
	return &Box{Width: width}
}

// Top returns ╭───╮.
func (b *Box) Top() string {
	return BoxTopLeft + strings.Repeat(BoxHorizontal, b.Width) + BoxTopRight
}

// Mid returns ├───┤.
func (b *Box) Mid() string {
	return BoxTeeLeft + strings.Repeat(BoxHorizontal, b.Width) + BoxTeeRight
}

// Bottom returns ╰───╯.
func (b *Box) Bottom() string {
	return BoxBottomLeft + strings.Repeat(BoxHorizontal, b.Width) + BoxBottomRight
}

// Row returns a left-aligned row, truncated to the box width.
func (b *Box) Row(content string) string {
	return BoxVertical + PadRight(TruncateVisible(content, b.Width), b.Width) + BoxVertical
}

// RowCenter returns a centered row, truncated to the box width.
func (b *Box) RowCenter(content string) string {
	return BoxVertical + Center(content, b.Width) + BoxVertical
}

// EmptyRow returns │   │.
func (b *Box) EmptyRow() string {
	return BoxVertical + strings.Repeat(" ", b.Width) + BoxVertical
}

// Center pads s on both sides to width, truncating when it is wider.
func Center(s string, width int) string {
	s = TruncateVisible(s, width)
	total := width - VisibleLength(s)
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

// PadRight pads s with spaces to the visible width.
func PadRight(s string, width int) string {
	n := VisibleLength(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// VisibleLength counts runes, skipping ANSI escape sequences.
func VisibleLength(s string) int {
	length := 0
	inEscape := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		length++
	}
	return length
}

// TruncateVisible cuts s to width visible runes. Escape sequences are
// kept, and a reset is appended if styled text was cut.
func TruncateVisible(s string, width int) string {
	if VisibleLength(s) <= width {
		return s
	}

	var out strings.Builder
	visible := 0
	inEscape := false
	open := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			out.WriteRune(r)
			continue
		}
		if inEscape {
			out.WriteRune(r)
			if r == 'm' {
				inEscape = false
				open = !strings.HasSuffix(out.String(), ColorReset)
			}
			continue
		}
		if visible >= width {
			break
		}
		out.WriteRune(r)
		visible++
	}
	if open {
		out.WriteString(ColorReset)
	}
	return out.String()
}

// Wrap breaks text into lines of at most width runes on word boundaries.
// Explicit newlines are kept. A word longer than width is split.
func Wrap(text string, width int) []string {
	if width <= 0 {
		return nil
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := ""
		for _, w := range words {
			for len([]rune(w)) > width {
				if line != "" {
					lines = append(lines, line)
					line = ""
				}
				r := []rune(w)
				lines = append(lines, string(r[:width]))
				w = string(r[width:])
			}
			if w == "" {
				continue
			}
			switch {
			case line == "":
				line = w
			case len([]rune(line))+1+len([]rune(w)) <= width:
				line += " " + w
			default:
				lines = append(lines, line)
				line = w
			}
		}
		lines = append(lines, line)
	}
	return lines
}
