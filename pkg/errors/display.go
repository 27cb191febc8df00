package errors

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[90m"
	colorBold   = "\033[1m"
)

// Formatter renders errors for the operator console.
type Formatter struct {
	// UseColor enables ANSI color codes in output.
	UseColor bool

	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer

	// Indent prefixes context and suggestion lines.
	Indent string
}

// DefaultFormatter returns a Formatter for stderr, colored when stderr is a TTY.
func DefaultFormatter() *Formatter {
	return &Formatter{
		UseColor: term.IsTerminal(int(os.Stderr.Fd())),
		Writer:   os.Stderr,
		Indent:   "  ",
	}
}

// Format renders err. TaskErrors get their context, cause and suggestions.
func (f *Formatter) Format(err error) string {
	if err == nil {
		return ""
	}
	te, ok := AsTaskError(err)
	if !ok {
		return f.paint(colorRed, "Error: ") + err.Error()
	}

	var sb strings.Builder
	sb.WriteString(f.paint(colorRed+colorBold, "ERROR"))
	sb.WriteString(f.paint(colorRed, " ["+te.Code+"]: "))
	sb.WriteString(te.Message)
	sb.WriteString("\n")

	keys := make([]string, 0, len(te.Context))
	for k := range te.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(f.Indent)
		sb.WriteString(f.paint(colorYellow, k+": "))
		sb.WriteString(te.Context[k])
		sb.WriteString("\n")
	}

	if te.Cause != nil {
		sb.WriteString(f.Indent)
		sb.WriteString(f.paint(colorDim, "cause: "+te.Cause.Error()))
		sb.WriteString("\n")
	}

	if te.HasSuggestions() && (te.HasContext() || te.Cause != nil) {
		sb.WriteString("\n")
	}
	for _, s := range te.Suggestions {
		sb.WriteString(f.Indent)
		sb.WriteString(f.paint(colorCyan, "→ "+s))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) paint(color, s string) string {
	if !f.UseColor {
		return s
	}
	return color + s + colorReset
}

// Display writes the formatted error to the formatter's writer.
func (f *Formatter) Display(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(f.Writer, f.Format(err))
}

// Display writes err to stderr with default settings.
func Display(err error) {
	DefaultFormatter().Display(err)
}

// Sprint returns the formatted error without colors, for log files.
func Sprint(err error) string {
	f := &Formatter{Writer: io.Discard, Indent: "  "}
	return f.Format(err)
}

// CategoryLabel returns a human-readable label for an error category.
func CategoryLabel(cat Category) string {
	switch cat {
	case CategoryConfig:
		return "Configuration Error"
	case CategoryStimulus:
		return "Stimulus Error"
	case CategoryPlan:
		return "Plan Error"
	case CategoryDevice:
		return "Device Error"
	case CategorySession:
		return "Session Error"
	case CategoryIO:
		return "I/O Error"
	case CategoryInternal:
		return "Internal Error"
	default:
		return "Error"
	}
}
