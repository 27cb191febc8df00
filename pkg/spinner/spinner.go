// Package spinner provides the operator's terminal feedback: a spinner for
// setup steps (stimulus check, calibration, file retrieval) and a trial
// progress bar that follows the running session.
package spinner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// ANSI escape sequences for terminal control.
const (
	hideCursor     = "\033[?25l"
	showCursor     = "\033[?25h"
	carriageReturn = "\r"

	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorReset = "\033[0m"

	symbolSuccess = "✓"
	symbolFailure = "✗"
)

// Frames is the spinner animation.
var Frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Config holds configuration options for a spinner.
type Config struct {
	// Message is the text displayed next to the spinner.
	Message string

	// RefreshRate controls how fast the spinner animates.
	// Defaults to 80ms.
	RefreshRate time.Duration

	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer

	// IsTTY overrides terminal detection on Writer.
	IsTTY *bool
}

// Spinner animates a message while a setup step runs.
type Spinner struct {
	mu sync.Mutex

	config    Config
	active    bool
	isTTY     bool
	startTime time.Time
	frame     int
	stopCh    chan struct{}
	doneCh    chan struct{}

	// lastOutput is the length of the last printed line, for clearing.
	lastOutput int
}

// New creates a spinner writing to stderr.
func New(message string) *Spinner {
	return NewWithConfig(Config{Message: message})
}

// NewWithConfig creates a spinner with custom configuration.
func NewWithConfig(config Config) *Spinner {
	if config.RefreshRate == 0 {
		config.RefreshRate = 80 * time.Millisecond
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	isTTY := isTerminalWriter(config.Writer)
	if config.IsTTY != nil {
		isTTY = *config.IsTTY
	}
	return &Spinner{config: config, isTTY: isTTY}
}

// isTerminalWriter reports whether w is an *os.File on a terminal.
func isTerminalWriter(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// IsActive returns true while the spinner runs.
func (s *Spinner) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start begins the animation. Outside a terminal it prints the message
// once. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true
	s.startTime = time.Now()

	if !s.isTTY {
		fmt.Fprintf(s.config.Writer, "%s\n", s.config.Message)
		return
	}
	fmt.Fprint(s.config.Writer, hideCursor)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.spin()
}

func (s *Spinner) spin() {
	ticker := time.NewTicker(s.config.RefreshRate)
	defer ticker.Stop()
	s.render()
	for {
		select {
		case <-s.stopCh:
			close(s.doneCh)
			return
		case <-ticker.C:
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	char := Frames[s.frame%len(Frames)]
	s.frame++
	s.clearAndWrite(fmt.Sprintf("%s %s %s", char, s.config.Message, formatElapsed(time.Since(s.startTime))))
}

func (s *Spinner) clearAndWrite(output string) {
	s.clearLine()
	fmt.Fprint(s.config.Writer, output)
	s.lastOutput = len(output)
}

func (s *Spinner) clearLine() {
	if s.lastOutput > 0 {
		fmt.Fprint(s.config.Writer, carriageReturn+strings.Repeat(" ", s.lastOutput)+carriageReturn)
		s.lastOutput = 0
	}
}

// stop halts the animation goroutine and reports the elapsed time.
func (s *Spinner) stop() time.Duration {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return 0
	}
	s.active = false
	stopCh, doneCh := s.stopCh, s.doneCh
	elapsed := time.Since(s.startTime)
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTTY {
		s.clearLine()
		fmt.Fprint(s.config.Writer, showCursor)
	}
	return elapsed
}

// Success stops the spinner with a green check.
func (s *Spinner) Success(message string) {
	s.finish(message, symbolSuccess, colorGreen)
}

// Fail stops the spinner with a red cross.
func (s *Spinner) Fail(message string) {
	s.finish(message, symbolFailure, colorRed)
}

func (s *Spinner) finish(message, symbol, color string) {
	elapsed := s.stop()
	if message == "" {
		message = s.config.Message
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTTY {
		fmt.Fprintf(s.config.Writer, "%s%s%s %s %s\n", color, symbol, colorReset, message, formatElapsed(elapsed))
		return
	}
	fmt.Fprintf(s.config.Writer, "%s %s %s\n", symbol, message, formatElapsed(elapsed))
}

// Step runs fn while the spinner turns. fn returns the line shown on
// success; on failure the spinner shows the error's first line and the
// error is returned unchanged.
func (s *Spinner) Step(fn func() (string, error)) error {
	s.Start()
	summary, err := fn()
	if err != nil {
		msg := err.Error()
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		s.Fail(s.config.Message + ": " + msg)
		return err
	}
	s.Success(summary)
	return nil
}

// formatElapsed shows "(1.2s)" under a minute and "(1m 30s)" above.
func formatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("(%.1fs)", d.Seconds())
	}
	return fmt.Sprintf("(%dm %ds)", int(d.Minutes()), int(d.Seconds())%60)
}
