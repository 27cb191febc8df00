package spinner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/runner"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// Unicode block characters for the bar.
const (
	barFilled = "█"
	barEmpty  = "░"
)

// ProgressConfig holds configuration options for a progress bar.
type ProgressConfig struct {
	// Width is the bar width in characters. Defaults to 24.
	Width int

	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer

	// IsTTY overrides terminal detection on Writer.
	IsTTY *bool
}

// Progress shows trial progress for the operator:
//
//	Trial [██████░░░░░░░░░░░░░░░░░░] 48/192 block 2 acc 81% (6m 12s)
//
// It follows the session as a runner.Observer. Outside a terminal it
// prints one line per completed block instead of redrawing.
type Progress struct {
	mu sync.Mutex

	config    ProgressConfig
	sess      *session.Session
	isTTY     bool
	startTime time.Time
	paused    bool

	lastOutput int
}

var _ runner.Observer = (*Progress)(nil)

// NewProgress creates a progress bar following sess.
func NewProgress(sess *session.Session, config ProgressConfig) *Progress {
	if config.Width <= 0 {
		config.Width = 24
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	isTTY := isTerminalWriter(config.Writer)
	if config.IsTTY != nil {
		isTTY = *config.IsTTY
	}
	return &Progress{config: config, sess: sess, isTTY: isTTY, startTime: time.Now()}
}

// PhaseStarted implements runner.Observer. Phases are too fast to show.
func (p *Progress) PhaseStarted(int, runner.Phase, time.Duration) {}

// TrialFinished implements runner.Observer.
func (p *Progress) TrialFinished(spec *task.TrialSpec, _ *session.TrialResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isTTY {
		p.clearAndWrite(p.buildOutput())
		return
	}
	if spec.BlockEnd {
		fmt.Fprintln(p.config.Writer, p.buildOutput())
	}
}

// SessionEvent implements runner.Observer.
func (p *Progress) SessionEvent(event, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch event {
	case "PAUSE_ON":
		p.paused = true
	case "PAUSE_OFF":
		p.paused = false
	default:
		return
	}
	if p.isTTY {
		p.clearAndWrite(p.buildOutput())
	}
}

// buildOutput renders the current line. Caller must hold the mutex.
func (p *Progress) buildOutput() string {
	pr := p.sess.Progress()
	parts := []string{
		"Trial",
		buildBar(pr.Completed, pr.Total, p.config.Width),
		fmt.Sprintf("%d/%d", pr.Completed, pr.Total),
		fmt.Sprintf("block %d", pr.Block+1),
	}
	if pr.Scored > 0 {
		parts = append(parts, fmt.Sprintf("acc %.0f%%", pr.Accuracy))
	}
	if p.paused {
		parts = append(parts, "PAUSED")
	}
	parts = append(parts, formatElapsed(time.Since(p.startTime)))
	return strings.Join(parts, " ")
}

// buildBar returns a bar like "[████░░░░]".
func buildBar(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = current * width / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled) + "]"
}

func (p *Progress) clearAndWrite(output string) {
	if p.lastOutput > 0 {
		fmt.Fprint(p.config.Writer, carriageReturn+strings.Repeat(" ", p.lastOutput)+carriageReturn)
	}
	fmt.Fprint(p.config.Writer, output)
	p.lastOutput = len(output)
}

// Done ends the bar line with a summary of the session.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr := p.sess.Progress()
	symbol, color := symbolSuccess, colorGreen
	if pr.Completed < pr.Total {
		symbol, color = symbolFailure, colorRed
	}
	msg := fmt.Sprintf("%d/%d trials, %.1f%% correct over %d scored %s",
		pr.Completed, pr.Total, pr.Accuracy, pr.Scored, formatElapsed(time.Since(p.startTime)))
	if p.isTTY {
		p.clearAndWrite("")
		fmt.Fprintf(p.config.Writer, "%s%s%s %s\n", color, symbol, colorReset, msg)
		return
	}
	fmt.Fprintf(p.config.Writer, "%s %s\n", symbol, msg)
}
