// Package shell collects the operator's answers at startup: participant
// ID, eye tracking and debug mode, plus yes/no confirmations. Terminals
// get line editing and completion through readline; piped input is read
// line by line.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/chzyer/readline"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
)

// ErrCancelled is returned when the operator interrupts the intake or the
// input ends.
var ErrCancelled = errors.New("intake cancelled")

// participantPattern allows IDs that are safe in file names.
var participantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// lineSource reads one answer after showing a prompt.
type lineSource interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

type readlineSource struct {
	rl *readline.Instance
}

func (r *readlineSource) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", ErrCancelled
	}
	return line, err
}

func (r *readlineSource) Close() error {
	return r.rl.Close()
}

type scannerSource struct {
	sc *bufio.Scanner
	w  io.Writer
}

func (s *scannerSource) ReadLine(prompt string) (string, error) {
	fmt.Fprint(s.w, prompt)
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

func (s *scannerSource) Close() error { return nil }

// Shell asks the startup questions.
type Shell struct {
	src       lineSource
	out       io.Writer
	completer *Completer
}

// Config holds shell configuration.
type Config struct {
	HistoryFile string

	// Participants are earlier participant IDs offered for completion.
	Participants []string
}

// New creates a readline shell on the terminal.
func New(cfg Config) (*Shell, error) {
	completer := &Completer{}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, err
	}
	s := &Shell{src: &readlineSource{rl: rl}, out: rl.Stdout(), completer: completer}
	s.setParticipants(cfg.Participants)
	return s, nil
}

// NewWithIO creates a shell over plain streams, for piped input and tests.
func NewWithIO(r io.Reader, w io.Writer, participants ...string) *Shell {
	s := &Shell{src: &scannerSource{sc: bufio.NewScanner(r), w: w}, out: w, completer: &Completer{}}
	s.setParticipants(participants)
	return s
}

func (s *Shell) setParticipants(ids []string) {
	s.completer.SetCandidates(ids)
}

// Close releases the terminal.
func (s *Shell) Close() error {
	return s.src.Close()
}

func (s *Shell) read(prompt string) (string, error) {
	line, err := s.src.ReadLine(prompt)
	if err == io.EOF || errors.Is(err, ErrCancelled) {
		return "", ErrCancelled
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *Shell) askBool(prompt string) (bool, error) {
	saved := s.completer.snapshot()
	s.completer.SetCandidates([]string{"yes", "no"})
	defer s.completer.SetCandidates(saved)

	answer, err := s.read(prompt)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// Intake asks for the participant ID (repeating until it is valid), then
// for eye tracking and debug mode.
func (s *Shell) Intake() (config.Intake, error) {
	var in config.Intake
	for {
		id, err := s.read("Participant ID: ")
		if err != nil {
			return in, err
		}
		if participantPattern.MatchString(id) {
			in.Participant = id
			break
		}
		fmt.Fprintln(s.out, "Use letters, digits, '-' or '_' (no spaces).")
	}

	var err error
	if in.EyeTracking, err = s.askBool("Eye tracking? [y/N]: "); err != nil {
		return in, err
	}
	if in.Debug, err = s.askBool("Debug mode? [y/N]: "); err != nil {
		return in, err
	}
	return in, nil
}

func (c *Completer) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.candidates...)
}
