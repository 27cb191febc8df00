package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/console"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/plan"
	"github.com/renee-tung/WMInstructionTask/pkg/runner"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/shell"
	"github.com/renee-tung/WMInstructionTask/pkg/sim"
	"github.com/renee-tung/WMInstructionTask/pkg/spinner"
	"github.com/renee-tung/WMInstructionTask/pkg/stimuli"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// simParticipant is the participant ID of simulated runs.
const simParticipant = "SIM"

// prepareSession returns the session to run: a recovered checkpoint with
// --resume, otherwise a new session over a freshly built plan.
func prepareSession(cfg *config.Config, o options) (*session.Session, int64, error) {
	if o.resume != "" {
		return resumeSession(o)
	}

	var intake config.Intake
	if o.simulate {
		intake = config.Intake{Participant: simParticipant, Debug: true}
	} else {
		homeDir, _ := os.UserHomeDir()
		sh, err := shell.New(shell.Config{
			HistoryFile:  filepath.Join(homeDir, ".wmtask_history"),
			Participants: participantsIn(cfg.Output.Folder),
		})
		if err != nil {
			return nil, 0, taskerrors.DeviceWrap(err, taskerrors.ErrDeviceUnavailable, "cannot open the operator console")
		}
		intake, err = sh.Intake()
		sh.Close()
		if err != nil {
			return nil, 0, err
		}
	}

	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p, err := buildPlan(cfg, seed, o.simulate)
	if err != nil {
		return nil, 0, err
	}
	return session.New(intake, cfg.Task.Variant, p, time.Now()), seed, nil
}

// resumeSession recovers a checkpoint and asks the operator to confirm.
func resumeSession(o options) (*session.Session, int64, error) {
	sess, err := session.Recover(o.resume)
	if err != nil {
		return nil, 0, err
	}
	if o.simulate {
		if !sess.Reopen() {
			return nil, 0, taskerrors.Session(taskerrors.ErrCheckpointCorrupt, "checkpoint has no trials left to run").
				WithContext(taskerrors.ContextPath, o.resume)
		}
		return sess, sess.Plan.Seed, nil
	}

	sh, err := shell.New(shell.Config{})
	if err != nil {
		return nil, 0, taskerrors.DeviceWrap(err, taskerrors.ErrDeviceUnavailable, "cannot open the operator console")
	}
	defer sh.Close()
	if err := confirmResume(sh, sess, o.resume); err != nil {
		return nil, 0, err
	}
	return sess, sess.Plan.Seed, nil
}

// confirmResume reopens sess after the operator agrees. Declining counts
// as cancelling the intake.
func confirmResume(p shell.Prompter, sess *session.Session, path string) error {
	if !sess.Reopen() {
		return taskerrors.Session(taskerrors.ErrCheckpointCorrupt, "checkpoint has no trials left to run").
			WithContext(taskerrors.ContextPath, path)
	}
	ok, err := p.Confirm(fmt.Sprintf("Resume %s (%s) at trial %d of %d?",
		sess.Participant, sess.Variant, sess.CompletedTrials()+1, sess.Plan.Len()))
	if err != nil {
		return err
	}
	if !ok {
		return shell.ErrCancelled
	}
	return nil
}

// buildPlan checks the stimulus folder and builds the plan. A simulated
// run without stimuli uses placeholder file names.
func buildPlan(cfg *config.Config, seed int64, simulate bool) (*plan.Plan, error) {
	features := task.DefaultFeatureTable()
	if cfg.Task.FeatureTable != "" {
		var err error
		if features, err = task.LoadFeatureTable(cfg.Task.FeatureTable); err != nil {
			return nil, err
		}
	}

	var inv stimuli.Inventory
	dir := stimuli.NewDirInventory(cfg.Task.StimulusFolder)
	err := spinner.New("Checking stimuli in " + cfg.Task.StimulusFolder).Step(func() (string, error) {
		if err := dir.Check(cfg.Task.Categories, cfg.Task.Pairs); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d categories x %d pairs", len(cfg.Task.Categories), cfg.Task.Pairs), nil
	})
	switch {
	case err == nil:
		inv = dir
	case simulate:
		fmt.Println("  simulating with placeholder images")
		inv = stimuli.NewMapInventory(cfg.Task.Categories, cfg.Task.Pairs)
	default:
		return nil, err
	}

	var p *plan.Plan
	err = spinner.New("Building trial plan").Step(func() (string, error) {
		var err error
		if p, err = plan.NewBuilder(cfg, inv, features, seed).Build(); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d trials, seed %d", p.Len(), seed), nil
	})
	if err != nil {
		return nil, err
	}
	for _, w := range p.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
	return p, nil
}

// participantsIn lists the participant IDs of earlier checkpoints in
// folder, for intake completion.
func participantsIn(folder string) []string {
	matches, _ := filepath.Glob(filepath.Join(folder, "*.jsonl"))
	seen := make(map[string]bool)
	var ids []string
	for _, m := range matches {
		base := filepath.Base(m)
		i := strings.Index(base, "_")
		if i <= 0 {
			continue
		}
		id := base[:i]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// devices holds the event collaborators of one session.
type devices struct {
	registry *device.Registry
	events   *device.Events
	markers  *device.WriterMarker
}

// openDevices opens the marker port, the event log and the eye tracker.
// A device that cannot be opened is left out and the session runs
// without it.
func openDevices(cfg *config.Config, sess *session.Session, codes *device.CodeTable, simulate bool) *devices {
	hw := &devices{registry: device.NewRegistry()}

	var markers device.MarkerSender
	switch {
	case !cfg.Devices.Markers:
	case sess.Debug:
		log.Printf("[device] debug mode, markers off")
	case simulate:
		markers = &sim.Markers{}
	case cfg.Devices.MarkerPort == "":
		log.Printf("[device] markers enabled without a marker_port, markers off")
	default:
		m, err := device.OpenPortMarker(cfg.Devices.MarkerPort)
		if err != nil {
			log.Printf("[device] marker port %s: %v", cfg.Devices.MarkerPort, err)
			break
		}
		hw.markers = m
		markers = m
	}

	var logger device.EventLogger
	if cfg.Devices.EventLog || sess.EyeTracking {
		path := filepath.Join(cfg.Output.Folder, sess.Name+"_events.tsv")
		l, err := device.OpenTSVLog(path)
		if err != nil {
			log.Printf("[device] event log %s: %v", path, err)
		} else {
			logger = l
		}
	}

	var eye device.EyeTracker
	if sess.EyeTracking {
		eye = device.UnavailableEyeTracker{Reason: "this build has no eye-tracker driver"}
	}

	hw.events = device.NewEvents(codes, markers, logger, eye, hw.registry)
	return hw
}

// Close closes the event log, the eye tracker and the marker port.
func (hw *devices) Close() error {
	err := hw.events.Close()
	if hw.markers != nil {
		if merr := hw.markers.Close(); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}

// screen is the display, keyboard and clock a session runs on.
type screen struct {
	display device.Display
	input   device.Input
	clock   device.Clock

	// terminal is set when the task is drawn in this terminal, so nothing
	// else may write to it.
	terminal bool

	closers []func() error
}

// openScreen sets up a simulated screen with --simulate, otherwise the
// terminal display. No graphics driver is linked into this build, so the
// terminal stands in for the stimulus display.
func openScreen(cfg *config.Config, sess *session.Session, o options, seed int64) (*screen, error) {
	if o.simulate {
		clock := &sim.Clock{}
		d := sim.NewDisplay(clock, cfg.Timing.Refresh)
		d.Keep = false
		in := sim.NewInput(clock)
		sim.NewParticipant(in, cfg, seed, runner.StartText, runner.BreakText, plan.MidpointMessage).Attach(d)
		return &screen{display: d, input: in, clock: clock}, nil
	}

	if !o.console {
		fmt.Println("No stimulus display driver; drawing the task in this terminal.")
	}
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, taskerrors.Device(taskerrors.ErrDeviceUnavailable, "the terminal display needs an interactive terminal").
			WithContext(taskerrors.ContextDevice, "display")
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		cols, rows = 80, 24
	}

	// Log lines would tear the frames; send them to a file for the run.
	logPath := filepath.Join(cfg.Output.Folder, sess.Name+"_wmtask.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrDeviceUnavailable, "cannot open the run log").
			WithContext(taskerrors.ContextPath, logPath)
	}
	log.SetOutput(logFile)

	clock := device.NewSystemClock()
	d := console.NewDisplay(os.Stdout, clock, cfg.Layout, cols, rows, cfg.Timing.Refresh)
	in, err := console.OpenInput(os.Stdin, clock)
	if err != nil {
		log.SetOutput(os.Stderr)
		logFile.Close()
		return nil, taskerrors.DeviceWrap(err, taskerrors.ErrDeviceUnavailable, "cannot read the keyboard").
			WithContext(taskerrors.ContextDevice, "keyboard")
	}

	s := &screen{display: d, input: in, clock: clock, terminal: true}
	s.closers = []func() error{
		in.Close,
		d.Close,
		func() error {
			log.SetOutput(os.Stderr)
			return logFile.Close()
		},
	}
	return s, nil
}

// Close restores the terminal. It is safe to call more than once.
func (s *screen) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
