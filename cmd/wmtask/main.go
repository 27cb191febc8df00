// wmtask - verbal instruction working-memory task
//
// wmtask asks the operator for the participant, builds the trial plan,
// runs it on the stimulus display and writes the checkpoint, the event
// log and the exports into the output folder.
//
// Components:
//   - plan: balanced trial plan from the factorial design
//   - runner: trial state machine and session loop
//   - session: results, checkpoint and recovery
//   - monitor, resultsdb: optional live monitor and lab database
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/export"
	"github.com/renee-tung/WMInstructionTask/pkg/help"
	"github.com/renee-tung/WMInstructionTask/pkg/monitor"
	"github.com/renee-tung/WMInstructionTask/pkg/resultsdb"
	"github.com/renee-tung/WMInstructionTask/pkg/runner"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/shell"
	"github.com/renee-tung/WMInstructionTask/pkg/spinner"
)

const version = "1.0.0"

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitAborted = 2
	exitCrashed = 3
)

// options are the parsed command-line flags.
type options struct {
	configPath  string
	variant     string
	seed        int64
	resume      string
	initConfig  bool
	simulate    bool
	console     bool
	showMarkers bool
	showKeys    bool
	showVersion bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Config file path (default: ./config.yaml)")
	flag.StringVar(&o.variant, "variant", config.VariantMain, "Task variant when no file sets one: main, wm or training")
	flag.Int64Var(&o.seed, "seed", 0, "Plan seed; 0 draws one from the clock")
	flag.StringVar(&o.resume, "resume", "", "Continue an interrupted session from its checkpoint")
	flag.BoolVar(&o.initConfig, "init", false, "Write the default configuration file and exit")
	flag.BoolVar(&o.simulate, "simulate", false, "Run with a simulated participant and virtual clock")
	flag.BoolVar(&o.console, "console", false, "Draw the task in this terminal")
	flag.BoolVar(&o.showMarkers, "markers", false, "Print the marker code table and exit")
	flag.BoolVar(&o.showKeys, "keys", false, "Print the key bindings and exit")
	flag.BoolVar(&o.showVersion, "version", false, "Show version and exit")
	flag.Usage = func() {
		help.NewRenderer(os.Stderr).RenderUsage("wmtask")
	}
	flag.Parse()

	os.Exit(run(o))
}

func run(o options) int {
	if o.showVersion {
		fmt.Printf("wmtask %s\n", version)
		return exitOK
	}

	cfgPath := o.configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	if o.initConfig {
		if err := config.InitConfig(cfgPath, o.variant); err != nil {
			taskerrors.Display(err)
			return exitError
		}
		fmt.Printf("Config initialized at: %s\n", cfgPath)
		fmt.Println("Edit this file to set the stimulus folder and devices.")
		return exitOK
	}

	cfg, err := config.LoadOrDefault(cfgPath, o.variant)
	if err != nil {
		taskerrors.Display(err)
		return exitError
	}
	if err := cfg.Validate(); err != nil {
		taskerrors.Display(err)
		return exitError
	}

	if o.showKeys {
		help.NewRenderer(os.Stdout).RenderKeys(cfg.Keys)
		return exitOK
	}
	codes, err := device.NewCodeTable(cfg.Devices.MarkerCodes)
	if err != nil {
		taskerrors.Display(err)
		return exitError
	}
	if o.showMarkers {
		for _, line := range codes.Lines() {
			fmt.Println(line)
		}
		return exitOK
	}

	// Display banner
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║        wmtask - Verbal Instruction Working Memory         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config: (using %s defaults, run --init to create)\n", cfg.Task.Variant)
	}
	fmt.Printf("Task:   %s\n", cfg.Summary())
	fmt.Println()

	sess, seed, err := prepareSession(cfg, o)
	if errors.Is(err, shell.ErrCancelled) {
		fmt.Println("Cancelled.")
		return exitOK
	}
	if err != nil {
		taskerrors.Display(err)
		return exitError
	}
	fmt.Printf("Session: %s (%s)\n", sess.Name, sess.ID[:8])
	if done := sess.CompletedTrials(); done > 0 {
		fmt.Printf("Resuming at trial %d of %d\n", done+1, sess.Plan.Len())
	}
	fmt.Println()

	var cp *session.Checkpoint
	if o.resume != "" {
		cp, err = session.ResumeCheckpoint(o.resume, sess, cfg.Output.CheckpointWarn)
	} else {
		cp, err = session.CreateCheckpoint(cfg.Output.Folder, sess, cfg.Output.CheckpointWarn)
	}
	if err != nil {
		taskerrors.Display(err)
		return exitError
	}
	defer cp.Close()

	hw := openDevices(cfg, sess, codes, o.simulate)
	defer hw.Close()

	fmt.Println("Devices:")
	for _, s := range hw.registry.Snapshot() {
		mark := "✗"
		if s.Enabled {
			mark = "✓"
		}
		fmt.Printf("  %s %s\n", mark, s.Name)
	}
	fmt.Println()

	if sess.EyeTracking {
		err := spinner.New("Calibrating eye tracker").Step(func() (string, error) {
			return "Eye tracker calibrated", hw.events.Calibrate()
		})
		if err != nil {
			taskerrors.Display(err)
			return exitError
		}
	}

	scr, err := openScreen(cfg, sess, o, seed)
	if err != nil {
		taskerrors.Display(err)
		return exitError
	}
	defer scr.Close()

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("[wmtask] interrupted, stopping after the current phase")
		cancel()
	}()

	var observers []runner.Observer
	var progress *spinner.Progress
	if !scr.terminal {
		progress = spinner.NewProgress(sess, spinner.ProgressConfig{})
		observers = append(observers, progress)
	}

	var mon *monitor.Server
	if cfg.Monitor.Enabled {
		mon = monitor.New(cfg.Monitor, sess, hw.registry)
		if err := mon.Start(); err != nil {
			log.Printf("[wmtask] live monitor unavailable: %v", err)
			mon = nil
		} else {
			observers = append(observers, mon)
		}
	}

	var sinks []runner.TrialSink
	var db *resultsdb.Store
	if cfg.ResultsDB.Enabled {
		db, err = resultsdb.Open(cfg.ResultsDB)
		if err != nil {
			taskerrors.Display(err)
			fmt.Println("Continuing without the results database.")
			db = nil
		} else {
			defer db.Close()
			sinks = append(sinks, db)
		}
	}

	r := runner.New(cfg, sess, runner.Options{
		Display:    scr.display,
		Input:      scr.input,
		Clock:      scr.clock,
		Events:     hw.events,
		Checkpoint: cp,
		Observers:  observers,
		Sinks:      sinks,
	})
	runErr := r.Run(ctx)

	if progress != nil {
		progress.Done()
	}
	scr.Close()

	finishSession(cfg, sess, hw, cp.Path())
	if db != nil {
		if err := db.Finish(context.Background(), sess); err != nil {
			log.Printf("[wmtask] results database: %v", err)
		}
	}
	if mon != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := mon.Shutdown(shutdownCtx); err != nil {
			log.Printf("[wmtask] monitor shutdown: %v", err)
		}
		stop()
	}

	acc, scored := sess.FinalAccuracy()
	fmt.Println()
	fmt.Printf("Trials:   %d/%d\n", sess.CompletedTrials(), sess.Plan.Len())
	fmt.Printf("Accuracy: %.1f%% over %d scored trials\n", acc, scored)

	code := exitCode(runErr)
	if code != exitOK {
		taskerrors.Display(runErr)
		if code != exitError {
			fmt.Printf("Resume with: wmtask --resume %s\n", cp.Path())
		}
	}
	return code
}

// finishSession writes everything that follows the last trial: the
// eye-tracker recording, the trials CSV and the reproducibility record.
// Failures are reported and do not change the exit code; the checkpoint
// already holds every trial.
func finishSession(cfg *config.Config, sess *session.Session, hw *devices, checkpoint string) {
	folder := cfg.Output.Folder
	fmt.Printf("Checkpoint: %s\n", checkpoint)

	if sess.EyeTracking {
		dir := filepath.Join(folder, "eyelinkLogs")
		spinner.New("Retrieving eye-tracker recording").Step(func() (string, error) {
			if res := hw.events.RetrieveRecording(dir); !res.OK {
				return "", errors.New(res.Reason)
			}
			return "Eye tracking: " + dir, nil
		})
	}

	if cfg.Output.CSV {
		path, err := export.WriteTrialsFile(folder, sess, export.DefaultCSVConfig())
		if err != nil {
			taskerrors.Display(err)
		} else {
			fmt.Printf("Trials:     %s\n", path)
		}
	}

	sh, err := export.NewHashBuilder().
		WithToolVersion(version).
		WithSession(sess).
		WithPlan(sess.Plan).
		WithConfig(cfg).
		WithParameter("seed", fmt.Sprint(sess.Plan.Seed)).
		Build()
	if err != nil {
		log.Printf("[wmtask] session record: %v", err)
		return
	}
	path, err := export.WriteRecordFile(folder, sess.Name, sh)
	if err != nil {
		taskerrors.Display(err)
		return
	}
	fmt.Printf("Record:     %s (%s)\n", path, sh.ShortHash())
}

// exitCode maps the runner's result to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case taskerrors.IsCode(err, taskerrors.ErrSessionAborted):
		return exitAborted
	case taskerrors.IsCode(err, taskerrors.ErrSessionCrashed):
		return exitCrashed
	default:
		return exitError
	}
}
