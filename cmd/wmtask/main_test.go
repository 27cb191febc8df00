package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/plan"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/shell"
	"github.com/renee-tung/WMInstructionTask/pkg/stimuli"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

func writeConfig(t *testing.T, dir string) (string, *config.Config) {
	t.Helper()
	cfg := config.Default(config.VariantTraining)
	cfg.Output.Folder = filepath.Join(dir, "output")
	cfg.Output.CSV = true
	cfg.Task.StimulusFolder = filepath.Join(dir, "no-stimuli")
	path := filepath.Join(dir, "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	return path, cfg
}

func testSession(t *testing.T, cfg *config.Config, intake config.Intake) *session.Session {
	t.Helper()
	inv := stimuli.NewMapInventory(cfg.Task.Categories, cfg.Task.Pairs)
	p, err := plan.NewBuilder(cfg, inv, task.DefaultFeatureTable(), 1).Build()
	if err != nil {
		t.Fatal(err)
	}
	return session.New(intake, cfg.Task.Variant, p, time.Now())
}

// -----------------------------------------------------------------------------
// Simulated sessions
// -----------------------------------------------------------------------------

func TestRun_SimulatedSession(t *testing.T) {
	dir := t.TempDir()
	path, cfg := writeConfig(t, dir)

	code := run(options{configPath: path, simulate: true, seed: 7})
	if code != exitOK {
		t.Fatalf("run = %d, want %d", code, exitOK)
	}

	for _, pattern := range []string{"SIM_training_Sub_*.jsonl", "*_trials.csv", "*_record.json"} {
		matches, _ := filepath.Glob(filepath.Join(cfg.Output.Folder, pattern))
		if len(matches) != 1 {
			t.Errorf("%s: %d files", pattern, len(matches))
		}
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.Output.Folder, "*.jsonl"))
	if len(matches) != 1 {
		t.Fatal("no checkpoint")
	}
	sess, err := session.Recover(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Completed || sess.CompletedTrials() != cfg.Task.TrialCount() {
		t.Errorf("checkpoint: completed=%v trials=%d", sess.Completed, sess.CompletedTrials())
	}
	if sess.Plan.Seed != 7 {
		t.Errorf("plan seed = %d, want 7", sess.Plan.Seed)
	}

	// A finished checkpoint has nothing to resume.
	if code := run(options{configPath: path, simulate: true, resume: matches[0]}); code != exitError {
		t.Errorf("resume of finished session = %d, want %d", code, exitError)
	}
}

func TestRun_ResumeSimulated(t *testing.T) {
	dir := t.TempDir()
	path, cfg := writeConfig(t, dir)

	sess := testSession(t, cfg, config.Intake{Participant: "P07"})
	cp, err := session.CreateCheckpoint(cfg.Output.Folder, sess, 0)
	if err != nil {
		t.Fatal(err)
	}
	cp.Close()
	before, _ := os.ReadFile(cp.Path())

	if code := run(options{configPath: path, simulate: true, resume: cp.Path()}); code != exitOK {
		t.Fatalf("run = %d, want %d", code, exitOK)
	}
	after, _ := os.ReadFile(cp.Path())
	if !strings.HasPrefix(string(after), string(before)) {
		t.Error("resume rewrote the checkpoint instead of appending")
	}
	got, err := session.Recover(cp.Path())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != sess.ID || !got.Completed {
		t.Errorf("resumed session id=%s completed=%v", got.ID, got.Completed)
	}
}

func TestRun_ReferenceFlags(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeConfig(t, dir)

	tests := []struct {
		name string
		o    options
		want int
	}{
		{"version", options{showVersion: true}, exitOK},
		{"keys", options{configPath: path, showKeys: true}, exitOK},
		{"markers", options{configPath: path, showMarkers: true}, exitOK},
		{"bad config", options{configPath: writeFile(t, dir, "bad.yaml", "task: [")}, exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.o); got != tt.want {
				t.Errorf("run = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRun_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab", "config.yaml")
	if code := run(options{configPath: path, initConfig: true, variant: config.VariantWM}); code != exitOK {
		t.Fatalf("run = %d", code)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Task.Variant != config.VariantWM {
		t.Errorf("variant = %q, want %q", cfg.Task.Variant, config.VariantWM)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func TestConfirmResume(t *testing.T) {
	cfg := config.Default(config.VariantTraining)

	t.Run("accepted", func(t *testing.T) {
		sess := testSession(t, cfg, config.Intake{Participant: "P07"})
		sess.MarkAborted()
		p := shell.NewMockPrompter(true)
		if err := confirmResume(p, sess, "cp.jsonl"); err != nil {
			t.Fatalf("confirmResume: %v", err)
		}
		if !strings.Contains(p.LastPrompt(), "P07") || !strings.Contains(p.LastPrompt(), "trial 1 of 16") {
			t.Errorf("prompt = %q", p.LastPrompt())
		}
		if sess.Aborted {
			t.Error("session not reopened")
		}
	})

	t.Run("declined", func(t *testing.T) {
		sess := testSession(t, cfg, config.Intake{Participant: "P07"})
		err := confirmResume(shell.NewMockPrompter(false), sess, "cp.jsonl")
		if !errors.Is(err, shell.ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
	})

	t.Run("prompt error", func(t *testing.T) {
		sess := testSession(t, cfg, config.Intake{Participant: "P07"})
		p := &shell.MockPrompter{Error: errors.New("tty gone")}
		if err := confirmResume(p, sess, "cp.jsonl"); err == nil || p.CallCount != 1 {
			t.Errorf("err = %v, calls = %d", err, p.CallCount)
		}
	})

	t.Run("nothing left", func(t *testing.T) {
		sess := testSession(t, cfg, config.Intake{Participant: "P07"})
		for i := 0; i < sess.Plan.Len(); i++ {
			sess.Record(&session.TrialResult{Index: i})
		}
		p := shell.NewMockPrompter(true)
		err := confirmResume(p, sess, "cp.jsonl")
		if !taskerrors.IsCode(err, taskerrors.ErrCheckpointCorrupt) {
			t.Errorf("err = %v", err)
		}
		if p.CallCount != 0 {
			t.Error("operator asked about a finished session")
		}
	})
}

func TestParticipantsIn(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"P07_Sub_03-14-2025_10-02-33.jsonl",
		"P07_training_Sub_03-13-2025_09-00-00.jsonl",
		"A01_Sub_03-14-2025_11-00-00.jsonl",
		"P07_Sub_03-14-2025_10-02-33_trials.csv",
		"noseparator.jsonl",
	} {
		writeFile(t, dir, name, "")
	}

	got := participantsIn(dir)
	want := []string{"A01", "P07"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("participantsIn = %v, want %v", got, want)
	}
	if got := participantsIn(filepath.Join(dir, "missing")); len(got) != 0 {
		t.Errorf("missing folder = %v", got)
	}
}

func TestOpenDevices(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(config.VariantMain)
	cfg.Output.Folder = dir
	cfg.Devices.Markers = true
	cfg.Devices.MarkerPort = filepath.Join(dir, "port")
	codes, err := device.NewCodeTable(nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		intake  config.Intake
		markers bool
		eye     bool
	}{
		{"markers on", config.Intake{Participant: "P01"}, true, false},
		{"debug turns markers off", config.Intake{Participant: "P02", Debug: true}, false, false},
		{"eye tracking", config.Intake{Participant: "P03", EyeTracking: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := testSession(t, cfg, tt.intake)
			hw := openDevices(cfg, sess, codes, false)
			defer hw.Close()

			if got := hw.registry.Enabled(device.NameMarkers); got != tt.markers {
				t.Errorf("markers enabled = %v, want %v", got, tt.markers)
			}
			if got := hw.registry.Enabled(device.NameEyeTracker); got != tt.eye {
				t.Errorf("eye tracker enabled = %v, want %v", got, tt.eye)
			}
			if tt.eye {
				if err := hw.events.Calibrate(); !taskerrors.IsCode(err, taskerrors.ErrEyeTrackerCalibration) {
					t.Errorf("Calibrate = %v", err)
				}
				if _, err := os.Stat(filepath.Join(dir, sess.Name+"_events.tsv")); err != nil {
					t.Errorf("event log not opened: %v", err)
				}
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"completed", nil, exitOK},
		{"aborted", taskerrors.Session(taskerrors.ErrSessionAborted, "aborted"), exitAborted},
		{"crashed", taskerrors.Session(taskerrors.ErrSessionCrashed, "crashed"), exitCrashed},
		{"checkpoint", taskerrors.IO(taskerrors.ErrCheckpointWriteFailed, "disk full"), exitError},
		{"plain", errors.New("boom"), exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}
