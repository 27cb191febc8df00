// Package config handles task configuration: design, timing, keys, devices
// and output. Files are YAML decoded over the defaults of a task variant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// Task variants. Each is one historical schema of the experiment.
const (
	VariantMain     = "main"     // response-modality factor, anti-task off
	VariantWM       = "wm"       // anti-task factor, button responses only
	VariantTraining = "training" // short practice session
)

// Cue schedules.
const (
	// CueBalanced alternates cue timing by block; block halves of each
	// timing are balanced across category and response modality.
	CueBalanced = "balanced"

	// CueHalves runs the first half of the session with the instruction
	// before the stimuli and the second half after them.
	CueHalves = "halves"
)

// Config is the full task configuration.
type Config struct {
	Task      TaskConfig      `yaml:"task"`
	Timing    TimingConfig    `yaml:"timing"`
	Keys      KeysConfig      `yaml:"keys"`
	Slider    SliderConfig    `yaml:"slider"`
	Devices   DevicesConfig   `yaml:"devices"`
	Output    OutputConfig    `yaml:"output"`
	Layout    Layout          `yaml:"layout"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	ResultsDB ResultsDBConfig `yaml:"results_db"`
}

// TaskConfig holds the factorial design.
type TaskConfig struct {
	Variant        string `yaml:"variant"`
	Blocks         int    `yaml:"n_blocks"`
	TrialsPerBlock int    `yaml:"n_trials_per_block"`

	Categories []task.Category `yaml:"categories"`
	AntiTask   []bool          `yaml:"anti_task"`
	Prompt     []bool          `yaml:"prompt_variant"`
	Phrasing   []bool          `yaml:"equivalent_variant"`
	Response   []task.Modality `yaml:"response_variant"`

	CueSchedule string `yaml:"cue_schedule"`

	// EasyTrials forces the first trials to anti-task off, standard phrasing.
	EasyTrials int `yaml:"easy_trials"`

	Pairs           int `yaml:"n_pairs"`
	PairRepetitions int `yaml:"n_repetitions"`

	StimulusFolder string `yaml:"stimulus_folder"`

	// FeatureTable is an optional YAML file replacing the built-in tags.
	FeatureTable string `yaml:"feature_table,omitempty"`

	AdjacencyRepair bool `yaml:"adjacency_repair"`
}

// TrialCount returns the number of trials in a session.
func (t TaskConfig) TrialCount() int {
	return t.Blocks * t.TrialsPerBlock
}

// CellTrials is the largest number of trials any (category, axis) cell
// receives once the factorial design is replicated to the trial count.
// Each cell draws its stimulus pairs from a pool of Pairs x PairRepetitions.
func (t TaskConfig) CellTrials() int {
	perCell := len(t.AntiTask) * len(t.Prompt) * len(t.Phrasing) * len(t.Response)
	combos := 2 * len(t.Categories) * perCell
	if combos == 0 {
		return 0
	}
	n := t.TrialCount()
	extra := n % combos
	if extra > perCell {
		extra = perCell
	}
	return n/combos*perCell + extra
}

// TimingConfig holds phase durations.
type TimingConfig struct {
	Fixation       time.Duration `yaml:"fixation"`
	FixationJitter time.Duration `yaml:"fixation_jitter"`
	InstructionMin time.Duration `yaml:"instruction_min"`
	InstructionMax time.Duration `yaml:"instruction_max"`
	Stim1          time.Duration `yaml:"stim1"`
	Delay          time.Duration `yaml:"delay"`
	DelayJitter    time.Duration `yaml:"delay_jitter"`
	Stim2          time.Duration `yaml:"stim2"`
	ResponsePrompt time.Duration `yaml:"response_prompt"`
	ResponseMax    time.Duration `yaml:"response_max"`
	FeedbackHold   time.Duration `yaml:"feedback_hold"`
	ITI            time.Duration `yaml:"iti"`
	SliderReminder time.Duration `yaml:"slider_reminder"`
	Refresh        time.Duration `yaml:"refresh"`
}

// KeysConfig names the keys the task listens to.
type KeysConfig struct {
	First        string   `yaml:"first"`
	Second       string   `yaml:"second"`
	SliderLeft   string   `yaml:"slider_left"`
	SliderRight  string   `yaml:"slider_right"`
	SliderSubmit string   `yaml:"slider_submit"`
	Dismiss      string   `yaml:"dismiss"`
	Abort        []string `yaml:"abort"`
	Pause        string   `yaml:"pause"`
	Continue     string   `yaml:"continue"`
}

// SliderConfig shapes the continuous response scale.
type SliderConfig struct {
	Step      float64 `yaml:"step"`
	HalfRange float64 `yaml:"half_range"`
}

// DevicesConfig toggles the hardware collaborators.
type DevicesConfig struct {
	Markers    bool   `yaml:"markers"`
	MarkerPort string `yaml:"marker_port"`

	// MarkerCodes overrides entries of the built-in event code table.
	MarkerCodes map[string]int `yaml:"marker_codes,omitempty"`

	Photodiode  bool `yaml:"photodiode"`
	FlashFrames int  `yaml:"flash_frames"`

	EventLog    bool `yaml:"event_log"`
	EyeTracking bool `yaml:"eye_tracking"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	Folder string `yaml:"folder"`

	// CheckpointWarn logs a warning once the checkpoint grows past this size.
	CheckpointWarn datasize.ByteSize `yaml:"checkpoint_warn"`

	CSV bool `yaml:"csv"`
}

// MonitorConfig configures the live experimenter monitor.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ResultsDBConfig configures the optional MySQL trial sink.
type ResultsDBConfig struct {
	Enabled bool          `yaml:"enabled"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// Intake is what the operator answers at startup.
type Intake struct {
	Participant string
	EyeTracking bool
	Debug       bool
}

// Default returns the configuration of a task variant. Unknown variants
// fall back to VariantMain.
func Default(variant string) *Config {
	cfg := &Config{
		Task: TaskConfig{
			Variant:         VariantMain,
			Blocks:          4,
			TrialsPerBlock:  48,
			Categories:      append([]task.Category(nil), task.AllCategories...),
			AntiTask:        []bool{false},
			Prompt:          []bool{false, true},
			Phrasing:        []bool{false, true},
			Response:        []task.Modality{task.Button, task.Slider},
			CueSchedule:     CueBalanced,
			Pairs:           6,
			PairRepetitions: 4,
			StimulusFolder:  filepath.Join("stimuli", "Task_Stim_Version2"),
			AdjacencyRepair: true,
		},
		Timing: TimingConfig{
			Fixation:       time.Second,
			InstructionMin: 2500 * time.Millisecond,
			InstructionMax: 4 * time.Second,
			Stim1:          time.Second,
			Delay:          2 * time.Second,
			Stim2:          time.Second,
			ResponsePrompt: time.Second,
			ResponseMax:    3 * time.Second,
			FeedbackHold:   500 * time.Millisecond,
			ITI:            time.Second,
			SliderReminder: 2 * time.Second,
			Refresh:        16667 * time.Microsecond,
		},
		Keys: KeysConfig{
			First:        "up",
			Second:       "down",
			SliderLeft:   "left",
			SliderRight:  "right",
			SliderSubmit: "up",
			Dismiss:      "space",
			Abort:        []string{"escape", "q"},
			Pause:        "p",
			Continue:     "c",
		},
		Slider: SliderConfig{
			Step:      0.1,
			HalfRange: 0.5,
		},
		Devices: DevicesConfig{
			Markers:     false,
			Photodiode:  true,
			FlashFrames: 3,
			EventLog:    true,
		},
		Output: OutputConfig{
			Folder:         "data",
			CheckpointWarn: 10 * datasize.MB,
			CSV:            true,
		},
		Layout: DefaultLayout(),
		Monitor: MonitorConfig{
			Addr: "127.0.0.1:8090",
		},
		ResultsDB: ResultsDBConfig{
			Timeout: 2 * time.Second,
		},
	}

	switch variant {
	case VariantWM:
		cfg.Task.Variant = VariantWM
		cfg.Task.AntiTask = []bool{false, true}
		cfg.Task.Response = []task.Modality{task.Button}
	case VariantTraining:
		cfg.Task.Variant = VariantTraining
		cfg.Task.Blocks = 1
		cfg.Task.TrialsPerBlock = 16
		cfg.Task.Categories = []task.Category{task.Cars, task.Faces}
		cfg.Task.AntiTask = []bool{false, true}
		cfg.Task.Prompt = []bool{true}
		cfg.Task.Response = []task.Modality{task.Button}
		cfg.Task.CueSchedule = CueHalves
		cfg.Task.EasyTrials = 5
	}
	return cfg
}

// Load reads a YAML file over the defaults of the variant it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, taskerrors.ConfigWrap(err, taskerrors.ErrConfigNotFound, "configuration file not found").
				WithContext(taskerrors.ContextPath, path)
		}
		return nil, taskerrors.ConfigWrap(err, taskerrors.ErrConfigParseFailed, "cannot read configuration").
			WithContext(taskerrors.ContextPath, path)
	}

	var head struct {
		Task struct {
			Variant string `yaml:"variant"`
		} `yaml:"task"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, taskerrors.ConfigWrap(err, taskerrors.ErrConfigParseFailed, "cannot parse configuration").
			WithContext(taskerrors.ContextPath, path)
	}

	cfg := Default(head.Task.Variant)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, taskerrors.ConfigWrap(err, taskerrors.ErrConfigParseFailed, "cannot parse configuration").
			WithContext(taskerrors.ContextPath, path)
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists, otherwise returns the variant defaults.
func LoadOrDefault(path, variant string) (*Config, error) {
	if path == "" {
		return Default(variant), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(variant), nil
	}
	return Load(path)
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return taskerrors.ConfigWrap(err, taskerrors.ErrConfigWriteFailed, "cannot create configuration directory").
			WithContext(taskerrors.ContextPath, path)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return taskerrors.ConfigWrap(err, taskerrors.ErrConfigWriteFailed, "cannot encode configuration")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return taskerrors.ConfigWrap(err, taskerrors.ErrConfigWriteFailed, "cannot write configuration").
			WithContext(taskerrors.ContextPath, path)
	}
	return nil
}

// DefaultConfigPath returns config.yaml in the working directory, or
// config/config.yaml when only that exists.
func DefaultConfigPath() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	if _, err := os.Stat(filepath.Join("config", "config.yaml")); err == nil {
		return filepath.Join("config", "config.yaml")
	}
	return "config.yaml"
}

// InitConfig writes the variant defaults to path unless a file already exists.
func InitConfig(path, variant string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return Default(variant).Save(path)
}

func invalid(field, format string, args ...interface{}) error {
	return taskerrors.Configf(taskerrors.ErrConfigInvalid, format, args...).
		WithContext(taskerrors.ContextField, field)
}

// Validate rejects configurations the plan builder or runner cannot honor.
func (c *Config) Validate() error {
	t := c.Task
	switch t.Variant {
	case VariantMain, VariantWM, VariantTraining:
	default:
		return invalid("task.variant", "unknown task variant %q", t.Variant)
	}
	if t.Blocks <= 0 || t.TrialsPerBlock <= 0 {
		return invalid("task.n_blocks", "blocks and trials per block must be positive")
	}
	if len(t.Categories) == 0 || len(t.AntiTask) == 0 || len(t.Prompt) == 0 ||
		len(t.Phrasing) == 0 || len(t.Response) == 0 {
		return invalid("task", "every factor needs at least one level")
	}
	switch t.CueSchedule {
	case CueBalanced:
		if t.Blocks%2 != 0 {
			return invalid("task.n_blocks", "balanced cue schedule needs an even number of blocks, got %d", t.Blocks)
		}
	case CueHalves:
		if t.TrialCount()%2 != 0 {
			return invalid("task.n_trials_per_block", "halves cue schedule needs an even trial count")
		}
	default:
		return invalid("task.cue_schedule", "unknown cue schedule %q", t.CueSchedule)
	}
	if t.EasyTrials < 0 || t.EasyTrials > t.TrialCount() {
		return invalid("task.easy_trials", "easy trials must be between 0 and %d", t.TrialCount())
	}
	if t.Pairs <= 0 || t.PairRepetitions <= 0 {
		return invalid("task.n_pairs", "pair inventory must be positive")
	}
	if need, have := t.CellTrials(), t.Pairs*t.PairRepetitions; need > have {
		return invalid("task.n_repetitions", "each category and axis needs %d pairs but %d x %d gives %d",
			need, t.Pairs, t.PairRepetitions, have)
	}

	tm := c.Timing
	if tm.InstructionMin > tm.InstructionMax {
		return invalid("timing.instruction_min", "instruction minimum %s exceeds maximum %s",
			tm.InstructionMin, tm.InstructionMax)
	}
	if tm.Refresh <= 0 {
		return invalid("timing.refresh", "refresh interval must be positive")
	}
	if tm.ResponseMax <= 0 {
		return invalid("timing.response_max", "response deadline must be positive")
	}
	if tm.FixationJitter > tm.Fixation || tm.DelayJitter > tm.Delay {
		return invalid("timing", "jitter cannot exceed its base duration")
	}

	if c.Slider.Step <= 0 || c.Slider.HalfRange < c.Slider.Step {
		return invalid("slider.step", "slider step must be positive and not exceed the half range")
	}

	k := c.Keys
	if k.First == "" || k.Second == "" || k.First == k.Second {
		return invalid("keys.first", "response keys must be set and distinct")
	}
	if k.SliderLeft == "" || k.SliderRight == "" || k.SliderSubmit == "" {
		return invalid("keys.slider_left", "slider keys must be set")
	}
	if k.Continue == "" || k.Pause == "" || len(k.Abort) == 0 {
		return invalid("keys.abort", "control keys must be set")
	}

	if c.ResultsDB.Enabled && c.ResultsDB.DSN == "" {
		return invalid("results_db.dsn", "results database enabled without a DSN")
	}
	return nil
}

// Summary is a one-line description for the operator console.
func (c *Config) Summary() string {
	return fmt.Sprintf("%s: %d blocks x %d trials, cue schedule %s, stimuli %s",
		c.Task.Variant, c.Task.Blocks, c.Task.TrialsPerBlock, c.Task.CueSchedule, c.Task.StimulusFolder)
}
