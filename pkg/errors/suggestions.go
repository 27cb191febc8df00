package errors

import "sort"

// Suggestion is a remediation hint with optional context conditions.
type Suggestion struct {
	Text string

	// Conditions must all match the error context for the hint to apply.
	Conditions map[string]string

	// Priority orders hints, highest first.
	Priority int
}

// Matches returns true if every condition is present in ctx.
func (s *Suggestion) Matches(ctx map[string]string) bool {
	for key, value := range s.Conditions {
		if ctx[key] != value {
			return false
		}
	}
	return true
}

// Registry maps error codes to their remediation suggestions.
type Registry struct {
	suggestions map[string][]Suggestion
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{suggestions: make(map[string][]Suggestion)}
}

// Register adds an unconditional suggestion for code.
func (r *Registry) Register(code, text string) *Registry {
	r.suggestions[code] = append(r.suggestions[code], Suggestion{Text: text})
	return r
}

// RegisterWithCondition adds a suggestion that only applies when ctx matches.
func (r *Registry) RegisterWithCondition(code, text string, conditions map[string]string) *Registry {
	r.suggestions[code] = append(r.suggestions[code], Suggestion{Text: text, Conditions: conditions})
	return r
}

// Get returns the matching suggestions for code, highest priority first.
func (r *Registry) Get(code string, ctx map[string]string) []string {
	var matching []Suggestion
	for _, s := range r.suggestions[code] {
		if s.Matches(ctx) {
			matching = append(matching, s)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Priority > matching[j].Priority
	})
	out := make([]string, len(matching))
	for i, s := range matching {
		out[i] = s.Text
	}
	return out
}

// HasSuggestions returns true if any suggestions exist for code.
func (r *Registry) HasSuggestions(code string) bool {
	return len(r.suggestions[code]) > 0
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the global registry of built-in suggestions.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// AttachSuggestions appends the registered suggestions for e.Code, matched
// against e.Context. Suggestions already present are kept.
func AttachSuggestions(e *TaskError) *TaskError {
	if e == nil {
		return nil
	}
	e.Suggestions = append(e.Suggestions, defaultRegistry.Get(e.Code, e.Context)...)
	return e
}

// Context keys shared by constructors and conditional suggestions.
const (
	ContextCategory = "category"
	ContextPair     = "pair"
	ContextPath     = "path"
	ContextField    = "field"
	ContextDevice   = "device"
	ContextEvent    = "event"
)

func init() {
	r := defaultRegistry

	r.Register(ErrConfigNotFound, "Run 'wmtask --init' to write a default configuration file")
	r.Register(ErrConfigParseFailed, "Check the configuration file for YAML syntax errors")
	r.Register(ErrConfigParseFailed, "Durations are written as Go durations, e.g. \"1.5s\" or \"800ms\"")
	r.Register(ErrConfigInvalid, "Review the field named in the error context")
	r.Register(ErrConfigWriteFailed, "Check that the configuration directory is writable")

	r.Register(ErrStimulusFolderMissing, "Check task.stimulus_folder points at the stimulus root")
	r.Register(ErrStimulusFolderMissing, "Each category needs Pair1..PairN subfolders")
	r.Register(ErrStimulusFolderEmpty, "Copy the .jpg images for this pair into the folder")
	r.Register(ErrFeatureTableInvalid, "Each entry needs a file name and its feature tags")

	r.Register(ErrPlanInvalidDesign, "Check n_blocks, n_trials_per_block and the pair inventory size")

	r.Register(ErrMarkerUnknownEvent, "Valid marker names are listed by 'wmtask --markers'")
	r.Register(ErrMarkerCodeInvalid, "Marker codes must fit in one byte (1-255)")
	r.RegisterWithCondition(ErrDeviceUnavailable, "Disable eye tracking in the intake prompt to run without it",
		map[string]string{ContextDevice: "eyetracker"})
	r.Register(ErrEyeTrackerCalibration, "Recalibrate, or restart the session without eye tracking")

	r.Register(ErrSessionCrashed, "Resume from the checkpoint with 'wmtask --resume <file>'")
	r.Register(ErrCheckpointWriteFailed, "Check free disk space in the output folder")
	r.Register(ErrCheckpointCorrupt, "Only complete lines of a checkpoint are recovered; earlier snapshots are intact")
	r.Register(ErrResultsDBUnavailable, "Check results_db.dsn, or set results_db.enabled to false; local files are still written")
}
