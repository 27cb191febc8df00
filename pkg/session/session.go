// Package session holds the result record of one experimental session and
// its append-only checkpoint.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/plan"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// Outcome says how a trial's response window ended.
type Outcome string

const (
	OutcomeSubmitted   Outcome = "submitted"   // key press or confirmed slider
	OutcomeUnconfirmed Outcome = "unconfirmed" // slider moved, never confirmed
	OutcomeNone        Outcome = "none"        // nothing before the deadline
)

// SliderSample is the slider position at one frame of the response window.
type SliderSample struct {
	Position float64       `json:"pos"`
	At       time.Duration `json:"t"`
}

// PhaseOnset is the presentation time of a phase's first frame.
type PhaseOnset struct {
	Phase string        `json:"phase"`
	At    time.Duration `json:"at"`
}

// TrialResult is what happened on one trial. Pointer fields are nil when
// the value is undefined (no response, no timing).
type TrialResult struct {
	Index int `json:"index"`

	Response     *task.Side     `json:"response"`
	ResponseTime *time.Duration `json:"response_time"`
	Outcome      Outcome        `json:"outcome"`

	// InstructionTime is how long the instruction stayed on screen.
	InstructionTime *time.Duration `json:"instruction_time"`

	Slider []SliderSample `json:"slider,omitempty"`
	Onsets []PhaseOnset   `json:"onsets"`

	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration is the trial's length on the session clock.
func (r *TrialResult) Duration() time.Duration {
	return r.End - r.Start
}

// Onset returns the onset of phase, if it ran.
func (r *TrialResult) Onset(phase string) (time.Duration, bool) {
	for _, o := range r.Onsets {
		if o.Phase == phase {
			return o.At, true
		}
	}
	return 0, false
}

// Correct reports whether the response matches the planned correct side.
// The second value is false when either side is undefined.
func Correct(spec *task.TrialSpec, r *TrialResult) (correct, defined bool) {
	if spec.Correct == nil || r == nil || r.Response == nil {
		return false, spec.Correct != nil
	}
	return *spec.Correct == *r.Response, true
}

// Session is the full record of one run: identity, plan, results so far
// and completion flags.
type Session struct {
	ID          string     `json:"id"`
	Participant string     `json:"participant"`
	Name        string     `json:"name"`
	Variant     string     `json:"variant"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	EyeTracking bool `json:"eye_tracking"`
	Debug       bool `json:"debug"`

	Plan    *plan.Plan     `json:"plan"`
	Results []*TrialResult `json:"results"`

	Completed   bool   `json:"completed"`
	Aborted     bool   `json:"aborted"`
	CrashReason string `json:"crash_reason,omitempty"`

	mu sync.RWMutex
}

// FileStem is the base name of every file the session writes, e.g.
// "P07_Sub_03-14-2025_10-02-33" or "P07_training_Sub_...".
func FileStem(participant, variant string, at time.Time) string {
	stamp := at.Format("01-02-2006_15-04-05")
	if variant == config.VariantTraining {
		return fmt.Sprintf("%s_training_Sub_%s", participant, stamp)
	}
	return fmt.Sprintf("%s_Sub_%s", participant, stamp)
}

// New starts a session over p.
func New(intake config.Intake, variant string, p *plan.Plan, now time.Time) *Session {
	return &Session{
		ID:          uuid.New().String(),
		Participant: intake.Participant,
		Name:        FileStem(intake.Participant, variant, now),
		Variant:     variant,
		StartedAt:   now,
		EyeTracking: intake.EyeTracking,
		Debug:       intake.Debug,
		Plan:        p,
		Results:     make([]*TrialResult, 0, p.Len()),
	}
}

// Record appends the result of the next trial.
func (s *Session) Record(r *TrialResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, r)
}

// CompletedTrials returns how many trials have results.
func (s *Session) CompletedTrials() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Results)
}

// Result returns the result of trial i, if recorded.
func (s *Session) Result(i int) (*TrialResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.Results) {
		return nil, false
	}
	return s.Results[i], true
}

// End stamps the end time and completion flags.
func (s *Session) End(now time.Time, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndedAt = &now
	s.Completed = completed
}

// MarkAborted flags an operator abort.
func (s *Session) MarkAborted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Aborted = true
}

// MarkCrashed records the reason the run loop failed.
func (s *Session) MarkCrashed(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CrashReason = reason
}

// Reopen clears the end stamp and flags of a recovered session so it can
// run again from its first incomplete trial. It reports whether any trial
// is left.
func (s *Session) Reopen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndedAt = nil
	s.Completed = false
	s.Aborted = false
	s.CrashReason = ""
	return len(s.Results) < s.Plan.Len()
}

// Progress is a point-in-time summary for the console and the monitor.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Block     int     `json:"block"`
	Accuracy  float64 `json:"accuracy"`
	Scored    int     `json:"scored"`
}

// Progress summarizes the session so far.
func (s *Session) Progress() Progress {
	acc, scored := s.FinalAccuracy()
	done := s.CompletedTrials()
	block := 0
	if s.Plan.TrialsPerBlock > 0 {
		block = done / s.Plan.TrialsPerBlock
	}
	return Progress{
		Completed: done,
		Total:     s.Plan.Len(),
		Block:     block,
		Accuracy:  acc,
		Scored:    scored,
	}
}
