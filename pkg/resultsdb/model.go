package resultsdb

import (
	"encoding/json"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// SessionRow is one run of the task.
type SessionRow struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SessionID   string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"session_id"`
	Participant string     `gorm:"type:varchar(64);not null;index" json:"participant"`
	Name        string     `gorm:"type:varchar(200)" json:"name"`
	Variant     string     `gorm:"type:varchar(20);index" json:"variant"`
	Seed        int64      `json:"seed"`
	TrialCount  int        `json:"trial_count"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
	EyeTracking bool       `json:"eye_tracking"`
	Debug       bool       `json:"debug"`

	Completed   bool     `json:"completed"`
	Aborted     bool     `json:"aborted"`
	CrashReason string   `gorm:"type:varchar(500)" json:"crash_reason"`
	Accuracy    *float64 `gorm:"type:decimal(5,2)" json:"accuracy"`
	Scored      int      `json:"scored"`
}

// TableName pins the table name.
func (SessionRow) TableName() string { return "wm_sessions" }

// TrialRow is one completed trial. Nullable columns hold undefined values.
type TrialRow struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SessionID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_session_trial" json:"session_id"`
	TrialIndex  int    `gorm:"not null;uniqueIndex:idx_session_trial" json:"trial_index"`
	Participant string `gorm:"type:varchar(64);not null;index" json:"participant"`
	Block       int    `json:"block"`

	Category      string `gorm:"type:varchar(20)" json:"category"`
	Axis          string `gorm:"type:varchar(40)" json:"axis"`
	AntiTask      bool   `json:"anti_task"`
	PromptVariant bool   `json:"prompt_variant"`
	Phrasing      bool   `json:"equivalent_variant"`
	Modality      string `gorm:"type:varchar(20)" json:"response_modality"`
	CueTiming     string `gorm:"type:varchar(20)" json:"cue_timing"`
	Easy          bool   `json:"easy"`

	Pair        int    `json:"pair"`
	Identical   bool   `json:"identical"`
	Stim1       string `gorm:"type:varchar(500)" json:"stim1"`
	Stim2       string `gorm:"type:varchar(500)" json:"stim2"`
	Instruction string `gorm:"type:varchar(500)" json:"instruction"`

	CorrectSide       *int     `json:"correct_side"`
	ResponseSide      *int     `json:"response_side"`
	IsCorrect         *bool    `json:"is_correct"`
	Outcome           string   `gorm:"type:varchar(20)" json:"outcome"`
	ResponseTimeMS    *float64 `json:"response_time_ms"`
	InstructionTimeMS *float64 `json:"instruction_time_ms"`

	StartS      float64  `json:"start_s"`
	EndS        float64  `json:"end_s"`
	SliderFinal *float64 `json:"slider_final"`
	SliderJSON  string   `gorm:"type:mediumtext" json:"slider_json"`
}

// TableName pins the table name.
func (TrialRow) TableName() string { return "wm_trials" }

// newSessionRow maps the session header.
func newSessionRow(s *session.Session) *SessionRow {
	return &SessionRow{
		SessionID:   s.ID,
		Participant: s.Participant,
		Name:        s.Name,
		Variant:     s.Variant,
		Seed:        s.Plan.Seed,
		TrialCount:  s.Plan.Len(),
		StartedAt:   s.StartedAt,
		EyeTracking: s.EyeTracking,
		Debug:       s.Debug,
	}
}

// outcomeColumns are the session columns known only once the run ends.
func outcomeColumns(s *session.Session) map[string]interface{} {
	cols := map[string]interface{}{
		"ended_at":     s.EndedAt,
		"completed":    s.Completed,
		"aborted":      s.Aborted,
		"crash_reason": s.CrashReason,
		"accuracy":     nil,
		"scored":       0,
	}
	if acc, scored := s.FinalAccuracy(); scored > 0 {
		cols["accuracy"] = acc
		cols["scored"] = scored
	}
	return cols
}

// newTrialRow flattens one trial.
func newTrialRow(s *session.Session, spec *task.TrialSpec, r *session.TrialResult) *TrialRow {
	row := &TrialRow{
		SessionID:         s.ID,
		TrialIndex:        spec.Index,
		Participant:       s.Participant,
		Block:             s.Plan.BlockOf(spec.Index),
		Category:          spec.Category.String(),
		Axis:              spec.AxisName(),
		AntiTask:          spec.AntiTask,
		PromptVariant:     spec.Prompt,
		Phrasing:          spec.Phrasing,
		Modality:          spec.Response.String(),
		CueTiming:         spec.Cue.String(),
		Easy:              spec.Easy,
		Pair:              spec.Pair,
		Identical:         spec.Identical,
		Stim1:             spec.Stim1,
		Stim2:             spec.Stim2,
		Instruction:       spec.Instruction,
		CorrectSide:       sideValue(spec.Correct),
		ResponseSide:      sideValue(r.Response),
		Outcome:           string(r.Outcome),
		ResponseTimeMS:    millis(r.ResponseTime),
		InstructionTimeMS: millis(r.InstructionTime),
		StartS:            r.Start.Seconds(),
		EndS:              r.End.Seconds(),
	}
	if ok, defined := session.Correct(spec, r); defined {
		row.IsCorrect = &ok
	}
	if n := len(r.Slider); n > 0 {
		final := r.Slider[n-1].Position
		row.SliderFinal = &final
		if data, err := json.Marshal(r.Slider); err == nil {
			row.SliderJSON = string(data)
		}
	}
	return row
}

func sideValue(s *task.Side) *int {
	if s == nil {
		return nil
	}
	v := int(*s)
	return &v
}

func millis(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := float64(*d) / float64(time.Millisecond)
	return &v
}
