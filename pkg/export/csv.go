// Package export writes the analysis files of a finished session: one
// row per trial in CSV, and a reproducibility record hashing the
// configuration and the plan.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// CSVDialect specifies the CSV format variant.
type CSVDialect string

const (
	// DialectStandard uses RFC 4180 compliant CSV.
	DialectStandard CSVDialect = "standard"

	// DialectTSV uses tab-separated values instead of comma.
	DialectTSV CSVDialect = "tsv"
)

// CSVConfig specifies options for CSV export.
type CSVConfig struct {
	// Dialect specifies the CSV format variant.
	// Default: DialectStandard
	Dialect CSVDialect

	// IncludeHeader writes column headers as the first row.
	// Default: true
	IncludeHeader bool

	// TimestampFormat formats the session start column.
	// Default: time.RFC3339
	TimestampFormat string

	// Precision is the number of decimal places for seconds.
	// Default: 6
	Precision int

	// NAString is the representation of undefined values.
	// Default: "NA" (compatible with R and Python pandas)
	NAString string
}

// DefaultCSVConfig returns a CSVConfig with sensible defaults.
func DefaultCSVConfig() *CSVConfig {
	return &CSVConfig{
		Dialect:         DialectStandard,
		IncludeHeader:   true,
		TimestampFormat: time.RFC3339,
		Precision:       6,
		NAString:        "NA",
	}
}

// trialColumns is the fixed column order. Names are snake_case so they are
// valid identifiers in R and pandas.
var trialColumns = []string{
	"participant",
	"session_id",
	"variant",
	"session_start",
	"trial",
	"block",
	"category",
	"axis",
	"anti_task",
	"prompt_variant",
	"equivalent_variant",
	"response_modality",
	"cue_timing",
	"easy",
	"pair",
	"identical",
	"stim1",
	"stim2",
	"prompt_type",
	"label_1",
	"label_2",
	"instruction",
	"correct_response",
	"response",
	"is_correct",
	"response_time",
	"outcome",
	"instruction_time",
	"fixation",
	"delay",
	"trial_start",
	"trial_end",
	"slider_samples",
	"slider_final",
}

// CSVWriter writes trials to CSV.
type CSVWriter struct {
	config      *CSVConfig
	writer      *csv.Writer
	headerDone  bool
	rowsWritten int
}

// NewCSVWriter creates a CSVWriter on w. If config is nil,
// DefaultCSVConfig() is used.
func NewCSVWriter(w io.Writer, config *CSVConfig) *CSVWriter {
	if config == nil {
		config = DefaultCSVConfig()
	}
	csvWriter := csv.NewWriter(w)
	if config.Dialect == DialectTSV {
		csvWriter.Comma = '\t'
	}
	return &CSVWriter{config: config, writer: csvWriter}
}

// WriteHeader writes the header row once.
func (cw *CSVWriter) WriteHeader() error {
	if cw.headerDone {
		return nil
	}
	if err := cw.writer.Write(trialColumns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	cw.headerDone = true
	return nil
}

// WriteSession writes one row per completed trial of s.
func (cw *CSVWriter) WriteSession(s *session.Session) error {
	for i := 0; i < s.CompletedTrials(); i++ {
		r, _ := s.Result(i)
		if err := cw.Write(s, &s.Plan.Trials[i], r); err != nil {
			return err
		}
	}
	return nil
}

// Write writes a single trial row.
func (cw *CSVWriter) Write(s *session.Session, spec *task.TrialSpec, r *session.TrialResult) error {
	if cw.config.IncludeHeader && !cw.headerDone {
		if err := cw.WriteHeader(); err != nil {
			return err
		}
	}
	if err := cw.writer.Write(cw.formatTrial(s, spec, r)); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	cw.rowsWritten++
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (cw *CSVWriter) Flush() error {
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	return nil
}

// RowsWritten returns the number of data rows written (excluding header).
func (cw *CSVWriter) RowsWritten() int {
	return cw.rowsWritten
}

func (cw *CSVWriter) formatTrial(s *session.Session, spec *task.TrialSpec, r *session.TrialResult) []string {
	na := cw.config.NAString

	correct, defined := session.Correct(spec, r)
	isCorrect := na
	if defined {
		isCorrect = cw.formatBool(correct)
	}

	samples, final := "0", na
	if n := len(r.Slider); n > 0 {
		samples = strconv.Itoa(n)
		final = strconv.FormatFloat(r.Slider[n-1].Position, 'f', cw.config.Precision, 64)
	}

	return []string{
		cw.formatString(s.Participant),
		cw.formatString(s.ID),
		cw.formatString(s.Variant),
		s.StartedAt.UTC().Format(cw.config.TimestampFormat),
		strconv.Itoa(spec.Index + 1),
		strconv.Itoa(s.Plan.BlockOf(spec.Index) + 1),
		spec.Category.String(),
		spec.AxisName(),
		cw.formatBool(spec.AntiTask),
		cw.formatBool(spec.Prompt),
		cw.formatBool(spec.Phrasing),
		spec.Response.String(),
		spec.Cue.String(),
		cw.formatBool(spec.Easy),
		strconv.Itoa(spec.Pair),
		cw.formatBool(spec.Identical),
		cw.formatString(spec.Stim1),
		cw.formatString(spec.Stim2),
		strconv.Itoa(spec.PromptType),
		cw.formatString(string(spec.Labels[0])),
		cw.formatString(string(spec.Labels[1])),
		cw.formatString(spec.Instruction),
		cw.formatSide(spec.Correct),
		cw.formatSide(r.Response),
		isCorrect,
		cw.formatSeconds(r.ResponseTime),
		cw.formatString(string(r.Outcome)),
		cw.formatSeconds(r.InstructionTime),
		cw.formatSeconds(&spec.Fixation),
		cw.formatSeconds(&spec.Delay),
		cw.formatSeconds(&r.Start),
		cw.formatSeconds(&r.End),
		samples,
		final,
	}
}

func (cw *CSVWriter) formatString(s string) string {
	if s == "" {
		return cw.config.NAString
	}
	return s
}

func (cw *CSVWriter) formatSide(s *task.Side) string {
	if s == nil {
		return cw.config.NAString
	}
	return s.String()
}

// formatSeconds writes a duration in seconds, or NA when undefined.
func (cw *CSVWriter) formatSeconds(d *time.Duration) string {
	if d == nil {
		return cw.config.NAString
	}
	return strconv.FormatFloat(d.Seconds(), 'f', cw.config.Precision, 64)
}

// formatBool formats a boolean as "TRUE" or "FALSE" for R/Python compatibility.
func (cw *CSVWriter) formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// WriteTrialsFile writes <dir>/<session name>_trials.csv and returns its path.
func WriteTrialsFile(dir string, s *session.Session, config *CSVConfig) (string, error) {
	path := filepath.Join(dir, s.Name+"_trials.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", taskerrors.IOWrap(err, taskerrors.ErrExportFailed, "cannot create trials file").
			WithContext(taskerrors.ContextPath, path)
	}
	defer f.Close()

	w := NewCSVWriter(f, config)
	if w.config.IncludeHeader {
		if err := w.WriteHeader(); err != nil {
			return "", taskerrors.IOWrap(err, taskerrors.ErrExportFailed, "cannot write trials file")
		}
	}
	if err := w.WriteSession(s); err != nil {
		return "", taskerrors.IOWrap(err, taskerrors.ErrExportFailed, "cannot write trials file")
	}
	if err := w.Flush(); err != nil {
		return "", taskerrors.IOWrap(err, taskerrors.ErrExportFailed, "cannot write trials file")
	}
	return path, nil
}
