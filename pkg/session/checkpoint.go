package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"

	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/plan"
)

// Checkpoint line kinds.
const (
	kindHeader = "header"
	kindTrial  = "trial"
	kindResume = "resume"
	kindEnd    = "end"
)

type header struct {
	ID          string     `json:"id"`
	Participant string     `json:"participant"`
	Name        string     `json:"name"`
	Variant     string     `json:"variant"`
	StartedAt   time.Time  `json:"started_at"`
	EyeTracking bool       `json:"eye_tracking"`
	Debug       bool       `json:"debug"`
	Plan        *plan.Plan `json:"plan"`
}

type ending struct {
	EndedAt     time.Time `json:"ended_at"`
	Completed   bool      `json:"completed"`
	Aborted     bool      `json:"aborted"`
	CrashReason string    `json:"crash_reason,omitempty"`
}

type resumption struct {
	At        time.Time `json:"at"`
	NextTrial int       `json:"next_trial"`
}

type line struct {
	Kind   string       `json:"kind"`
	Header *header      `json:"header,omitempty"`
	Trial  *TrialResult `json:"trial,omitempty"`
	Resume *resumption  `json:"resume,omitempty"`
	End    *ending      `json:"end,omitempty"`
}

// Checkpoint is the append-only JSONL record of a session: a header with
// the plan, one line per completed trial, and an end line. A resumed run
// appends a resume line and its trials to the same file. Every line is
// synced to disk before the next trial starts, so a crash loses at most
// the trial in progress.
type Checkpoint struct {
	path    string
	f       *os.File
	written datasize.ByteSize
	warnAt  datasize.ByteSize
	warned  bool
}

// CreateCheckpoint creates <dir>/<session name>.jsonl and writes the
// header. An existing file is never replaced; resume it instead.
func CreateCheckpoint(dir string, s *Session, warnAt datasize.ByteSize) (*Checkpoint, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot create output folder").
			WithContext(taskerrors.ContextPath, dir)
	}
	path := filepath.Join(dir, s.Name+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		e := taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot create checkpoint").
			WithContext(taskerrors.ContextPath, path)
		if os.IsExist(err) {
			e = e.WithSuggestion("Continue that session with: wmtask --resume " + path)
		}
		return nil, e
	}
	c := &Checkpoint{path: path, f: f, warnAt: warnAt}

	s.mu.RLock()
	h := &header{
		ID:          s.ID,
		Participant: s.Participant,
		Name:        s.Name,
		Variant:     s.Variant,
		StartedAt:   s.StartedAt,
		EyeTracking: s.EyeTracking,
		Debug:       s.Debug,
		Plan:        s.Plan,
	}
	s.mu.RUnlock()

	if err := c.write(line{Kind: kindHeader, Header: h}); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// ResumeCheckpoint reopens the checkpoint a session was recovered from and
// appends a resume line. Earlier lines are left as they are; a line torn
// by the crash is terminated so it stays on its own.
func ResumeCheckpoint(path string, s *Session, warnAt datasize.ByteSize) (*Checkpoint, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot reopen checkpoint").
			WithContext(taskerrors.ContextPath, path)
	}
	c := &Checkpoint{path: path, f: f, warnAt: warnAt}

	torn, size, err := endsTorn(path)
	if err != nil {
		f.Close()
		return nil, taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot read checkpoint").
			WithContext(taskerrors.ContextPath, path)
	}
	c.written = datasize.ByteSize(size)
	if torn {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			f.Close()
			return nil, taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot write checkpoint").
				WithContext(taskerrors.ContextPath, path)
		}
		c.written++
	}

	if err := c.write(line{Kind: kindResume, Resume: &resumption{At: time.Now(), NextTrial: s.CompletedTrials()}}); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// endsTorn reports whether the file's last byte is not a newline.
func endsTorn(path string) (bool, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, 0, err
	}
	if info.Size() == 0 {
		return false, 0, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, 0, err
	}
	return last[0] != '\n', info.Size(), nil
}

// Path returns the checkpoint file path.
func (c *Checkpoint) Path() string {
	return c.path
}

// Size returns the bytes written so far.
func (c *Checkpoint) Size() datasize.ByteSize {
	return c.written
}

func (c *Checkpoint) write(l line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot encode checkpoint line")
	}
	data = append(data, '\n')
	if _, err := c.f.Write(data); err != nil {
		return taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot write checkpoint").
			WithContext(taskerrors.ContextPath, c.path)
	}
	if err := c.f.Sync(); err != nil {
		return taskerrors.IOWrap(err, taskerrors.ErrCheckpointWriteFailed, "cannot sync checkpoint").
			WithContext(taskerrors.ContextPath, c.path)
	}
	c.written += datasize.ByteSize(len(data))
	if c.warnAt > 0 && c.written > c.warnAt && !c.warned {
		c.warned = true
		log.Printf("[session] checkpoint %s passed %s", c.path, c.warnAt.HumanReadable())
	}
	return nil
}

// AppendTrial writes one completed trial.
func (c *Checkpoint) AppendTrial(r *TrialResult) error {
	return c.write(line{Kind: kindTrial, Trial: r})
}

// Finish writes the end line with the session's completion flags.
func (c *Checkpoint) Finish(s *Session) error {
	s.mu.RLock()
	e := &ending{Completed: s.Completed, Aborted: s.Aborted, CrashReason: s.CrashReason}
	if s.EndedAt != nil {
		e.EndedAt = *s.EndedAt
	}
	s.mu.RUnlock()
	return c.write(line{Kind: kindEnd, End: e})
}

// Close closes the file.
func (c *Checkpoint) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

// Recover rebuilds a session from a checkpoint. An incomplete last line
// is ignored, so a file cut off mid-write yields exactly the trials whose
// lines were complete. Unreadable or out-of-order lines in the middle,
// left by a crash before a resume, are skipped. A resume line clears the
// end state of the run before it.
func Recover(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrCheckpointCorrupt, "cannot open checkpoint").
			WithContext(taskerrors.ContextPath, path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var s *Session
	for n := 1; ; n++ {
		raw, err := r.ReadBytes('\n')
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			if len(bytes.TrimSpace(raw)) > 0 {
				log.Printf("[session] %s: ignoring incomplete line %d", path, n)
			}
			break
		}
		var l line
		if jerr := json.Unmarshal(raw, &l); jerr != nil {
			log.Printf("[session] %s: skipping unreadable line %d: %v", path, n, jerr)
			l = line{}
		}

		switch l.Kind {
		case kindHeader:
			if s != nil {
				log.Printf("[session] %s: ignoring repeated header at line %d", path, n)
				break
			}
			if l.Header == nil || l.Header.Plan == nil {
				return nil, taskerrors.IO(taskerrors.ErrCheckpointCorrupt, "checkpoint header has no plan").
					WithContext(taskerrors.ContextPath, path)
			}
			h := l.Header
			s = &Session{
				ID:          h.ID,
				Participant: h.Participant,
				Name:        h.Name,
				Variant:     h.Variant,
				StartedAt:   h.StartedAt,
				EyeTracking: h.EyeTracking,
				Debug:       h.Debug,
				Plan:        h.Plan,
				Results:     make([]*TrialResult, 0, h.Plan.Len()),
			}
		case kindTrial:
			if s == nil || l.Trial == nil {
				break
			}
			if l.Trial.Index != len(s.Results) {
				log.Printf("[session] %s: skipping out-of-order trial line %d", path, n)
				break
			}
			s.Results = append(s.Results, l.Trial)
		case kindResume:
			if s != nil {
				s.EndedAt = nil
				s.Completed = false
				s.Aborted = false
				s.CrashReason = ""
			}
		case kindEnd:
			if s != nil && l.End != nil {
				end := l.End.EndedAt
				s.EndedAt = &end
				s.Completed = l.End.Completed
				s.Aborted = l.End.Aborted
				s.CrashReason = l.End.CrashReason
			}
		}
		if err != nil {
			break
		}
	}

	if s == nil {
		return nil, taskerrors.IO(taskerrors.ErrCheckpointCorrupt, "checkpoint has no header").
			WithContext(taskerrors.ContextPath, path)
	}
	return s, nil
}
