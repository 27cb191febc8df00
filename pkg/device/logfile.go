package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TSVLog is the experiment event log: one tab-separated line per event,
// "<unix seconds>\t<EVENT>\t<message>", written straight to the file.
type TSVLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// OpenTSVLog creates (or appends to) the log file, making its directory.
func OpenTSVLog(path string) (*TSVLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &TSVLog{f: f, path: path}, nil
}

// Path returns the log file path.
func (l *TSVLog) Path() string {
	return l.path
}

// Append implements EventLogger. Tabs and newlines in the message are
// replaced so every event stays on one line.
func (l *TSVLog) Append(at time.Time, event, message string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return Fail("event log closed")
	}
	clean := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(message)
	ts := float64(at.UnixNano()) / 1e9
	_, err := fmt.Fprintf(l.f, "%.6f\t%s\t%s\n", ts, event, clean)
	return FromError(err)
}

// Close implements EventLogger.
func (l *TSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
