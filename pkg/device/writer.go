package device

import (
	"io"
	"os"
	"sync"
)

// WriterMarker sends each code as a single byte to a writer: a serial or
// parallel port device file, or a plain file for dry runs.
type WriterMarker struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewWriterMarker wraps w.
func NewWriterMarker(w io.Writer) *WriterMarker {
	m := &WriterMarker{w: w}
	if c, ok := w.(io.Closer); ok {
		m.c = c
	}
	return m
}

// OpenPortMarker opens a device path for writing.
func OpenPortMarker(path string) (*WriterMarker, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewWriterMarker(f), nil
}

// Send implements MarkerSender.
func (m *WriterMarker) Send(code byte) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.w.Write([]byte{code})
	if err != nil {
		return FromError(err)
	}
	if n != 1 {
		return Fail("short write to marker port")
	}
	return Ok()
}

// Close closes the underlying port if it is closable.
func (m *WriterMarker) Close() error {
	if m.c == nil {
		return nil
	}
	return m.c.Close()
}
