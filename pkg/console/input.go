package console

import (
	"io"
	"log"
	"os"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/renee-tung/WMInstructionTask/pkg/device"
)

// Input reads key presses from a terminal and stamps them with the session
// clock at arrival.
type Input struct {
	clock device.Clock

	mu     sync.Mutex
	events []device.KeyEvent

	restore func() error
	done    chan struct{}
}

var _ device.Input = (*Input)(nil)

// OpenInput puts f in raw mode and starts reading it. Close restores the
// terminal.
func OpenInput(f *os.File, clock device.Clock) (*Input, error) {
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	in := NewInput(f, clock)
	in.restore = func() error { return term.Restore(fd, state) }
	return in, nil
}

// NewInput reads key presses from r, which must already deliver bytes
// unbuffered.
func NewInput(r io.Reader, clock device.Clock) *Input {
	in := &Input{clock: clock, done: make(chan struct{})}
	go in.read(r)
	return in
}

func (in *Input) read(r io.Reader) {
	defer close(in.done)
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			at := in.clock.Now()
			keys := decodeKeys(buf[:n])
			in.mu.Lock()
			for _, k := range keys {
				in.events = append(in.events, device.KeyEvent{Key: k, At: at})
			}
			in.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[console] keyboard read stopped: %v", err)
			}
			return
		}
	}
}

// Poll implements device.Input.
func (in *Input) Poll(keys ...string) []device.KeyEvent {
	in.mu.Lock()
	defer in.mu.Unlock()
	var out []device.KeyEvent
	kept := in.events[:0]
	for _, ev := range in.events {
		if contains(keys, ev.Key) {
			out = append(out, ev)
		} else {
			kept = append(kept, ev)
		}
	}
	in.events = kept
	return out
}

// Discard implements device.Input.
func (in *Input) Discard(keys ...string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(keys) == 0 {
		in.events = in.events[:0]
		return
	}
	kept := in.events[:0]
	for _, ev := range in.events {
		if !contains(keys, ev.Key) {
			kept = append(kept, ev)
		}
	}
	in.events = kept
}

// Close restores the terminal. The reader goroutine ends with the
// process or when the reader reports EOF.
func (in *Input) Close() error {
	if in.restore != nil {
		return in.restore()
	}
	return nil
}

// decodeKeys maps raw terminal bytes to key names: arrows become
// "up"/"down"/"left"/"right", and letters are lower-cased.
func decodeKeys(b []byte) []string {
	var keys []string
	for len(b) > 0 {
		switch {
		case b[0] == 0x1b && len(b) >= 3 && (b[1] == '[' || b[1] == 'O'):
			if k, ok := arrowKeys[b[2]]; ok {
				keys = append(keys, k)
			}
			b = b[3:]
		case b[0] == 0x1b:
			keys = append(keys, "escape")
			b = b[1:]
		case b[0] == 0x03:
			// Raw mode turns Ctrl+C into a byte instead of SIGINT.
			keys = append(keys, "escape")
			b = b[1:]
		case b[0] == ' ':
			keys = append(keys, "space")
			b = b[1:]
		case b[0] == '\r' || b[0] == '\n':
			keys = append(keys, "return")
			b = b[1:]
		case b[0] == 0x7f || b[0] == 0x08:
			keys = append(keys, "backspace")
			b = b[1:]
		case b[0] == '\t':
			keys = append(keys, "tab")
			b = b[1:]
		default:
			r, size := utf8.DecodeRune(b)
			if unicode.IsPrint(r) {
				keys = append(keys, string(unicode.ToLower(r)))
			}
			b = b[size:]
		}
	}
	return keys
}

var arrowKeys = map[byte]string{
	'A': "up",
	'B': "down",
	'C': "right",
	'D': "left",
}

func contains(keys []string, k string) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
