package console

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/device"
	"github.com/renee-tung/WMInstructionTask/pkg/sim"
)

func testDisplay(out io.Writer) (*Display, *sim.Clock) {
	clock := &sim.Clock{}
	return NewDisplay(out, clock, config.DefaultLayout(), 80, 24, 10*time.Millisecond), clock
}

func rowOf(frame, substr string) int {
	for i, line := range strings.Split(frame, "\n") {
		if strings.Contains(line, substr) {
			return i
		}
	}
	return -1
}

// -----------------------------------------------------------------------------
// Display
// -----------------------------------------------------------------------------

func TestDisplay_Text(t *testing.T) {
	d, _ := testDisplay(io.Discard)
	layout := config.DefaultLayout()

	d.DrawText(layout.Text(), "Wait for start!", device.TextNormal)
	frame := d.Frame()

	row := rowOf(frame, "Wait for start!")
	if row < 0 {
		t.Fatalf("text not drawn:\n%s", frame)
	}
	if row < 8 || row > 14 {
		t.Errorf("text row = %d, want near the middle", row)
	}
	line := strings.Split(frame, "\n")[row]
	left := strings.Index(line, "Wait")
	right := len(line) - left - len("Wait for start!")
	if diff := left - right; diff < -1 || diff > 1 {
		t.Errorf("text not centered: %d left, %d right", left, right)
	}
}

func TestDisplay_TextWrapsLongInstruction(t *testing.T) {
	d, _ := testDisplay(io.Discard)
	layout := config.DefaultLayout()

	long := strings.Repeat("Which of the two cars would be more expensive to buy new? ", 3)
	d.DrawText(layout.Text(), long, device.TextNormal)
	frame := d.Frame()

	lines := 0
	for _, line := range strings.Split(frame, "\n") {
		if strings.TrimSpace(line) != "" {
			lines++
		}
		if len([]rune(line)) > 80 {
			t.Errorf("line wider than the grid: %q", line)
		}
	}
	if lines < 3 {
		t.Errorf("long text drawn on %d lines:\n%s", lines, frame)
	}
}

func TestDisplay_Fixation(t *testing.T) {
	d, _ := testDisplay(io.Discard)
	d.DrawFixation(config.DefaultLayout().Center())

	if n := strings.Count(d.Frame(), "+"); n != 1 {
		t.Errorf("fixation drawn %d times", n)
	}
	if row := rowOf(d.Frame(), "+"); row < 10 || row > 13 {
		t.Errorf("fixation row = %d", row)
	}
}

func TestDisplay_Image(t *testing.T) {
	d, _ := testDisplay(io.Discard)
	d.DrawImage(config.DefaultLayout().Center(), "stimuli/Cars/Pair3/car_a.jpg")
	frame := d.Frame()

	if !strings.Contains(frame, "car_a.jpg") {
		t.Errorf("image name missing:\n%s", frame)
	}
	if strings.Contains(frame, "Pair3") {
		t.Error("image should show the base name only")
	}
	if !strings.Contains(frame, "╭") || !strings.Contains(frame, "╯") {
		t.Errorf("image frame missing:\n%s", frame)
	}
}

func TestDisplay_Slider(t *testing.T) {
	layout := config.DefaultLayout()
	r := layout.Slider()

	tests := []struct {
		name     string
		position float64
		want     string // relative knob placement
	}{
		{"center", 0, "center"},
		{"left end", -0.5, "left"},
		{"right end", 0.5, "right"},
		{"clamped", 3, "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := testDisplay(io.Discard)
			d.DrawSlider(r, tt.position, 0.5)
			line := strings.Split(d.Frame(), "\n")[rowOf(d.Frame(), "●")]
			runes := []rune(line)

			knob, first, last := -1, -1, -1
			for i, c := range runes {
				switch c {
				case '●':
					knob = i
				case '├':
					first = i
				case '┤':
					last = i
				}
			}
			switch tt.want {
			case "center":
				if first < 0 || last < 0 || knob <= first || knob >= last {
					t.Errorf("knob at %d, track %d..%d", knob, first, last)
				}
				mid := (first + last) / 2
				if knob < mid-1 || knob > mid+1 {
					t.Errorf("knob at %d, want near %d", knob, mid)
				}
			case "left":
				if first >= 0 || last < 0 {
					t.Errorf("knob should cover the left end: %q", line)
				}
			case "right":
				if last >= 0 || first < 0 {
					t.Errorf("knob should cover the right end: %q", line)
				}
			}
		})
	}
}

func TestDisplay_Flash(t *testing.T) {
	d, _ := testDisplay(io.Discard)
	d.DrawFlash(config.DefaultLayout().Photodiode())

	lines := strings.Split(strings.TrimRight(d.Frame(), "\n"), "\n")
	last := []rune(lines[len(lines)-1])
	if last[len(last)-1] != '█' {
		t.Errorf("flash not in the bottom-right corner: %q", string(last))
	}
	if []rune(lines[0])[79] == '█' {
		t.Error("flash reached the top row")
	}

	d.Clear()
	if strings.Contains(d.Frame(), "█") {
		t.Error("Clear left the flash drawn")
	}
}

func TestDisplay_PresentPacesAndSkipsUnchanged(t *testing.T) {
	var out bytes.Buffer
	d, clock := testDisplay(&out)

	d.DrawFixation(config.DefaultLayout().Center())
	first := d.Present()
	written := out.Len()
	if written == 0 {
		t.Fatal("first frame not written")
	}
	if !strings.HasPrefix(out.String(), hideCursor+clearScreen) {
		t.Error("first frame should clear the screen")
	}

	second := d.Present()
	if second-first != 10*time.Millisecond {
		t.Errorf("frame interval = %v, want 10ms", second-first)
	}
	if out.Len() != written {
		t.Error("unchanged frame was rewritten")
	}

	clock.Advance(25 * time.Millisecond)
	third := d.Present()
	if third != second+25*time.Millisecond {
		t.Errorf("late frame onset = %v, want %v", third, second+25*time.Millisecond)
	}

	d.Clear()
	d.Present()
	if out.Len() == written {
		t.Error("changed frame was not written")
	}

	d.Close()
	if !strings.HasSuffix(out.String(), showCursor+"\r\n") {
		t.Error("Close should show the cursor")
	}
}

// -----------------------------------------------------------------------------
// Input
// -----------------------------------------------------------------------------

func TestDecodeKeys(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []string
	}{
		{"arrows", []byte("\x1b[A\x1b[B\x1b[C\x1b[D"), []string{"up", "down", "right", "left"}},
		{"application arrows", []byte("\x1bOA"), []string{"up"}},
		{"escape", []byte{0x1b}, []string{"escape"}},
		{"ctrl-c", []byte{0x03}, []string{"escape"}},
		{"space and return", []byte(" \r"), []string{"space", "return"}},
		{"letters", []byte("PcQ"), []string{"p", "c", "q"}},
		{"unknown sequence", []byte("\x1b[Z"), nil},
		{"control byte", []byte{0x01}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeKeys(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("decodeKeys = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("key %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInput_PollAndDiscard(t *testing.T) {
	clock := &sim.Clock{}
	clock.Advance(time.Second)
	in := NewInput(strings.NewReader("c\x1b[Ap\x1b[B"), clock)
	<-in.done

	if got := in.Poll("up", "down"); len(got) != 2 || got[0].Key != "up" || got[1].Key != "down" {
		t.Fatalf("Poll(up, down) = %+v", got)
	}
	if got := in.Poll("up"); len(got) != 0 {
		t.Errorf("presses returned twice: %+v", got)
	}

	in.Discard("p")
	got := in.Poll("c", "p")
	if len(got) != 1 || got[0].Key != "c" {
		t.Fatalf("after Discard(p), Poll = %+v", got)
	}
	if got[0].At != time.Second {
		t.Errorf("press stamped at %v, want 1s", got[0].At)
	}
	if err := in.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestInput_DiscardAll(t *testing.T) {
	in := NewInput(strings.NewReader("abc"), &sim.Clock{})
	<-in.done

	in.Discard()
	if got := in.Poll("a", "b", "c"); len(got) != 0 {
		t.Errorf("Discard() kept %+v", got)
	}
}
