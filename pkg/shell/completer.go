package shell

import (
	"sort"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// Completer completes the answer to the current intake question: known
// participant IDs for the ID prompt, yes/no for the toggles.
type Completer struct {
	mu         sync.Mutex
	candidates []string
}

// Ensure Completer implements readline.AutoCompleter at compile time.
var _ readline.AutoCompleter = (*Completer)(nil)

// SetCandidates replaces the completion list.
func (c *Completer) SetCandidates(words []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append([]string(nil), words...)
	sort.Strings(c.candidates)
}

// Do implements readline.AutoCompleter. It returns the suffixes of every
// candidate that starts with the text before the cursor.
func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, length int) {
	if pos > len(line) {
		pos = len(line)
	}
	if pos < 0 {
		return nil, 0
	}
	prefix := strings.TrimLeft(string(line[:pos]), " \t")

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.candidates {
		if strings.HasPrefix(strings.ToLower(w), strings.ToLower(prefix)) && len(w) > len(prefix) {
			newLine = append(newLine, []rune(w[len(prefix):]))
		}
	}
	return newLine, len([]rune(prefix))
}
