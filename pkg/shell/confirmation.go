package shell

import "fmt"

// Prompter asks the operator yes/no questions, e.g. before resuming a
// crashed session. The interface enables mocking in tests.
type Prompter interface {
	// Confirm returns true only if the operator answers "yes" or "y".
	Confirm(message string) (bool, error)
}

// Confirm implements Prompter. An empty answer is No.
func (s *Shell) Confirm(message string) (bool, error) {
	return s.askBool(fmt.Sprintf("%s [y/N]: ", message))
}

// Ensure Shell implements Prompter at compile time.
var _ Prompter = (*Shell)(nil)

// MockPrompter is a test implementation of Prompter that returns
// predefined responses and records all prompts.
type MockPrompter struct {
	Response  bool
	Error     error
	Prompts   []string
	CallCount int
}

// NewMockPrompter creates a MockPrompter that returns response.
func NewMockPrompter(response bool) *MockPrompter {
	return &MockPrompter{Response: response}
}

// Confirm implements Prompter for testing.
func (m *MockPrompter) Confirm(message string) (bool, error) {
	m.CallCount++
	m.Prompts = append(m.Prompts, message)
	if m.Error != nil {
		return false, m.Error
	}
	return m.Response, nil
}

// LastPrompt returns the most recent prompt message, or empty string if none.
func (m *MockPrompter) LastPrompt() string {
	if len(m.Prompts) == 0 {
		return ""
	}
	return m.Prompts[len(m.Prompts)-1]
}

// Ensure MockPrompter implements Prompter at compile time.
var _ Prompter = (*MockPrompter)(nil)
