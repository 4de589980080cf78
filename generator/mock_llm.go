package generator

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockLLM streams scripted replies without calling a backend, for local
// debugging and tests.
type MockLLM struct {
	// Replies holds the fragments of each call's reply; the last script is
	// reused once exhausted. With no script the beat is echoed word by word.
	Replies [][]string
	// Delay is slept before each fragment.
	Delay time.Duration
	// Err, when set, is sent after the reply's fragments.
	Err error
	// StartErr, when set, fails the call before any streaming.
	StartErr error

	mu      sync.Mutex
	calls   int
	prompts []Prompt
}

func (m *MockLLM) Stream(ctx context.Context, prompt Prompt) (<-chan Token, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.StartErr != nil {
		return nil, m.StartErr
	}

	fragments := m.script(call, prompt)
	out := make(chan Token)
	go func() {
		defer close(out)
		for _, f := range fragments {
			if m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- Token{Text: f}:
			case <-ctx.Done():
				return
			}
		}
		if m.Err != nil {
			select {
			case out <- Token{Err: m.Err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (m *MockLLM) script(call int, prompt Prompt) []string {
	if len(m.Replies) > 0 {
		if call >= len(m.Replies) {
			call = len(m.Replies) - 1
		}
		return m.Replies[call]
	}
	beat := ""
	for _, line := range strings.Split(prompt.User, "\n") {
		if strings.HasPrefix(line, "BEAT TO EXPAND: ") {
			beat = strings.TrimPrefix(line, "BEAT TO EXPAND: ")
			break
		}
	}
	var out []string
	for _, w := range strings.Fields(beat) {
		out = append(out, " "+w)
	}
	return out
}

// Calls reports how many times Stream was called.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns every prompt received, in call order.
func (m *MockLLM) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}
