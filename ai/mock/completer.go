package mock

import (
	"context"
	"sync"

	"github.com/poiesic/mentorit/ai"
)

// Call records one Complete invocation.
type Call struct {
	System string
	User   string
}

// MockCompleter is a test double for ai.Completer.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, Complete echoes the user message.
	CompleteFunc func(ctx context.Context, system, user string) (string, error)

	mu    sync.Mutex
	calls []Call
}

var _ ai.Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a completer that echoes its input.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// WithCompleteFunc sets custom behavior.
func (m *MockCompleter) WithCompleteFunc(fn func(ctx context.Context, system, user string) (string, error)) *MockCompleter {
	m.CompleteFunc = fn
	return m
}

// Complete records the call and returns the scripted response.
func (m *MockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{System: system, User: user})
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, system, user)
	}
	return user, nil
}

// CallCount returns how many times Complete was called.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded calls.
func (m *MockCompleter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Reset clears recorded calls and custom behavior.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.CompleteFunc = nil
}
