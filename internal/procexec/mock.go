package procexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Call records one invocation on Mock
type Call struct {
	Method string
	Command
}

// Mock is a test double for Runner. Unset function fields fall back to
// success with empty output; LookPath succeeds unless the tool is listed in
// Missing.
type Mock struct {
	RunFunc   func(ctx context.Context, cmd Command) ([]byte, error)
	StartFunc func(ctx context.Context, cmd Command) (Process, error)
	// Missing lists tools LookPath reports as absent
	Missing map[string]bool

	mu    sync.Mutex
	calls []Call
}

// NewMock creates an empty Mock
func NewMock() *Mock {
	return &Mock{Missing: map[string]bool{}}
}

func (m *Mock) record(method string, cmd Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd.Args = append([]string(nil), cmd.Args...)
	m.calls = append(m.calls, Call{Method: method, Command: cmd})
}

// Run records the call and delegates to RunFunc
func (m *Mock) Run(ctx context.Context, cmd Command) ([]byte, error) {
	m.record("Run", cmd)
	if m.RunFunc == nil {
		return nil, nil
	}
	return m.RunFunc(ctx, cmd)
}

// Start records the call and delegates to StartFunc, defaulting to a
// process that exits immediately
func (m *Mock) Start(ctx context.Context, cmd Command) (Process, error) {
	m.record("Start", cmd)
	if m.StartFunc == nil {
		return &FakeProcess{}, nil
	}
	return m.StartFunc(ctx, cmd)
}

// LookPath reports tools as present unless listed in Missing
func (m *Mock) LookPath(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

// Calls returns a copy of the recorded calls
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CommandLines returns "name arg..." for every recorded call
func (m *Mock) CommandLines() []string {
	calls := m.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Find returns the first recorded call whose command line starts with prefix
func (m *Mock) Find(prefix string) (Call, bool) {
	for _, c := range m.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			return c, true
		}
	}
	return Call{}, false
}

// FakeProcess is a Process for tests. Block, when set, makes Wait block
// until Kill is called.
type FakeProcess struct {
	PID     int
	WaitErr error
	Block   chan struct{}

	mu     sync.Mutex
	killed bool
	waited bool
}

func (p *FakeProcess) Pid() int {
	return p.PID
}

func (p *FakeProcess) Wait() error {
	if p.Block != nil {
		<-p.Block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = true
	if p.killed {
		return errors.New("signal: killed")
	}
	return p.WaitErr
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.killed {
		p.killed = true
		if p.Block != nil {
			close(p.Block)
		}
	}
	return nil
}

// Killed reports whether Kill was called
func (p *FakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Waited reports whether Wait returned
func (p *FakeProcess) Waited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waited
}
