package backend

import (
	"context"
	"fmt"
	"sync"
)

// MockGenerator implements Generator for testing. Responses are consumed in
// order; GenerateFunc, when set, takes over entirely.
type MockGenerator struct {
	ModelName    string
	Responses    []*GenerationResult
	Errs         []error
	GenerateFunc func(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

	mu    sync.Mutex
	calls int
	reqs  []GenerationRequest
}

var _ Generator = (*MockGenerator)(nil)

func (m *MockGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	if call < len(m.Errs) && m.Errs[call] != nil {
		return nil, m.Errs[call]
	}
	if call < len(m.Responses) {
		return m.Responses[call], nil
	}
	return nil, fmt.Errorf("mock generator exhausted after %d calls", call)
}

func (m *MockGenerator) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Calls returns how many times Generate was invoked.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request seen so far.
func (m *MockGenerator) Requests() []GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GenerationRequest, len(m.reqs))
	copy(out, m.reqs)
	return out
}
