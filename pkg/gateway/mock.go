package gateway

import (
	"context"
	"sync"
)

// MockGateway is a scripted Gateway for tests. Each Invoke consumes the
// next queued outcome; when the script runs out the last outcome repeats.
type MockGateway struct {
	mu          sync.Mutex
	results     []*Result
	errs        []error
	Invocations []Invocation
}

// NewMockGateway creates an empty mock. Queue outcomes with QueueResult
// and QueueError in the order Invoke should return them.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// QueueResult appends a successful outcome to the script.
func (m *MockGateway) QueueResult(r *Result) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	m.errs = append(m.errs, nil)
	return m
}

// QueueError appends a failure outcome to the script.
func (m *MockGateway) QueueError(err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, nil)
	m.errs = append(m.errs, err)
	return m
}

// Invoke records the invocation and returns the next scripted outcome.
func (m *MockGateway) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}

	m.Invocations = append(m.Invocations, inv)

	if len(m.results) == 0 {
		return &Result{Transcript: "ok"}, nil
	}
	idx := len(m.Invocations) - 1
	if idx >= len(m.results) {
		idx = len(m.results) - 1
	}
	if m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	return m.results[idx], nil
}

// Calls returns how many invocations the mock has served.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Invocations)
}
