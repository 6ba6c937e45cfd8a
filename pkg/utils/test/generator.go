package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/frames/pkg/agent"
	"github.com/papercomputeco/frames/pkg/generator"
	"github.com/papercomputeco/frames/pkg/identity"
)

// MockGenerator is a test generator that returns predictable content.
type MockGenerator struct {
	mu sync.Mutex

	// Content overrides the generated content per node path.
	Content map[string]string

	// Failures are returned in order, one per call, before any call succeeds.
	Failures []error

	// Gate, when set, blocks every call until it is closed or receives.
	Gate chan struct{}

	// Started receives one value per call that has begun, if set.
	Started chan struct{}

	calls atomic.Int64
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Content: make(map[string]string)}
}

// Calls returns how many times Generate was invoked.
func (m *MockGenerator) Calls() int {
	return int(m.calls.Load())
}

// FailNext queues errs to be returned by the next calls.
func (m *MockGenerator) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, errs...)
}

func (m *MockGenerator) Generate(ctx context.Context, nc generator.NodeContext, ag agent.Agent) ([]byte, error) {
	m.calls.Add(1)
	if m.Started != nil {
		select {
		case m.Started <- struct{}{}:
		default:
		}
	}

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Failures) > 0 {
		err := m.Failures[0]
		m.Failures = m.Failures[1:]
		return nil, err
	}
	if c, ok := m.Content[nc.Path]; ok {
		return []byte(c), nil
	}
	return fmt.Appendf(nil, "%s on %s", ag.ID, nc.Path), nil
}

// MockCollector builds contexts without touching the filesystem.
type MockCollector struct {
	Err error
}

func (c *MockCollector) Collect(_ context.Context, node identity.NodeID, source string) (generator.NodeContext, error) {
	if c.Err != nil {
		return generator.NodeContext{}, c.Err
	}
	path := source
	if path == "" {
		path = fmt.Sprintf("node-%x", node[:4])
	}
	return generator.NodeContext{NodeID: node, Path: path}, nil
}
