package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/retry"
)

// MockNode is a testify mock implementing core.Node.
type MockNode struct {
	mock.Mock
	name string
}

func NewMockNode(name string) *MockNode { return &MockNode{name: name} }

func (m *MockNode) Name() string        { return m.name }
func (m *MockNode) Kind() core.NodeKind { return core.KindAgent }

func (m *MockNode) Execute(rc *core.RunContext, state *core.State) (core.Result, error) {
	args := m.Called(rc, state)
	return args.Get(0).(core.Result), args.Error(1)
}

// funcNode runs fn as its body and optionally declares an output key.
type funcNode struct {
	name string
	key  string
	fn   func(rc *core.RunContext, state *core.State) (core.Result, error)
}

func (f *funcNode) Name() string        { return f.name }
func (f *funcNode) Kind() core.NodeKind { return core.KindAgent }
func (f *funcNode) OutputKey() string   { return f.key }

func (f *funcNode) Execute(rc *core.RunContext, state *core.State) (core.Result, error) {
	return f.fn(rc, state)
}

// writer returns a node that writes value under key.
func writer(name, key string, value any) *funcNode {
	return &funcNode{name: name, key: key, fn: func(_ *core.RunContext, s *core.State) (core.Result, error) {
		s.Set(key, value)
		return core.Completed, nil
	}}
}

// recorder collects trace events.
type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Emit(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t core.EventType) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// instantRetry retries like the default policy without sleeping.
func instantRetry() *retry.Policy {
	return retry.New(retry.DefaultConfig, retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
}

// newRC builds a root context addressing node, recording into rec.
func newRC(t *testing.T, ctx context.Context, node string, rec *recorder, optFns ...func(o *core.RunContextOptions)) *core.RunContext {
	t.Helper()

	if ctx == nil {
		ctx = context.Background()
	}

	rc := core.NewRunContext(ctx, "run-1", append([]func(o *core.RunContextOptions){func(o *core.RunContextOptions) {
		o.Retry = instantRetry()
		if rec != nil {
			o.Tracer = rec
		}
	}}, optFns...)...)

	return rc.WithNode(node)
}
