package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sig-0/dutyrates/research"
)

var errNotImplemented = errors.New("not implemented")

type researchDelegate func(context.Context, *research.Request) (*research.Result, error)

type mockResearcher struct {
	researchFn researchDelegate
	calls      atomic.Int64
}

func (m *mockResearcher) Research(ctx context.Context, req *research.Request) (*research.Result, error) {
	m.calls.Add(1)

	if m.researchFn != nil {
		return m.researchFn(ctx, req)
	}

	return nil, errNotImplemented
}

func (m *mockResearcher) Calls() int {
	return int(m.calls.Load())
}

type providerDelegate func(context.Context, *research.Request) (string, error)

type mockProvider struct {
	researchFn providerDelegate
	name       string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Research(ctx context.Context, req *research.Request) (string, error) {
	if m.researchFn != nil {
		return m.researchFn(ctx, req)
	}

	return "", nil
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	now time.Time
	mux sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mux.Lock()
	defer c.mux.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.now = c.now.Add(d)
}
