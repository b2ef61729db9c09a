package research

import (
	"context"
	"sync"
	"time"
)

type researchDelegate func(context.Context, *Request) (string, error)

type mockProvider struct {
	researchFn researchDelegate
	name       string

	calls int
	mux   sync.Mutex
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Research(ctx context.Context, req *Request) (string, error) {
	m.mux.Lock()
	m.calls++
	m.mux.Unlock()

	if m.researchFn != nil {
		return m.researchFn(ctx, req)
	}

	return "", nil
}

func (m *mockProvider) Calls() int {
	m.mux.Lock()
	defer m.mux.Unlock()

	return m.calls
}

// sleepRecorder records backoff delays without sleeping
type sleepRecorder struct {
	delays []time.Duration
	mux    sync.Mutex
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.delays = append(s.delays, d)

	return nil
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mux.Lock()
	defer s.mux.Unlock()

	return append([]time.Duration(nil), s.delays...)
}
