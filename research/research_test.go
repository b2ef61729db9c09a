package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/dutyrates/storage/types"
)

const validResponse = `{
  "description": "printed circuits",
  "base_rate": {"rate": 2.65, "justification": "HTSUS 8534.00.00", "confidence": "high"},
  "overlays": {"Section 301": {"rate": 25, "confidence": "medium"}},
  "confidence": "high"
}`

func testRequest(t *testing.T) *Request {
	t.Helper()

	code, err := types.ParseCode("8534.31")
	require.NoError(t, err)

	return &Request{
		Code:        code,
		Origin:      "CN",
		Destination: "US",
	}
}

func rateLimited() error {
	return fmt.Errorf("status 529: %w", types.ErrRateLimited)
}

func TestChain_RetryThenSuccess(t *testing.T) {
	t.Parallel()

	var (
		sleeper = &sleepRecorder{}
		attempt = 0
	)

	primary := &mockProvider{
		name: "primary",
		researchFn: func(_ context.Context, _ *Request) (string, error) {
			attempt++

			if attempt <= 2 {
				return "", rateLimited()
			}

			return validResponse, nil
		},
	}

	secondary := &mockProvider{name: "secondary"}

	chain := NewChain(
		[]Provider{primary, secondary},
		WithSleep(sleeper.Sleep),
	)

	result, err := chain.Research(context.Background(), testRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "primary", result.Provider)
	assert.Equal(t, types.RateOf(2.65), result.Base.Rate)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
}

func TestChain_FailOver(t *testing.T) {
	t.Parallel()

	t.Run("non-recoverable error fails over immediately", func(t *testing.T) {
		t.Parallel()

		sleeper := &sleepRecorder{}

		primary := &mockProvider{
			name: "primary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return "", errors.New("unauthorized")
			},
		}

		secondary := &mockProvider{
			name: "secondary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return validResponse, nil
			},
		}

		result, err := NewChain(
			[]Provider{primary, secondary},
			WithSleep(sleeper.Sleep),
		).Research(context.Background(), testRequest(t))
		require.NoError(t, err)

		assert.Equal(t, "secondary", result.Provider)
		assert.Equal(t, 1, primary.Calls())
		assert.Empty(t, sleeper.Delays())
	})

	t.Run("exhausted retries fail over", func(t *testing.T) {
		t.Parallel()

		sleeper := &sleepRecorder{}

		primary := &mockProvider{
			name: "primary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return "", rateLimited()
			},
		}

		secondary := &mockProvider{
			name: "secondary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return validResponse, nil
			},
		}

		result, err := NewChain(
			[]Provider{primary, secondary},
			WithSleep(sleeper.Sleep),
		).Research(context.Background(), testRequest(t))
		require.NoError(t, err)

		assert.Equal(t, "secondary", result.Provider)
		assert.Equal(t, 3, primary.Calls())
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
	})

	t.Run("unparseable response fails over", func(t *testing.T) {
		t.Parallel()

		primary := &mockProvider{
			name: "primary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return "I'm sorry, I can't help with that.", nil
			},
		}

		secondary := &mockProvider{
			name: "secondary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return validResponse, nil
			},
		}

		result, err := NewChain([]Provider{primary, secondary}).Research(context.Background(), testRequest(t))
		require.NoError(t, err)

		assert.Equal(t, "secondary", result.Provider)
	})

	t.Run("every provider fails", func(t *testing.T) {
		t.Parallel()

		primary := &mockProvider{
			name: "primary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return "", errors.New("bad gateway")
			},
		}

		secondary := &mockProvider{
			name: "secondary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return "{{{", nil
			},
		}

		_, err := NewChain([]Provider{primary, secondary}).Research(context.Background(), testRequest(t))
		require.ErrorIs(t, err, types.ErrProviderUnavailable)
		assert.ErrorIs(t, err, types.ErrParseFailure)
	})

	t.Run("no providers", func(t *testing.T) {
		t.Parallel()

		_, err := NewChain(nil).Research(context.Background(), testRequest(t))
		assert.ErrorIs(t, err, types.ErrProviderUnavailable)
	})
}

func TestChain_Deadline(t *testing.T) {
	t.Parallel()

	t.Run("no retry past the deadline", func(t *testing.T) {
		t.Parallel()

		sleeper := &sleepRecorder{}

		primary := &mockProvider{
			name: "primary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return "", rateLimited()
			},
		}

		secondary := &mockProvider{name: "secondary"}

		ctx, cancelFn := context.WithDeadline(context.Background(), time.Now().Add(time.Hour))
		defer cancelFn()

		deadline, _ := ctx.Deadline()

		// The clock sits one second before the deadline, so a 2s backoff cannot fit
		chain := NewChain(
			[]Provider{primary, secondary},
			WithSleep(sleeper.Sleep),
			WithClock(func() time.Time {
				return deadline.Add(-time.Second)
			}),
		)

		_, err := chain.Research(ctx, testRequest(t))
		require.ErrorIs(t, err, types.ErrTimeout)

		assert.Equal(t, 1, primary.Calls())
		assert.Equal(t, 0, secondary.Calls())
		assert.Empty(t, sleeper.Delays())
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		primary := &mockProvider{name: "primary"}

		ctx, cancelFn := context.WithCancel(context.Background())
		cancelFn()

		_, err := NewChain([]Provider{primary}).Research(ctx, testRequest(t))
		require.ErrorIs(t, err, types.ErrTimeout)

		assert.Equal(t, 0, primary.Calls())
	})

	t.Run("per-attempt timeout", func(t *testing.T) {
		t.Parallel()

		primary := &mockProvider{
			name: "primary",
			researchFn: func(ctx context.Context, _ *Request) (string, error) {
				<-ctx.Done()

				return "", ctx.Err()
			},
		}

		secondary := &mockProvider{
			name: "secondary",
			researchFn: func(_ context.Context, _ *Request) (string, error) {
				return validResponse, nil
			},
		}

		policy := DefaultPolicy()
		policy.AttemptTimeout = 10 * time.Millisecond

		result, err := NewChain(
			[]Provider{primary, secondary},
			WithPolicy(policy),
		).Research(context.Background(), testRequest(t))
		require.NoError(t, err)

		assert.Equal(t, "secondary", result.Provider)
	})
}

func TestPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
}

func TestRequest_UserPrompt(t *testing.T) {
	t.Parallel()

	req := testRequest(t)
	req.ProductContext = "rigid multilayer boards"
	req.Policies = []string{"Section 301"}

	prompt := req.UserPrompt()

	assert.Contains(t, prompt, "85343100 (8534.31.00)")
	assert.Contains(t, prompt, "Origin country: CN")
	assert.Contains(t, prompt, "rigid multilayer boards")
	assert.Contains(t, prompt, "Section 301")
	assert.True(t, strings.HasSuffix(prompt, OutputSchema))
}
