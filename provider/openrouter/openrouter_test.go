package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/storage/types"
)

func newRequest() *research.Request {
	return &research.Request{
		Code:        "85343100",
		Origin:      "CN",
		Destination: "US",
	}
}

func TestProvider_New(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	assert.ErrorIs(t, err, errEmptyAPIKey)
}

func TestProvider_Research(t *testing.T) {
	t.Parallel()

	t.Run("valid response", func(t *testing.T) {
		t.Parallel()

		var received completionRequest

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"base_rate\": 2.65}"}}]}`)
		}))
		t.Cleanup(srv.Close)

		p, err := New("secret", WithURL(srv.URL), WithModel("test/model"))
		require.NoError(t, err)

		out, err := p.Research(context.Background(), newRequest())
		require.NoError(t, err)

		assert.Equal(t, `{"base_rate": 2.65}`, out)
		assert.Equal(t, "test/model", received.Model)
		require.Len(t, received.Messages, 2)
		assert.Equal(t, "system", received.Messages[0].Role)
		assert.Contains(t, received.Messages[1].Content, "8534.31.00")
	})

	t.Run("status mapping", func(t *testing.T) {
		t.Parallel()

		testTable := []struct {
			name        string
			status      int
			rateLimited bool
		}{
			{"too many requests", http.StatusTooManyRequests, true},
			{"unavailable", http.StatusServiceUnavailable, true},
			{"overloaded", 529, true},
			{"unauthorized", http.StatusUnauthorized, false},
			{"internal error", http.StatusInternalServerError, false},
		}

		for _, testCase := range testTable {
			t.Run(testCase.name, func(t *testing.T) {
				t.Parallel()

				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(testCase.status)
				}))
				t.Cleanup(srv.Close)

				p, err := New("secret", WithURL(srv.URL))
				require.NoError(t, err)

				_, err = p.Research(context.Background(), newRequest())
				require.Error(t, err)

				assert.Equal(t, testCase.rateLimited, errors.Is(err, types.ErrRateLimited))
			})
		}
	})

	t.Run("no choices", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `{"choices":[]}`)
		}))
		t.Cleanup(srv.Close)

		p, err := New("secret", WithURL(srv.URL))
		require.NoError(t, err)

		_, err = p.Research(context.Background(), newRequest())
		assert.ErrorIs(t, err, errNoChoices)
	})

	t.Run("error payload", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprint(w, `{"error":{"message":"model not found"}}`)
		}))
		t.Cleanup(srv.Close)

		p, err := New("secret", WithURL(srv.URL))
		require.NoError(t, err)

		_, err = p.Research(context.Background(), newRequest())
		assert.ErrorIs(t, err, errUnexpectedAPI)
	})
}
