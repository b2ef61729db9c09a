package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/dutyrates/cache"
	"github.com/sig-0/dutyrates/storage/memory"
	"github.com/sig-0/dutyrates/storage/mock"
	"github.com/sig-0/dutyrates/storage/types"
)

func seed(t *testing.T, s *memory.Storage, code string, base float64) {
	t.Helper()

	require.NoError(t, s.Put(context.Background(), &types.Fragment{
		Key: types.Key{
			Code:        code,
			Origin:      "MX",
			Destination: "US",
			Class:       types.FieldClassStable,
		},
		BaseRate:   types.RateOf(base),
		Source:     types.SourceExact,
		Confidence: 100,
		VerifiedAt: time.Now(),
	}, 0))
}

func request(t *testing.T, raw string) Request {
	t.Helper()

	code, err := types.ParseCode(raw)
	require.NoError(t, err)

	return Request{
		Code:        code,
		Origin:      "MX",
		Destination: "US",
		Class:       types.FieldClassStable,
	}
}

func TestResolver_Ladder(t *testing.T) {
	t.Parallel()

	t.Run("exact canonical", func(t *testing.T) {
		t.Parallel()

		s := memory.NewStorage()
		seed(t, s, "85343100", 2.5)
		seed(t, s, "85343900", 9)

		match, ok := New(cache.New(s)).Resolve(context.Background(), request(t, "8534310000"))
		require.True(t, ok)

		assert.Equal(t, types.SourceExact, match.Source)
		assert.Equal(t, "85343100", match.MatchedCode)
		assert.Equal(t, 100, match.Confidence())
		assert.Equal(t, types.RateOf(2.5), match.Entry.Fragment.BaseRate)
	})

	t.Run("exact grouped", func(t *testing.T) {
		t.Parallel()

		s := memory.NewStorage()
		seed(t, s, "8534.31.00", 2.5)

		match, ok := New(cache.New(s)).Resolve(context.Background(), request(t, "85343100"))
		require.True(t, ok)

		assert.Equal(t, types.SourceExact, match.Source)
		assert.Equal(t, "85343100", match.MatchedCode)
	})

	t.Run("fuzzy picks ascending first", func(t *testing.T) {
		t.Parallel()

		s := memory.NewStorage()
		seed(t, s, "85343109", 4)
		seed(t, s, "85343105", 3)
		seed(t, s, "85343900", 9)

		match, ok := New(cache.New(s)).Resolve(context.Background(), request(t, "85343100"))
		require.True(t, ok)

		assert.Equal(t, types.SourceFuzzy, match.Source)
		assert.Equal(t, "85343105", match.MatchedCode)
		assert.Equal(t, 75, match.Confidence())
	})

	t.Run("fuzzy across representations", func(t *testing.T) {
		t.Parallel()

		s := memory.NewStorage()
		seed(t, s, "85343109", 4)
		seed(t, s, "8534.31.02", 3)

		match, ok := New(cache.New(s)).Resolve(context.Background(), request(t, "85343100"))
		require.True(t, ok)

		assert.Equal(t, types.SourceFuzzy, match.Source)
		assert.Equal(t, "85343102", match.MatchedCode)
	})

	t.Run("family", func(t *testing.T) {
		t.Parallel()

		s := memory.NewStorage()
		seed(t, s, "85343900", 9)
		seed(t, s, "85343200", 8)
		seed(t, s, "85349000", 1)

		match, ok := New(cache.New(s)).Resolve(context.Background(), request(t, "85343100"))
		require.True(t, ok)

		assert.Equal(t, types.SourceFamily, match.Source)
		assert.Equal(t, "85343200", match.MatchedCode)
		assert.Equal(t, 50, match.Confidence())
	})

	t.Run("miss", func(t *testing.T) {
		t.Parallel()

		s := memory.NewStorage()
		seed(t, s, "85349000", 1)

		_, ok := New(cache.New(s)).Resolve(context.Background(), request(t, "85343100"))
		assert.False(t, ok)
	})

	t.Run("lane isolation", func(t *testing.T) {
		t.Parallel()

		s := memory.NewStorage()
		seed(t, s, "85343100", 2.5)

		req := request(t, "85343100")
		req.Origin = "CN"

		_, ok := New(cache.New(s)).Resolve(context.Background(), req)
		assert.False(t, ok)
	})
}

func TestResolver_Sequential(t *testing.T) {
	t.Parallel()

	var calls []string

	s := &mock.Storage{
		GetFn: func(_ context.Context, key types.Key) (*types.Fragment, error) {
			calls = append(calls, "get:"+key.Code)

			return nil, nil //nolint:nilnil // miss
		},
		GetByPrefixFn: func(_ context.Context, prefix types.Prefix) ([]*types.Fragment, error) {
			calls = append(calls, "prefix:"+prefix.CodePrefix)

			return nil, nil
		},
	}

	_, ok := New(cache.New(s)).Resolve(context.Background(), request(t, "85343100"))
	require.False(t, ok)

	assert.Equal(t, []string{
		"get:85343100",
		"get:8534.31.00",
		"prefix:8534310",
		"prefix:8534.31.0",
		"prefix:85343",
		"prefix:8534.3",
	}, calls)
}

func TestMatch_ConfidenceCeiling(t *testing.T) {
	t.Parallel()

	match := &Match{
		Entry: &cache.Entry{
			Fragment: &types.Fragment{Confidence: 60},
		},
		Source: types.SourceFuzzy,
	}

	assert.Equal(t, 60, match.Confidence())

	match.Entry.Fragment.Confidence = 100
	assert.Equal(t, 75, match.Confidence())
}
