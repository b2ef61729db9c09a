package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/dutyrates/storage/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "rates.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func fragment(code string, class types.FieldClass) *types.Fragment {
	return &types.Fragment{
		Key: types.Key{
			Code:        code,
			Origin:      "CN",
			Destination: "US",
			Class:       class,
		},
		BaseRate:         types.RateOf(2.5),
		PreferentialRate: types.ConfirmedZero(),
		Source:           types.SourceExact,
		Confidence:       100,
		VerifiedAt:       time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	t.Parallel()

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		s := newTestStorage(t)

		f, err := s.Get(context.Background(), fragment("85343100", types.FieldClassStable).Key)
		require.NoError(t, err)

		assert.Nil(t, f)
	})

	t.Run("stable fragment", func(t *testing.T) {
		t.Parallel()

		var (
			s        = newTestStorage(t)
			expected = fragment("85343100", types.FieldClassStable)
		)

		require.NoError(t, s.Put(context.Background(), expected, 0))

		got, err := s.Get(context.Background(), expected.Key)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, expected.BaseRate, got.BaseRate)
		assert.Equal(t, expected.PreferentialRate, got.PreferentialRate)
		assert.Equal(t, expected.VerifiedAt, got.VerifiedAt)
		assert.Nil(t, got.ExpiresAt())
	})

	t.Run("overlay fragment", func(t *testing.T) {
		t.Parallel()

		var (
			s        = newTestStorage(t)
			expected = fragment("85343100", types.FieldClassOverlay)
		)

		expected.BaseRate = types.Unknown()
		expected.Overlays = map[string]types.Rate{
			"section_301": types.RateOf(25),
			"section_232": types.ConfirmedZero(),
		}
		expected.OverlaysKnown = true

		require.NoError(t, s.Put(context.Background(), expected, 24*time.Hour))

		got, err := s.Get(context.Background(), expected.Key)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.True(t, got.BaseRate.IsUnknown())
		assert.Equal(t, expected.Overlays, got.Overlays)
		assert.True(t, got.OverlaysKnown)
		assert.Equal(t, 24*time.Hour, got.TTL)
	})
}

func TestStorage_GetByPrefix(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)

	for _, code := range []string{"85343900", "85343100", "85340000"} {
		require.NoError(t, s.Put(context.Background(), fragment(code, types.FieldClassStable), 0))
	}

	results, err := s.GetByPrefix(context.Background(), types.Prefix{
		CodePrefix:  "853431",
		Origin:      "CN",
		Destination: "US",
		Class:       types.FieldClassStable,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "85343100", results[0].Key.Code)

	results, err = s.GetByPrefix(context.Background(), types.Prefix{
		CodePrefix:  "8534",
		Origin:      "CN",
		Destination: "US",
		Class:       types.FieldClassStable,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "85340000", results[0].Key.Code)
}
