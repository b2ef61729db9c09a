package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/dutyrates/storage/types"
)

func TestStorage_Keys(t *testing.T) {
	t.Parallel()

	s := NewStorage(nil, WithNamespace("test"))

	key := types.Key{
		Code:        "85343100",
		Origin:      "CN",
		Destination: "US",
		Class:       types.FieldClassOverlay,
	}

	assert.Equal(t, "test:overlay:CN:US:85343100", s.fragmentKey(key))

	pattern := s.prefixPattern(types.Prefix{
		CodePrefix:  "85343",
		Origin:      "CN",
		Destination: "US",
		Class:       types.FieldClassStable,
	})

	assert.Equal(t, "test:stable:CN:US:85343*", pattern)
}

func TestStorage_Expiration(t *testing.T) {
	t.Parallel()

	s := NewStorage(nil, WithRetention(time.Hour))

	assert.Zero(t, s.expiration(0))
	assert.Equal(t, 25*time.Hour, s.expiration(24*time.Hour))
}

func TestEscapeGlob(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "8534", escapeGlob("8534"))
	assert.Equal(t, `85\*3\?`, escapeGlob("85*3?"))
}

func newTestStorage(t *testing.T, opts ...Option) (*Storage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return NewStorage(client, opts...), mr
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

		s, _ := newTestStorage(t)

		f, err := s.Get(context.Background(), fragment("85343100", types.FieldClassStable).Key)
		require.NoError(t, err)

		assert.Nil(t, f)
	})

	t.Run("stable fragment", func(t *testing.T) {
		t.Parallel()

		var (
			s, mr    = newTestStorage(t)
			expected = fragment("85343100", types.FieldClassStable)
		)

		require.NoError(t, s.Put(context.Background(), expected, 0))

		got, err := s.Get(context.Background(), expected.Key)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, expected.Key, got.Key)
		assert.Equal(t, expected.BaseRate, got.BaseRate)
		assert.Equal(t, expected.PreferentialRate, got.PreferentialRate)
		assert.Equal(t, expected.VerifiedAt, got.VerifiedAt)
		assert.Nil(t, got.ExpiresAt())

		// Stable entries never expire natively
		assert.Zero(t, mr.TTL("dutyrates:stable:CN:US:85343100"))
	})

	t.Run("overlay fragment", func(t *testing.T) {
		t.Parallel()

		var (
			s, mr    = newTestStorage(t, WithRetention(time.Hour))
			expected = fragment("85343100", types.FieldClassOverlay)
		)

		expected.BaseRate = types.Unknown()
		expected.Overlays = map[string]types.Rate{
			"section_301": types.RateOf(25),
			"reciprocal":  types.ConfirmedZero(),
			"fentanyl":    types.Unknown(),
		}
		expected.OverlaysKnown = true
		expected.Source = types.SourceResearch
		expected.Confidence = 70

		require.NoError(t, s.Put(context.Background(), expected, 24*time.Hour))

		got, err := s.Get(context.Background(), expected.Key)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.True(t, got.BaseRate.IsUnknown())
		assert.Equal(t, expected.Overlays, got.Overlays)
		assert.True(t, got.OverlaysKnown)
		assert.Equal(t, types.SourceResearch, got.Source)
		assert.Equal(t, 70, got.Confidence)
		assert.Equal(t, 24*time.Hour, got.TTL)

		require.NotNil(t, got.ExpiresAt())
		assert.Equal(t, expected.VerifiedAt.Add(24*time.Hour), *got.ExpiresAt())

		// The native expiry keeps the overlay readable through the retention window
		assert.Equal(t, 25*time.Hour, mr.TTL("dutyrates:overlay:CN:US:85343100"))
	})

	t.Run("overlay past its retention", func(t *testing.T) {
		t.Parallel()

		var (
			s, mr   = newTestStorage(t, WithRetention(time.Hour))
			overlay = fragment("85343100", types.FieldClassOverlay)
		)

		require.NoError(t, s.Put(context.Background(), overlay, 24*time.Hour))

		// Still readable (as a stale fallback) past the TTL
		mr.FastForward(24*time.Hour + time.Minute)

		got, err := s.Get(context.Background(), overlay.Key)
		require.NoError(t, err)
		assert.NotNil(t, got)

		mr.FastForward(time.Hour)

		got, err = s.Get(context.Background(), overlay.Key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("overwrite", func(t *testing.T) {
		t.Parallel()

		var (
			s, _ = newTestStorage(t)
			f    = fragment("85343100", types.FieldClassStable)
		)

		require.NoError(t, s.Put(context.Background(), f, 0))

		updated := f.Clone()
		updated.BaseRate = types.RateOf(3.9)

		require.NoError(t, s.Put(context.Background(), updated, 0))

		got, err := s.Get(context.Background(), f.Key)
		require.NoError(t, err)

		assert.Equal(t, types.RateOf(3.9), got.BaseRate)
	})

	t.Run("corrupt value", func(t *testing.T) {
		t.Parallel()

		s, mr := newTestStorage(t)

		require.NoError(t, mr.Set("dutyrates:stable:CN:US:85343100", "{not json"))

		_, err := s.Get(context.Background(), fragment("85343100", types.FieldClassStable).Key)
		assert.Error(t, err)
	})
}

func TestStorage_GetByPrefix(t *testing.T) {
	t.Parallel()

	t.Run("filters by lane, class and prefix", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestStorage(t)

		for _, code := range []string{"85343900", "85343100", "85441100", "85343199"} {
			require.NoError(t, s.Put(context.Background(), fragment(code, types.FieldClassStable), 0))
		}

		// Different class and different lane, same prefix
		require.NoError(t, s.Put(context.Background(), fragment("85343150", types.FieldClassOverlay), time.Hour))

		otherLane := fragment("85343160", types.FieldClassStable)
		otherLane.Key.Origin = "MX"
		require.NoError(t, s.Put(context.Background(), otherLane, 0))

		got, err := s.GetByPrefix(context.Background(), types.Prefix{
			CodePrefix:  "85343",
			Origin:      "CN",
			Destination: "US",
			Class:       types.FieldClassStable,
		})
		require.NoError(t, err)

		codes := make([]string, 0, len(got))
		for _, f := range got {
			codes = append(codes, f.Key.Code)
		}

		// Ascending by code
		assert.Equal(t, []string{"85343100", "85343199", "85343900"}, codes)
	})

	t.Run("spans several scan pages", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestStorage(t)

		const total = scanBatch + 44

		for i := range total {
			code := fmt.Sprintf("85%06d", i)
			require.NoError(t, s.Put(context.Background(), fragment(code, types.FieldClassStable), 0))
		}

		got, err := s.GetByPrefix(context.Background(), types.Prefix{
			CodePrefix:  "85",
			Origin:      "CN",
			Destination: "US",
			Class:       types.FieldClassStable,
		})
		require.NoError(t, err)

		assert.Len(t, got, total)
	})

	t.Run("expired overlays are skipped", func(t *testing.T) {
		t.Parallel()

		s, mr := newTestStorage(t, WithRetention(time.Minute))

		require.NoError(t, s.Put(context.Background(), fragment("85343100", types.FieldClassOverlay), time.Hour))
		require.NoError(t, s.Put(context.Background(), fragment("85343900", types.FieldClassOverlay), 48*time.Hour))

		mr.FastForward(2 * time.Hour)

		got, err := s.GetByPrefix(context.Background(), types.Prefix{
			CodePrefix:  "85343",
			Origin:      "CN",
			Destination: "US",
			Class:       types.FieldClassOverlay,
		})
		require.NoError(t, err)
		require.Len(t, got, 1)

		assert.Equal(t, "85343900", got[0].Key.Code)
	})

	t.Run("no matches", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestStorage(t)

		got, err := s.GetByPrefix(context.Background(), types.Prefix{
			CodePrefix:  "01",
			Origin:      "CN",
			Destination: "US",
			Class:       types.FieldClassStable,
		})
		require.NoError(t, err)

		assert.Empty(t, got)
	})
}
