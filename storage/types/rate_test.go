package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRate(t *testing.T) {
	t.Parallel()

	t.Run("zero value is unknown", func(t *testing.T) {
		t.Parallel()

		var r Rate

		assert.True(t, r.IsUnknown())

		_, ok := r.Value()
		assert.False(t, ok)
	})

	t.Run("sourced values", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, ConfirmedZero(), RateOf(0))
		assert.Equal(t, RateKnown, RateOf(2.5).State())
		assert.True(t, RateOf(-1).IsUnknown())
		assert.True(t, RateOf(math.NaN()).IsUnknown())
		assert.True(t, RateOf(math.Inf(1)).IsUnknown())

		v, ok := ConfirmedZero().Value()
		require.True(t, ok)
		assert.Zero(t, v)
	})

	t.Run("sum", func(t *testing.T) {
		t.Parallel()

		total := SumRates(RateOf(2.65), map[string]Rate{
			"section_301": RateOf(25),
			"reciprocal":  ConfirmedZero(),
		})

		v, ok := total.Value()
		require.True(t, ok)
		assert.InDelta(t, 27.65, v, 1e-9)

		assert.Equal(t, ConfirmedZero(), SumRates(ConfirmedZero(), map[string]Rate{"a": ConfirmedZero()}))
		assert.Equal(t, ConfirmedZero(), SumRates(ConfirmedZero(), nil))

		// Any unknown contribution makes the total unknown
		assert.True(t, SumRates(RateOf(5), map[string]Rate{"a": Unknown()}).IsUnknown())
		assert.True(t, SumRates(Unknown(), nil).IsUnknown())
	})

	t.Run("JSON form", func(t *testing.T) {
		t.Parallel()

		testTable := []struct {
			rate    Rate
			encoded string
		}{
			{RateOf(2.5), `{"value":2.5,"state":"known"}`},
			{ConfirmedZero(), `{"state":"confirmed_zero"}`},
			{Unknown(), `{"state":"unknown"}`},
		}

		for _, testCase := range testTable {
			data, err := json.Marshal(testCase.rate)
			require.NoError(t, err)
			assert.JSONEq(t, testCase.encoded, string(data))

			var decoded Rate

			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, testCase.rate, decoded)
		}
	})

	t.Run("invalid JSON state", func(t *testing.T) {
		t.Parallel()

		var r Rate

		assert.ErrorIs(t, json.Unmarshal([]byte(`{"state":"known"}`), &r), errInvalidRateState)
		assert.ErrorIs(t, json.Unmarshal([]byte(`{"state":"maybe"}`), &r), errInvalidRateState)
	})
}
