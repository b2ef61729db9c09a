package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/dutyrates/storage/types"
)

func TestResolve_Exec(t *testing.T) {
	// Not parallel, the research keys are cleared from the environment
	t.Setenv("DUTYRATES_OPENROUTER_API_KEY", "")
	t.Setenv("DUTYRATES_ANTHROPIC_API_KEY", "")

	t.Run("no codes", func(t *testing.T) {
		cfg := &resolveCfg{origin: "CN", destination: "US"}

		assert.ErrorIs(t, cfg.exec(context.Background(), nil, &bytes.Buffer{}), errNoCodes)
	})

	t.Run("results in input order", func(t *testing.T) {
		var (
			out bytes.Buffer
			cfg = &resolveCfg{
				origin:         "CN",
				destination:    "US",
				productContext: "  steel bolts ",
			}
		)

		require.NoError(t, cfg.exec(context.Background(), []string{"7318.15", "bogus"}, &out))

		var printed []result

		require.NoError(t, json.Unmarshal(out.Bytes(), &printed))
		require.Len(t, printed, 2)

		// Without providers the lookup degrades instead of failing
		first := printed[0]
		assert.Empty(t, first.Error)
		require.NotNil(t, first.Record)
		assert.Equal(t, types.StateFailed, first.Record.State)
		assert.Equal(t, types.SourceUnresolved, first.Record.Source)
		assert.True(t, first.Record.BaseRate.IsUnknown())
		require.NotNil(t, first.Query.ProductContext)
		assert.Equal(t, "steel bolts", *first.Query.ProductContext)

		second := printed[1]
		assert.Nil(t, second.Record)
		assert.NotEmpty(t, second.Error)
	})
}
