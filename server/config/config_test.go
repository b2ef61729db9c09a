package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateConfig(t *testing.T) {
	t.Parallel()

	t.Run("invalid listen address", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.ListenAddress = "rando-address" // doesn't follow the format

		assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidListenAddress)
	})

	t.Run("invalid engine limits", func(t *testing.T) {
		t.Parallel()

		testTable := []struct {
			name   string
			modify func(*Engine)
			err    error
		}{
			{"zero workers", func(e *Engine) { e.Workers = 0 }, ErrInvalidWorkers},
			{"zero batch size", func(e *Engine) { e.MaxBatchSize = 0 }, ErrInvalidBatchSize},
			{"negative timeout", func(e *Engine) { e.WorkflowTimeoutSeconds = -1 }, ErrInvalidTimeout},
			{"negative stale age", func(e *Engine) { e.StaleAfterDays = -1 }, ErrInvalidAgeDecay},
			{"critical before stale", func(e *Engine) {
				e.StaleAfterDays = 90
				e.CriticalAfterDays = 30
			}, ErrInvalidAgeDecay},
		}

		for _, testCase := range testTable {
			t.Run(testCase.name, func(t *testing.T) {
				t.Parallel()

				cfg := DefaultConfig()
				testCase.modify(cfg.EngineConfig)

				assert.ErrorIs(t, ValidateConfig(cfg), testCase.err)
			})
		}
	})

	t.Run("valid configuration", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, ValidateConfig(DefaultConfig()))
	})
}

func TestConfig_Read(t *testing.T) {
	t.Parallel()

	t.Run("partial file keeps defaults", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
listen_address = "127.0.0.1:9000"

[engine_config]
workers = 4
tiers_file = "tiers.yaml"
`), 0o600))

		cfg, err := Read(path)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
		assert.Equal(t, 4, cfg.EngineConfig.Workers)
		assert.Equal(t, "tiers.yaml", cfg.EngineConfig.TiersFile)
		assert.Equal(t, DefaultMaxBatchSize, cfg.EngineConfig.MaxBatchSize)
		assert.Equal(t, DefaultWorkflowTimeout, cfg.EngineConfig.WorkflowTimeout())
		assert.Equal(t, DefaultCORSConfig(), cfg.CORSConfig)

		require.NoError(t, ValidateConfig(cfg))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Read(filepath.Join(t.TempDir(), "missing.toml"))
		assert.Error(t, err)
	})

	t.Run("workflow timeout", func(t *testing.T) {
		t.Parallel()

		e := &Engine{WorkflowTimeoutSeconds: 30}

		assert.Equal(t, 30*time.Second, e.WorkflowTimeout())
	})
}

func TestEngine_AgeDecay(t *testing.T) {
	t.Parallel()

	cfg := DefaultEngineConfig()
	assert.False(t, cfg.AgeDecayEnabled())

	cfg.StaleAfterDays = 90
	cfg.CriticalAfterDays = 180

	require.True(t, cfg.AgeDecayEnabled())
	require.NoError(t, ValidateConfig(&Config{
		ListenAddress: DefaultListenAddress,
		EngineConfig:  cfg,
	}))

	stale, critical := cfg.AgeDecay()

	assert.Equal(t, 90*24*time.Hour, stale)
	assert.Equal(t, 180*24*time.Hour, critical)
}
