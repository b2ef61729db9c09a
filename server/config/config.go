package config

import (
	"errors"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefaultListenAddress = "0.0.0.0:8545"

	DefaultWorkers         = 8
	DefaultMaxBatchSize    = 100
	DefaultWorkflowTimeout = 120 * time.Second
)

var (
	ErrInvalidListenAddress = errors.New("invalid listen address")
	ErrInvalidWorkers       = errors.New("invalid worker count")
	ErrInvalidBatchSize     = errors.New("invalid max batch size")
	ErrInvalidTimeout       = errors.New("invalid workflow timeout")
	ErrInvalidAgeDecay      = errors.New("invalid age decay thresholds")
)

var listenAddressRegex = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}:\d+$`)

// Config defines the base-level server configuration
type Config struct {
	// The associated CORS config, if any
	CORSConfig *CORS `toml:"cors_config"`

	// The resolution engine config
	EngineConfig *Engine `toml:"engine_config"`

	// The address at which the server will be served.
	// Format should be: <IP>:<PORT>
	ListenAddress string `toml:"listen_address"`
}

// Engine defines the resolution engine configuration
type Engine struct {
	// Path to a YAML volatility rule table. Empty uses the built-in table
	TiersFile string `toml:"tiers_file"`

	// Concurrent resolutions per batch request
	Workers int `toml:"workers"`

	// Upper bound on queries in a single batch request
	MaxBatchSize int `toml:"max_batch_size"`

	// Overall deadline of a single resolution, in seconds
	WorkflowTimeoutSeconds int `toml:"workflow_timeout_seconds"`

	// Age (in days) after which a stable entry's confidence is capped at 75.
	// Zero disables the cap
	StaleAfterDays int `toml:"stale_after_days"`

	// Age (in days) after which a stable entry's confidence is capped at 50.
	// Zero disables the cap
	CriticalAfterDays int `toml:"critical_after_days"`
}

// WorkflowTimeout returns the resolution deadline
func (e *Engine) WorkflowTimeout() time.Duration {
	return time.Duration(e.WorkflowTimeoutSeconds) * time.Second
}

// AgeDecayEnabled reports whether any age-based confidence cap is configured
func (e *Engine) AgeDecayEnabled() bool {
	return e.StaleAfterDays > 0 || e.CriticalAfterDays > 0
}

// AgeDecay returns the configured age thresholds
func (e *Engine) AgeDecay() (stale, critical time.Duration) {
	const day = 24 * time.Hour

	return time.Duration(e.StaleAfterDays) * day, time.Duration(e.CriticalAfterDays) * day
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() *Engine {
	return &Engine{
		Workers:                DefaultWorkers,
		MaxBatchSize:           DefaultMaxBatchSize,
		WorkflowTimeoutSeconds: int(DefaultWorkflowTimeout / time.Second),
	}
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		CORSConfig:    DefaultCORSConfig(),
		EngineConfig:  DefaultEngineConfig(),
	}
}

// ValidateConfig validates the server configuration
func ValidateConfig(config *Config) error {
	// Validate the listen address
	if !listenAddressRegex.MatchString(config.ListenAddress) {
		return ErrInvalidListenAddress
	}

	if config.EngineConfig == nil {
		return nil
	}

	// Validate the engine limits
	if config.EngineConfig.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if config.EngineConfig.MaxBatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if config.EngineConfig.WorkflowTimeoutSeconds < 0 {
		return ErrInvalidTimeout
	}

	stale, critical := config.EngineConfig.StaleAfterDays, config.EngineConfig.CriticalAfterDays
	if stale < 0 || critical < 0 || (stale > 0 && critical > 0 && critical < stale) {
		return ErrInvalidAgeDecay
	}

	return nil
}

// Read reads the configuration from the given path.
// Sections missing from the file keep their defaults
func Read(path string) (*Config, error) {
	// Read the config file
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse it
	var cfg Config

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in the sections and values omitted from a config file
func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if cfg.CORSConfig == nil {
		cfg.CORSConfig = DefaultCORSConfig()
	}

	if cfg.EngineConfig == nil {
		cfg.EngineConfig = DefaultEngineConfig()

		return
	}

	defaults := DefaultEngineConfig()

	if cfg.EngineConfig.Workers == 0 {
		cfg.EngineConfig.Workers = defaults.Workers
	}

	if cfg.EngineConfig.MaxBatchSize == 0 {
		cfg.EngineConfig.MaxBatchSize = defaults.MaxBatchSize
	}

	if cfg.EngineConfig.WorkflowTimeoutSeconds == 0 {
		cfg.EngineConfig.WorkflowTimeoutSeconds = defaults.WorkflowTimeoutSeconds
	}
}
