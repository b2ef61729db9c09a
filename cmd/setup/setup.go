// Package setup wires the resolution stack shared by the CLI commands
package setup

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sig-0/dutyrates/cache"
	"github.com/sig-0/dutyrates/cmd/env"
	"github.com/sig-0/dutyrates/engine"
	"github.com/sig-0/dutyrates/provider/anthropic"
	"github.com/sig-0/dutyrates/provider/openrouter"
	"github.com/sig-0/dutyrates/research"
	"github.com/sig-0/dutyrates/server/config"
	"github.com/sig-0/dutyrates/storage"
	"github.com/sig-0/dutyrates/volatility"
)

// Models selects the research models, empty values keep the provider defaults
type Models struct {
	OpenRouter string
	Anthropic  string
}

// ResearchChain builds the research chain from the configured API keys:
// OpenRouter first, Anthropic as the fail-over
func ResearchChain(logger *slog.Logger, models Models) (*research.Chain, error) {
	providers := make([]research.Provider, 0, 2)

	if key := os.Getenv(env.Key(env.OpenRouterAPIKeySuffix)); key != "" {
		p, err := openrouter.New(key, openrouter.WithModel(models.OpenRouter))
		if err != nil {
			return nil, fmt.Errorf("unable to create openrouter provider: %w", err)
		}

		providers = append(providers, p)
	}

	if key := os.Getenv(env.Key(env.AnthropicAPIKeySuffix)); key != "" {
		p, err := anthropic.New(key, anthropic.WithModel(models.Anthropic))
		if err != nil {
			return nil, fmt.Errorf("unable to create anthropic provider: %w", err)
		}

		providers = append(providers, p)
	}

	chain := research.NewChain(providers, research.WithLogger(logger))

	if len(providers) == 0 {
		logger.Warn(
			"no research providers configured, cache misses will resolve as unknown",
			"keys", []string{
				env.Key(env.OpenRouterAPIKeySuffix),
				env.Key(env.AnthropicAPIKeySuffix),
			},
		)
	} else {
		logger.Info("research providers configured", "providers", chain.Providers())
	}

	return chain, nil
}

// Engine builds the resolution engine over the store
func Engine(
	store storage.Storage,
	cfg *config.Engine,
	researcher engine.Researcher,
	logger *slog.Logger,
) (*engine.Engine, error) {
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}

	classifier := volatility.NewClassifier()

	if cfg.TiersFile != "" {
		rules, err := volatility.LoadRulesFile(cfg.TiersFile)
		if err != nil {
			return nil, fmt.Errorf("unable to load tier rules: %w", err)
		}

		classifier = volatility.NewClassifier(rules...)

		logger.Info(
			"loaded tier rules",
			"path", cfg.TiersFile,
			"rules", len(rules),
		)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithClassifier(classifier),
		engine.WithWorkers(cfg.Workers),
		engine.WithWorkflowTimeout(cfg.WorkflowTimeout()),
	}

	if cfg.AgeDecayEnabled() {
		stale, critical := cfg.AgeDecay()

		opts = append(opts, engine.WithAgeDecay(engine.AgeDecay{
			StaleAfter:    stale,
			CriticalAfter: critical,
		}))
	}

	return engine.New(
		cache.New(store, cache.WithLogger(logger)),
		researcher,
		opts...,
	), nil
}
