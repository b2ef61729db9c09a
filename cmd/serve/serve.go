package serve

import (
	"context"
	"flag"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/dutyrates/cmd/env"
	"github.com/sig-0/dutyrates/server/config"
)

// serveCfg wraps the serve configuration
type serveCfg struct {
	config *config.Config

	configPath string

	// authoritative schedule feeds, loaded into the stable cache
	scheduleFile      string
	scheduleURL       string
	scheduleOrigins   string
	scheduleDest      string
	scheduleInterval  time.Duration
	openRouterModel   string
	anthropicModel    string
	tiersFileOverride string
}

// NewServeCmd creates the serve subcommand
func NewServeCmd() *ffcli.Command {
	cfg := &serveCfg{
		config: config.DefaultConfig(),
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.registerFlags(fs)

	cmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "serve <subcommand> [flags]",
		LongHelp:   "Serves the dutyrates backend",
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}

	cmd.Subcommands = []*ffcli.Command{
		newServeSQLCmd(cfg),
		newServeSQLiteCmd(cfg),
		newServeRedisCmd(cfg),
		newServeMemoryCmd(cfg),
	}

	return cmd
}

func (c *serveCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.config.ListenAddress,
		"listen",
		config.DefaultListenAddress,
		"the IP:PORT URL for the server",
	)

	fs.StringVar(
		&c.configPath,
		"config",
		"",
		"the path to the server TOML configuration, if any",
	)

	fs.StringVar(
		&c.tiersFileOverride,
		"tiers",
		"",
		"the path to a YAML volatility rule table, overriding the config",
	)

	fs.StringVar(
		&c.scheduleFile,
		"schedule-file",
		"",
		"the path to a TOML rate schedule to ingest, if any",
	)

	fs.StringVar(
		&c.scheduleURL,
		"schedule-url",
		"",
		"the URL of an HTML tariff schedule table to ingest, if any",
	)

	fs.StringVar(
		&c.scheduleOrigins,
		"schedule-origins",
		"",
		"comma-separated origins the HTML schedule applies to",
	)

	fs.StringVar(
		&c.scheduleDest,
		"schedule-destination",
		"US",
		"the destination the HTML schedule applies to",
	)

	fs.DurationVar(
		&c.scheduleInterval,
		"schedule-interval",
		24*time.Hour,
		"the schedule reload interval",
	)

	fs.StringVar(
		&c.openRouterModel,
		"openrouter-model",
		"",
		"the OpenRouter research model (provider default if empty)",
	)

	fs.StringVar(
		&c.anthropicModel,
		"anthropic-model",
		"",
		"the Anthropic research model (provider default if empty)",
	)
}
