package serve

import (
	"context"
	"flag"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/dutyrates/cmd/env"
	"github.com/sig-0/dutyrates/storage/memory"
)

type serveMemoryCfg struct {
	rootCfg *serveCfg
}

// newServeMemoryCmd creates the serve memory command.
func newServeMemoryCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveMemoryCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("memory", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "memory",
		ShortUsage: "serve memory [flags]",
		LongHelp:   "Serves the dutyrates backend, using an in-memory datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *serveMemoryCfg) exec(ctx context.Context, _ []string) error {
	logger, err := c.rootCfg.prepare()
	if err != nil {
		return err
	}

	// Create an in-memory store
	return c.rootCfg.run(ctx, logger, memory.NewStorage())
}
