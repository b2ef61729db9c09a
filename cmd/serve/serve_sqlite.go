package serve

import (
	"context"
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/dutyrates/cmd/env"
	"github.com/sig-0/dutyrates/storage/sqlite"
)

type serveSQLiteCfg struct {
	rootCfg *serveCfg

	path string
}

// newServeSQLiteCmd creates the serve sqlite command
func newServeSQLiteCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveSQLiteCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("sqlite", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	fs.StringVar(
		&cfg.path,
		"db-path",
		"dutyrates.db",
		"the path to the SQLite database file",
	)

	return &ffcli.Command{
		Name:       "sqlite",
		ShortUsage: "serve sqlite [flags]",
		LongHelp:   "Serves the dutyrates backend, using an embedded SQLite datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *serveSQLiteCfg) exec(ctx context.Context, _ []string) error {
	logger, err := c.rootCfg.prepare()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(ctx, c.path)
	if err != nil {
		return fmt.Errorf("unable to open SQLite store: %w", err)
	}

	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(
				"unable to gracefully close SQLite store",
				"err", err,
			)
		}
	}()

	logger.Info("opened SQLite store", "path", c.path)

	return c.rootCfg.run(ctx, logger, store)
}
