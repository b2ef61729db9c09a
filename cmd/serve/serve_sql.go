package serve

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/dutyrates/cmd/env"
	"github.com/sig-0/dutyrates/storage/sql"
)

type serveSQLCfg struct {
	rootCfg *serveCfg
}

// newServeSQLCmd creates the serve sql command
func newServeSQLCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveSQLCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("sql", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "sql",
		ShortUsage: "serve sql [flags]",
		LongHelp:   "Serves the dutyrates backend, using a Postgres datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

// exec executes the server serve command
func (c *serveSQLCfg) exec(ctx context.Context, _ []string) error {
	logger, err := c.rootCfg.prepare()
	if err != nil {
		return err
	}

	// DB
	dsn := os.Getenv(env.Key(env.DBURLSuffix))
	if dsn == "" {
		return fmt.Errorf("missing %s", env.Key(env.DBURLSuffix))
	}

	// Open DB connection
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("unable to open DB connection: %w", err)
	}

	defer func() {
		closeCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
		defer cancelFn()

		if err := conn.Close(closeCtx); err != nil {
			logger.Error(
				"unable to gracefully close DB connection",
				"err", err,
			)
		}
	}()

	// Check DB reachability
	pingCtx, cancelPing := context.WithTimeout(ctx, time.Second*5)
	defer cancelPing()

	if err = conn.Ping(pingCtx); err != nil {
		return fmt.Errorf("unable to reach DB (ping): %w", err)
	}

	logger.Info("DB ping success")

	// Create an SQL store
	return c.rootCfg.run(ctx, logger, sql.NewStorage(conn))
}
