package sql

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/dutyrates/cmd/env"
	dbpkg "github.com/sig-0/dutyrates/storage/sql"
)

// migrateCfg wraps the migrate configuration
type migrateCfg struct {
	rootCfg *sqlCfg
}

// newMigrateCmd creates the migrate command
func newMigrateCmd(rootCfg *sqlCfg) *ffcli.Command {
	cfg := &migrateCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	rootCfg.RegisterFlags(fs)

	return &ffcli.Command{
		Name:       "migrate",
		ShortUsage: "sql migrate [migration.sql, migration2.sql ...]",
		LongHelp:   "Runs initial DB migrations",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *migrateCfg) exec(ctx context.Context, args []string) error {
	// Make sure some migrations are specified
	if len(args) == 0 {
		return fmt.Errorf("no migration files provided")
	}

	// Load .env, the DSN may also come from the environment directly
	if err := godotenv.Load(); err != nil {
		fmt.Println("Unable to load .env file, using the environment")
	}

	dsn := os.Getenv(env.Key(env.DBURLSuffix))
	if dsn == "" {
		return fmt.Errorf("missing %s", env.Key(env.DBURLSuffix))
	}

	// Open the DB
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("unable to open DB connection: %w", err)
	}

	defer func() {
		closeCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
		defer cancelFn()

		if err := conn.Close(closeCtx); err != nil {
			fmt.Printf("Unable to gracefully close DB: %s\n", err.Error())
		}
	}()

	// Ping the DB
	if err = conn.Ping(ctx); err != nil {
		return fmt.Errorf("unable to ping DB: %w", err)
	}

	for _, name := range args {
		path := fmt.Sprintf("schema/%s", name)

		sqlBytes, err := dbpkg.SchemaFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to read migration %q: %w", name, err)
		}

		fmt.Printf("Running migration %s...\n", name)

		if _, err := conn.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("unable to run migration %q: %w", name, err)
		}

		fmt.Printf("Migration %q complete\n", name)
	}

	fmt.Println("All migrations complete!")

	return nil
}
