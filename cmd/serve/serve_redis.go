package serve

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sig-0/dutyrates/cmd/env"
	"github.com/sig-0/dutyrates/storage/redis"
)

type serveRedisCfg struct {
	rootCfg *serveCfg

	namespace string
	retention time.Duration
}

// newServeRedisCmd creates the serve redis command
func newServeRedisCmd(rootCfg *serveCfg) *ffcli.Command {
	cfg := &serveRedisCfg{
		rootCfg: rootCfg,
	}

	fs := flag.NewFlagSet("redis", flag.ExitOnError)
	cfg.rootCfg.registerFlags(fs)

	fs.StringVar(
		&cfg.namespace,
		"redis-namespace",
		"dutyrates",
		"the key namespace of the Redis store",
	)

	fs.DurationVar(
		&cfg.retention,
		"redis-retention",
		7*24*time.Hour,
		"how long expired overlays are kept as stale fallbacks",
	)

	return &ffcli.Command{
		Name:       "redis",
		ShortUsage: "serve redis [flags]",
		LongHelp:   "Serves the dutyrates backend, using a Redis datastore",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *serveRedisCfg) exec(ctx context.Context, _ []string) error {
	logger, err := c.rootCfg.prepare()
	if err != nil {
		return err
	}

	url := os.Getenv(env.Key(env.RedisURLSuffix))
	if url == "" {
		return fmt.Errorf("missing %s", env.Key(env.RedisURLSuffix))
	}

	opts, err := goredis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	defer func() {
		if err := client.Close(); err != nil {
			logger.Error(
				"unable to gracefully close Redis client",
				"err", err,
			)
		}
	}()

	// Check Redis reachability
	pingCtx, cancelPing := context.WithTimeout(ctx, time.Second*5)
	defer cancelPing()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("unable to reach Redis (ping): %w", err)
	}

	logger.Info("Redis ping success")

	store := redis.NewStorage(
		client,
		redis.WithNamespace(c.namespace),
		redis.WithRetention(c.retention),
	)

	return c.rootCfg.run(ctx, logger, store)
}
