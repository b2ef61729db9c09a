// Package resolve implements a one-shot CLI lookup over an in-memory cache
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/dutyrates/cmd/env"
	"github.com/sig-0/dutyrates/cmd/setup"
	"github.com/sig-0/dutyrates/server/config"
	"github.com/sig-0/dutyrates/storage/memory"
	"github.com/sig-0/dutyrates/storage/types"
)

var errNoCodes = errors.New("no classification codes provided")

type resolveCfg struct {
	origin         string
	destination    string
	productContext string
	tiersFile      string
	verbose        bool
}

// result is a single printed resolution
type result struct {
	Query  types.RateQuery   `json:"query"`
	Record *types.RateRecord `json:"record,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// NewResolveCmd creates the resolve command
func NewResolveCmd() *ffcli.Command {
	cfg := &resolveCfg{}

	fs := flag.NewFlagSet("resolve", flag.ExitOnError)

	fs.StringVar(&cfg.origin, "origin", "", "the country of origin")
	fs.StringVar(&cfg.destination, "destination", "US", "the importing country")
	fs.StringVar(&cfg.productContext, "context", "", "free-text product description, if any")
	fs.StringVar(&cfg.tiersFile, "tiers", "", "the path to a YAML volatility rule table, if any")
	fs.BoolVar(&cfg.verbose, "verbose", false, "log the resolution steps to stderr")

	return &ffcli.Command{
		Name:       "resolve",
		ShortUsage: "resolve [flags] <code> [<code>...]",
		LongHelp:   "Resolves the duty rates of the given codes on a single lane, printing JSON",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return cfg.exec(ctx, args, os.Stdout)
		},
		Options: []ff.Option{
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *resolveCfg) exec(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errNoCodes
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if c.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	chain, err := setup.ResearchChain(logger, setup.Models{})
	if err != nil {
		return err
	}

	engineCfg := config.DefaultEngineConfig()
	engineCfg.TiersFile = c.tiersFile

	e, err := setup.Engine(memory.NewStorage(), engineCfg, chain, logger)
	if err != nil {
		return err
	}

	queries := c.queries(args)
	results := e.ResolveBatch(ctx, queries)

	printed := make([]result, 0, len(results))

	for i, r := range results {
		item := result{
			Query:  queries[i],
			Record: r.Record,
		}

		if r.Err != nil {
			item.Error = r.Err.Error()
		}

		printed = append(printed, item)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(printed); err != nil {
		return fmt.Errorf("unable to write results: %w", err)
	}

	return nil
}

// queries builds one query per code, all on the configured lane
func (c *resolveCfg) queries(codes []string) []types.RateQuery {
	var productContext *string

	if trimmed := strings.TrimSpace(c.productContext); trimmed != "" {
		productContext = &trimmed
	}

	queries := make([]types.RateQuery, 0, len(codes))

	for _, code := range codes {
		queries = append(queries, types.RateQuery{
			Code:           code,
			Origin:         c.origin,
			Destination:    c.destination,
			ProductContext: productContext,
		})
	}

	return queries
}
