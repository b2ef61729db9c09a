package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/dutyrates/cmd/setup"
	"github.com/sig-0/dutyrates/ingest"
	"github.com/sig-0/dutyrates/provider/schedule"
	"github.com/sig-0/dutyrates/server"
	"github.com/sig-0/dutyrates/server/config"
	"github.com/sig-0/dutyrates/storage"
	"github.com/sig-0/dutyrates/storage/types"
)

const scheduleFetchTimeout = 30 * time.Second

var errNoScheduleOrigins = errors.New("schedule-url requires schedule-origins")

// prepare reads the server configuration and the .env file
func (c *serveCfg) prepare() (*slog.Logger, error) {
	// Read the server configuration, if any
	if c.configPath != "" {
		serverCfg, err := config.Read(c.configPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read server config, %w", err)
		}

		c.config = serverCfg
	}

	if c.config.EngineConfig == nil {
		c.config.EngineConfig = config.DefaultEngineConfig()
	}

	if c.tiersFileOverride != "" {
		c.config.EngineConfig.TiersFile = c.tiersFileOverride
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	return logger, nil
}

// feeds returns the configured schedule feeds
func (c *serveCfg) feeds() ([]ingest.Feed, error) {
	feeds := make([]ingest.Feed, 0, 2)

	if c.scheduleFile != "" {
		feeds = append(feeds, schedule.NewFileFeed(c.scheduleFile, c.scheduleInterval))
	}

	if c.scheduleURL != "" {
		destination, err := types.ParseCountry(c.scheduleDest)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule destination: %w", err)
		}

		origins := make([]types.Country, 0)

		for _, raw := range strings.Split(c.scheduleOrigins, ",") {
			if strings.TrimSpace(raw) == "" {
				continue
			}

			origin, err := types.ParseCountry(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid schedule origin: %w", err)
			}

			origins = append(origins, origin)
		}

		if len(origins) == 0 {
			return nil, errNoScheduleOrigins
		}

		feeds = append(feeds, schedule.NewHTMLFeed(
			c.scheduleURL,
			destination,
			origins,
			scheduleFetchTimeout,
			schedule.WithInterval(c.scheduleInterval),
		))
	}

	return feeds, nil
}

// run serves the engine over the given store until interrupted
func (c *serveCfg) run(ctx context.Context, logger *slog.Logger, store storage.Storage) error {
	chain, err := setup.ResearchChain(logger, setup.Models{
		OpenRouter: c.openRouterModel,
		Anthropic:  c.anthropicModel,
	})
	if err != nil {
		return err
	}

	e, err := setup.Engine(store, c.config.EngineConfig, chain, logger)
	if err != nil {
		return err
	}

	// Create the ingestion service
	feeds, err := c.feeds()
	if err != nil {
		return err
	}

	orchestrator := ingest.New(store, ingest.WithLogger(logger))
	for _, feed := range feeds {
		if err = orchestrator.Register(feed); err != nil {
			return fmt.Errorf("unable to register feed: %w", err)
		}
	}

	// Create the server instance
	s, err := server.New(
		e,
		server.WithLogger(logger),
		server.WithConfig(c.config),
	)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	// Start the HTTP server
	group.Go(func() error {
		return s.Serve(gCtx)
	})

	// Start the ingestion service
	if len(feeds) > 0 {
		group.Go(func() error {
			return orchestrator.Start(gCtx)
		})
	}

	return group.Wait()
}
