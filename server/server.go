// Package server exposes the rate resolution engine over HTTP
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v3"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/dutyrates/engine"
	"github.com/sig-0/dutyrates/server/config"
	"github.com/sig-0/dutyrates/storage/types"
	"github.com/sig-0/dutyrates/volatility"
)

// RoutesFn is a callback that receives a router for registering routes
type RoutesFn func(router chi.Router)

// Engine is the resolution surface served over HTTP
type Engine interface {
	Resolve(context.Context, types.RateQuery) (*types.RateRecord, error)
	ResolveBatch(context.Context, []types.RateQuery) []engine.BatchResult
	Reclassify(context.Context, types.RateQuery) (*types.RateRecord, error)
	Classify(types.RateQuery) (volatility.Tier, error)
}

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type Server struct {
	logger *slog.Logger
	config *config.Config

	engine Engine

	mux *chi.Mux
}

// New creates a new server instance
func New(e Engine, opts ...Option) (*Server, error) {
	s := &Server{
		logger: noopLogger,
		engine: e,
		config: config.DefaultConfig(),
		mux:    chi.NewMux(),
	}

	// Apply the options
	for _, opt := range opts {
		opt(s)
	}

	// Validate the configuration
	if err := config.ValidateConfig(s.config); err != nil {
		return nil, fmt.Errorf("invalid configuration, %w", err)
	}

	// Set up the CORS middleware
	if s.config.CORSConfig != nil {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSConfig.AllowedOrigins,
			AllowedMethods: s.config.CORSConfig.AllowedMethods,
			AllowedHeaders: s.config.CORSConfig.AllowedHeaders,
		})

		s.mux.Use(corsMiddleware.Handler)
	}

	s.mux.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaOTEL,
		RecoverPanics: true,
		Skip: func(r *http.Request, respStatus int) bool {
			return respStatus == 404 || respStatus == 405 || r.URL.Path == "/health"
		},
	}))

	// Register the health check handler
	s.mux.Get("/health", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})

	// Register the API
	s.mux.Get("/openapi.yaml", s.OpenAPI)
	s.mux.Get("/docs", s.Redoc)

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/rates/{code}", s.Rate)
		r.Post("/rates/resolve", s.ResolveRates)
		r.Post("/rates/reclassify", s.Reclassify)
		r.Get("/tiers/{code}", s.Tier)
	})

	return s, nil
}

// Routes calls fn with the server mux so callers can add endpoints
func (s *Server) Routes(fn RoutesFn) {
	if fn == nil {
		return
	}

	fn(s.mux)
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve serves the dutyrates service
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.mux,
		ReadHeaderTimeout: 60 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer s.logger.Info("server shut down")

		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}

		s.logger.Info(
			fmt.Sprintf(
				"server started at %s",
				ln.Addr().String(),
			),
		)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		s.logger.Info("server to be shutdown")

		wsCtx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		return server.Shutdown(wsCtx)
	})

	return group.Wait()
}
