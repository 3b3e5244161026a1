package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qyquant/config"
	"qyquant/internal/adapters/httpapi"
	"qyquant/internal/adapters/sqlite"
	"qyquant/internal/jobs"
	"qyquant/internal/ports"
)

const jobDrainTimeout = 30 * time.Second

// Service is the long-running HTTP process: engine, run history, job
// manager and transport.
type Service struct {
	engine *Engine
	repo   *sqlite.Repository
	jobs   *jobs.Manager
	server *httpapi.Server
	logger ports.Logger
}

// NewService builds every component the HTTP process needs.
func NewService(ctx context.Context, cfg *config.Config, logger ports.Logger) (*Service, error) {
	engine, err := NewEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: logger})
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}

	mgr, err := jobs.NewManager(jobs.Config{
		Runner:     engine.Runner,
		Repository: repo,
		Cache:      engine.Cache,
		Logger:     logger,
		Workers:    cfg.JobWorkers,
		ResultTTL:  cfg.JobResultTTL,
	})
	if err != nil {
		repo.Close()
		engine.Close()
		return nil, err
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Addr:      cfg.HTTPAddr,
		Runner:    engine.Runner,
		Jobs:      mgr,
		History:   repo,
		Provider:  engine.Provider,
		CacheName: engine.Cache.Name(),
		Logger:    logger,
	})
	if err != nil {
		repo.Close()
		engine.Close()
		return nil, err
	}

	return &Service{engine: engine, repo: repo, jobs: mgr, server: server, logger: logger}, nil
}

// Start serves HTTP until ctx is canceled or SIGINT/SIGTERM arrives, then
// drains in-flight jobs and releases storage.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting backtest service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := s.server.Start(ctx)
	s.shutdown()
	if serveErr != nil {
		return fmt.Errorf("HTTP server: %w", serveErr)
	}
	s.logger.Info(context.Background(), "Backtest service stopped")
	return nil
}

func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), jobDrainTimeout)
	defer cancel()
	if err := s.jobs.Close(ctx); err != nil {
		s.logger.Warn(ctx, "In-flight jobs canceled during shutdown", map[string]interface{}{"error": err.Error()})
	}
	if err := s.repo.Close(); err != nil {
		s.logger.Error(ctx, err, "Error closing database repository")
	}
	_ = s.engine.Close()
}
