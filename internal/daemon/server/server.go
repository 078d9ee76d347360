// internal/daemon/server/server.go
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/builder"
	"github.com/squareslab/bugzood/internal/daemon/command"
	"github.com/squareslab/bugzood/internal/daemon/config"
	"github.com/squareslab/bugzood/internal/daemon/controller"
	"github.com/squareslab/bugzood/internal/daemon/orchestrator"
	"github.com/squareslab/bugzood/internal/daemon/patcher"
	"github.com/squareslab/bugzood/internal/daemon/source"
	"github.com/squareslab/bugzood/internal/daemon/store"
	"github.com/squareslab/bugzood/internal/daemon/validator"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

// Server is the bugzood daemon server.
type Server struct {
	config     *config.Config
	store      store.Store
	manager    *controller.Manager
	runCtrl    *controller.RunController
	registry   *orchestrator.Registry
	httpServer *http.Server
	mu         sync.Mutex
	listener   net.Listener
	logger     *slog.Logger
	logFile    *os.File // log file handle for cleanup
}

// New creates a new server.
func New(cfg *config.Config) (*Server, error) {
	// Ensure data directory exists first (needed for log file)
	if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	level := slog.LevelInfo
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// Persistent log file, also consulted by 'bugzoo daemon logs'
	logFilePath := filepath.Join(cfg.Server.DataDir, "bugzood.log")
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open daemon log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, logFile)
	logger := slog.New(slog.NewTextHandler(multiWriter, &slog.HandlerOptions{Level: level}))

	dbPath := filepath.Join(cfg.Server.DataDir, "bugzood.db")
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	runner := command.NewRunner(command.Config{
		OutputLimit: cfg.Engine.OutputLimitBytes,
		Logger:      logger,
	})

	registry := orchestrator.NewRegistry()
	engine := orchestrator.Config{
		Workspaces: workspace.NewManager(cfg.Engine.ScenariosDir, logger),
		Source: source.NewFetcher(source.Config{
			ArchiveDir: cfg.Engine.ArchivesDir,
			Runner:     runner,
			Client:     &http.Client{Timeout: cfg.Timeouts.Download},
			Logger:     logger,
		}),
		Patcher: patcher.NewApplicator(patcher.Config{Runner: runner, Logger: logger}),
		Builder: builder.NewExecutor(builder.Config{Runner: runner, Logger: logger}),
		Validator: validator.NewRunner(validator.Config{
			Runner:         runner,
			DefaultTimeout: cfg.Timeouts.Validation,
			Logger:         logger,
		}),
		Registry:     registry,
		RetainFailed: cfg.Engine.RetainFailed,
		Logger:       logger,
	}

	mgr := controller.NewManager()
	mgr.SetLogger(logger)

	runCtrl := controller.NewRunController(controller.RunControllerConfig{
		Store:  st,
		Engine: engine,
		Logger: logger,
	})
	mgr.Register(store.ResourceRuns, runCtrl)

	s := &Server{
		config:   cfg,
		store:    st,
		manager:  mgr,
		runCtrl:  runCtrl,
		registry: registry,
		logger:   logger,
		logFile:  logFile,
	}
	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Listen, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	pidPath := filepath.Join(s.config.Server.DataDir, "bugzood.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer os.Remove(pidPath)

	s.logger.Info("bugzood started",
		"listen", listener.Addr().String(),
		"dataDir", s.config.Server.DataDir,
		"pid", os.Getpid(),
		"workers", s.config.Server.Workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start controller manager in background
	go s.manager.Start(ctx, s.config.Server.Workers)

	// Feed run keys to the controller. The watch replays existing runs
	// as ADDED first, so runs interrupted by a crash are picked up
	// again on startup.
	go func() {
		err := s.store.Watch(ctx, store.ResourceRuns, func(eventType string, resource interface{}) {
			if eventType != "ADDED" {
				return
			}
			run, ok := resource.(*store.Run)
			if !ok {
				return
			}
			if run.Terminal() {
				return
			}
			s.manager.Enqueue(store.ResourceRuns, run.Metadata.Name)
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Error("run watch stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		s.logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
			return err
		}
	}

	// Cancel first so Start can drain its workers before Stop waits on
	// them in Shutdown.
	cancel()
	return s.Shutdown()
}

// Addr returns the bound listen address, or "" before Run has started
// listening. Useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown incomplete", "error", err)
		}
	}

	// Stop workers before closing the store they write to
	if s.manager != nil {
		s.manager.Stop()
	}

	if s.store != nil {
		s.store.Close()
	}

	if s.logFile != nil {
		s.logFile.Close()
	}

	s.logger.Info("bugzood stopped")
	return nil
}
