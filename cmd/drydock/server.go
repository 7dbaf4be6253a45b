package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/artpar/drydock/internal/core/catalog"
	"github.com/artpar/drydock/internal/core/domain"
	"github.com/artpar/drydock/internal/core/secret"
	"github.com/artpar/drydock/internal/shell/api"
	"github.com/artpar/drydock/internal/shell/checkpoint"
	"github.com/artpar/drydock/internal/shell/engine"
	"github.com/artpar/drydock/internal/shell/probe"
	"github.com/artpar/drydock/internal/shell/runtime"
	"github.com/artpar/drydock/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitStoreError      = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
	ExitCatalogError    = 5
)

// =============================================================================
// Server
// =============================================================================

// Server owns the daemon's long-lived components.
type Server struct {
	config      *Config
	httpServer  *http.Server
	store       store.Store
	driver      *runtime.DockerDriver
	engine      *engine.Engine
	checkpoints *checkpoint.Manager
	logger      *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Load the profile catalog
	reg, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitCatalogError,
		}
	}
	logger.Info("catalog loaded", "profiles", reg.Len(), "path", cfg.Catalog.Path)

	// Open the store
	if dir := filepath.Dir(cfg.Store.Path); dir != "." && !strings.HasPrefix(cfg.Store.Path, ":") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitStoreError,
			}
		}
	}
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitStoreError,
		}
	}

	// Connect to the container runtime
	driver, err := runtime.NewDockerDriver(cfg.Docker.Host)
	if err != nil {
		st.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.Ping(pingCtx); err != nil {
		st.Close()
		driver.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Seal sensitive checkpoint values when a master secret is set
	var sealer *secret.Sealer
	if cfg.Secret.Master != "" {
		sealer, err = secret.NewSealer(cfg.Secret.Master)
		if err != nil {
			st.Close()
			driver.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
		logger.Info("checkpoint value sealing enabled")
	} else {
		logger.Warn("no master secret configured, checkpoint values are stored in plaintext")
	}

	checkpoints := checkpoint.NewManager(st, sealer, logger)

	// Host capacity: manual override or runtime probe
	var prober probe.Prober
	if cfg.Probe.Static() {
		prober = probe.NewStaticProbe(domain.Resources{
			CPUCores: cfg.Probe.CPUCores,
			MemoryGB: cfg.Probe.MemoryGB,
			DiskGB:   cfg.Probe.DiskGB,
		})
		logger.Info("using static capacity override",
			"cpu_cores", cfg.Probe.CPUCores,
			"memory_gb", cfg.Probe.MemoryGB,
			"disk_gb", cfg.Probe.DiskGB,
		)
	} else {
		prober = probe.NewDockerProbe(driver)
	}

	eng := engine.New(reg, driver, st, checkpoints, prober, engine.Config{
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		HealthTimeout: cfg.Engine.HealthTimeout,
		PollBase:      cfg.Engine.PollBase,
		PollCap:       cfg.Engine.PollCap,
		StopTimeout:   cfg.Engine.StopTimeout,
		Network:       cfg.Engine.Network,
		FeedCapacity:  cfg.Engine.FeedCapacity,
	}, logger)

	handler := api.NewHandler(reg, eng, checkpoints, prober, driver, logger, Version)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:      cfg,
		httpServer:  httpServer,
		store:       st,
		driver:      driver,
		engine:      eng,
		checkpoints: checkpoints,
		logger:      logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Settle runs orphaned by a previous process before accepting new ones.
	if err := s.engine.RecoverInterrupted(ctx); err != nil {
		s.logger.Error("failed to recover interrupted runs", "error", err)
	}

	// Trim checkpoint history to the configured retention
	if keep := s.config.Checkpoint.Retention; keep > 0 {
		removed, err := s.checkpoints.Prune(ctx, keep)
		if err != nil {
			s.logger.Error("failed to prune checkpoints", "error", err)
		} else if len(removed) > 0 {
			s.logger.Info("pruned old checkpoints", "kept", keep, "removed", len(removed))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Cancel the active run, if any, and wait for it to settle
	if err := s.engine.Close(shutdownCtx); err != nil {
		s.logger.Error("engine shutdown error", "error", err)
	}

	if err := s.driver.Close(); err != nil {
		s.logger.Error("runtime client close error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
