// Package server exposes the grid engine and storage over a JSON HTTP
// API.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapgrid/internal/engine"
	"github.com/leapstack-labs/leapgrid/internal/udf"
	"github.com/leapstack-labs/leapgrid/pkg/core"
)

// Server is the API server.
type Server struct {
	store      core.Store
	engine     *engine.Engine
	udfs       *udf.Registry
	scriptsDir string
	port       int
	watch      bool
	logger     *slog.Logger
}

// Config holds configuration for the API server.
type Config struct {
	// Store is the storage backend. Required.
	Store core.Store
	// Engine coordinates writes and propagation. Required.
	Engine *engine.Engine
	// UDFs is the script function registry. Optional; without it the
	// watch loop is disabled.
	UDFs *udf.Registry
	// ScriptsDir is the UDF script directory watched in watch mode.
	ScriptsDir string
	// Port is the TCP port to listen on.
	Port int
	// Watch reloads UDF scripts when .star files change.
	Watch bool
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an API server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		store:      cfg.Store,
		engine:     cfg.Engine,
		udfs:       cfg.UDFs,
		scriptsDir: cfg.ScriptsDir,
		port:       cfg.Port,
		watch:      cfg.Watch,
		logger:     logger,
	}
}

// Handler returns the routed HTTP handler. Serve uses it; tests mount
// it directly.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	s.routes(r)
	return r
}

// Serve starts the API server and blocks until the context is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting API server", "addr", addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.udfs != nil && s.scriptsDir != "" {
		eg.Go(func() error {
			return s.watchScripts(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchScripts reloads the UDF registry when script files change.
// Removals count: deleting a script unloads its namespace on the next
// reload.
func (s *Server) watchScripts(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.scriptsDir); err != nil {
		s.logger.Error("failed to watch scripts directory", "dir", s.scriptsDir, "error", err)
		// Don't fail - continue without watching
		return nil
	}

	// Debounce timer
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".star" {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				s.logger.Debug("script changed, reloading", "file", event.Name)
				if err := s.udfs.Reload(s.scriptsDir); err != nil {
					s.logger.Error("script reload failed", "error", err)
				}
			})

		case err := <-watcher.Errors:
			s.logger.Error("watcher error", "error", err)
		}
	}
}
