package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgrid/internal/server"
)

type serveOptions struct {
	port  int
	watch bool
}

// NewServeCommand creates the serve command running the HTTP API.
func NewServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the JSON HTTP API for workspaces, tables, columns, rows,
cell writes, and formula evaluation.

With --watch, UDF scripts under the scripts directory are reloaded
when they change on disk.`,
		Example: `  # Start on the configured port
  leapgrid serve

  # Start on port 9000 with script hot-reload
  leapgrid serve --port 9000 --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "port to listen on (default from config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "reload UDF scripts on change")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	// Flags override config when explicitly set.
	port := cc.Cfg.Port
	if cmd.Flags().Changed("port") {
		port = opts.port
	}
	watch := cc.Cfg.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.watch
	}

	srv := server.New(server.Config{
		Store:      cc.Store,
		Engine:     cc.Engine,
		UDFs:       cc.UDFs,
		ScriptsDir: cc.Cfg.ScriptsDir,
		Port:       port,
		Watch:      watch,
		Logger:     cc.Logger,
	})

	cc.Renderer.Printf("Starting API server on http://localhost:%d\n", port)
	cc.Renderer.Println("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cc.Logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return srv.Serve(ctx)
}
