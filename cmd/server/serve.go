package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/violation-sync/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoScheduler bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the sweep scheduler",
		Long: `Start the HTTP API. Unless --no-scheduler is given, sweeps run every
schedule.sweep and the enrichment queue drains every schedule.drain.

On SIGINT/SIGTERM:
  1. Stop the scheduler (the current job finishes)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Wait for in-flight enrichment dispatches
  5. Close the database`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().Int("port", 8080, "HTTP server port")
	_ = rootOpts.Viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	cmd.Flags().BoolVar(&opts.NoScheduler, "no-scheduler", false, "serve the API only")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.store, a.runner, a.drainer)
	handler.DrainBatch = a.cfg.Queue.Batch
	router := api.NewRouter(handler, a.registry)

	scheduler := api.NewSweepScheduler(a.runner, a.drainer)
	scheduler.SweepInterval = a.cfg.Schedule.Sweep
	scheduler.DrainInterval = a.cfg.Schedule.Drain
	scheduler.DrainBatch = a.cfg.Queue.Batch
	scheduler.Enabled = !opts.NoScheduler
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /api/sweep blocks for the whole sweep
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on http://localhost:%d", a.cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("[Server] Shutting down...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("[Server] Stopped")
	return nil
}
