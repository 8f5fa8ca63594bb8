// Package serve implements the long-running server command: it starts the
// background worker pool and exposes the metrics endpoint.
package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/echofind/internal/conf"
	"github.com/tphakala/echofind/internal/logging"
	"github.com/tphakala/echofind/internal/runtime"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search engine with background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(settings, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":8090", "Listen address for the Prometheus metrics endpoint")
	return cmd
}

func runServe(settings *conf.Settings, metricsAddr string) error {
	app, err := runtime.Build(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logging.Error("Shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Pool.Start(ctx)

	mux := http.NewServeMux()
	app.Metrics.RegisterHandlers(mux)
	server := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info("Metrics endpoint listening", "addr", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Metrics server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
