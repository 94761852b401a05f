package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/ccwrap/internal/logging"
	"github.com/psantana5/ccwrap/internal/report"
)

// shutdownTimeout bounds graceful shutdown of the metrics server.
const shutdownTimeout = 10 * time.Second

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve journal metrics over HTTP",
	Long: `Serves the invocation journal for Prometheus and humans:

  GET /metrics               Prometheus exposition
  GET /invocations?limit=N   recent invocations, newest first
  GET /summary               journal summary
  GET /health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":9464", "address to listen on")
	serveCmd.Flags().String("journal", "", "journal to serve instead of the configured one")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Journal == "" {
		return errors.New("no journal configured (set journal in the config file, CCWRAP_JOURNAL or --journal)")
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Close()

	journal := report.OpenJournal(cfg.Journal)
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      report.NewRouter(journal, report.NewRegistry(journal)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", logging.Fields{"addr": listenAddr, "journal": cfg.Journal})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", logging.Fields{"error": err.Error()})
		return err
	}
	return nil
}
