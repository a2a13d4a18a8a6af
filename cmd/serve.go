package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rowforge/rowforge/internal/api"
	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/history"
	"github.com/rowforge/rowforge/internal/metrics"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server",
	Long: `Start the HTTP API for introspection and generation. Requests may carry
their own connection details; requests without a db_type use the configured
source. Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFile()
		if err != nil {
			return err
		}
		if err := applySourceFlags(cmd, &cfg.Source); err != nil {
			return err
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("listen-port") {
			port = servePort
		}

		logger := newLogger(cfg)
		m := metrics.New()

		opts := []engine.Option{engine.WithMetrics(m)}
		if cfg.Generation.CacheKeys {
			opts = append(opts, engine.WithKeyCaching())
		}
		if !cfg.History.Disabled {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return fmt.Errorf("opening run history: %w", err)
			}
			defer store.Close()
			opts = append(opts, engine.WithHistory(store))
		}

		eng := engine.New(cfg, logger, opts...)
		srv := api.New(eng, logger, port, api.WithMetrics(m))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		logger.Info("server listening", "port", port)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}
		return nil
	},
}

func init() {
	addSourceFlags(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "listen-port", 0, "port for the REST server (default from config, 8230)")
	rootCmd.AddCommand(serveCmd)
}
