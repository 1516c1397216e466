package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/qcc-assembler/pkg/assembler"
	"github.com/cuemby/qcc-assembler/pkg/config"
	"github.com/cuemby/qcc-assembler/pkg/events"
	"github.com/cuemby/qcc-assembler/pkg/ledger"
	"github.com/cuemby/qcc-assembler/pkg/log"
	"github.com/cuemby/qcc-assembler/pkg/metrics"
	"github.com/cuemby/qcc-assembler/pkg/statestore"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assembler as a long-lived process, exposing /healthz and /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		a, chain, store, broker, err := buildAssembler(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		broker.Start()
		defer broker.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		minerErrCh := make(chan error, 1)
		go func() {
			if err := chain.Run(ctx); err != nil {
				minerErrCh <- err
			}
		}()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("ledger", true, "")
		metrics.RegisterComponent("assembler", true, "")
		metrics.RegisterComponent("providers", len(cfg.Providers.URLs) > 0, "no providers configured")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/healthz", metrics.ReadyHandler())
		mux.Handle("/livez", metrics.LivenessHandler())

		server := &http.Server{Addr: metricsAddr, Handler: mux}
		serverErrCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrCh <- err
			}
		}()

		logger := log.WithComponent("orchestratord")
		logger.Info().Str("addr", metricsAddr).Msg("observability endpoints listening")
		logger.Info().Int("active_solutions", a.Status().ActiveSolutions).Msg("assembler ready")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutdown signal received")
		case err := <-serverErrCh:
			logger.Error().Err(err).Msg("observability server error")
		case err := <-minerErrCh:
			logger.Error().Err(err).Msg("ledger mining loop error")
			metrics.UpdateComponent("ledger", false, err.Error())
		}

		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for /healthz and /metrics")
}

// buildAssembler wires the full in-process component graph from config,
// shared by serve and assemble.
func buildAssembler(cfg config.Config) (*assembler.Assembler, *ledger.Ledger, *statestore.Store, *events.Broker, error) {
	broker := events.NewBroker()

	chain, err := ledger.New(ledger.Config{
		StoragePath:               cfg.Ledger.StoragePath,
		Difficulty:                cfg.Ledger.Difficulty,
		BlockCapacity:             cfg.Ledger.BlockCapacity,
		BlockTimeTargetSeconds:    cfg.Ledger.BlockTimeTargetSeconds,
		MaxTransactionWaitSeconds: cfg.Ledger.MaxTransactionWaitSeconds,
		SigningKey:                cfg.Ledger.SigningKey,
		EventBroker:               broker,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	store, err := statestore.New(cfg.Ledger.StoragePath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open state store: %w", err)
	}

	a := assembler.New(cfg, store, chain, broker)
	return a, chain, store, broker, nil
}
