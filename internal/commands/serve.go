package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crowdfund/internal/backend"
	"crowdfund/internal/cli"
	"crowdfund/internal/config"
	"crowdfund/internal/core"
	apphttp "crowdfund/internal/http"
	"crowdfund/internal/ledger"
	"crowdfund/internal/services"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when AMQP is configured, the event relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), globalConfig)
	},
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, cancel := cli.SignalContext(parent, logger)
	defer cancel()

	stopTracing, err := cli.SetupTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopTracing(context.Background())

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	}()

	custody := core.Identity(cfg.LedgerAccount)
	journal := ledger.NewJournal()
	l := ledger.New(res.Store, res.Assets.Client(custody), custody,
		ledger.WithLogger(logger),
		ledger.WithListener(journal.Record))

	deps := apphttp.Deps{
		Ledger:             l,
		Journal:            journal,
		Ready:              res.Ready,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}
	if cfg.DevAssets {
		deps.Assets = res.Assets
	}
	srv := apphttp.NewServer(":"+cfg.Port, deps)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting crowdfund server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"custody", custody,
			"dev_assets", cfg.DevAssets)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if res.Publisher != nil {
		relay := services.NewEventRelay(res.Outbox, res.Publisher, relayConfig(cfg), logger)
		if err := relay.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			return relay.Stop(stopCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func relayConfig(cfg *config.Config) services.EventRelayConfig {
	rc := services.DefaultEventRelayConfig()
	rc.BatchSize = cfg.RelayBatchSize
	rc.PollInterval = cfg.RelayInterval
	rc.MaxRetries = cfg.RelayMaxRetries
	return rc
}
