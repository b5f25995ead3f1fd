package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"crowdfund/internal/backend"
	"crowdfund/internal/config"
	"crowdfund/internal/services"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Inspect and drive the event outbox",
}

var relayStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print outbox counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRelay(cmd.Context(), globalConfig, false, func(ctx context.Context, r *services.EventRelay) error {
			stats, err := r.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending=%d processing=%d published=%d failed=%d\n",
				stats.Pending, stats.Processing, stats.Published, stats.Failed)
			return nil
		})
	},
}

var relayFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Publish one batch of pending events and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRelay(cmd.Context(), globalConfig, true, func(ctx context.Context, r *services.EventRelay) error {
			n, err := r.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", n)
			return nil
		})
	},
}

var relayRetryCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Move failed events back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRelay(cmd.Context(), globalConfig, false, func(ctx context.Context, r *services.EventRelay) error {
			n, err := r.RetryFailed(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d events\n", n)
			return nil
		})
	},
}

// withRelay opens the configured backend and runs fn with a relay over its
// outbox. needPublisher rejects configurations without a broker.
func withRelay(ctx context.Context, cfg *config.Config, needPublisher bool, fn func(context.Context, *services.EventRelay) error) error {
	if cfg.DataBackend != config.BackendSQLite {
		return errors.New("the outbox is only durable with DATA_BACKEND=sqlite")
	}
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

	var publisher services.EventPublisher
	if res.Publisher != nil {
		publisher = res.Publisher
	} else if needPublisher {
		return errors.New("no AMQP publisher available: set AMQP_URL and check the broker")
	}
	return fn(ctx, services.NewEventRelay(res.Outbox, publisher, relayConfig(cfg), logger))
}

func init() {
	relayCmd.AddCommand(relayStatsCmd)
	relayCmd.AddCommand(relayFlushCmd)
	relayCmd.AddCommand(relayRetryCmd)
}
