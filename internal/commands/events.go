package commands

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"crowdfund/internal/amqp"
	"crowdfund/internal/cache"
	"crowdfund/internal/cli"
	"crowdfund/internal/core"
	"crowdfund/internal/worker"
)

var (
	dedupeSize   int
	dedupeWindow time.Duration
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with ledger events on the broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print ledger events from the AMQP queue as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !globalConfig.RelayEnabled() {
			return errors.New("events tail requires AMQP_URL")
		}
		ctx, cancel := cli.SignalContext(cmd.Context(), logger)
		defer cancel()

		client, err := amqp.NewClient(globalConfig.AMQPURL, globalConfig.AMQPExchange, globalConfig.AMQPQueue, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		w := worker.NewEventWorker(jsonLineSink(cmd.OutOrStdout()), dedupeSize, dedupeWindow, logger)
		caches := cache.NewManager(logger)
		caches.Register(w.Cache())
		caches.StartCleanup(dedupeWindow)
		defer caches.Stop()

		logger.Info("Tailing ledger events", "queue", globalConfig.AMQPQueue)
		err = client.ConsumeEvents(ctx, w.HandleEventMessage)
		handled, duplicates := w.Counts()
		logger.Info("Stopped tailing", "handled", handled, "duplicates", duplicates)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// jsonLineSink writes each event as one JSON line.
func jsonLineSink(out io.Writer) worker.Sink {
	var mu sync.Mutex
	enc := json.NewEncoder(out)
	return func(ctx context.Context, ev core.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			logger.WarnContext(ctx, "Failed to write event", "error", err)
		}
	}
}

func init() {
	eventsTailCmd.Flags().IntVar(&dedupeSize, "dedupe-size", 10000, "number of event ids remembered for de-duplication")
	eventsTailCmd.Flags().DurationVar(&dedupeWindow, "dedupe-window", time.Hour, "how long an event id is remembered")
	eventsCmd.AddCommand(eventsTailCmd)
}

