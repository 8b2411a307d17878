// Command household-events consumes the ledger events published by the
// household server and logs one line per event.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"household/internal/amqp"
	"household/internal/cli"
	"household/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentEvents)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required to consume ledger events")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	})

	logger.Info("Consuming ledger events",
		log.FieldOperation, log.OpStartup,
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	err = client.ConsumeLedgerEvents(ctx, func(ctx context.Context, ev *amqp.LedgerEvent) error {
		logger.InfoContext(ctx, "Ledger event",
			"type", ev.Type,
			log.FieldMonth, ev.Month,
			log.FieldExpenseID, ev.ID,
			log.FieldDate, ev.Date,
			log.FieldItem, ev.Item,
			log.FieldMatched, ev.Count,
			"published_at", ev.Timestamp.Format(time.RFC3339))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", log.FieldError, err)
		_ = client.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
