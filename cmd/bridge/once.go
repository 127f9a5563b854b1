package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll-and-spawn cycle, then exit (for cron)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context())
	},
}

func runOnce(parent context.Context) error {
	b, err := setup()
	if err != nil {
		return err
	}
	defer b.close()

	ctx, cancel := context.WithTimeout(parent, 2*time.Minute)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.remote.Heartbeat(ctx); err != nil {
			b.log.Warn("heartbeat failed", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		notifications, err := b.remote.UnreadNotifications(ctx, b.cfg.Delivery.ProjectID)
		if err != nil {
			b.log.Warn("notification fetch failed", zap.Error(err))
			return nil
		}
		if len(notifications) == 0 {
			return nil
		}
		b.deliverBatch(notifications)
		for _, n := range notifications {
			if err := b.remote.AckNotification(ctx, n.ID); err != nil {
				b.log.Warn("notification ack failed",
					zap.String("notification_id", n.ID), zap.Error(err))
			}
		}
		return nil
	})

	if b.orchestrator != nil {
		g.Go(func() error {
			b.orchestrator.RunCycle(ctx)
			return nil
		})
	}

	return g.Wait()
}
