package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opengate/bridge/internal/api"
	"github.com/opengate/bridge/internal/config"
	"github.com/opengate/bridge/internal/remote"
	"github.com/opengate/bridge/internal/transport/poll"
	"github.com/opengate/bridge/internal/transport/push"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge as a long-lived daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func runDaemon() error {
	b, err := setup()
	if err != nil {
		return err
	}
	defer b.close()

	log := b.log
	cfg := b.cfg

	log.Info("starting bridge",
		zap.String("server", b.remote.BaseURL()),
		zap.String("delivery_mode", cfg.Delivery.Mode),
		zap.Bool("spawn_enabled", cfg.Spawn.Enabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	heartbeat := remote.NewHeartbeatLoop(b.remote, cfg.Server.HeartbeatIntervalDuration(), log)
	heartbeat.Start(ctx)
	defer heartbeat.Stop()

	// Exactly one delivery transport runs at a time.
	var poller *poll.Poller
	var pusher *push.Client
	transportState := func() string { return "polling" }

	switch cfg.Delivery.Mode {
	case config.DeliveryModePush:
		pusher = push.NewClient(b.remote.BaseURL(), b.remote.APIKey(), b.deliverEvent, log,
			push.WithProjectID(cfg.Delivery.ProjectID),
			push.WithEventBus(b.eventBus))
		if err := pusher.Start(); err != nil {
			log.Error("failed to start push transport", zap.Error(err))
			return err
		}
		defer pusher.Stop()
		transportState = func() string { return string(pusher.State()) }
	default:
		poller = poll.NewPoller(b.remote, b.deliverBatch, cfg.Delivery.PollIntervalDuration(), log,
			poll.WithProjectID(cfg.Delivery.ProjectID),
			poll.WithEventBus(b.eventBus))
		poller.Start(ctx)
		defer poller.Stop()
	}

	if b.orchestrator != nil {
		b.orchestrator.Start(ctx)
		defer b.orchestrator.Stop()
	}

	var statusServer *http.Server
	if cfg.Status.Port > 0 {
		sources := api.Sources{
			DeliveryMode:   cfg.Delivery.Mode,
			TransportState: transportState,
			BusConnected:   b.eventBus.IsConnected,
		}
		if b.store != nil {
			sources.ActiveSpawns = b.store.ActiveCount
		}
		handler := api.NewHandler(sources, log)
		router := api.NewRouter(handler, log, cfg.Logging.Level == "debug")

		statusServer = &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Status.Port),
			Handler: router,
		}
		go func() {
			log.Info("status API listening", zap.Int("port", cfg.Status.Port))
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status API failed", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down bridge")
	cancel()

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Error("status API shutdown error", zap.Error(err))
		}
	}

	return nil
}
