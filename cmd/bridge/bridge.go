package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/opengate/bridge/internal/common/logger"
	"github.com/opengate/bridge/internal/config"
	"github.com/opengate/bridge/internal/events/bus"
	"github.com/opengate/bridge/internal/format"
	"github.com/opengate/bridge/internal/host"
	"github.com/opengate/bridge/internal/remote"
	"github.com/opengate/bridge/internal/spawn"
	"github.com/opengate/bridge/internal/spawn/state"
	v1 "github.com/opengate/bridge/pkg/api/v1"
)

// bridge holds the wired components shared by the run and once commands.
type bridge struct {
	cfg      *config.Config
	log      *logger.Logger
	remote   *remote.Client
	eventBus bus.EventBus

	// Spawn path; nil unless spawn.enabled.
	store        *state.Store
	orchestrator *spawn.Orchestrator
}

// setup loads configuration and wires everything that both commands need.
func setup() (*bridge, error) {
	cfg, err := config.LoadWithPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return nil, err
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, err
	}
	logger.SetDefault(log)

	apiKey, err := cfg.Server.ResolveAPIKey()
	if err != nil {
		log.Error("failed to resolve server api key", zap.Error(err))
		return nil, err
	}
	if apiKey == "" {
		err := fmt.Errorf("no server api key configured (set server.apiKey or server.apiKeyFile)")
		log.Error(err.Error())
		return nil, err
	}

	b := &bridge{
		cfg:    cfg,
		log:    log,
		remote: remote.NewClient(cfg.Server.URL, apiKey, log),
	}

	if cfg.Events.NATSURL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.Events.NATSURL, cfg.Events.ClientID, log)
		if err != nil {
			// The republish bus is best-effort; fall back rather than refuse
			// to deliver notifications.
			log.Warn("NATS unavailable, using in-memory event bus", zap.Error(err))
			b.eventBus = bus.NewMemoryEventBus(log)
		} else {
			b.eventBus = natsBus
		}
	} else {
		b.eventBus = bus.NewMemoryEventBus(log)
	}

	if cfg.Spawn.Enabled {
		if err := b.setupSpawn(); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// setupSpawn wires the spawn path. A missing host token is a configuration
// error that disables the whole orchestrator.
func (b *bridge) setupSpawn() error {
	token, err := b.cfg.Host.ResolveToken()
	if err != nil {
		b.log.Error("failed to resolve host token", zap.Error(err))
		return err
	}

	hostClient, err := host.NewClient(b.cfg.Host.Port, token, b.log)
	if err != nil {
		b.log.Error("spawn orchestrator disabled", zap.Error(err))
		return err
	}

	store, err := state.NewStore(b.cfg.Spawn.StateDir, b.cfg.Spawn.Retention(), b.log)
	if err != nil {
		b.log.Error("failed to open spawn state store", zap.Error(err))
		return err
	}

	b.store = store
	b.orchestrator = spawn.NewOrchestrator(b.remote, hostClient, store, spawn.Config{
		Interval:      b.cfg.Spawn.IntervalDuration(),
		MaxConcurrent: b.cfg.Spawn.MaxConcurrent,
		AgentID:       b.cfg.Spawn.AgentID,
		Model:         b.cfg.Spawn.Model,
		ServerURL:     b.remote.BaseURL(),
	}, b.log)
	return nil
}

func (b *bridge) close() {
	if b.eventBus != nil {
		b.eventBus.Close()
	}
	_ = b.log.Sync()
}

// deliverBatch is the poll-mode delivery surface: the rendered digest goes
// to stdout for whatever session is attached to it.
func (b *bridge) deliverBatch(notifications []*v1.Notification) {
	fmt.Println(format.Digest(notifications))
}

// deliverEvent is the push-mode delivery surface.
func (b *bridge) deliverEvent(event v1.Event) {
	fmt.Println(format.Text(event))
}
