package remote

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opengate/bridge/internal/common/logger"
)

// HeartbeatLoop periodically reports bridge liveness to the server so the
// agent is not marked stale while the bridge runs.
type HeartbeatLoop struct {
	client   *Client
	interval time.Duration
	logger   *logger.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewHeartbeatLoop creates a heartbeat loop.
func NewHeartbeatLoop(client *Client, interval time.Duration, log *logger.Logger) *HeartbeatLoop {
	return &HeartbeatLoop{
		client:   client,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "heartbeat")),
	}
}

// Start sends an immediate heartbeat, then one per interval. Calling Start
// more than once without Stop is a no-op.
func (h *HeartbeatLoop) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()

	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop halts the loop and is idempotent.
func (h *HeartbeatLoop) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

func (h *HeartbeatLoop) loop(ctx context.Context) {
	defer h.wg.Done()

	h.beat(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *HeartbeatLoop) beat(ctx context.Context) {
	if err := h.client.Heartbeat(ctx); err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("heartbeat failed", zap.Error(err))
		}
		return
	}
	h.logger.Debug("heartbeat ok")
}
