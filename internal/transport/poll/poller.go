// Package poll implements interval-driven notification delivery. Each tick
// fetches the agent's unread notifications, hands non-empty batches to the
// registered handler, and acknowledges what was delivered.
package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opengate/bridge/internal/common/logger"
	"github.com/opengate/bridge/internal/events/bus"
	v1 "github.com/opengate/bridge/pkg/api/v1"
)

// Fetcher is the slice of the server client the poller needs.
type Fetcher interface {
	UnreadNotifications(ctx context.Context, projectID string) ([]*v1.Notification, error)
	AckNotification(ctx context.Context, id string) error
}

// Handler receives one full batch of notifications per successful non-empty
// fetch.
type Handler func(notifications []*v1.Notification)

// Poller runs the polling delivery loop.
type Poller struct {
	client    Fetcher
	handler   Handler
	interval  time.Duration
	projectID string
	eventBus  bus.EventBus // optional republish target
	logger    *logger.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithProjectID scopes fetches to one project.
func WithProjectID(projectID string) Option {
	return func(p *Poller) { p.projectID = projectID }
}

// WithEventBus republishes every delivered notification on the local bus.
func WithEventBus(b bus.EventBus) Option {
	return func(p *Poller) { p.eventBus = b }
}

// NewPoller creates a poller. The handler is invoked from the polling
// goroutine, in fetch order, never concurrently with itself.
func NewPoller(client Fetcher, handler Handler, interval time.Duration, log *logger.Logger, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		handler:  handler,
		interval: interval,
		logger:   log.WithFields(zap.String("component", "poll-transport")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs an immediate fetch followed by one fetch per interval. Calling
// Start more than once without Stop is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("poll transport started", zap.Duration("interval", p.interval))
}

// Stop halts all future fetches and waits for an in-flight cycle to finish.
// It is idempotent; no handler invocations occur after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("poll transport stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	// First cycle fires immediately; the ticker handles the rest. A tick that
	// arrives while a cycle is still running is dropped, not queued.
	p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle performs one fetch-deliver-ack pass. Failures are logged and left
// for the next tick; there is no backoff because transient errors are
// expected to be rare relative to the polling cadence.
func (p *Poller) cycle(ctx context.Context) {
	notifications, err := p.client.UnreadNotifications(ctx, p.projectID)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("notification fetch failed", zap.Error(err))
		}
		return
	}
	if len(notifications) == 0 {
		return
	}

	p.logger.Info("delivering notifications", zap.Int("count", len(notifications)))
	p.handler(notifications)
	p.republish(ctx, notifications)

	for _, n := range notifications {
		if ctx.Err() != nil {
			return
		}
		if err := p.client.AckNotification(ctx, n.ID); err != nil {
			p.logger.Warn("notification ack failed",
				zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
}

func (p *Poller) republish(ctx context.Context, notifications []*v1.Notification) {
	if p.eventBus == nil {
		return
	}
	for _, n := range notifications {
		ev := bus.NewEvent(n.EventType, "poll", map[string]interface{}{
			"notification_id": n.ID,
			"task_id":         n.TaskID,
			"project_id":      n.ProjectID,
			"title":           n.Title,
		})
		if err := p.eventBus.Publish(ctx, bus.SubjectFor(n.EventType), ev); err != nil {
			p.logger.Debug("event republish failed", zap.Error(err))
		}
	}
}
