// Package spawn implements the task-spawn orchestrator: a timer-driven loop
// that turns inbox tasks into freshly spawned, isolated agent sessions.
package spawn

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opengate/bridge/internal/bootstrap"
	bridgeerrors "github.com/opengate/bridge/internal/common/errors"
	"github.com/opengate/bridge/internal/common/logger"
	v1 "github.com/opengate/bridge/pkg/api/v1"
)

// InboxClient is the slice of the server client the orchestrator needs.
type InboxClient interface {
	Inbox(ctx context.Context) ([]*v1.Task, error)
	Project(ctx context.Context, id string) (*v1.Project, error)
}

// Spawner creates a session on the local execution host.
type Spawner interface {
	Spawn(ctx context.Context, taskID, agentID, script, model string) (string, error)
}

// StateStore is the deduplication and capacity-control state.
type StateStore interface {
	IsSpawned(taskID string) bool
	MarkSpawned(taskID, sessionKey string)
	ActiveCount() int
}

// Config tunes the orchestrator.
type Config struct {
	Interval      time.Duration
	MaxConcurrent int
	AgentID       string
	Model         string
	ServerURL     string
}

// Orchestrator runs the fetch-and-spawn cycle.
type Orchestrator struct {
	client Spawner
	server InboxClient
	store  StateStore
	cfg    Config
	logger *logger.Logger

	// projects caches resolved project metadata for the process lifetime.
	// Metadata rarely changes, so staleness is acceptable and failures are
	// not cached.
	projects map[string]*v1.Project

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(server InboxClient, spawner Spawner, store StateStore, cfg Config, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		client:   spawner,
		server:   server,
		store:    store,
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "spawn-orchestrator")),
		projects: make(map[string]*v1.Project),
	}
}

// Start runs one cycle immediately, then one per interval. Calling Start
// more than once without Stop is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	o.wg.Add(1)
	go o.loop(ctx)

	o.logger.Info("spawn orchestrator started",
		zap.Duration("interval", o.cfg.Interval),
		zap.Int("max_concurrent", o.cfg.MaxConcurrent))
}

// Stop halts further cycles and waits for an in-flight cycle to finish. It
// is idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	o.logger.Info("spawn orchestrator stopped")
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()

	o.RunCycle(ctx)

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// RunCycle performs one fetch-and-spawn pass. It is exported so one-shot
// mode can drive a single cycle without the timer.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	if o.store.ActiveCount() >= o.cfg.MaxConcurrent {
		o.logger.Info("at spawn capacity, skipping cycle",
			zap.Int("active", o.store.ActiveCount()),
			zap.Int("max_concurrent", o.cfg.MaxConcurrent))
		return
	}

	tasks, err := o.server.Inbox(ctx)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("inbox fetch failed, skipping cycle", zap.Error(err))
		}
		return
	}
	if len(tasks) == 0 {
		return
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		if o.store.ActiveCount() >= o.cfg.MaxConcurrent {
			o.logger.Info("spawn capacity exhausted mid-cycle",
				zap.Int("max_concurrent", o.cfg.MaxConcurrent))
			return
		}
		if o.store.IsSpawned(task.ID) {
			continue
		}
		if !o.spawnTask(ctx, task) {
			return
		}
	}
}

// spawnTask builds the bootstrap script for one task and requests a session.
// It returns false when the cycle should stop iterating entirely.
func (o *Orchestrator) spawnTask(ctx context.Context, task *v1.Task) bool {
	log := o.logger.WithTaskID(task.ID)

	project := o.resolveProject(ctx, task.ProjectID)
	if project == nil && task.ProjectID != "" {
		log.Warn("project metadata unresolved, spawning without repository info",
			zap.String("project_id", task.ProjectID))
	}

	script := bootstrap.Script(bootstrap.Params{
		Task:      task,
		Project:   project,
		ServerURL: o.cfg.ServerURL,
	})

	sessionKey, err := o.client.Spawn(ctx, task.ID, o.cfg.AgentID, script, o.cfg.Model)
	if err != nil {
		if bridgeerrors.IsConfig(err) {
			// Misconfiguration affects every task equally; retrying per task
			// would only repeat the same failure.
			log.Error("spawn misconfigured, aborting cycle", zap.Error(err))
			return false
		}
		// Left unmarked so the next cycle retries this task.
		log.Warn("spawn failed, will retry next cycle", zap.Error(err))
		return true
	}

	o.store.MarkSpawned(task.ID, sessionKey)
	log.Info("task session spawned",
		zap.String("session_key", sessionKey),
		zap.String("title", task.Title))
	return true
}

// resolveProject returns cached metadata or fetches it. Failures yield nil
// and are not cached, so the next cycle retries the lookup.
func (o *Orchestrator) resolveProject(ctx context.Context, projectID string) *v1.Project {
	if projectID == "" {
		return nil
	}
	if project, ok := o.projects[projectID]; ok {
		return project
	}

	project, err := o.server.Project(ctx, projectID)
	if err != nil {
		o.logger.Debug("project fetch failed",
			zap.String("project_id", projectID), zap.Error(err))
		return nil
	}
	o.projects[projectID] = project
	return project
}
