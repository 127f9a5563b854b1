// Package state tracks which tasks already have a spawned session. The store
// is the only component allowed to touch the durable record file.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	bridgeerrors "github.com/opengate/bridge/internal/common/errors"
	"github.com/opengate/bridge/internal/common/logger"
)

const stateFileName = "spawned.json"

// Record maps a task to the session spawned for it.
type Record struct {
	TaskID     string    `json:"taskId"`
	SessionKey string    `json:"sessionKey"`
	SpawnedAt  time.Time `json:"spawnedAt"`
}

// Store is a durable task-id -> spawn record set with expiry. A single
// process owns the backing file; there is no cross-process locking.
type Store struct {
	path      string
	retention time.Duration
	logger    *logger.Logger

	mu      sync.Mutex
	records map[string]Record

	now func() time.Time // overridable for tests
}

// NewStore loads the record file from dir, purging records older than the
// retention window. A missing file starts an empty store; an unreadable or
// corrupt file is logged and treated as empty rather than failing startup.
func NewStore(dir string, retention time.Duration, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, bridgeerrors.Persistence("failed to create state dir", err)
	}

	s := &Store{
		path:      filepath.Join(dir, stateFileName),
		retention: retention,
		logger:    log.WithFields(zap.String("component", "spawn-state")),
		records:   make(map[string]Record),
		now:       time.Now,
	}

	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read spawn state file, starting empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("spawn state file is corrupt, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return
	}

	cutoff := s.now().Add(-s.retention)
	purged := 0
	for taskID, rec := range records {
		if rec.SpawnedAt.Before(cutoff) {
			purged++
			continue
		}
		s.records[taskID] = rec
	}

	if purged > 0 {
		s.logger.Info("purged expired spawn records",
			zap.Int("purged", purged), zap.Int("kept", len(s.records)))
		s.persist()
	}
}

// IsSpawned reports whether a live spawn record exists for the task.
func (s *Store) IsSpawned(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[taskID]
	return ok
}

// MarkSpawned records a spawn and persists the change before returning. A
// failed write is logged and the in-memory record kept; the accepted risk is
// a duplicate spawn after a process restart.
func (s *Store) MarkSpawned(taskID, sessionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[taskID] = Record{
		TaskID:     taskID,
		SessionKey: sessionKey,
		SpawnedAt:  s.now(),
	}
	s.persist()
}

// Remove evicts a task's record, for external lifecycle signals such as a
// session finishing early. Removing an absent task is a no-op.
func (s *Store) Remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[taskID]; !ok {
		return
	}
	delete(s.records, taskID)
	s.persist()
}

// ActiveCount returns the number of live spawn records. The orchestrator
// uses this as its concurrency gate.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist writes the record set to disk. Callers must hold s.mu.
func (s *Store) persist() {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		s.logger.Error("failed to marshal spawn state", zap.Error(err))
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.logger.Error("failed to write spawn state, continuing in-memory",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("failed to replace spawn state file, continuing in-memory",
			zap.String("path", s.path), zap.Error(err))
	}
}
