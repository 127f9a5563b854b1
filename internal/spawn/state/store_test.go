package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opengate/bridge/internal/common/logger"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{
		Level:  "error",
		Format: "json",
	})
	return log
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), 24*time.Hour, newTestLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestMarkSpawned(t *testing.T) {
	store := newTestStore(t)

	if store.IsSpawned("t1") {
		t.Error("expected t1 to be unspawned initially")
	}

	store.MarkSpawned("t1", "opengate:task:t1")

	if !store.IsSpawned("t1") {
		t.Error("expected t1 to be spawned after MarkSpawned")
	}
	if got := store.ActiveCount(); got != 1 {
		t.Errorf("expected ActiveCount = 1, got %d", got)
	}
}

func TestMarkSpawnedPersists(t *testing.T) {
	dir := t.TempDir()
	log := newTestLogger()

	store, err := NewStore(dir, 24*time.Hour, log)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	store.MarkSpawned("t1", "opengate:task:t1")
	store.MarkSpawned("t2", "opengate:task:t2")

	// A second store over the same directory sees the records.
	reloaded, err := NewStore(dir, 24*time.Hour, log)
	if err != nil {
		t.Fatalf("NewStore (reload) failed: %v", err)
	}
	if !reloaded.IsSpawned("t1") || !reloaded.IsSpawned("t2") {
		t.Error("expected records to survive a reload")
	}
	if got := reloaded.ActiveCount(); got != 2 {
		t.Errorf("expected ActiveCount = 2, got %d", got)
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)

	store.MarkSpawned("t1", "opengate:task:t1")
	store.Remove("t1")

	if store.IsSpawned("t1") {
		t.Error("expected t1 to be unspawned after Remove")
	}

	// Removing an absent task is a no-op.
	store.Remove("missing")
	if got := store.ActiveCount(); got != 0 {
		t.Errorf("expected ActiveCount = 0, got %d", got)
	}
}

func TestExpiredRecordsPurgedOnLoad(t *testing.T) {
	dir := t.TempDir()
	log := newTestLogger()

	records := map[string]Record{
		"stale": {
			TaskID:     "stale",
			SessionKey: "opengate:task:stale",
			SpawnedAt:  time.Now().Add(-25 * time.Hour),
		},
		"fresh": {
			TaskID:     "fresh",
			SessionKey: "opengate:task:fresh",
			SpawnedAt:  time.Now().Add(-1 * time.Hour),
		},
	}
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFileName), data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := NewStore(dir, 24*time.Hour, log)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if store.IsSpawned("stale") {
		t.Error("expected 25h-old record to be purged on load")
	}
	if !store.IsSpawned("fresh") {
		t.Error("expected 1h-old record to survive the purge")
	}
	if got := store.ActiveCount(); got != 1 {
		t.Errorf("expected ActiveCount = 1, got %d", got)
	}
}

func TestCorruptStateFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, stateFileName), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := NewStore(dir, 24*time.Hour, newTestLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if got := store.ActiveCount(); got != 0 {
		t.Errorf("expected empty store from corrupt file, got %d records", got)
	}
}

func TestMarkSpawnedOverwrites(t *testing.T) {
	store := newTestStore(t)

	store.MarkSpawned("t1", "key-a")
	store.MarkSpawned("t1", "key-b")

	if got := store.ActiveCount(); got != 1 {
		t.Errorf("expected one record after overwrite, got %d", got)
	}
}
