package testsupport

import (
	"context"
	"testing"

	"meltwatch/internal/config"
	"meltwatch/internal/history"
	"meltwatch/internal/processed"
)

// MustLoadStore loads the processed-state store named by cfg.
func MustLoadStore(t testing.TB, cfg *config.Config) *processed.Store {
	t.Helper()
	store, err := processed.Load(cfg.ProcessedLogPath())
	if err != nil {
		t.Fatalf("processed.Load: %v", err)
	}
	return store
}

// MustOpenHistory opens the attempt ledger named by cfg and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()
	store, err := history.Open(context.Background(), cfg.History.Path)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
