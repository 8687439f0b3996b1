package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/config"
)

func TestConfigLoadFailure(t *testing.T) {
	// A missing file falls back to defaults; a path that cannot be read as a
	// file (here, a directory) is an error.
	temp := t.TempDir()

	_, err := config.Load(temp)
	assert.Error(t, err)
}

func TestConfigLoadSuccess(t *testing.T) {
	temp := t.TempDir()
	configPath := filepath.Join(temp, "config.yaml")
	dbPath := filepath.Join(temp, "coordinator.db")

	err := os.WriteFile(configPath, []byte(`
db_path: `+dbPath+`
tick_interval: 2s
`), 0644)
	require.NoError(t, err)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
}

func TestOrphanSweepTicks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TickInterval = 5 * time.Second
	cfg.OrphanSweepEach = 30 * time.Second
	assert.Equal(t, 6, orphanSweepTicks(cfg))

	cfg.OrphanSweepEach = time.Second
	assert.Equal(t, 1, orphanSweepTicks(cfg))

	cfg.TickInterval = 0
	assert.Equal(t, 1, orphanSweepTicks(cfg))
}

func TestRunStartsAndStopsOnCancel(t *testing.T) {
	temp := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(temp, "coordinator.db")
	cfg.TickInterval = 20 * time.Millisecond

	logger := log.New(io.Discard, "", 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after context cancellation")
	}
}
