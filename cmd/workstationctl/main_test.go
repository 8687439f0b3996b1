package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintSnapshotPlainOutput(t *testing.T) {
	snap := snapshot{}
	snap.EngineTypes = append(snap.EngineTypes, struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}{ID: "et-1", Name: "proxmox"})
	snap.PendingReservations = append(snap.PendingReservations, struct {
		ID         string `json:"id"`
		TemplateID string `json:"TemplateID"`
		Username   string `json:"username"`
	}{ID: "res-1", TemplateID: "tpl-1", Username: "alice"})

	path := filepath.Join(t.TempDir(), "out.txt")
	f, err := os.Create(path)
	require.NoError(t, err)

	printSnapshot(f, snap)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "proxmox")
	assert.Contains(t, out, "res-1")
	assert.Contains(t, out, "alice")
}
