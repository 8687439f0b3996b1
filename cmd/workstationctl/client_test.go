package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSnapshotOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/snapshot", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"engine_types":[{"id":"et-1","name":"proxmox"}],"templates":[],"pending_reservations":[]}`))
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, time.Second)
	snap, err := client.fetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.EngineTypes, 1)
	assert.Equal(t, "proxmox", snap.EngineTypes[0].Name)
}

func TestFetchSnapshotErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL, time.Second)
	_, err := client.fetchSnapshot(context.Background())
	assert.Error(t, err)
}
