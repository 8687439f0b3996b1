package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coordinator.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestEngineRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutEngineType(ctx, models.EngineType{ID: "proxmox", Name: "Proxmox"}))
	engine := models.Engine{
		ID:                  "engine-1",
		Name:                "hv1",
		Port:                5000,
		TypeID:              "proxmox",
		AvailableResources:  models.ResourceMap{"cpu": 16, "memory_mb": 32768},
		MaxResources:        models.ResourceMap{"cpu": 32, "memory_mb": 65536},
		AdditionalInfoJSON:  `{"node":"pve1"}`,
	}
	require.NoError(t, s.PutEngine(ctx, engine))

	got, err := s.GetEngine(ctx, "engine-1")
	require.NoError(t, err)
	require.Equal(t, engine.Name, got.Name)
	require.Equal(t, 16, got.AvailableResources["cpu"])
	require.Equal(t, `{"node":"pve1"}`, got.AdditionalInfoJSON)

	_, err = s.GetEngine(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWorkstationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutTemplate(ctx, models.Template{ID: "tpl-1", Name: "Base", InternalName: "base"}))
	now := time.Now().UTC().Truncate(time.Second)
	w := models.Workstation{
		ID:               "ws-1",
		IP:               "10.10.0.5",
		Port:             3389,
		TemplateID:       "tpl-1",
		Status:           models.WorkstationActive,
		LastStatusUpdate: now,
		BootStartedAt:    now,
		BootCompletedAt:  now.Add(30 * time.Second),
	}
	require.NoError(t, s.PutWorkstation(ctx, w))

	got, err := s.GetWorkstation(ctx, "ws-1")
	require.NoError(t, err)
	require.Equal(t, models.WorkstationActive, got.Status)
	require.WithinDuration(t, now, got.LastStatusUpdate, time.Second)

	active, err := s.ListWorkstationsByStatus(ctx, models.WorkstationActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.DeleteWorkstation(ctx, "ws-1"))
	_, err = s.GetWorkstation(ctx, "ws-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestReservationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutTemplate(ctx, models.Template{ID: "tpl-1", Name: "Base", InternalName: "base"}))

	now := time.Now().UTC().Truncate(time.Second)
	r := models.Reservation{
		ID:               "res-1",
		Status:           models.ReservationPending,
		RequestDate:      now,
		StartDate:        now.Add(time.Hour),
		EndDate:          now.Add(2 * time.Hour),
		UserID:           "u1",
		Username:         "alice",
		TemplateID:       "tpl-1",
		LastStatusUpdate: now,
	}
	require.NoError(t, s.PutReservation(ctx, r))

	got, err := s.GetReservation(ctx, "res-1")
	require.NoError(t, err)
	require.Equal(t, models.ReservationPending, got.Status)

	pending, err := s.ListReservationsByStatus(ctx, models.ReservationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestProxyMappingLookupByPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutTemplate(ctx, models.Template{ID: "tpl-1", Name: "Base", InternalName: "base"}))
	require.NoError(t, s.PutWorkstation(ctx, models.Workstation{ID: "ws-1", TemplateID: "tpl-1", Status: models.WorkstationActive, LastStatusUpdate: time.Now()}))

	m := models.ProxyMapping{ID: "map-1", WorkstationID: "ws-1", ExternalPath: "/ws/abc123", CreatedAt: time.Now()}
	require.NoError(t, s.PutProxyMapping(ctx, m))

	got, err := s.GetProxyMappingByPath(ctx, "/ws/abc123")
	require.NoError(t, err)
	require.Equal(t, "ws-1", got.WorkstationID)
	require.False(t, got.LookedUp)
}
