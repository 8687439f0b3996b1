package enginehandler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/engineadapter/enginetest"
	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/rpcclient"
	"github.com/wsfleet/coordinator/internal/store/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "wsfleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedEngine(t *testing.T, st *sqlite.Store, fake *enginetest.FakeEngine) (models.Host, models.Engine, models.Template) {
	t.Helper()
	ctx := context.Background()

	host := models.Host{ID: "host-1", Name: "node1", IPAddress: "10.0.0.1", EngineIDs: []string{"engine-1"}}
	engine := models.Engine{ID: "engine-1", Name: "proxmox-1", Port: 9000, TypeID: "type-proxmox", MaxResources: models.ResourceMap{"cpu": 16, "memory": 32768}}
	tpl := models.Template{ID: "tpl-1", Name: "Ubuntu Desktop", InternalName: "ubuntu-desktop", AllowedEngineTypeIDs: []string{"type-proxmox"}, ResourceRequirements: models.ResourceMap{"cpu": 4, "memory": 8192}}

	require.NoError(t, st.PutHost(ctx, host))
	require.NoError(t, st.PutEngine(ctx, engine))
	require.NoError(t, st.PutTemplate(ctx, tpl))
	fake.AddTemplate(tpl.InternalName)
	return host, engine, tpl
}

func newTestHandler(st *sqlite.Store, fake *enginetest.FakeEngine) *Handler {
	return New(st, func(string) rpcclient.Caller { return fake }, Deps{})
}

func TestSetupWorkstationForReservationReachesActive(t *testing.T) {
	st := openTestStore(t)
	fake := enginetest.NewFakeEngine()
	_, engine, tpl := seedEngine(t, st, fake)
	h := newTestHandler(st, fake)
	ctx := context.Background()

	ws := models.Workstation{ID: "ws-1", TemplateID: tpl.ID, EngineID: engine.ID, Status: models.WorkstationSetup}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", Username: "alice", RequestDate: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), TemplateID: tpl.ID, WorkstationID: ws.ID}

	done := make(chan error, 1)
	require.NoError(t, h.SetupWorkstationForReservation(ctx, r, ws, tpl, func(err error) { done <- err }))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("setup did not complete in time")
	}

	updated, err := st.GetWorkstation(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkstationActive, updated.Status)
	assert.NotEmpty(t, updated.IP)
	assert.Equal(t, "AliceUbuntu-desktop20260102030405", updated.EngineInternalName)
}

func TestSetupWorkstationRejectsConcurrentRun(t *testing.T) {
	st := openTestStore(t)
	fake := enginetest.NewFakeEngine()
	_, engine, tpl := seedEngine(t, st, fake)
	h := newTestHandler(st, fake)
	ctx := context.Background()

	ws := models.Workstation{ID: "ws-1", TemplateID: tpl.ID, EngineID: engine.ID, Status: models.WorkstationSetup}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", Username: "bob", RequestDate: time.Now(), TemplateID: tpl.ID, WorkstationID: ws.ID}

	require.NoError(t, h.SetupWorkstationForReservation(ctx, r, ws, tpl, nil))
	err := h.SetupWorkstationForReservation(ctx, r, ws, tpl, nil)
	assert.Error(t, err)
}

func TestCleanupWorkstationDeletesVM(t *testing.T) {
	st := openTestStore(t)
	fake := enginetest.NewFakeEngine()
	_, engine, tpl := seedEngine(t, st, fake)
	h := newTestHandler(st, fake)
	ctx := context.Background()

	_, err := fake.CreateVM(ctx, tpl.InternalName, "AliceFoo1")
	require.NoError(t, err)
	ws := models.Workstation{ID: "ws-1", EngineID: engine.ID, EngineInternalName: "AliceFoo1"}

	require.NoError(t, h.CleanupWorkstation(ctx, ws))
	exists, err := fake.VMExists(ctx, "AliceFoo1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCleanOrphanedWorkstationsReapsUntrackedVM(t *testing.T) {
	st := openTestStore(t)
	fake := enginetest.NewFakeEngine()
	_, engine, tpl := seedEngine(t, st, fake)
	h := newTestHandler(st, fake)
	ctx := context.Background()
	require.NoError(t, h.InitializeClients(ctx))

	_, err := fake.CreateVM(ctx, tpl.InternalName, "GhostVM123")
	require.NoError(t, err)

	require.NoError(t, h.CleanOrphanedWorkstations(ctx))

	exists, err := fake.VMExists(ctx, "GhostVM123")
	require.NoError(t, err)
	assert.False(t, exists)
	_ = engine
}

func TestCleanOrphanedWorkstationsKeepsTrackedVM(t *testing.T) {
	st := openTestStore(t)
	fake := enginetest.NewFakeEngine()
	_, engine, tpl := seedEngine(t, st, fake)
	h := newTestHandler(st, fake)
	ctx := context.Background()
	require.NoError(t, h.InitializeClients(ctx))

	_, err := fake.CreateVM(ctx, tpl.InternalName, "TrackedVM1")
	require.NoError(t, err)

	ws := models.Workstation{ID: "ws-1", EngineID: engine.ID, EngineInternalName: "TrackedVM1", Status: models.WorkstationActive}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", WorkstationID: ws.ID, Status: models.ReservationActive}
	require.NoError(t, st.PutReservation(ctx, r))

	require.NoError(t, h.CleanOrphanedWorkstations(ctx))

	exists, err := fake.VMExists(ctx, "TrackedVM1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGCSetupThreadsRemovesFinishedWorker(t *testing.T) {
	st := openTestStore(t)
	fake := enginetest.NewFakeEngine()
	_, engine, tpl := seedEngine(t, st, fake)
	h := newTestHandler(st, fake)
	ctx := context.Background()

	ws := models.Workstation{ID: "ws-1", TemplateID: tpl.ID, EngineID: engine.ID}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", Username: "carol", RequestDate: time.Now(), TemplateID: tpl.ID, WorkstationID: ws.ID}

	done := make(chan struct{})
	require.NoError(t, h.SetupWorkstationForReservation(ctx, r, ws, tpl, func(error) { close(done) }))
	<-done
	assert.True(t, h.IsSetupRunning(r.ID))
	h.GCSetupThreads()
	assert.False(t, h.IsSetupRunning(r.ID))
}

func TestAggregateLoadAndSupportedEngines(t *testing.T) {
	tpl := models.Template{ID: "tpl-1", AllowedEngineTypeIDs: []string{"type-a"}, ResourceRequirements: models.ResourceMap{"cpu": 4}}
	engineA := models.Engine{ID: "e-a", TypeID: "type-a", MaxResources: models.ResourceMap{"cpu": 16}}
	engineB := models.Engine{ID: "e-b", TypeID: "type-b", MaxResources: models.ResourceMap{"cpu": 16}}

	supported := SupportedEngines(tpl, []models.Engine{engineA, engineB})
	require.Len(t, supported, 1)
	assert.Equal(t, "e-a", supported[0].ID)

	ws := models.Workstation{ID: "ws-1", EngineID: "e-a"}
	r := models.Reservation{ID: "r-1", Status: models.ReservationActive, WorkstationID: ws.ID, TemplateID: tpl.ID}
	load := AggregateLoad(engineA, []models.Reservation{r}, map[string]models.Workstation{ws.ID: ws}, map[string]models.Template{tpl.ID: tpl})
	assert.Equal(t, 4, load["cpu"])
}

func TestGenerateVMName(t *testing.T) {
	r := models.Reservation{Username: "dave", RequestDate: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
	tpl := models.Template{InternalName: "win11-pro"}
	assert.Equal(t, "DaveWin11-pro20260304050607", GenerateVMName(r, tpl))
}
