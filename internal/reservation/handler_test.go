package reservation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store/sqlite"
)

type fakeEngineOps struct {
	setupCalls   int
	cleanupCalls int
	restartCalls int
	running      map[string]bool
	failSetup    bool
}

func newFakeEngineOps() *fakeEngineOps {
	return &fakeEngineOps{running: make(map[string]bool)}
}

func (f *fakeEngineOps) SetupWorkstationForReservation(ctx context.Context, r models.Reservation, ws models.Workstation, tpl models.Template, callback func(error)) error {
	f.setupCalls++
	f.running[r.ID] = true
	var err error
	if f.failSetup {
		err = assert.AnError
	}
	go func() {
		f.running[r.ID] = false
		callback(err)
	}()
	return nil
}

func (f *fakeEngineOps) IsSetupRunning(reservationID string) bool {
	return f.running[reservationID]
}

func (f *fakeEngineOps) StartWorkstationCleanupForReservation(r models.Reservation, ws models.Workstation, callback func(error)) {
	f.cleanupCalls++
	go callback(nil)
}

func (f *fakeEngineOps) CleanupWorkstation(ctx context.Context, ws models.Workstation) error {
	f.cleanupCalls++
	return nil
}

func (f *fakeEngineOps) RestartWorkstationForReservation(r models.Reservation, ws models.Workstation, callback func(error)) {
	f.restartCalls++
	go callback(nil)
}

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "wsfleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedBasics(t *testing.T, st *sqlite.Store) (models.Engine, models.Template) {
	t.Helper()
	ctx := context.Background()
	host := models.Host{ID: "host-1", Name: "node1", IPAddress: "10.0.0.1", EngineIDs: []string{"engine-1"}}
	engine := models.Engine{ID: "engine-1", TypeID: "type-proxmox", MaxResources: models.ResourceMap{"cpu": 8}}
	tpl := models.Template{ID: "tpl-1", Name: "Ubuntu", InternalName: "ubuntu", AllowedEngineTypeIDs: []string{"type-proxmox"}, ResourceRequirements: models.ResourceMap{"cpu": 4}}
	require.NoError(t, st.PutHost(ctx, host))
	require.NoError(t, st.PutEngine(ctx, engine))
	require.NoError(t, st.PutTemplate(ctx, tpl))
	return engine, tpl
}

func TestHandlePendingApprovesWhenCapacityFits(t *testing.T) {
	st := openTestStore(t)
	_, tpl := seedBasics(t, st)
	ops := newFakeEngineOps()
	h := New(st, ops, Deps{})
	ctx := context.Background()

	r := models.Reservation{ID: "res-1", Status: models.ReservationPending, RequestDate: time.Now(), TemplateID: tpl.ID, StartDate: time.Now(), EndDate: time.Now().Add(time.Hour)}
	require.NoError(t, st.PutReservation(ctx, r))

	require.NoError(t, h.Tick(ctx))

	updated, err := st.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationApproved, updated.Status)
	require.NotEmpty(t, updated.WorkstationID)

	ws, err := st.GetWorkstation(ctx, updated.WorkstationID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkstationScheduled, ws.Status)
}

func TestHandlePendingRejectsWhenNoCapacity(t *testing.T) {
	st := openTestStore(t)
	_, tpl := seedBasics(t, st)
	ctx := context.Background()
	// Shrink the engine's envelope so it can host exactly one instance of
	// the template, not two overlapping ones.
	engine, err := st.GetEngine(ctx, "engine-1")
	require.NoError(t, err)
	engine.MaxResources = models.ResourceMap{"cpu": 4}
	require.NoError(t, st.PutEngine(ctx, engine))
	ops := newFakeEngineOps()
	h := New(st, ops, Deps{})

	existingWs := models.Workstation{ID: "ws-existing", EngineID: "engine-1", TemplateID: tpl.ID, Status: models.WorkstationActive}
	require.NoError(t, st.PutWorkstation(ctx, existingWs))
	existing := models.Reservation{ID: "res-existing", Status: models.ReservationActive, TemplateID: tpl.ID, WorkstationID: existingWs.ID, RequestDate: time.Now(), StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(2 * time.Hour)}
	require.NoError(t, st.PutReservation(ctx, existing))

	r := models.Reservation{ID: "res-new", Status: models.ReservationPending, RequestDate: time.Now(), TemplateID: tpl.ID, StartDate: time.Now(), EndDate: time.Now().Add(time.Hour)}
	require.NoError(t, st.PutReservation(ctx, r))

	require.NoError(t, h.Tick(ctx))

	updated, err := st.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationRejected, updated.Status)
}

func TestHandleApprovedStartsSetupThenBecomesActive(t *testing.T) {
	st := openTestStore(t)
	engine, tpl := seedBasics(t, st)
	ops := newFakeEngineOps()
	h := New(st, ops, Deps{})
	ctx := context.Background()

	ws := models.Workstation{ID: "ws-1", EngineID: engine.ID, TemplateID: tpl.ID, Status: models.WorkstationScheduled}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", Status: models.ReservationApproved, TemplateID: tpl.ID, WorkstationID: ws.ID, RequestDate: time.Now(), StartDate: time.Now().Add(-time.Minute), EndDate: time.Now().Add(time.Hour)}
	require.NoError(t, st.PutReservation(ctx, r))

	require.NoError(t, h.Tick(ctx))
	assert.Equal(t, 1, ops.setupCalls)

	wsAfterTick, err := st.GetWorkstation(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkstationSetup, wsAfterTick.Status)

	require.Eventually(t, func() bool {
		w, err := st.GetWorkstation(ctx, ws.ID)
		return err == nil && w.Status == models.WorkstationActive
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Tick(ctx))
	updated, err := st.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationActive, updated.Status)
}

func TestHandleActiveCleansUpAfterEndDate(t *testing.T) {
	st := openTestStore(t)
	engine, tpl := seedBasics(t, st)
	ops := newFakeEngineOps()
	h := New(st, ops, Deps{})
	ctx := context.Background()

	ws := models.Workstation{ID: "ws-1", EngineID: engine.ID, TemplateID: tpl.ID, Status: models.WorkstationActive, EngineInternalName: "SomeVM"}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", Status: models.ReservationActive, TemplateID: tpl.ID, WorkstationID: ws.ID, RequestDate: time.Now(), StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(-time.Minute)}
	require.NoError(t, st.PutReservation(ctx, r))

	require.NoError(t, h.Tick(ctx))
	assert.Equal(t, 1, ops.cleanupCalls)

	require.Eventually(t, func() bool {
		r, err := st.GetReservation(ctx, r.ID)
		return err == nil && r.Status == models.ReservationCompleted
	}, time.Second, 5*time.Millisecond)

	wsFinal, err := st.GetWorkstation(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkstationArchived, wsFinal.Status)
}

func TestHandleCancelledCleansUpSynchronously(t *testing.T) {
	st := openTestStore(t)
	engine, tpl := seedBasics(t, st)
	ops := newFakeEngineOps()
	h := New(st, ops, Deps{})
	ctx := context.Background()

	ws := models.Workstation{ID: "ws-1", EngineID: engine.ID, TemplateID: tpl.ID, Status: models.WorkstationActive}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", Status: models.ReservationCancelled, TemplateID: tpl.ID, WorkstationID: ws.ID, RequestDate: time.Now()}
	require.NoError(t, st.PutReservation(ctx, r))

	require.NoError(t, h.Tick(ctx))
	assert.Equal(t, 1, ops.cleanupCalls)

	wsFinal, err := st.GetWorkstation(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkstationArchived, wsFinal.Status)
}

func TestCreateReservationMatchesTemplateByTags(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	tag := models.Tag{ID: "tag-gpu", Name: "gpu"}
	require.NoError(t, st.PutTag(ctx, tag))
	tpl := models.Template{ID: "tpl-1", Name: "GPU Box", InternalName: "gpu-box", TagIDs: []string{"tag-gpu"}}
	require.NoError(t, st.PutTemplate(ctx, tpl))

	h := New(st, newFakeEngineOps(), Deps{})
	start := time.Now()
	r, err := h.CreateReservation(ctx, "user-1", "alice", []string{"gpu"}, start, start.Add(time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, r.TemplateID)
	assert.Equal(t, tpl.Name, r.UserLabel)
	assert.Equal(t, models.ReservationPending, r.Status)
}

func TestCreateReservationRejectsShortWindow(t *testing.T) {
	st := openTestStore(t)
	h := New(st, newFakeEngineOps(), Deps{})
	start := time.Now()
	_, err := h.CreateReservation(context.Background(), "user-1", "alice", nil, start, start.Add(time.Minute), "")
	assert.ErrorIs(t, err, ErrReservationWindowTooShort)
}

func TestProxyMappingOneShotResolution(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	ws := models.Workstation{ID: "ws-1", IP: "10.0.0.5", Port: 5901}
	require.NoError(t, st.PutWorkstation(ctx, ws))
	r := models.Reservation{ID: "res-1", WorkstationID: ws.ID}
	require.NoError(t, st.PutReservation(ctx, r))

	h := New(st, newFakeEngineOps(), Deps{})
	mapping, err := h.GetMappingForReservation(ctx, r)
	require.NoError(t, err)

	first, err := h.GetMappingTargetByID(ctx, mapping.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:5901", first)

	second, err := h.GetMappingTargetByID(ctx, mapping.ID)
	require.NoError(t, err)
	assert.Equal(t, mapping.ExternalPath, second)
}
