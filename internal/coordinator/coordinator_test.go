package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/engineadapter/enginetest"
	"github.com/wsfleet/coordinator/internal/enginehandler"
	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/reservation"
	"github.com/wsfleet/coordinator/internal/rpcclient"
	"github.com/wsfleet/coordinator/internal/store/sqlite"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *sqlite.Store, *enginetest.FakeEngine) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "wsfleet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fake := enginetest.NewFakeEngine()
	engines := enginehandler.New(st, func(string) rpcclient.Caller { return fake }, enginehandler.Deps{})
	reservations := reservation.New(st, engines, reservation.Deps{})
	c := New(st, engines, reservations, Deps{TickInterval: 20 * time.Millisecond})
	return c, st, fake
}

func TestCoordinatorStartIsIdempotent(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsActive())
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsActive())

	c.Stop()
	assert.False(t, c.IsActive())
}

func TestCoordinatorTicksPendingReservationToApproved(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	host := models.Host{ID: "host-1", EngineIDs: []string{"engine-1"}}
	engine := models.Engine{ID: "engine-1", TypeID: "type-proxmox", MaxResources: models.ResourceMap{"cpu": 8}}
	tpl := models.Template{ID: "tpl-1", InternalName: "ubuntu", AllowedEngineTypeIDs: []string{"type-proxmox"}, ResourceRequirements: models.ResourceMap{"cpu": 2}}
	require.NoError(t, st.PutHost(ctx, host))
	require.NoError(t, st.PutEngine(ctx, engine))
	require.NoError(t, st.PutTemplate(ctx, tpl))

	r := models.Reservation{ID: "res-1", Status: models.ReservationPending, TemplateID: tpl.ID, RequestDate: time.Now(), StartDate: time.Now(), EndDate: time.Now().Add(time.Hour)}
	require.NoError(t, st.PutReservation(ctx, r))

	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	require.Eventually(t, func() bool {
		updated, err := st.GetReservation(ctx, r.ID)
		return err == nil && updated.Status == models.ReservationApproved
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinatorSnapshotReportsPendingReservations(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()

	tpl := models.Template{ID: "tpl-1", Name: "Ubuntu"}
	require.NoError(t, st.PutTemplate(ctx, tpl))
	r := models.Reservation{ID: "res-1", Status: models.ReservationPending, TemplateID: tpl.ID, RequestDate: time.Now()}
	require.NoError(t, st.PutReservation(ctx, r))

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Templates, 1)
	require.Len(t, snap.PendingReservations, 1)
	assert.Equal(t, "res-1", snap.PendingReservations[0].ID)
}
