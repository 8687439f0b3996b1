package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wsfleet/coordinator/internal/models"
)

// Snapshot is the coordinator's diagnostic state dump: engine types,
// templates, and pending reservations, the same facts the reference
// coordinator's one-shot _list_info prints at startup.
type Snapshot struct {
	EngineTypes        []models.EngineType  `json:"engine_types"`
	Templates          []models.Template    `json:"templates"`
	PendingReservations []models.Reservation `json:"pending_reservations"`
}

// Snapshot builds a point-in-time diagnostic dump of the coordinator's
// inventory and queue.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	engineTypes, err := c.store.ListEngineTypes(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list engine types: %w", err)
	}
	templates, err := c.store.ListTemplates(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list templates: %w", err)
	}
	pending, err := c.store.ListReservationsByStatus(ctx, models.ReservationPending)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list pending reservations: %w", err)
	}
	return Snapshot{EngineTypes: engineTypes, Templates: templates, PendingReservations: pending}, nil
}

// logSnapshot is the startup diagnostic dump the reference coordinator
// performs once before entering its main loop.
func (c *Coordinator) logSnapshot(ctx context.Context) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		c.deps.Logger.Logf("snapshot: %v", err)
		return
	}
	c.deps.Logger.Logf("listing all engine types")
	for _, et := range snap.EngineTypes {
		c.deps.Logger.Logf("engine type: %s", et.Name)
	}
	c.deps.Logger.Logf("listing all templates")
	for _, t := range snap.Templates {
		c.deps.Logger.Logf("template: %s", t.Name)
	}
	c.deps.Logger.Logf("checking for pending reservations: %d pending", len(snap.PendingReservations))
}

func (c *Coordinator) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := c.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}
