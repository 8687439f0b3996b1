package enginehandler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wsfleet/coordinator/internal/models"
)

// workstationInFlightStatuses are the workstation states under which an
// engine-side VM is expected to exist and be actively managed, mirroring
// the reference _clean_orphaned_workstations' workstation_status_as_expected
// check.
var workstationInFlightStatuses = map[models.WorkstationStatus]bool{
	models.WorkstationActive:  true,
	models.WorkstationSetup:   true,
	models.WorkstationCleanup: true,
	models.WorkstationRestart: true,
}

// reservationInFlightStatuses mirrors reservation_status_as_expected.
var reservationInFlightStatuses = map[models.ReservationStatus]bool{
	models.ReservationApproved: true,
	models.ReservationActive:   true,
}

// CleanOrphanedWorkstations walks every engine's VM inventory concurrently
// and deletes any VM that has no corresponding live workstation/reservation
// pair, or whose workstation/reservation has fallen out of an in-flight
// status. One engine failing to list VMs does not stop the sweep for the
// others, matching the reference sweep's per-engine try/except/continue.
func (h *Handler) CleanOrphanedWorkstations(ctx context.Context) error {
	engines, err := h.store.ListEngines(ctx)
	if err != nil {
		return fmt.Errorf("list engines: %w", err)
	}
	workstations, err := h.store.ListWorkstations(ctx)
	if err != nil {
		return fmt.Errorf("list workstations: %w", err)
	}
	reservations, err := h.store.ListReservations(ctx)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}

	byVMName := make(map[string]models.Workstation, len(workstations))
	for _, ws := range workstations {
		if ws.EngineInternalName != "" {
			byVMName[ws.EngineInternalName] = ws
		}
	}
	reservationByWorkstation := make(map[string]models.Reservation, len(reservations))
	for _, r := range reservations {
		if r.WorkstationID != "" {
			reservationByWorkstation[r.WorkstationID] = r
		}
	}

	h.setupMu.Lock()
	inSetup := make(map[string]bool, len(h.setup))
	for _, w := range h.setup {
		inSetup[w.vmName] = true
	}
	h.setupMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, engine := range engines {
		engine := engine
		g.Go(func() error {
			h.sweepEngine(gctx, engine, byVMName, reservationByWorkstation, inSetup)
			return nil
		})
	}
	return g.Wait()
}

func (h *Handler) sweepEngine(ctx context.Context, engine models.Engine, byVMName map[string]models.Workstation, reservationByWorkstation map[string]models.Reservation, inSetup map[string]bool) {
	client, err := h.clientForEngine(ctx, engine.ID)
	if err != nil {
		h.deps.Logger.Logf("orphan sweep: spawn client for engine %s: %v", engine.ID, err)
		return
	}
	names, err := client.GetAllVMNames(ctx)
	if err != nil {
		h.deps.Logger.Logf("orphan sweep: list vm names for engine %s: %v", engine.ID, err)
		return
	}

	reaped := 0
	for _, name := range names {
		if inSetup[name] {
			h.deps.Logger.Logf("found vm %s in a setup worker, skipping", name)
			continue
		}
		ws, hasWorkstation := byVMName[name]
		r, hasReservation := reservationByWorkstation[ws.ID]
		if !hasWorkstation || !hasReservation {
			h.deps.Logger.Logf("found orphaned vm %s, deleting it", name)
			if err := deleteVM(ctx, client, name, h.deps.Logger); err != nil {
				h.deps.Logger.Logf("orphan sweep: delete vm %s: %v", name, err)
				continue
			}
			reaped++
			continue
		}

		if !workstationInFlightStatuses[ws.Status] || !reservationInFlightStatuses[r.Status] {
			h.deps.Logger.Logf("found orphaned vm %s, deleting it", name)
			if err := deleteVM(ctx, client, name, h.deps.Logger); err != nil {
				h.deps.Logger.Logf("orphan sweep: delete vm %s: %v", name, err)
				continue
			}
			reaped++
		}
	}
	h.deps.Metrics.IncOrphansReaped(engine.ID, reaped)
}
