package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

func (h *Handler) handleApproved(ctx context.Context, r models.Reservation) error {
	now := h.deps.Now()
	if now.Before(r.StartDate) {
		return nil
	}
	if now.After(r.EndDate) {
		return h.transitionReservation(ctx, r, models.ReservationBroken)
	}
	ws, err := h.store.GetWorkstation(ctx, r.WorkstationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return h.transitionReservation(ctx, r, models.ReservationBroken)
		}
		return fmt.Errorf("load workstation %s: %w", r.WorkstationID, err)
	}

	switch ws.Status {
	case models.WorkstationScheduled:
		tpl, err := h.store.GetTemplate(ctx, r.TemplateID)
		if err != nil {
			return fmt.Errorf("load template %s: %w", r.TemplateID, err)
		}
		ws, err = h.transitionWorkstation(ctx, ws, models.WorkstationSetup)
		if err != nil {
			return err
		}
		return h.engines.SetupWorkstationForReservation(ctx, r, ws, tpl, h.onSetupComplete(ws.ID))

	case models.WorkstationSetup:
		if h.engines.IsSetupRunning(r.ID) {
			h.deps.Logger.Logf("workstation for reservation %s is already being set up", r.ID)
			return nil
		}
		h.deps.Logger.Logf("workstation for reservation %s has no running setup worker, reverting to scheduled", r.ID)
		_, err := h.transitionWorkstation(ctx, ws, models.WorkstationScheduled)
		return err

	case models.WorkstationActive:
		return h.transitionReservation(ctx, r, models.ReservationActive)

	case models.WorkstationRestart:
		h.engines.RestartWorkstationForReservation(r, ws, h.onSetupComplete(ws.ID))
		return nil

	default:
		h.deps.Logger.Logf("workstation for reservation %s has unexpected status %s", r.ID, ws.Status)
		return nil
	}
}

// onSetupComplete returns a callback that marks workstationID Active once a
// setup or restart worker finishes successfully. Errors are logged only;
// the next tick re-evaluates from whatever status the workstation is left
// in, per the system's no-exception-escapes-the-loop policy.
func (h *Handler) onSetupComplete(workstationID string) func(error) {
	return func(err error) {
		ctx := context.Background()
		if err != nil {
			h.deps.Logger.Logf("setup/restart for workstation %s failed: %v", workstationID, err)
			return
		}
		ws, getErr := h.store.GetWorkstation(ctx, workstationID)
		if getErr != nil {
			h.deps.Logger.Logf("setup complete for missing workstation %s: %v", workstationID, getErr)
			return
		}
		if _, err := h.transitionWorkstation(ctx, ws, models.WorkstationActive); err != nil {
			h.deps.Logger.Logf("mark workstation %s active: %v", workstationID, err)
		}
	}
}

func (h *Handler) handleActive(ctx context.Context, r models.Reservation) error {
	ws, err := h.store.GetWorkstation(ctx, r.WorkstationID)
	hasWorkstation := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load workstation %s: %w", r.WorkstationID, err)
	}

	if hasWorkstation && ws.Status == models.WorkstationRestart {
		h.engines.RestartWorkstationForReservation(r, ws, h.onSetupComplete(ws.ID))
	}

	now := h.deps.Now()
	if now.Before(r.EndDate) {
		if !hasWorkstation {
			return h.transitionReservation(ctx, r, models.ReservationBroken)
		}
		return nil
	}
	if !hasWorkstation {
		return nil
	}
	if ws.Status != models.WorkstationActive {
		h.deps.Logger.Logf("workstation for reservation %s is %s, not active, cleaning up anyway", r.ID, ws.Status)
	}

	ws, err = h.transitionWorkstation(ctx, ws, models.WorkstationCleanup)
	if err != nil {
		return err
	}
	reservationID := r.ID
	h.engines.StartWorkstationCleanupForReservation(r, ws, func(cleanupErr error) {
		ctx := context.Background()
		if cleanupErr != nil {
			h.deps.Logger.Logf("cleanup for reservation %s failed: %v", reservationID, cleanupErr)
		}
		latest, err := h.store.GetWorkstation(ctx, ws.ID)
		if err == nil {
			if _, err := h.transitionWorkstation(ctx, latest, models.WorkstationArchived); err != nil {
				h.deps.Logger.Logf("archive workstation %s: %v", ws.ID, err)
			}
		}
		latestRes, err := h.store.GetReservation(ctx, reservationID)
		if err == nil {
			if err := h.transitionReservation(ctx, latestRes, models.ReservationCompleted); err != nil {
				h.deps.Logger.Logf("complete reservation %s: %v", reservationID, err)
			}
		}
	})

	return h.archiveMappingForReservationIfExists(ctx, r)
}

func (h *Handler) handleCancelled(ctx context.Context, r models.Reservation) error {
	ws, err := h.store.GetWorkstation(ctx, r.WorkstationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load workstation %s: %w", r.WorkstationID, err)
	}
	switch ws.Status {
	case models.WorkstationActive, models.WorkstationSetup, models.WorkstationScheduled:
	default:
		return nil
	}

	ws, err = h.transitionWorkstation(ctx, ws, models.WorkstationCleanup)
	if err != nil {
		return err
	}
	if err := h.engines.CleanupWorkstation(ctx, ws); err != nil {
		h.deps.Logger.Logf("synchronous cleanup for cancelled reservation %s: %v", r.ID, err)
	}
	if _, err := h.transitionWorkstation(ctx, ws, models.WorkstationArchived); err != nil {
		return err
	}
	return h.archiveMappingForReservationIfExists(ctx, r)
}

func (h *Handler) handleBroken(ctx context.Context, r models.Reservation) error {
	ws, err := h.store.GetWorkstation(ctx, r.WorkstationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load workstation %s: %w", r.WorkstationID, err)
	}
	if ws.Status != models.WorkstationBroken {
		return nil
	}

	workstationID := ws.ID
	h.engines.StartWorkstationCleanupForReservation(r, ws, func(err error) {
		ctx := context.Background()
		if err != nil {
			h.deps.Logger.Logf("diagnostic cleanup for broken workstation %s: %v", workstationID, err)
		}
		latest, getErr := h.store.GetWorkstation(ctx, workstationID)
		if getErr != nil {
			return
		}
		if _, err := h.transitionWorkstation(ctx, latest, models.WorkstationBroken); err != nil {
			h.deps.Logger.Logf("restamp broken workstation %s: %v", workstationID, err)
		}
	})
	return nil
}
