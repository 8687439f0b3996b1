package reservation

import (
	"context"
	"fmt"

	"github.com/wsfleet/coordinator/internal/enginehandler"
	"github.com/wsfleet/coordinator/internal/models"
)

// handlePending tries to admit r onto the first engine, in store order,
// whose type the template allows and whose capacity (after accounting for
// every other already-admitted overlapping reservation) can still fit the
// template's resource requirements. On success r is attached to a fresh
// Scheduled workstation and moved to Approved; otherwise it is Rejected.
func (h *Handler) handlePending(ctx context.Context, r models.Reservation) error {
	tpl, err := h.store.GetTemplate(ctx, r.TemplateID)
	if err != nil {
		return fmt.Errorf("load template %s: %w", r.TemplateID, err)
	}

	overlapping, err := h.admittedOverlapping(ctx, r)
	if err != nil {
		return err
	}
	workstations, err := h.workstationsByID(ctx)
	if err != nil {
		return err
	}
	templates, err := h.templatesByID(ctx)
	if err != nil {
		return err
	}

	engines, err := h.store.ListEngines(ctx)
	if err != nil {
		return fmt.Errorf("list engines: %w", err)
	}
	hosts, err := h.store.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("list hosts: %w", err)
	}

	for _, engine := range engines {
		if !allowsEngineType(tpl, engine) {
			continue
		}
		existingLoad := enginehandler.AggregateLoad(engine, overlapping, workstations, templates)
		if !enginehandler.FitsReservation(engine, tpl, existingLoad) {
			h.deps.Logger.Logf("engine %s lacks capacity for reservation %s", engine.ID, r.ID)
			continue
		}

		host := firstHostForEngine(hosts, engine.ID)
		ws := models.Workstation{
			ID:               newID(),
			TemplateID:       tpl.ID,
			HostID:           host.ID,
			EngineID:         engine.ID,
			Status:           models.WorkstationScheduled,
			LastStatusUpdate: h.deps.Now(),
		}
		if err := h.store.PutWorkstation(ctx, ws); err != nil {
			return fmt.Errorf("create workstation for reservation %s: %w", r.ID, err)
		}
		r.WorkstationID = ws.ID
		if err := h.transitionReservation(ctx, r, models.ReservationApproved); err != nil {
			return err
		}
		h.deps.Logger.Logf("reservation %s approved on engine %s", r.ID, engine.ID)
		return nil
	}

	h.deps.Logger.Logf("no suitable engine found for reservation %s", r.ID)
	return h.transitionReservation(ctx, r, models.ReservationRejected)
}

func allowsEngineType(tpl models.Template, engine models.Engine) bool {
	for _, id := range tpl.AllowedEngineTypeIDs {
		if id == engine.TypeID {
			return true
		}
	}
	return false
}

func firstHostForEngine(hosts []models.Host, engineID string) models.Host {
	for _, hst := range hosts {
		for _, id := range hst.EngineIDs {
			if id == engineID {
				return hst
			}
		}
	}
	return models.Host{}
}

// admittedOverlapping returns every other reservation whose window
// intersects r's and that already has a workstation assigned (the
// reference handler's "reservations without workstation" exclusion).
func (h *Handler) admittedOverlapping(ctx context.Context, r models.Reservation) ([]models.Reservation, error) {
	all, err := h.store.ListReservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	var out []models.Reservation
	for _, other := range all {
		if other.ID == r.ID {
			continue
		}
		if other.WorkstationID == "" {
			continue
		}
		if r.Overlaps(other) {
			out = append(out, other)
		}
	}
	return out, nil
}

func (h *Handler) workstationsByID(ctx context.Context) (map[string]models.Workstation, error) {
	all, err := h.store.ListWorkstations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workstations: %w", err)
	}
	out := make(map[string]models.Workstation, len(all))
	for _, ws := range all {
		out[ws.ID] = ws
	}
	return out, nil
}

func (h *Handler) templatesByID(ctx context.Context) (map[string]models.Template, error) {
	all, err := h.store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	out := make(map[string]models.Template, len(all))
	for _, t := range all {
		out[t.ID] = t
	}
	return out, nil
}
