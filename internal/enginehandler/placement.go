package enginehandler

import (
	"github.com/wsfleet/coordinator/internal/models"
)

// loadBearingReservationStatuses are the reservation states whose
// workstation's engine already carries the reservation's resource load, mirroring
// reservations_with_engine in the reference _get_max_load_at_time (every
// status except Pending/Rejected/Completed/Cancelled).
var loadBearingReservationStatuses = map[models.ReservationStatus]bool{
	models.ReservationApproved: true,
	models.ReservationActive:   true,
	models.ReservationBroken:   true,
}

// SupportedEngines returns the engines whose type is among tpl's allowed
// engine types.
func SupportedEngines(tpl models.Template, engines []models.Engine) []models.Engine {
	allowed := make(map[string]bool, len(tpl.AllowedEngineTypeIDs))
	for _, id := range tpl.AllowedEngineTypeIDs {
		allowed[id] = true
	}
	var out []models.Engine
	for _, e := range engines {
		if allowed[e.TypeID] {
			out = append(out, e)
		}
	}
	return out
}

// AggregateLoad sums the resource requirements of every template behind a
// reservation already assigned to engine, restricted to the reservations
// slice the caller passes (typically those overlapping some time window)
// and to reservations in a load-bearing status. workstations maps a
// reservation's workstation ID to its record, whose EngineID gives the
// engine it is scheduled on.
func AggregateLoad(engine models.Engine, reservations []models.Reservation, workstations map[string]models.Workstation, templates map[string]models.Template) models.ResourceMap {
	load := models.ResourceMap{}
	for _, r := range reservations {
		if !loadBearingReservationStatuses[r.Status] {
			continue
		}
		ws, ok := workstations[r.WorkstationID]
		if !ok || ws.EngineID != engine.ID {
			continue
		}
		tpl, ok := templates[r.TemplateID]
		if !ok {
			continue
		}
		load = load.Add(tpl.ResourceRequirements)
	}
	return load
}

// Capacity returns engine's maximum resource envelope.
func Capacity(engine models.Engine) models.ResourceMap {
	return engine.MaxResources
}

// FitsReservation reports whether tpl's resource requirements, added to
// engine's existing load from reservations, stay within engine's capacity
// on every dimension the template names.
func FitsReservation(engine models.Engine, tpl models.Template, existingLoad models.ResourceMap) bool {
	cumulative := existingLoad.Add(tpl.ResourceRequirements)
	return tpl.ResourceRequirements.Fits(engine.MaxResources) && cumulativeFits(cumulative, engine.MaxResources, tpl.ResourceRequirements)
}

func cumulativeFits(cumulative, capacity, dims models.ResourceMap) bool {
	for k := range dims {
		if cumulative[k] > capacity[k] {
			return false
		}
	}
	return true
}
