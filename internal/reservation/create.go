package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
	"github.com/wsfleet/coordinator/internal/tags"
)

// ErrReservationWindowTooShort is returned when end-start is below
// models.MinReservationDuration.
var ErrReservationWindowTooShort = errors.New("reservation window shorter than minimum duration")

// CreateReservation creates a Pending reservation for the first template
// (in store order) whose tag set is a superset of tagNames. An empty label
// defaults to the matched template's name.
func (h *Handler) CreateReservation(ctx context.Context, userID, username string, tagNames []string, start, end time.Time, label string) (models.Reservation, error) {
	if end.Sub(start) < models.MinReservationDuration {
		return models.Reservation{}, ErrReservationWindowTooShort
	}

	tpl, err := h.findTemplateWithTags(ctx, tagNames)
	if err != nil {
		return models.Reservation{}, err
	}

	if label == "" {
		label = tpl.Name
	}

	r := models.Reservation{
		ID:               newID(),
		Status:           models.ReservationPending,
		RequestDate:      h.deps.Now(),
		StartDate:        start,
		EndDate:          end,
		UserID:           userID,
		Username:         username,
		TemplateID:       tpl.ID,
		UserLabel:        label,
		LastStatusUpdate: h.deps.Now(),
	}
	if err := h.store.PutReservation(ctx, r); err != nil {
		return models.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	h.deps.Logger.Logf("reservation created: %s for user %s", r.ID, username)
	return r, nil
}

// findTemplateWithTags returns the first template (in store order) whose
// tag set is a superset of tagNames.
func (h *Handler) findTemplateWithTags(ctx context.Context, tagNames []string) (models.Template, error) {
	allTags, err := h.store.ListTags(ctx)
	if err != nil {
		return models.Template{}, fmt.Errorf("list tags: %w", err)
	}
	requested := tags.ByString(allTags, tagNames)
	requestedIDs := make(map[string]bool, len(requested))
	for _, t := range requested {
		if t.ID != "" {
			requestedIDs[t.ID] = true
		}
	}

	templates, err := h.store.ListTemplates(ctx)
	if err != nil {
		return models.Template{}, fmt.Errorf("list templates: %w", err)
	}
	for _, tpl := range templates {
		have := make(map[string]bool, len(tpl.TagIDs))
		for _, id := range tpl.TagIDs {
			have[id] = true
		}
		matches := true
		for id := range requestedIDs {
			if !have[id] {
				matches = false
				break
			}
		}
		if matches {
			return tpl, nil
		}
	}
	return models.Template{}, ErrNoTemplateMatchesTags
}

// CancelReservation sets r's status to Cancelled; the next tick performs
// the actual teardown. Never fails except on a storage error or an unknown
// reservation ID.
func (h *Handler) CancelReservation(ctx context.Context, reservationID string) error {
	r, err := h.store.GetReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("load reservation %s: %w", reservationID, err)
	}
	return h.transitionReservation(ctx, r, models.ReservationCancelled)
}

// RestartWorkstationForReservation marks r's workstation for a restart on
// the next tick. It reports false when r has no workstation yet.
func (h *Handler) RestartWorkstationForReservation(ctx context.Context, reservationID string) (bool, error) {
	r, err := h.store.GetReservation(ctx, reservationID)
	if err != nil {
		return false, fmt.Errorf("load reservation %s: %w", reservationID, err)
	}
	if r.WorkstationID == "" {
		return false, nil
	}
	ws, err := h.store.GetWorkstation(ctx, r.WorkstationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load workstation %s: %w", r.WorkstationID, err)
	}
	if _, err := h.transitionWorkstation(ctx, ws, models.WorkstationRestart); err != nil {
		return false, err
	}
	return true, nil
}
