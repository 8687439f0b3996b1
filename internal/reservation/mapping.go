package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

// CreateMappingForReservation archives any mapping currently attached to r
// and issues a fresh one, writing external_path as /novnc/{id} and
// attaching it to r.
func (h *Handler) CreateMappingForReservation(ctx context.Context, r models.Reservation) (models.ProxyMapping, error) {
	if err := h.archiveMappingForReservationIfExists(ctx, r); err != nil {
		return models.ProxyMapping{}, err
	}
	mapping := models.ProxyMapping{
		ID:            newID(),
		WorkstationID: r.WorkstationID,
		CreatedAt:     h.deps.Now(),
	}
	mapping.ExternalPath = "/novnc/" + mapping.ID
	if err := h.store.PutProxyMapping(ctx, mapping); err != nil {
		return models.ProxyMapping{}, fmt.Errorf("create proxy mapping: %w", err)
	}
	r.ProxyMappingID = mapping.ID
	if err := h.store.PutReservation(ctx, r); err != nil {
		return models.ProxyMapping{}, fmt.Errorf("attach mapping to reservation %s: %w", r.ID, err)
	}
	return mapping, nil
}

// GetMappingForReservation is CreateMappingForReservation under the name
// the reference handler exposes to the web layer.
func (h *Handler) GetMappingForReservation(ctx context.Context, r models.Reservation) (models.ProxyMapping, error) {
	return h.CreateMappingForReservation(ctx, r)
}

// AccessReservation archives any current mapping and mints a fresh one,
// the operation the web layer calls when a user opens a reservation's
// console.
func (h *Handler) AccessReservation(ctx context.Context, r models.Reservation) (models.ProxyMapping, error) {
	return h.CreateMappingForReservation(ctx, r)
}

// archiveMappingForReservationIfExists archives r's current mapping, if
// any, and detaches it from r.
func (h *Handler) archiveMappingForReservationIfExists(ctx context.Context, r models.Reservation) error {
	if r.ProxyMappingID == "" {
		return nil
	}
	mapping, err := h.store.GetProxyMapping(ctx, r.ProxyMappingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load proxy mapping %s: %w", r.ProxyMappingID, err)
	}
	mapping.Archived = true
	mapping.ArchivedAt = h.deps.Now()
	if err := h.store.PutProxyMapping(ctx, mapping); err != nil {
		return fmt.Errorf("archive proxy mapping %s: %w", mapping.ID, err)
	}
	r.ProxyMappingID = ""
	if err := h.store.PutReservation(ctx, r); err != nil {
		return fmt.Errorf("detach mapping from reservation %s: %w", r.ID, err)
	}
	return nil
}

// GetMappingTargetByID resolves a proxy token to the workstation endpoint
// it should forward to. It returns "" when id is unknown or archived.
// The first successful resolution binds the mapping (looked_up := true)
// and returns ip:port; every subsequent call returns the external path
// instead, so a second hop through the proxy layer re-resolves by path
// rather than by the original one-shot token.
func (h *Handler) GetMappingTargetByID(ctx context.Context, id string) (string, error) {
	mapping, err := h.store.GetProxyMapping(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load proxy mapping %s: %w", id, err)
	}
	if mapping.Archived {
		return "", nil
	}
	if mapping.LookedUp {
		return mapping.ExternalPath, nil
	}

	ws, err := h.store.GetWorkstation(ctx, mapping.WorkstationID)
	if err != nil {
		return "", fmt.Errorf("load workstation %s for mapping %s: %w", mapping.WorkstationID, id, err)
	}
	port := ws.Port
	if port == 0 {
		port = models.DefaultMappingPort
	}
	target := ws.IP + ":" + strconv.Itoa(port)

	mapping.LookedUp = true
	if err := h.store.PutProxyMapping(ctx, mapping); err != nil {
		return "", fmt.Errorf("mark proxy mapping %s looked up: %w", id, err)
	}
	return target, nil
}

// GetMappingTargetByPath resolves a mapping by its external path instead
// of by ID, for the inbound reverse-proxy path /novnc/{id}.
func (h *Handler) GetMappingTargetByPath(ctx context.Context, path string) (string, error) {
	mapping, err := h.store.GetProxyMappingByPath(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load proxy mapping by path %s: %w", path, err)
	}
	id := strings.TrimPrefix(mapping.ExternalPath, "/novnc/")
	return h.GetMappingTargetByID(ctx, id)
}
