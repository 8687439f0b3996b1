package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wsfleet/coordinator/internal/models"
	"github.com/wsfleet/coordinator/internal/store"
)

// ErrNoTemplateMatchesTags is returned by CreateReservation when no
// template's tag set is a superset of the requested tags.
var ErrNoTemplateMatchesTags = errors.New("no template matches requested tags")

// Deps bundles the handler's optional collaborators.
type Deps struct {
	Logger  Logger
	Metrics MetricsSink
	Now     func() time.Time
}

// Handler drives the reservation state machine against a Store and an
// engine handler.
type Handler struct {
	store   store.Store
	engines EngineOps
	deps    Deps
}

// New constructs a Handler.
func New(st store.Store, engines EngineOps, deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = discardLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{store: st, engines: engines, deps: deps}
}

// Tick runs one pass of the reservation state machine over every
// reservation, ordered by request date ascending, matching the reference
// coordinator's handle().
func (h *Handler) Tick(ctx context.Context) error {
	reservations, err := h.store.ListReservations(ctx)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}
	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].RequestDate.Before(reservations[j].RequestDate)
	})

	for _, r := range reservations {
		if err := h.handleOne(ctx, r); err != nil {
			h.deps.Logger.Logf("reservation %s: %v", r.ID, err)
		}
	}
	return nil
}

func (h *Handler) handleOne(ctx context.Context, r models.Reservation) error {
	switch r.Status {
	case models.ReservationPending:
		return h.handlePending(ctx, r)
	case models.ReservationApproved:
		return h.handleApproved(ctx, r)
	case models.ReservationActive:
		return h.handleActive(ctx, r)
	case models.ReservationCancelled:
		return h.handleCancelled(ctx, r)
	case models.ReservationBroken:
		return h.handleBroken(ctx, r)
	default:
		return nil
	}
}

// transitionReservation persists r with a new status and records the
// transition metric.
func (h *Handler) transitionReservation(ctx context.Context, r models.Reservation, to models.ReservationStatus) error {
	from := r.Status
	r.Status = to
	r.LastStatusUpdate = h.deps.Now()
	if err := h.store.PutReservation(ctx, r); err != nil {
		return fmt.Errorf("persist reservation %s: %w", r.ID, err)
	}
	h.deps.Metrics.IncReservationTransition(from, to)
	return nil
}

// transitionWorkstation persists ws with a new status and records the
// transition metric.
func (h *Handler) transitionWorkstation(ctx context.Context, ws models.Workstation, to models.WorkstationStatus) (models.Workstation, error) {
	from := ws.Status
	ws.Status = to
	ws.LastStatusUpdate = h.deps.Now()
	if err := h.store.PutWorkstation(ctx, ws); err != nil {
		return ws, fmt.Errorf("persist workstation %s: %w", ws.ID, err)
	}
	h.deps.Metrics.IncWorkstationTransition(from, to)
	return ws, nil
}
