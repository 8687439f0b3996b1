// Package store defines the persistence interface the coordinator, engine
// handler, and reservation handler code against. Tests exercise it against
// a real sqlite.Store rooted at a t.TempDir(), the same pattern the
// reference database package uses for its own tests, rather than a
// separate in-memory fake.
package store

import (
	"context"
	"errors"

	"github.com/wsfleet/coordinator/internal/models"
)

// ErrNotFound is returned by single-entity getters when no row matches.
var ErrNotFound = errors.New("not found")

// Store is the full persistence surface used by the coordinator.
type Store interface {
	Close() error

	ListTags(ctx context.Context) ([]models.Tag, error)
	GetTag(ctx context.Context, id string) (models.Tag, error)
	PutTag(ctx context.Context, tag models.Tag) error

	ListEngineTypes(ctx context.Context) ([]models.EngineType, error)
	GetEngineType(ctx context.Context, id string) (models.EngineType, error)
	PutEngineType(ctx context.Context, t models.EngineType) error

	ListEngines(ctx context.Context) ([]models.Engine, error)
	GetEngine(ctx context.Context, id string) (models.Engine, error)
	PutEngine(ctx context.Context, e models.Engine) error
	DeleteEngine(ctx context.Context, id string) error

	ListHosts(ctx context.Context) ([]models.Host, error)
	GetHost(ctx context.Context, id string) (models.Host, error)
	PutHost(ctx context.Context, h models.Host) error

	ListTemplates(ctx context.Context) ([]models.Template, error)
	GetTemplate(ctx context.Context, id string) (models.Template, error)
	PutTemplate(ctx context.Context, t models.Template) error

	ListWorkstations(ctx context.Context) ([]models.Workstation, error)
	GetWorkstation(ctx context.Context, id string) (models.Workstation, error)
	PutWorkstation(ctx context.Context, w models.Workstation) error
	DeleteWorkstation(ctx context.Context, id string) error
	ListWorkstationsByStatus(ctx context.Context, status models.WorkstationStatus) ([]models.Workstation, error)

	ListProxyMappings(ctx context.Context) ([]models.ProxyMapping, error)
	GetProxyMapping(ctx context.Context, id string) (models.ProxyMapping, error)
	GetProxyMappingByPath(ctx context.Context, externalPath string) (models.ProxyMapping, error)
	PutProxyMapping(ctx context.Context, m models.ProxyMapping) error

	ListReservations(ctx context.Context) ([]models.Reservation, error)
	GetReservation(ctx context.Context, id string) (models.Reservation, error)
	PutReservation(ctx context.Context, r models.Reservation) error
	ListReservationsByStatus(ctx context.Context, status models.ReservationStatus) ([]models.Reservation, error)
	ListReservationsForWorkstation(ctx context.Context, workstationID string) ([]models.Reservation, error)
}
