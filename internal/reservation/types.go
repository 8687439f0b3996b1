// Package reservation implements the coordinator's per-tick reservation
// state machine: admission onto an engine, dispatch through the workstation
// lifecycle, proxy-mapping issuance, and the handful of user-initiated
// intents (create, cancel, restart, access) a web front-end would call
// through this package. It is the Go counterpart of the reference
// coordinator's ReservationHandler.
package reservation

import (
	"context"
	"log"
	"time"

	"github.com/wsfleet/coordinator/internal/models"
)

// EngineOps is the subset of *enginehandler.Handler the reservation state
// machine drives. Defined here so tests can substitute a fake without
// pulling in a real client registry.
type EngineOps interface {
	SetupWorkstationForReservation(ctx context.Context, r models.Reservation, ws models.Workstation, tpl models.Template, callback func(error)) error
	IsSetupRunning(reservationID string) bool
	StartWorkstationCleanupForReservation(r models.Reservation, ws models.Workstation, callback func(error))
	CleanupWorkstation(ctx context.Context, ws models.Workstation) error
	RestartWorkstationForReservation(r models.Reservation, ws models.Workstation, callback func(error))
}

// Logger is the minimal logging surface the handler needs.
type Logger interface {
	Logf(format string, args ...interface{})
}

type discardLogger struct{}

func (discardLogger) Logf(string, ...interface{}) {}

// StdLogger adapts a *log.Logger to Logger.
type StdLogger struct{ *log.Logger }

// Logf implements Logger.
func (s StdLogger) Logf(format string, args ...interface{}) {
	if s.Logger == nil {
		return
	}
	s.Printf(format, args...)
}

// MetricsSink is the subset of internal/metrics.Metrics the handler drives.
type MetricsSink interface {
	IncReservationTransition(from, to models.ReservationStatus)
	IncWorkstationTransition(from, to models.WorkstationStatus)
}

type noopMetrics struct{}

func (noopMetrics) IncReservationTransition(models.ReservationStatus, models.ReservationStatus) {}
func (noopMetrics) IncWorkstationTransition(models.WorkstationStatus, models.WorkstationStatus)  {}
