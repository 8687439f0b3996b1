package enginehandler

import (
	"context"
	"fmt"
	"time"

	"github.com/wsfleet/coordinator/internal/models"
)

// SetupWorkstationForReservation generates the VM name for r, persists it
// onto r's workstation, and launches a background goroutine that clones,
// boots, and waits for the guest agent and a routable IP before marking the
// workstation active. callback is invoked once, with the final error (nil
// on success), after the workstation record has been updated — the caller
// typically uses it to drive the reservation's own status transition, the
// same split of responsibility as the reference coordinator's setup
// callback.
func (h *Handler) SetupWorkstationForReservation(ctx context.Context, r models.Reservation, ws models.Workstation, tpl models.Template, callback func(error)) error {
	vmName := GenerateVMName(r, tpl)
	ws.EngineInternalName = vmName
	if err := h.store.PutWorkstation(ctx, ws); err != nil {
		return fmt.Errorf("persist vm name for workstation %s: %w", ws.ID, err)
	}

	h.setupMu.Lock()
	if _, running := h.setup[r.ID]; running {
		h.setupMu.Unlock()
		return fmt.Errorf("setup already running for reservation %s", r.ID)
	}
	w := &setupWorker{vmName: vmName, done: make(chan struct{})}
	h.setup[r.ID] = w
	h.setupMu.Unlock()

	go func() {
		start := time.Now()
		err := h.runSetup(context.Background(), r, ws, tpl, vmName)
		h.deps.Metrics.ObserveSetup(resultLabel(err), time.Since(start))
		w.err = err
		close(w.done)
		if callback != nil {
			callback(err)
		}
	}()
	h.deps.Logger.Logf("started setup worker for reservation %s (vm %s)", r.ID, vmName)
	return nil
}

func (h *Handler) runSetup(ctx context.Context, r models.Reservation, ws models.Workstation, tpl models.Template, vmName string) error {
	client, err := h.clientForEngine(ctx, ws.EngineID)
	if err != nil {
		return err
	}

	if exists, err := client.VMExists(ctx, vmName); err != nil {
		return fmt.Errorf("check vm %s exists: %w", vmName, err)
	} else if exists {
		h.deps.Logger.Logf("vm %s already exists, deleting it", vmName)
		if err := deleteVM(ctx, client, vmName, h.deps.Logger); err != nil {
			return err
		}
	}

	if _, err := client.CreateVM(ctx, tpl.InternalName, vmName); err != nil {
		return fmt.Errorf("create vm %s: %w", vmName, err)
	}
	bootStart := time.Now()
	if _, err := client.StartVM(ctx, vmName); err != nil {
		return fmt.Errorf("start vm %s: %w", vmName, err)
	}

	for {
		running, err := client.IsVMRunning(ctx, vmName)
		if err != nil {
			return fmt.Errorf("poll vm %s running: %w", vmName, err)
		}
		if running {
			break
		}
		h.deps.Logger.Logf("waiting for vm %s to start", vmName)
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}

	for {
		agentUp, err := client.IsAgentRunning(ctx, vmName)
		if err != nil {
			return fmt.Errorf("poll agent on vm %s: %w", vmName, err)
		}
		if agentUp {
			break
		}
		h.deps.Logger.Logf("waiting for agent to start on vm %s", vmName)
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	h.deps.Metrics.ObserveBoot(time.Since(bootStart))

	var ip string
	for {
		info, err := client.GetVMNetworkInfo(ctx, vmName)
		if err != nil {
			return fmt.Errorf("get network info for vm %s: %w", vmName, err)
		}
		if info.IPAddress != "" && !models.IsAPIPA(info.IPAddress) {
			ip = info.IPAddress
			break
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}

	ws.IP = ip
	ws.EngineInternalName = vmName
	ws.BootStartedAt = bootStart
	ws.BootCompletedAt = time.Now()
	ws.Status = models.WorkstationActive
	ws.LastStatusUpdate = time.Now()
	if err := h.store.PutWorkstation(ctx, ws); err != nil {
		return fmt.Errorf("persist ready workstation %s: %w", ws.ID, err)
	}
	h.deps.Logger.Logf("finished workstation setup for reservation %s, vm %s at %s", r.ID, vmName, ip)
	return nil
}

// IsSetupRunning reports whether a setup (or restart, which reuses the same
// worker slot) is in flight for reservationID.
func (h *Handler) IsSetupRunning(reservationID string) bool {
	h.setupMu.Lock()
	defer h.setupMu.Unlock()
	_, ok := h.setup[reservationID]
	return ok
}

// GCSetupThreads drops bookkeeping for any setup/restart worker that has
// finished, matching the reference _gc_setup_threads.
func (h *Handler) GCSetupThreads() {
	h.setupMu.Lock()
	defer h.setupMu.Unlock()
	for id, w := range h.setup {
		select {
		case <-w.done:
			delete(h.setup, id)
			h.deps.Logger.Logf("removed setup worker for reservation %s", id)
		default:
		}
	}
}

// StartWorkstationCleanupForReservation launches a background goroutine
// that deletes ws's engine VM. callback receives the final error once
// deletion has converged (or immediately with nil if there was no VM).
func (h *Handler) StartWorkstationCleanupForReservation(r models.Reservation, ws models.Workstation, callback func(error)) {
	h.cleanupMu.Lock()
	w := &cleanupWorker{done: make(chan struct{})}
	h.cleanup[r.ID] = w
	h.cleanupMu.Unlock()

	go func() {
		start := time.Now()
		err := h.CleanupWorkstation(context.Background(), ws)
		h.deps.Metrics.ObserveCleanup(resultLabel(err), time.Since(start))
		w.err = err
		close(w.done)
		if callback != nil {
			callback(err)
		}
	}()
	h.deps.Logger.Logf("started cleanup worker for reservation %s", r.ID)
}

// CleanupWorkstation synchronously deletes ws's engine-side VM, blocking
// until deletion has converged. Exported so callers that must clean up
// inline (e.g. the cancelled-reservation path) don't need a worker.
func (h *Handler) CleanupWorkstation(ctx context.Context, ws models.Workstation) error {
	client, err := h.clientForEngine(ctx, ws.EngineID)
	if err != nil {
		return err
	}
	return deleteVM(ctx, client, ws.EngineInternalName, h.deps.Logger)
}

// GCCleanupThreads drops bookkeeping for any cleanup worker that has
// finished, matching the reference _gc_cleanup_threads.
func (h *Handler) GCCleanupThreads() {
	h.cleanupMu.Lock()
	defer h.cleanupMu.Unlock()
	for id, w := range h.cleanup {
		select {
		case <-w.done:
			delete(h.cleanup, id)
			h.deps.Logger.Logf("removed cleanup worker for reservation %s", id)
		default:
		}
	}
}

// RestartWorkstationForReservation reboots ws's VM and waits for the guest
// agent to come back, reusing the setup worker slot so a concurrent setup
// for the same reservation is never raced. If a setup is already running,
// the restart is skipped (the in-flight setup supersedes it), matching the
// reference restart_workstation_for_reservation's early return.
func (h *Handler) RestartWorkstationForReservation(r models.Reservation, ws models.Workstation, callback func(error)) {
	h.setupMu.Lock()
	if _, running := h.setup[r.ID]; running {
		h.setupMu.Unlock()
		h.deps.Logger.Logf("setup worker for reservation %s is running, skipping restart", r.ID)
		return
	}
	w := &setupWorker{vmName: ws.EngineInternalName, done: make(chan struct{})}
	h.setup[r.ID] = w
	h.setupMu.Unlock()

	go func() {
		err := h.runRestart(context.Background(), ws)
		w.err = err
		close(w.done)
		if callback != nil {
			callback(err)
		}
	}()
	h.deps.Logger.Logf("started restart worker for reservation %s", r.ID)
}

func (h *Handler) runRestart(ctx context.Context, ws models.Workstation) error {
	client, err := h.clientForEngine(ctx, ws.EngineID)
	if err != nil {
		return err
	}
	if _, err := client.RebootVM(ctx, ws.EngineInternalName); err != nil {
		return fmt.Errorf("reboot vm %s: %w", ws.EngineInternalName, err)
	}
	for {
		agentUp, err := client.IsAgentRunning(ctx, ws.EngineInternalName)
		if err != nil {
			return fmt.Errorf("poll agent on vm %s: %w", ws.EngineInternalName, err)
		}
		if agentUp {
			return nil
		}
		h.deps.Logger.Logf("waiting for vm %s to start", ws.EngineInternalName)
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
