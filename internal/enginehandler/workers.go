package enginehandler

import (
	"context"
	"fmt"
	"time"

	"github.com/wsfleet/coordinator/internal/rpcclient"
)

// pollInterval is how often worker goroutines re-check VM/agent readiness,
// matching the reference implementation's five-second sleep loops.
const pollInterval = 5 * time.Second

type setupWorker struct {
	vmName string
	done   chan struct{}
	err    error
}

type cleanupWorker struct {
	done chan struct{}
	err  error
}

// deleteVM stops (if running) and removes vmName on client, tolerating a
// VM that no longer exists. It blocks until the delete has converged,
// matching the reference _delete_vm's wait-for-stop/wait-for-gone loops.
func deleteVM(ctx context.Context, client rpcclient.Caller, vmName string, logger Logger) error {
	if vmName == "" {
		return nil
	}
	exists, err := client.VMExists(ctx, vmName)
	if err != nil {
		return fmt.Errorf("check vm %s exists: %w", vmName, err)
	}
	if !exists {
		logger.Logf("vm %s does not exist, skipping deletion", vmName)
		return nil
	}

	running, err := client.IsVMRunning(ctx, vmName)
	if err != nil {
		return fmt.Errorf("check vm %s running: %w", vmName, err)
	}
	if running {
		if _, err := client.StopVM(ctx, vmName); err != nil {
			return fmt.Errorf("stop vm %s: %w", vmName, err)
		}
	}
	for {
		running, err := client.IsVMRunning(ctx, vmName)
		if err != nil {
			return fmt.Errorf("poll vm %s running: %w", vmName, err)
		}
		if !running {
			break
		}
		logger.Logf("waiting for vm %s to stop", vmName)
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}

	if _, err := client.DeleteVM(ctx, vmName); err != nil {
		return fmt.Errorf("delete vm %s: %w", vmName, err)
	}
	for {
		exists, err := client.VMExists(ctx, vmName)
		if err != nil {
			return fmt.Errorf("poll vm %s exists: %w", vmName, err)
		}
		if !exists {
			break
		}
		logger.Logf("waiting for vm %s to be deleted", vmName)
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	logger.Logf("vm %s deleted successfully", vmName)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
