package engineadapter

import (
	"context"
	"fmt"
	"time"
)

// waitUntilTrue polls check every interval until it reports true, returns an
// error, or timeout elapses, mirroring the reference engine's
// wait_until_true helper used throughout VM lifecycle transitions.
func waitUntilTrue(ctx context.Context, timeout, interval time.Duration, check func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
