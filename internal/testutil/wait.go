// Package testutil provides small polling helpers for the
// concurrency-sensitive tests described in the EXPANDED AMBIENT
// SECTIONS (Test tooling): driver supervisor spawn/respawn, job
// manager dispatch, component worker cancellation all settle
// asynchronously and are better polled than slept for.
package testutil

import (
	"testing"
	"time"
)

// WaitForResult polls test until it returns true or timeout elapses,
// mirroring Nomad's own testutil.WaitForResult helper.
func WaitForResult(test func() (bool, error), t *testing.T) {
	t.Helper()
	WaitFor(test, 5*time.Second, 10*time.Millisecond, t)
}

// WaitFor polls test every interval up to timeout, failing t if test
// never returns true.
func WaitFor(test func() (bool, error), timeout, interval time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		ok, err := test()
		if ok {
			return
		}
		lastErr = err
		time.Sleep(interval)
	}
	if lastErr != nil {
		t.Fatalf("WaitFor: condition not met: %v", lastErr)
	}
	t.Fatalf("WaitFor: condition not met within %s", timeout)
}
