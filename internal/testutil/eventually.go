package testutil

import (
	"testing"
	"time"
)

// Eventually polls fn until it returns true or timeout elapses.
func Eventually(t testing.TB, timeout time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if fn() {
			return
		}
		select {
		case <-deadline:
			if msg == "" {
				t.Fatalf("condition not met before timeout")
			}
			t.Fatalf("%s", msg)
		case <-ticker.C:
		}
	}
}

// Never fails if fn returns true at any poll during the window.
func Never(t testing.TB, window time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.After(window)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if fn() {
			t.Fatalf("%s", msg)
		}
		select {
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}
