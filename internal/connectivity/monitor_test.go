// Package connectivity provides unit tests for the connectivity monitor.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestSetOnlineTransitions verifies listeners fire exactly once per
// offline→online flip and never on the way down.
func TestSetOnlineTransitions(t *testing.T) {
	m := NewProbeMonitor(func(ctx context.Context) error { return nil }, time.Hour)

	var fired int32
	m.OnOnline(func() { atomic.AddInt32(&fired, 1) })

	m.SetOnline(true)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired = %d after first flip, want 1", got)
	}

	// Staying online is not a transition.
	m.SetOnline(true)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired = %d after repeat online, want 1", got)
	}

	// Going offline is not a transition either.
	m.SetOnline(false)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired = %d after offline, want 1", got)
	}

	m.SetOnline(true)
	if got := atomic.LoadInt32(&fired); got != 2 {
		t.Errorf("fired = %d after second flip, want 2", got)
	}
}

// TestUnsubscribe verifies a removed listener stops firing.
func TestUnsubscribe(t *testing.T) {
	m := NewProbeMonitor(func(ctx context.Context) error { return nil }, time.Hour)

	var fired int32
	unsub := m.OnOnline(func() { atomic.AddInt32(&fired, 1) })

	m.SetOnline(true)
	unsub()
	m.SetOnline(false)
	m.SetOnline(true)

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired = %d, want 1 (listener removed)", got)
	}
}

// TestProbeLoop verifies the poller flips state from probe results.
func TestProbeLoop(t *testing.T) {
	var mu sync.Mutex
	probeErr := error(nil)

	m := NewProbeMonitor(func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return probeErr
	}, 10*time.Millisecond)

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool { return m.IsOnline() }, "monitor never went online")

	mu.Lock()
	probeErr = errors.New("unreachable")
	mu.Unlock()

	waitFor(t, func() bool { return !m.IsOnline() }, "monitor never went offline")
}

// TestStartStopIdempotent verifies double Start/Stop are safe.
func TestStartStopIdempotent(t *testing.T) {
	m := NewProbeMonitor(func(ctx context.Context) error { return nil }, 10*time.Millisecond)

	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
