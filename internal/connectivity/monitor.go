// Package connectivity tracks backend reachability: a boolean online flag
// plus offline→online transition notifications. Online is necessary but not
// sufficient for a remote call to succeed; the synchronizer only uses the
// flag to decide whether a pass is worth starting at all.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/tecnicfitia/urbanismoverde/internal/logging"
)

// Monitor exposes the platform connectivity signal.
type Monitor interface {
	// IsOnline reports the last observed connectivity state.
	IsOnline() bool

	// OnOnline registers a callback fired once per offline→online
	// transition. The returned func unregisters it.
	OnOnline(fn func()) (unsubscribe func())
}

// ProbeFunc checks reachability; nil error means online.
type ProbeFunc func(ctx context.Context) error

// ProbeMonitor polls a reachability probe on a fixed interval and notifies
// listeners when connectivity returns.
type ProbeMonitor struct {
	probe    ProbeFunc
	interval time.Duration

	mu        sync.RWMutex
	online    bool
	listeners map[int]func()
	nextID    int
	running   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProbeMonitor creates a monitor over the given probe. The initial state
// is offline until the first successful probe.
func NewProbeMonitor(probe ProbeFunc, interval time.Duration) *ProbeMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ProbeMonitor{
		probe:     probe,
		interval:  interval,
		listeners: make(map[int]func()),
		stopCh:    make(chan struct{}),
	}
}

// Start begins polling. Safe to call once per monitor.
func (m *ProbeMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop(ctx)
}

// Stop ends polling and waits for the poll goroutine to exit.
func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

// IsOnline reports the last observed connectivity state.
func (m *ProbeMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnOnline registers a transition callback and returns its unsubscribe func.
func (m *ProbeMonitor) OnOnline(fn func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SetOnline overrides the observed state, notifying listeners on an
// offline→online flip. Also used when an external signal (OS network
// status) is wired in instead of the probe.
func (m *ProbeMonitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	var toNotify []func()
	if online && !wasOnline {
		for _, fn := range m.listeners {
			toNotify = append(toNotify, fn)
		}
	}
	m.mu.Unlock()

	if wasOnline != online {
		logging.Info("connectivity changed",
			map[string]interface{}{"was_online": wasOnline, "is_online": online})
	}

	// Listeners run outside the lock so they can call back into the monitor.
	for _, fn := range toNotify {
		fn()
	}
}

// pollLoop probes immediately, then on every tick.
func (m *ProbeMonitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	m.runProbe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runProbe(ctx)
		}
	}
}

func (m *ProbeMonitor) runProbe(ctx context.Context) {
	err := m.probe(ctx)
	m.SetOnline(err == nil)
}
