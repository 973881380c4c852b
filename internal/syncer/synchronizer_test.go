// Package syncer provides unit tests for the reconciliation synchronizer.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tecnicfitia/urbanismoverde/internal/cache"
	"github.com/tecnicfitia/urbanismoverde/internal/errors"
	"github.com/tecnicfitia/urbanismoverde/internal/models"
	"github.com/tecnicfitia/urbanismoverde/internal/remote"
	"github.com/tecnicfitia/urbanismoverde/internal/store"
	"github.com/tecnicfitia/urbanismoverde/internal/syncqueue"
)

// =====================================================
// Fakes
// =====================================================

// fakeMonitor implements connectivity.Monitor with manual control.
type fakeMonitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func()
	nextID    int
}

func newFakeMonitor(online bool) *fakeMonitor {
	return &fakeMonitor{online: online, listeners: make(map[int]func())}
}

func (m *fakeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *fakeMonitor) OnOnline(fn func()) func() {
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

// set changes the flag without firing listeners.
func (m *fakeMonitor) set(online bool) {
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
}

// flip changes the flag and fires listeners on an offline→online edge, like
// the real monitor.
func (m *fakeMonitor) flip(online bool) {
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
	for _, fn := range toNotify {
		fn()
	}
}

// fakeGateway implements remote.Gateway with scripted failures and call
// accounting.
type fakeGateway struct {
	mu          sync.Mutex
	inserts     []string // ids in call order
	updates     []string
	deletes     []string
	selects     int
	failInserts map[string]bool
	failAll     bool
	rows        map[string][]remote.Row

	blockSelect chan struct{} // when non-nil the first SelectAll waits on it
	blockedOnce bool

	totalCalls  int32
	inFlight    int32
	maxInFlight int32
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		failInserts: make(map[string]bool),
		rows:        make(map[string][]remote.Row),
	}
}

func (g *fakeGateway) enter() {
	atomic.AddInt32(&g.totalCalls, 1)
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		max := atomic.LoadInt32(&g.maxInFlight)
		if n <= max || atomic.CompareAndSwapInt32(&g.maxInFlight, max, n) {
			return
		}
	}
}

func (g *fakeGateway) leave() {
	atomic.AddInt32(&g.inFlight, -1)
}

func idOf(payload json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	json.Unmarshal(payload, &probe)
	return probe.ID
}

func (g *fakeGateway) Insert(ctx context.Context, collection string, payload json.RawMessage) error {
	g.enter()
	defer g.leave()
	id := idOf(payload)
	g.mu.Lock()
	fail := g.failAll || g.failInserts[id]
	if !fail {
		g.inserts = append(g.inserts, id)
	}
	g.mu.Unlock()
	if fail {
		return errors.New(errors.ErrRemote, fmt.Sprintf("insert %s rejected", id))
	}
	return nil
}

func (g *fakeGateway) Update(ctx context.Context, collection, id string, payload json.RawMessage) error {
	g.enter()
	defer g.leave()
	g.mu.Lock()
	fail := g.failAll
	if !fail {
		g.updates = append(g.updates, id)
	}
	g.mu.Unlock()
	if fail {
		return errors.New(errors.ErrRemote, "update rejected")
	}
	return nil
}

func (g *fakeGateway) Delete(ctx context.Context, collection, id string) error {
	g.enter()
	defer g.leave()
	g.mu.Lock()
	fail := g.failAll
	if !fail {
		g.deletes = append(g.deletes, id)
	}
	g.mu.Unlock()
	if fail {
		return errors.New(errors.ErrRemote, "delete rejected")
	}
	return nil
}

func (g *fakeGateway) SelectAll(ctx context.Context, collection string, limit int) ([]remote.Row, error) {
	g.enter()
	defer g.leave()

	g.mu.Lock()
	block := g.blockSelect
	shouldBlock := block != nil && !g.blockedOnce
	if shouldBlock {
		g.blockedOnce = true
	}
	g.selects++
	rows := g.rows[collection]
	g.mu.Unlock()

	if shouldBlock {
		<-block
	}
	return rows, nil
}

func (g *fakeGateway) Ping(ctx context.Context) error {
	g.enter()
	defer g.leave()
	return nil
}

func (g *fakeGateway) insertCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.inserts...)
}

// =====================================================
// Helpers
// =====================================================

type testRig struct {
	sync    *Synchronizer
	queue   *syncqueue.Queue
	cache   *cache.Service
	gateway *fakeGateway
	monitor *fakeMonitor
	passes  *int32 // pass-start notifications
}

// newTestRig builds a synchronizer over a temp store. It starts the
// synchronizer with the monitor offline so the initial pass is a remote
// no-op, then waits for it to finish.
func newTestRig(t *testing.T, gateway *fakeGateway, monitor *fakeMonitor) *testRig {
	t.Helper()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	c := cache.NewService(st)
	q := syncqueue.New(st)
	s := New(c, q, gateway, monitor, &Config{Interval: time.Hour, PullLimit: 100})

	var notifications int32
	var passes int32
	s.Subscribe(func(status models.SyncStatus) {
		atomic.AddInt32(&notifications, 1)
		if status.Syncing {
			atomic.AddInt32(&passes, 1)
		}
	})

	s.Start(context.Background())
	t.Cleanup(s.Stop)

	// Initial pass emits a start and a finish notification.
	waitFor(t, func() bool { return atomic.LoadInt32(&notifications) >= 2 },
		"initial pass never completed")

	return &testRig{sync: s, queue: q, cache: c, gateway: gateway, monitor: monitor, passes: &passes}
}

func enqueueCreate(t *testing.T, q *syncqueue.Queue, id string) {
	t.Helper()
	payload := json.RawMessage(fmt.Sprintf(`{"id":%q,"name":"zone %s"}`, id, id))
	if _, ok := q.Enqueue(models.CollectionZones, models.OpCreate, payload); !ok {
		t.Fatalf("enqueue %s failed", id)
	}
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

// =====================================================
// Offline Behavior
// =====================================================

// TestStartOfflineMakesNoRemoteCalls verifies an offline pass ends with
// syncing=false, pending count untouched and zero gateway calls.
func TestStartOfflineMakesNoRemoteCalls(t *testing.T) {
	gateway := newFakeGateway()
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	enqueueCreate(t, rig.queue, "a")
	enqueueCreate(t, rig.queue, "b")

	if !rig.sync.SyncNow(context.Background()) {
		t.Fatal("SyncNow refused")
	}

	if got := atomic.LoadInt32(&gateway.totalCalls); got != 0 {
		t.Errorf("gateway calls = %d while offline, want 0", got)
	}

	status := rig.sync.Status()
	if status.Syncing {
		t.Error("Syncing = true after pass")
	}
	if status.PendingCount != 2 {
		t.Errorf("PendingCount = %d, want 2", status.PendingCount)
	}
	if status.LastSyncAt != 0 {
		t.Error("LastSyncAt set by an offline skip")
	}
}

// =====================================================
// Replay Semantics
// =====================================================

// TestReplaySuccessSingleInsert verifies a replayed create issues exactly
// one remote insert and leaves the queue empty.
func TestReplaySuccessSingleInsert(t *testing.T) {
	gateway := newFakeGateway()
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	enqueueCreate(t, rig.queue, "z1")
	monitor.set(true)

	rig.sync.SyncNow(context.Background())

	if calls := rig.gateway.insertCalls(); len(calls) != 1 || calls[0] != "z1" {
		t.Errorf("inserts = %v, want [z1]", calls)
	}
	if rig.queue.Len() != 0 {
		t.Errorf("queue len = %d, want 0", rig.queue.Len())
	}

	// A second pass must not repeat the insert.
	rig.sync.SyncNow(context.Background())
	if calls := rig.gateway.insertCalls(); len(calls) != 1 {
		t.Errorf("inserts after second pass = %v, want still [z1]", calls)
	}
}

// TestNoHeadOfLineBlocking verifies a failing early item does not stop later
// items in the same pass, while keeping its own position.
func TestNoHeadOfLineBlocking(t *testing.T) {
	gateway := newFakeGateway()
	gateway.failInserts["1"] = true
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	enqueueCreate(t, rig.queue, "1")
	enqueueCreate(t, rig.queue, "2")
	monitor.set(true)

	rig.sync.SyncNow(context.Background())

	if calls := rig.gateway.insertCalls(); len(calls) != 1 || calls[0] != "2" {
		t.Errorf("successful inserts = %v, want [2]", calls)
	}

	items := rig.queue.Drain()
	if len(items) != 1 {
		t.Fatalf("queue len = %d, want 1", len(items))
	}
	if id := idOf(items[0].Payload); id != "1" {
		t.Errorf("remaining item = %s, want 1", id)
	}
	if items[0].Retries != 1 {
		t.Errorf("retries = %d, want 1", items[0].Retries)
	}
}

// TestReplayOrder verifies queued mutations replay in enqueue order.
func TestReplayOrder(t *testing.T) {
	gateway := newFakeGateway()
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	for _, id := range []string{"a", "b", "c"} {
		enqueueCreate(t, rig.queue, id)
	}
	monitor.set(true)

	rig.sync.SyncNow(context.Background())

	calls := rig.gateway.insertCalls()
	want := []string{"a", "b", "c"}
	if len(calls) != 3 {
		t.Fatalf("inserts = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("inserts = %v, want %v", calls, want)
			break
		}
	}
}

// TestEvictionAfterMaxRetries verifies an item failing 5 consecutive passes
// is gone immediately after the 5th attempt.
func TestEvictionAfterMaxRetries(t *testing.T) {
	gateway := newFakeGateway()
	gateway.failInserts["doomed"] = true
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	enqueueCreate(t, rig.queue, "doomed")
	monitor.set(true)

	for attempt := 1; attempt <= 4; attempt++ {
		rig.sync.SyncNow(context.Background())
		items := rig.queue.Drain()
		if len(items) != 1 {
			t.Fatalf("attempt %d: queue len = %d, want 1", attempt, len(items))
		}
		if items[0].Retries != attempt {
			t.Errorf("attempt %d: retries = %d", attempt, items[0].Retries)
		}
	}

	rig.sync.SyncNow(context.Background())
	if rig.queue.Len() != 0 {
		t.Error("item still queued after 5th failed attempt")
	}

	// The data loss stays visible through status.
	if rig.sync.Status().LastError == "" {
		t.Error("LastError empty after dropped item")
	}
}

// TestReplayUpdateAndDelete verifies the remote verb per operation.
func TestReplayUpdateAndDelete(t *testing.T) {
	gateway := newFakeGateway()
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	rig.queue.Enqueue(models.CollectionZones, models.OpUpdate, json.RawMessage(`{"id":"u1","name":"renamed"}`))
	rig.queue.Enqueue(models.CollectionZones, models.OpDelete, json.RawMessage(`{"id":"d1"}`))
	monitor.set(true)

	rig.sync.SyncNow(context.Background())

	rig.gateway.mu.Lock()
	defer rig.gateway.mu.Unlock()
	if len(rig.gateway.updates) != 1 || rig.gateway.updates[0] != "u1" {
		t.Errorf("updates = %v, want [u1]", rig.gateway.updates)
	}
	if len(rig.gateway.deletes) != 1 || rig.gateway.deletes[0] != "d1" {
		t.Errorf("deletes = %v, want [d1]", rig.gateway.deletes)
	}
	if rig.queue.Len() != 0 {
		t.Errorf("queue len = %d, want 0", rig.queue.Len())
	}
}

// =====================================================
// Refresh Semantics
// =====================================================

// TestRefreshOverwritesCache verifies the pull step writes remote snapshots
// over local content with synced=true — remote wins, even for records with
// a pending local mutation.
func TestRefreshOverwritesCache(t *testing.T) {
	gateway := newFakeGateway()
	gateway.rows[models.CollectionZones] = []remote.Row{
		{ID: "r1", Payload: json.RawMessage(`{"id":"r1","name":"remote truth"}`)},
	}
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	// Local optimistic write still waiting in the queue.
	rig.cache.Set(models.CollectionZones, "r1", json.RawMessage(`{"id":"r1","name":"local edit"}`), false)
	gateway.failInserts["r1"] = true
	enqueueCreate(t, rig.queue, "r1")
	monitor.set(true)

	rig.sync.SyncNow(context.Background())

	rec, ok := rig.cache.Get(models.CollectionZones, "r1")
	if !ok {
		t.Fatal("record missing after refresh")
	}
	if !rec.Synced {
		t.Error("Synced = false after refresh, want true")
	}
	if string(rec.Payload) != `{"id":"r1","name":"remote truth"}` {
		t.Errorf("payload = %s, want remote snapshot", rec.Payload)
	}
}

// =====================================================
// Single-Flight and Lifecycle
// =====================================================

// TestSingleFlight verifies rapid ForceSync calls while a pass is running
// are dropped and at most one pass executes at any instant.
func TestSingleFlight(t *testing.T) {
	gateway := newFakeGateway()
	gateway.blockSelect = make(chan struct{})
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	monitor.set(true)
	if !rig.sync.ForceSync() {
		t.Fatal("first ForceSync refused")
	}
	waitFor(t, func() bool { return rig.sync.Status().Syncing }, "pass never started")

	for i := 0; i < 10; i++ {
		if rig.sync.ForceSync() {
			t.Fatal("ForceSync accepted while a pass is running")
		}
	}
	if rig.sync.SyncNow(context.Background()) {
		t.Fatal("SyncNow accepted while a pass is running")
	}

	close(gateway.blockSelect)
	waitFor(t, func() bool { return !rig.sync.Status().Syncing }, "pass never finished")

	if max := atomic.LoadInt32(&gateway.maxInFlight); max > 1 {
		t.Errorf("max concurrent gateway calls = %d, want 1", max)
	}

	if !rig.sync.ForceSync() {
		t.Error("ForceSync refused after pass completed")
	}
}

// TestOnlineTransitionRunsOnePass verifies the offline→online event triggers
// exactly one pass that drains the queue in enqueue order.
func TestOnlineTransitionRunsOnePass(t *testing.T) {
	gateway := newFakeGateway()
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	for _, id := range []string{"a", "b", "c"} {
		enqueueCreate(t, rig.queue, id)
	}

	passesBefore := atomic.LoadInt32(rig.passes)
	monitor.flip(true)

	waitFor(t, func() bool { return rig.queue.Len() == 0 }, "queue never drained")
	waitFor(t, func() bool { return !rig.sync.Status().Syncing }, "pass never finished")

	calls := rig.gateway.insertCalls()
	want := []string{"a", "b", "c"}
	for i := range want {
		if i >= len(calls) || calls[i] != want[i] {
			t.Fatalf("inserts = %v, want %v", calls, want)
		}
	}

	if got := atomic.LoadInt32(rig.passes) - passesBefore; got != 1 {
		t.Errorf("passes after transition = %d, want 1", got)
	}
}

// TestStopPreventsFurtherPasses verifies triggers are refused after Stop.
func TestStopPreventsFurtherPasses(t *testing.T) {
	gateway := newFakeGateway()
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	monitor.set(true)
	rig.sync.Stop()

	if rig.sync.ForceSync() {
		t.Error("ForceSync accepted after Stop")
	}
	if rig.sync.SyncNow(context.Background()) {
		t.Error("SyncNow accepted after Stop")
	}
}

// TestSubscribeUnsubscribe verifies the typed unsubscribe handle.
func TestSubscribeUnsubscribe(t *testing.T) {
	gateway := newFakeGateway()
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)
	monitor.set(true)

	var count int32
	sub := rig.sync.Subscribe(func(models.SyncStatus) { atomic.AddInt32(&count, 1) })

	rig.sync.SyncNow(context.Background())
	if atomic.LoadInt32(&count) == 0 {
		t.Fatal("subscriber never notified")
	}

	sub.Unsubscribe()
	before := atomic.LoadInt32(&count)
	rig.sync.SyncNow(context.Background())
	if atomic.LoadInt32(&count) != before {
		t.Error("subscriber notified after Unsubscribe")
	}
}

// TestStatusReflectsFailures verifies lastError and pendingCount expose
// absorbed remote failures.
func TestStatusReflectsFailures(t *testing.T) {
	gateway := newFakeGateway()
	gateway.failAll = true
	monitor := newFakeMonitor(false)
	rig := newTestRig(t, gateway, monitor)

	enqueueCreate(t, rig.queue, "x")
	monitor.set(true)

	rig.sync.SyncNow(context.Background())

	status := rig.sync.Status()
	if status.LastError == "" {
		t.Error("LastError empty after failing pass")
	}
	if status.PendingCount != 1 {
		t.Errorf("PendingCount = %d, want 1", status.PendingCount)
	}
	if !status.Online {
		t.Error("Online = false, want true")
	}
}
