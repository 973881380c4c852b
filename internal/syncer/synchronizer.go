// Package syncer orchestrates reconciliation passes between the local cache,
// the pending-operation queue and the remote backend. A pass drains the
// queue in sequence order, then refreshes every collection from the remote
// snapshot. At most one pass runs at any instant; triggers arriving mid-pass
// are dropped.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tecnicfitia/urbanismoverde/internal/cache"
	"github.com/tecnicfitia/urbanismoverde/internal/connectivity"
	"github.com/tecnicfitia/urbanismoverde/internal/errors"
	"github.com/tecnicfitia/urbanismoverde/internal/logging"
	"github.com/tecnicfitia/urbanismoverde/internal/metrics"
	"github.com/tecnicfitia/urbanismoverde/internal/models"
	"github.com/tecnicfitia/urbanismoverde/internal/remote"
	"github.com/tecnicfitia/urbanismoverde/internal/syncqueue"
)

// Config holds synchronizer configuration.
type Config struct {
	Interval  time.Duration // periodic pass interval (default: 10 minutes)
	PullLimit int           // max records pulled per collection (default: 500)
}

// DefaultConfig returns the default synchronizer configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:  10 * time.Minute,
		PullLimit: 500,
	}
}

// Synchronizer runs reconciliation passes on a timer, on connectivity
// return, and on demand. The embedding application owns exactly one
// instance and its start/stop lifecycle.
type Synchronizer struct {
	cache   *cache.Service
	queue   *syncqueue.Queue
	gateway remote.Gateway
	monitor connectivity.Monitor
	config  *Config

	mu          sync.Mutex
	running     bool
	inFlight    bool
	lastSyncAt  int64
	lastError   string
	subscribers map[int]func(models.SyncStatus)
	nextSubID   int
	unsubOnline func()
	stopCh      chan struct{}
	baseCtx     context.Context

	wg sync.WaitGroup
}

// New creates a Synchronizer with injected dependencies.
func New(c *cache.Service, q *syncqueue.Queue, g remote.Gateway, m connectivity.Monitor, config *Config) *Synchronizer {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	if config.PullLimit <= 0 {
		config.PullLimit = 500
	}
	return &Synchronizer{
		cache:       c,
		queue:       q,
		gateway:     g,
		monitor:     m,
		config:      config,
		subscribers: make(map[int]func(models.SyncStatus)),
	}
}

// Subscription is a handle for unsubscribing from status updates.
type Subscription struct {
	id int
	s  *Synchronizer
}

// Unsubscribe removes the subscriber. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.s.mu.Lock()
	delete(sub.s.subscribers, sub.id)
	sub.s.mu.Unlock()
}

// Subscribe registers a status callback invoked when a pass starts and when
// it completes. Callbacks run on the pass goroutine and must not block.
func (s *Synchronizer) Subscribe(fn func(models.SyncStatus)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return &Subscription{id: id, s: s}
}

// Start moves the synchronizer from Stopped to Idle: it triggers one
// immediate pass, arms the periodic timer, and registers the
// online-transition listener. Calling Start on a running synchronizer is a
// no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.baseCtx = ctx
	s.mu.Unlock()

	s.unsubOnline = s.monitor.OnOnline(func() {
		s.ForceSync()
	})

	s.wg.Add(1)
	go s.timerLoop(ctx)

	logging.Info("synchronizer started",
		map[string]interface{}{"interval": s.config.Interval.String()})

	s.ForceSync()
}

// Stop disarms the timer and the online listener. An in-flight pass
// finishes naturally; no remote call is cancelled.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	if s.unsubOnline != nil {
		s.unsubOnline()
		s.unsubOnline = nil
	}
	s.wg.Wait()

	logging.Info("synchronizer stopped")
}

// ForceSync triggers a pass unless one is already running or the
// synchronizer is stopped. Returns true if a pass was started.
func (s *Synchronizer) ForceSync() bool {
	ctx := s.acquire()
	if ctx == nil {
		return false
	}
	go func() {
		defer s.release()
		s.runPass(ctx)
	}()
	return true
}

// SyncNow runs a pass synchronously. Returns false if a pass is already
// running or the synchronizer is stopped.
func (s *Synchronizer) SyncNow(ctx context.Context) bool {
	if s.acquire() == nil {
		return false
	}
	defer s.release()
	s.runPass(ctx)
	return true
}

// acquire claims the single-flight slot and returns the pass context, or
// nil when the trigger must be dropped.
func (s *Synchronizer) acquire() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.inFlight {
		return nil
	}
	s.inFlight = true
	return s.baseCtx
}

func (s *Synchronizer) release() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// Status recomputes the transient status snapshot on demand.
func (s *Synchronizer) Status() models.SyncStatus {
	s.mu.Lock()
	lastSyncAt := s.lastSyncAt
	lastError := s.lastError
	syncing := s.inFlight
	s.mu.Unlock()

	return models.SyncStatus{
		Online:       s.monitor.IsOnline(),
		LastSyncAt:   lastSyncAt,
		Syncing:      syncing,
		PendingCount: s.queue.Len(),
		LastError:    lastError,
	}
}

// timerLoop fires a pass on every tick until stopped.
func (s *Synchronizer) timerLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.ForceSync()
		}
	}
}

// runPass executes one reconciliation pass. The caller holds the
// single-flight slot.
func (s *Synchronizer) runPass(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	metrics.PassStarted()
	s.notify(true)

	if !s.monitor.IsOnline() {
		logging.Debug("skipping pass, offline")
		metrics.PassSkippedOffline()
		s.finishPass(false)
		return
	}

	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()

	s.replayQueue(ctx)
	s.refreshCollections(ctx)
	metrics.PassCompleted()
	s.finishPass(true)
}

// finishPass records completion and notifies subscribers. An offline skip
// updates status without touching lastSyncAt.
func (s *Synchronizer) finishPass(completed bool) {
	if completed {
		s.mu.Lock()
		s.lastSyncAt = time.Now().Unix()
		s.mu.Unlock()
	}
	s.notify(false)
}

// notify delivers the current status to every subscriber. The syncing flag
// is passed explicitly: the single-flight slot stays held through the final
// notification, so the recomputed snapshot would report a finished pass as
// still running.
func (s *Synchronizer) notify(syncing bool) {
	status := s.Status()
	status.Syncing = syncing
	s.mu.Lock()
	subs := make([]func(models.SyncStatus), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

// replayQueue drains the pending queue in sequence order. A failing item
// gets its retry counter bumped and is evicted once the counter reaches the
// limit; it never blocks later items in the same pass.
func (s *Synchronizer) replayQueue(ctx context.Context) {
	items := s.queue.Drain()
	if len(items) == 0 {
		return
	}

	logging.Info("replaying pending operations",
		map[string]interface{}{"count": len(items)})

	for _, item := range items {
		err := s.apply(ctx, item)
		if err == nil {
			s.queue.Remove(item.Sequence)
			metrics.ReplaySuccess()
			continue
		}

		metrics.ReplayFailure()
		metrics.Fault(err)
		s.recordError(err)
		logging.Warn("replay failed",
			map[string]interface{}{
				"sequence":   item.Sequence,
				"collection": item.Collection,
				"operation":  string(item.Operation),
				"error":      err.Error(),
			})

		retries, tracked := s.queue.IncrementRetries(item.Sequence)
		if tracked && retries >= s.queue.MaxRetries() {
			// Deliberate data loss: the mutation is dropped and stays
			// visible only through pendingCount/lastError.
			s.queue.Remove(item.Sequence)
			metrics.ItemEvicted()
			logging.Error("pending operation dropped after max retries",
				errors.New(errors.ErrSyncFailed, "retries exhausted"),
				map[string]interface{}{
					"sequence":   item.Sequence,
					"collection": item.Collection,
					"retries":    retries,
				})
		}
	}
}

// apply replays one queued mutation against the gateway.
func (s *Synchronizer) apply(ctx context.Context, item *models.QueueItem) error {
	switch item.Operation {
	case models.OpCreate:
		return s.gateway.Insert(ctx, item.Collection, item.Payload)
	case models.OpUpdate:
		id, err := payloadID(item.Payload)
		if err != nil {
			return err
		}
		return s.gateway.Update(ctx, item.Collection, id, item.Payload)
	case models.OpDelete:
		id, err := payloadID(item.Payload)
		if err != nil {
			return err
		}
		return s.gateway.Delete(ctx, item.Collection, id)
	default:
		return errors.New(errors.ErrInvalid, "unknown queue operation "+string(item.Operation))
	}
}

// payloadID extracts the entity id from a queued payload. Create/update
// payloads carry the full record; delete payloads carry the id alone.
func payloadID(payload json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.ID == "" {
		return "", errors.New(errors.ErrInvalid, "queued payload has no id")
	}
	return probe.ID, nil
}

// refreshCollections pulls a fresh snapshot per collection and overwrites
// the cache with synced=true. Remote wins over local content here, even for
// records a not-yet-replayed queue item still targets.
func (s *Synchronizer) refreshCollections(ctx context.Context) {
	for _, col := range models.Collections {
		rows, err := s.gateway.SelectAll(ctx, col, s.config.PullLimit)
		if err != nil {
			metrics.RefreshFailure()
			metrics.Fault(err)
			s.recordError(err)
			logging.Warn("collection refresh failed",
				map[string]interface{}{"collection": col, "error": err.Error()})
			continue
		}

		items := make([]cache.Item, 0, len(rows))
		for _, row := range rows {
			items = append(items, cache.Item{ID: row.ID, Payload: row.Payload})
		}
		if out := s.cache.SetMany(col, items, true); out.OK {
			logging.Debug("collection refreshed",
				map[string]interface{}{"collection": col, "count": len(items)})
		}
	}
}

func (s *Synchronizer) recordError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}
