// Package syncqueue provides the durable pending-operation queue. Items are
// appended with a store-assigned sequence number that defines replay order
// and survive process restarts alongside the cache.
package syncqueue

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tecnicfitia/urbanismoverde/internal/logging"
	"github.com/tecnicfitia/urbanismoverde/internal/models"
	"github.com/tecnicfitia/urbanismoverde/internal/store"
)

// MaxRetries is the number of failed replay attempts after which a pending
// mutation is dropped. Eviction is unconditional; the loss stays visible
// only through status counters.
const MaxRetries = 5

// Queue is the durable list of pending mutations, ordered by sequence.
type Queue struct {
	store      *store.Store
	maxRetries int
}

// New creates a Queue over the given store with the default retry limit.
func New(s *store.Store) *Queue {
	return &Queue{store: s, maxRetries: MaxRetries}
}

// NewWithMaxRetries creates a Queue with a custom retry limit.
func NewWithMaxRetries(s *store.Store, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	return &Queue{store: s, maxRetries: maxRetries}
}

// MaxRetries returns the configured retry limit.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue appends a pending mutation with retries=0. Fire-and-forget:
// a storage fault is logged and reported through ok=false, never thrown.
func (q *Queue) Enqueue(collection string, op models.Operation, payload json.RawMessage) (int64, bool) {
	item := &models.QueueItem{
		Collection: collection,
		Operation:  op,
		Payload:    payload,
		EnqueuedAt: time.Now().Unix(),
		Retries:    0,
	}

	seq, err := q.store.AppendQueueItem(item)
	if err != nil {
		logging.Error("enqueue failed", err,
			map[string]interface{}{"collection": collection, "operation": string(op)})
		return 0, false
	}

	logging.Debug("enqueued pending operation",
		map[string]interface{}{"sequence": seq, "collection": collection, "operation": string(op)})
	return seq, true
}

// Drain returns a snapshot of all pending mutations in ascending sequence
// order. The items stay queued; the synchronizer removes them one by one as
// replay succeeds or retries are exhausted.
func (q *Queue) Drain() []*models.QueueItem {
	items, err := q.store.ListQueueItems()
	if err != nil {
		logging.Error("queue drain failed", err)
		return nil
	}
	return items
}

// Remove deletes a pending mutation by sequence number.
func (q *Queue) Remove(sequence int64) bool {
	if err := q.store.DeleteQueueItem(sequence); err != nil {
		logging.Error("queue remove failed", err,
			map[string]interface{}{"sequence": sequence})
		return false
	}
	return true
}

// IncrementRetries bumps the retry counter after a failed replay and returns
// the new count. ok=false means the item vanished or the store failed.
func (q *Queue) IncrementRetries(sequence int64) (int, bool) {
	retries, err := q.store.IncrementQueueRetries(sequence)
	if err == sql.ErrNoRows {
		return 0, false
	}
	if err != nil {
		logging.Error("queue retry increment failed", err,
			map[string]interface{}{"sequence": sequence})
		return 0, false
	}
	return retries, true
}

// Len returns the number of pending mutations, 0 on storage fault.
func (q *Queue) Len() int {
	count, err := q.store.CountQueueItems()
	if err != nil {
		logging.Error("queue count failed", err)
		return 0
	}
	return count
}
