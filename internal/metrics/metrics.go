// Package metrics collects in-process counters for the sync core. Everything
// stays in memory and is exposed only through the local status API; nothing
// is transmitted externally.
package metrics

import (
	"sync/atomic"

	"github.com/tecnicfitia/urbanismoverde/internal/errors"
)

// =====================================================
// Counters
// =====================================================

var (
	passesStarted        int64
	passesCompleted      int64
	passesSkippedOffline int64

	replaySuccesses int64
	replayFailures  int64
	itemsEvicted    int64
	refreshFailures int64

	storageFaults int64
	remoteFaults  int64
	otherFaults   int64
)

// PassStarted records the start of a reconciliation pass.
func PassStarted() { atomic.AddInt64(&passesStarted, 1) }

// PassCompleted records a pass that reached the end of its work.
func PassCompleted() { atomic.AddInt64(&passesCompleted, 1) }

// PassSkippedOffline records a pass that ended immediately for lack of
// connectivity.
func PassSkippedOffline() { atomic.AddInt64(&passesSkippedOffline, 1) }

// ReplaySuccess records a queued mutation confirmed by the remote.
func ReplaySuccess() { atomic.AddInt64(&replaySuccesses, 1) }

// ReplayFailure records a queued mutation the remote rejected.
func ReplayFailure() { atomic.AddInt64(&replayFailures, 1) }

// ItemEvicted records a queued mutation dropped after exhausting retries.
func ItemEvicted() { atomic.AddInt64(&itemsEvicted, 1) }

// RefreshFailure records a collection pull that failed.
func RefreshFailure() { atomic.AddInt64(&refreshFailures, 1) }

// Fault records an absorbed error by failure class.
func Fault(err error) {
	switch errors.ClassOfError(err) {
	case errors.ClassStorage:
		atomic.AddInt64(&storageFaults, 1)
	case errors.ClassRemote:
		atomic.AddInt64(&remoteFaults, 1)
	default:
		atomic.AddInt64(&otherFaults, 1)
	}
}

// =====================================================
// Snapshot
// =====================================================

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	PassesStarted        int64 `json:"passesStarted"`
	PassesCompleted      int64 `json:"passesCompleted"`
	PassesSkippedOffline int64 `json:"passesSkippedOffline"`
	ReplaySuccesses      int64 `json:"replaySuccesses"`
	ReplayFailures       int64 `json:"replayFailures"`
	ItemsEvicted         int64 `json:"itemsEvicted"`
	RefreshFailures      int64 `json:"refreshFailures"`
	StorageFaults        int64 `json:"storageFaults"`
	RemoteFaults         int64 `json:"remoteFaults"`
	OtherFaults          int64 `json:"otherFaults"`
}

// Collect returns the current counter values.
func Collect() Snapshot {
	return Snapshot{
		PassesStarted:        atomic.LoadInt64(&passesStarted),
		PassesCompleted:      atomic.LoadInt64(&passesCompleted),
		PassesSkippedOffline: atomic.LoadInt64(&passesSkippedOffline),
		ReplaySuccesses:      atomic.LoadInt64(&replaySuccesses),
		ReplayFailures:       atomic.LoadInt64(&replayFailures),
		ItemsEvicted:         atomic.LoadInt64(&itemsEvicted),
		RefreshFailures:      atomic.LoadInt64(&refreshFailures),
		StorageFaults:        atomic.LoadInt64(&storageFaults),
		RemoteFaults:         atomic.LoadInt64(&remoteFaults),
		OtherFaults:          atomic.LoadInt64(&otherFaults),
	}
}

// Reset zeroes every counter. Intended for tests.
func Reset() {
	for _, p := range []*int64{
		&passesStarted, &passesCompleted, &passesSkippedOffline,
		&replaySuccesses, &replayFailures, &itemsEvicted, &refreshFailures,
		&storageFaults, &remoteFaults, &otherFaults,
	} {
		atomic.StoreInt64(p, 0)
	}
}
