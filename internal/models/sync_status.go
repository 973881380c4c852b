package models

import "time"

// SyncStatus is a transient snapshot of the synchronizer, recomputed on
// demand and never persisted. LastSyncAt is 0 until a pass has completed.
type SyncStatus struct {
	Online       bool   `json:"online"`
	LastSyncAt   int64  `json:"last_sync_at"`
	Syncing      bool   `json:"syncing"`
	PendingCount int    `json:"pending_count"`
	LastError    string `json:"last_error,omitempty"`
}

// LastSyncTime returns LastSyncAt as time.Time, or the zero time if no pass
// has completed yet.
func (s SyncStatus) LastSyncTime() time.Time {
	if s.LastSyncAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.LastSyncAt, 0)
}
