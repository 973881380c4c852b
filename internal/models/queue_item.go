package models

import "encoding/json"

// Operation represents the kind of pending mutation held in the sync queue.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// QueueItem is a pending mutation waiting to be replayed against the remote
// backend. Sequence is assigned by the store at enqueue time and defines
// replay order. Payload carries the full record for create/update and the
// identifier only for delete.
type QueueItem struct {
	Sequence   int64           `db:"sequence" json:"sequence"`
	Collection string          `db:"collection" json:"collection"`
	Operation  Operation       `db:"operation" json:"operation"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	Retries    int             `db:"retries" json:"retries"`
}
