// Package models provides data model definitions for the UrbanismoVerde sync core.
package models

import (
	"database/sql/driver"
	"encoding/json"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Record is a locally cached entity: an opaque payload keyed by id within a
// named collection. Synced=false marks a local mutation not yet confirmed
// by the remote backend.
type Record struct {
	ID        string          `db:"id" json:"id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	UpdatedAt int64           `db:"updated_at" json:"updated_at"`
	Synced    bool            `db:"synced" json:"synced"`
}
