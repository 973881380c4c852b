// Package cache provides the typed entity-collection façade over the local
// store. Every operation is fail-open: a storage fault is logged, surfaced
// in the returned Outcome, and never propagated as an error the caller must
// handle — a broken local store degrades to "data not cached" rather than
// breaking the application.
package cache

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tecnicfitia/urbanismoverde/internal/errors"
	"github.com/tecnicfitia/urbanismoverde/internal/logging"
	"github.com/tecnicfitia/urbanismoverde/internal/metrics"
	"github.com/tecnicfitia/urbanismoverde/internal/models"
	"github.com/tecnicfitia/urbanismoverde/internal/store"
)

// Outcome reports whether a fail-open cache operation took effect. Callers
// are free to ignore it; the failure is already logged and absorbed.
type Outcome struct {
	OK  bool
	Err *errors.AppError
}

func ok() Outcome {
	return Outcome{OK: true}
}

func failed(message string, err error) Outcome {
	appErr := errors.Wrap(errors.ErrStorage, message, err)
	logging.Error(message, err)
	metrics.Fault(appErr)
	return Outcome{Err: appErr}
}

// CollectionStats holds per-collection cache counters.
type CollectionStats struct {
	Total    int `json:"total"`
	Unsynced int `json:"unsynced"`
}

// Service provides cached reads and fail-open writes for entity collections.
type Service struct {
	store *store.Store
}

// NewService creates a cache Service over the given store.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Get returns the cached record, or ok=false when it is absent or the
// store failed.
func (c *Service) Get(collection, id string) (*models.Record, bool) {
	rec, err := c.store.GetRecord(collection, id)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		logging.Error("cache read failed", err,
			map[string]interface{}{"collection": collection, "id": id})
		return nil, false
	}
	return rec, true
}

// GetAll returns every cached record in a collection. A storage fault yields
// an empty slice.
func (c *Service) GetAll(collection string) []*models.Record {
	recs, err := c.store.ListRecords(collection)
	if err != nil {
		logging.Error("cache list failed", err,
			map[string]interface{}{"collection": collection})
		return nil
	}
	return recs
}

// GetUnsynced returns the cached records carrying unconfirmed local
// mutations.
func (c *Service) GetUnsynced(collection string) []*models.Record {
	recs, err := c.store.ListUnsynced(collection)
	if err != nil {
		logging.Error("cache unsynced list failed", err,
			map[string]interface{}{"collection": collection})
		return nil
	}
	return recs
}

// Set upserts a record with updatedAt=now.
func (c *Service) Set(collection, id string, payload json.RawMessage, synced bool) Outcome {
	rec := &models.Record{
		ID:        id,
		Payload:   payload,
		UpdatedAt: time.Now().Unix(),
		Synced:    synced,
	}
	if err := c.store.PutRecord(collection, rec); err != nil {
		return failed("cache write failed", err)
	}
	return ok()
}

// Item is one entry of a bulk upsert.
type Item struct {
	ID      string
	Payload json.RawMessage
}

// SetMany upserts a batch of records in a single transaction.
func (c *Service) SetMany(collection string, items []Item, synced bool) Outcome {
	now := time.Now().Unix()
	recs := make([]*models.Record, 0, len(items))
	for _, it := range items {
		recs = append(recs, &models.Record{
			ID:        it.ID,
			Payload:   it.Payload,
			UpdatedAt: now,
			Synced:    synced,
		})
	}
	if err := c.store.PutRecords(collection, recs); err != nil {
		return failed("cache bulk write failed", err)
	}
	return ok()
}

// Delete removes a record. Deleting an absent record is a no-op, not a
// failure.
func (c *Service) Delete(collection, id string) Outcome {
	if err := c.store.DeleteRecord(collection, id); err != nil {
		return failed("cache delete failed", err)
	}
	return ok()
}

// Clear removes every record in a collection.
func (c *Service) Clear(collection string) Outcome {
	if err := c.store.ClearCollection(collection); err != nil {
		return failed("cache clear failed", err)
	}
	return ok()
}

// Stats returns per-collection totals and unsynced counts. Collections that
// fail to count are omitted.
func (c *Service) Stats() map[string]CollectionStats {
	stats := make(map[string]CollectionStats, len(models.Collections))
	for _, col := range models.Collections {
		total, unsynced, err := c.store.CountRecords(col)
		if err != nil {
			logging.Error("cache stats failed", err,
				map[string]interface{}{"collection": col})
			continue
		}
		stats[col] = CollectionStats{Total: total, Unsynced: unsynced}
	}
	return stats
}
