// Package store provides the durable local store backing the cache and the
// sync queue: named record collections plus the pending-operation table,
// kept in a single SQLite file that survives restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/tecnicfitia/urbanismoverde/internal/models"
)

// Store wraps the sql.DB with sync-core specific configuration.
type Store struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// Open opens the SQLite store with:
// - WAL mode for concurrent reads/writes
// - foreign key constraints enabled
// - a single writer connection (SQLite does not support multiple writers)
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "urbanismoverde.db")

	// Pure Go driver, no CGO.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates the record and queue tables if they do not exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_unsynced ON records(collection, synced);

	CREATE TABLE IF NOT EXISTS queue_items (
		sequence INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL,
		enqueued_at INTEGER NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// PrepareStmt gets or creates a prepared statement from cache.
// Key is the query string, value is the prepared statement.
func (s *Store) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate.
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements and the database connection.
func (s *Store) Close() error {
	s.stmtCache.Range(func(key, value interface{}) bool {
		value.(*sql.Stmt).Close()
		return true
	})
	return s.db.Close()
}

// =====================================================
// Record Operations
// =====================================================

// GetRecord retrieves a record by collection and id.
// Returns sql.ErrNoRows when the record is absent.
func (s *Store) GetRecord(collection, id string) (*models.Record, error) {
	stmt, err := s.PrepareStmt(
		`SELECT id, payload, updated_at, synced FROM records WHERE collection = ? AND id = ?`)
	if err != nil {
		return nil, err
	}

	var rec models.Record
	var payload string
	err = stmt.QueryRow(collection, id).Scan(&rec.ID, &payload, &rec.UpdatedAt, &rec.Synced)
	if err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// ListRecords returns all records in a collection, most recently updated first.
func (s *Store) ListRecords(collection string) ([]*models.Record, error) {
	stmt, err := s.PrepareStmt(
		`SELECT id, payload, updated_at, synced FROM records WHERE collection = ? ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanRecords(stmt, collection)
}

// ListUnsynced returns the records in a collection carrying a local
// mutation not yet confirmed remotely.
func (s *Store) ListUnsynced(collection string) ([]*models.Record, error) {
	stmt, err := s.PrepareStmt(
		`SELECT id, payload, updated_at, synced FROM records WHERE collection = ? AND synced = 0 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanRecords(stmt, collection)
}

func scanRecords(stmt *sql.Stmt, args ...interface{}) ([]*models.Record, error) {
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.Record
	for rows.Next() {
		var rec models.Record
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.UpdatedAt, &rec.Synced); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// PutRecord upserts a single record.
func (s *Store) PutRecord(collection string, rec *models.Record) error {
	stmt, err := s.PrepareStmt(
		`INSERT INTO records (collection, id, payload, updated_at, synced) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET payload = excluded.payload,
			updated_at = excluded.updated_at, synced = excluded.synced`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(collection, rec.ID, string(rec.Payload), rec.UpdatedAt, rec.Synced)
	return err
}

// PutRecords upserts a batch of records in a single transaction.
func (s *Store) PutRecords(collection string, recs []*models.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO records (collection, id, payload, updated_at, synced) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET payload = excluded.payload,
			updated_at = excluded.updated_at, synced = excluded.synced`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.Exec(collection, rec.ID, string(rec.Payload), rec.UpdatedAt, rec.Synced); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeleteRecord deletes a record. Deleting an absent record is not an error.
func (s *Store) DeleteRecord(collection, id string) error {
	stmt, err := s.PrepareStmt(`DELETE FROM records WHERE collection = ? AND id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(collection, id)
	return err
}

// ClearCollection removes every record in a collection.
func (s *Store) ClearCollection(collection string) error {
	stmt, err := s.PrepareStmt(`DELETE FROM records WHERE collection = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(collection)
	return err
}

// CountRecords returns the total and unsynced record counts for a collection.
func (s *Store) CountRecords(collection string) (total int, unsynced int, err error) {
	stmt, err := s.PrepareStmt(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0)
		 FROM records WHERE collection = ?`)
	if err != nil {
		return 0, 0, err
	}
	err = stmt.QueryRow(collection).Scan(&total, &unsynced)
	return total, unsynced, err
}

// =====================================================
// Queue Operations
// =====================================================

// AppendQueueItem appends a pending mutation and returns its assigned
// sequence number.
func (s *Store) AppendQueueItem(item *models.QueueItem) (int64, error) {
	stmt, err := s.PrepareStmt(
		`INSERT INTO queue_items (collection, operation, payload, enqueued_at, retries) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	res, err := stmt.Exec(item.Collection, string(item.Operation), string(item.Payload), item.EnqueuedAt, item.Retries)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListQueueItems returns every pending mutation in ascending sequence order.
func (s *Store) ListQueueItems() ([]*models.QueueItem, error) {
	stmt, err := s.PrepareStmt(
		`SELECT sequence, collection, operation, payload, enqueued_at, retries
		 FROM queue_items ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		var op, payload string
		if err := rows.Scan(&item.Sequence, &item.Collection, &op, &payload, &item.EnqueuedAt, &item.Retries); err != nil {
			return nil, err
		}
		item.Operation = models.Operation(op)
		item.Payload = json.RawMessage(payload)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteQueueItem removes a pending mutation by sequence number.
func (s *Store) DeleteQueueItem(sequence int64) error {
	stmt, err := s.PrepareStmt(`DELETE FROM queue_items WHERE sequence = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(sequence)
	return err
}

// IncrementQueueRetries bumps the retry counter of a pending mutation and
// returns the new count. Returns sql.ErrNoRows for an unknown sequence.
func (s *Store) IncrementQueueRetries(sequence int64) (int, error) {
	stmt, err := s.PrepareStmt(
		`UPDATE queue_items SET retries = retries + 1 WHERE sequence = ? RETURNING retries`)
	if err != nil {
		return 0, err
	}
	var retries int
	if err := stmt.QueryRow(sequence).Scan(&retries); err != nil {
		return 0, err
	}
	return retries, nil
}

// CountQueueItems returns the number of pending mutations.
func (s *Store) CountQueueItems() (int, error) {
	stmt, err := s.PrepareStmt(`SELECT COUNT(*) FROM queue_items`)
	if err != nil {
		return 0, err
	}
	var count int
	err = stmt.QueryRow().Scan(&count)
	return count, err
}
