// Package cache is the durable store for per-slot editable field values. It
// survives restarts so in-progress edits are never lost to a process exit,
// and is scoped by lock entity ID so multiple locks do not collide.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/marcus/lk/internal/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS slot_cache (
	entity_id  TEXT    NOT NULL,
	slot       INTEGER NOT NULL,
	record     TEXT    NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (entity_id, slot)
);
`

// Store wraps the cache database connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// WAL allows concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the cache database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Load returns all cached slot records for the given entity. Missing or
// corrupt rows never fail the load: they are logged and skipped so the
// session can continue with whatever is readable.
func (s *Store) Load(entityID string) (map[int]models.SlotRecord, error) {
	out := make(map[int]models.SlotRecord)

	rows, err := s.conn.Query(
		`SELECT slot, record FROM slot_cache WHERE entity_id = ?`, entityID)
	if err != nil {
		slog.Warn("cache load failed, starting empty", "entity", entityID, "err", err)
		return out, nil
	}
	defer rows.Close()

	for rows.Next() {
		var slot int
		var raw string
		if err := rows.Scan(&slot, &raw); err != nil {
			slog.Warn("cache row scan failed, skipping", "entity", entityID, "err", err)
			continue
		}
		var rec models.SlotRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			slog.Warn("corrupt cache record, skipping", "entity", entityID, "slot", slot, "err", err)
			continue
		}
		out[slot] = rec
	}
	if err := rows.Err(); err != nil {
		slog.Warn("cache load interrupted", "entity", entityID, "err", err)
	}
	return out, nil
}

// SaveSlot writes one slot's record, replacing any previous value.
func (s *Store) SaveSlot(entityID string, slot int, rec models.SlotRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal slot %d record: %w", slot, err)
	}
	_, err = s.conn.Exec(`
		INSERT OR REPLACE INTO slot_cache (entity_id, slot, record, updated_at)
		VALUES (?, ?, ?, ?)
	`, entityID, slot, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save slot %d: %w", slot, err)
	}
	return nil
}

// Save writes the full mapping for an entity. Slots not present in the
// mapping are removed.
func (s *Store) Save(entityID string, records map[int]models.SlotRecord) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin cache save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM slot_cache WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("clear before save: %w", err)
	}
	now := time.Now().UTC()
	for slot, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal slot %d record: %w", slot, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO slot_cache (entity_id, slot, record, updated_at)
			VALUES (?, ?, ?, ?)
		`, entityID, slot, string(data), now); err != nil {
			return fmt.Errorf("save slot %d: %w", slot, err)
		}
	}
	return tx.Commit()
}

// ClearSlot removes one slot's cached record.
func (s *Store) ClearSlot(entityID string, slot int) error {
	_, err := s.conn.Exec(
		`DELETE FROM slot_cache WHERE entity_id = ? AND slot = ?`, entityID, slot)
	if err != nil {
		return fmt.Errorf("clear slot %d: %w", slot, err)
	}
	return nil
}

// Clear removes all cached records for an entity. Records for other entities
// are untouched.
func (s *Store) Clear(entityID string) error {
	_, err := s.conn.Exec(`DELETE FROM slot_cache WHERE entity_id = ?`, entityID)
	if err != nil {
		return fmt.Errorf("clear cache for %s: %w", entityID, err)
	}
	return nil
}
