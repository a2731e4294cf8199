package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// Get returns the value stored under key.
func (b *Backend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return "", false, types.ErrStoreDetached
	}

	var value string
	err := b.db.QueryRow("SELECT value FROM entries WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading entry %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key. An existing entry keeps its entry_id.
func (b *Backend) Set(key, value string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}

	_, err := b.db.Exec(`
		INSERT INTO entries (key, entry_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, generateUUID(), value, nowRFC3339())
	if err != nil {
		return fmt.Errorf("upserting entry %q: %w", key, err)
	}
	return b.persist("set", key)
}

// Remove deletes key. Removing a missing key does not touch the JSONL file.
func (b *Backend) Remove(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}

	res, err := b.db.Exec("DELETE FROM entries WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting entry %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	return b.persist("remove", key)
}

// Clear deletes every entry.
func (b *Backend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return types.ErrStoreDetached
	}

	if _, err := b.db.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}
	return b.persist("clear", "")
}

// Keys returns every stored key in ascending order.
func (b *Backend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.Query("SELECT key FROM entries ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning entry key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// persistEntriesJSONL rewrites entries.jsonl from the entries table.
// The caller must hold b.mu.
func (b *Backend) persistEntriesJSONL() error {
	rows, err := b.db.Query("SELECT entry_id, key, value, updated_at FROM entries ORDER BY key")
	if err != nil {
		return fmt.Errorf("reading entries for JSONL: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		var e entryJSON
		if err := rows.Scan(&e.EntryID, &e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return fmt.Errorf("scanning entry for JSONL: %w", err)
		}
		rec, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling entry %q: %w", e.Key, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return writeJSONL(filepath.Join(b.dataDir, entriesFile), records)
}
