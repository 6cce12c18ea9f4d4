package keystore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/RevCBH/gafferd/internal/gafferr"
	"github.com/RevCBH/gafferd/internal/keymanager"
)

// MemoryDSN opens an in-memory, non-persistent database, for tests and
// --no-auth-less ephemeral daemons.
const MemoryDSN = ":memory:"

// SQLite is the default Backend, storing keys in a single "keys" table
// (key, data, parent), with data holding the JSON-encoded label+permissions.
type SQLite struct {
	path string
	conn *sql.DB
}

// NewSQLite constructs a backend bound to path (or MemoryDSN). Call Open to
// establish the connection and create the schema.
func NewSQLite(path string) *SQLite {
	if path == "" {
		path = MemoryDSN
	}
	return &SQLite{path: path}
}

// Open connects and ensures the schema exists. CREATE TABLE IF NOT EXISTS
// always runs, so a pre-existing but empty database file is migrated
// correctly rather than left tableless.
func (s *SQLite) Open() error {
	conn, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("keystore: open %s: %w", s.path, err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return fmt.Errorf("keystore: enable WAL: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return fmt.Errorf("keystore: enable foreign keys: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS keys (
	key    TEXT PRIMARY KEY,
	data   TEXT NOT NULL,
	parent TEXT REFERENCES keys(key)
);
CREATE INDEX IF NOT EXISTS idx_keys_parent ON keys(parent);
`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("keystore: migrate schema: %w", err)
	}

	s.conn = conn
	return nil
}

// Close commits any pending writes and releases the connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

type row struct {
	Label       string         `json:"label,omitempty"`
	Permissions map[string]any `json:"permissions,omitempty"`
}

func encodeRow(rec keymanager.Record) (string, error) {
	data, err := json.Marshal(row{Label: rec.Label, Permissions: rec.Permissions})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRow(key, data string) (keymanager.Record, error) {
	var r row
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return keymanager.Record{}, fmt.Errorf("keystore: decode %s: %w", key, err)
	}
	return keymanager.Record{Key: key, Label: r.Label, Permissions: r.Permissions}, nil
}

// SetKey inserts a new key record under an optional parent. Returns
// gafferr KeyConflict if the key already exists (SQLite UNIQUE violation on
// the primary key), or gafferr KeyNotFound if parent is non-empty and no
// row with that key exists yet — a child key's parent must exist at
// insert time.
func (s *SQLite) SetKey(key string, rec keymanager.Record, parent string) error {
	data, err := encodeRow(rec)
	if err != nil {
		return err
	}

	var parentArg any
	if parent != "" {
		ok, err := s.HasKey(parent)
		if err != nil {
			return err
		}
		if !ok {
			return gafferr.KeyNotFound(parent)
		}
		parentArg = parent
	}

	_, err = s.conn.Exec("INSERT INTO keys (key, data, parent) VALUES (?, ?, ?)", key, data, parentArg)
	if err != nil {
		if isUniqueViolation(err) {
			return gafferr.KeyConflict(key)
		}
		return fmt.Errorf("keystore: set_key %s: %w", key, err)
	}
	return nil
}

// isUniqueViolation matches the message modernc.org/sqlite produces for a
// UNIQUE constraint failure; the driver has no typed sentinel for it.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetKey returns gafferr KeyNotFound when no row matches.
func (s *SQLite) GetKey(key string) (keymanager.Record, error) {
	var data string
	err := s.conn.QueryRow("SELECT data FROM keys WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return keymanager.Record{}, gafferr.KeyNotFound(key)
	}
	if err != nil {
		return keymanager.Record{}, fmt.Errorf("keystore: get_key %s: %w", key, err)
	}
	return decodeRow(key, data)
}

// DeleteKey removes a single row. A no-op, not an error, if the key is
// already absent.
func (s *SQLite) DeleteKey(key string) error {
	_, err := s.conn.Exec("DELETE FROM keys WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("keystore: delete_key %s: %w", key, err)
	}
	return nil
}

// HasKey reports whether key exists.
func (s *SQLite) HasKey(key string) (bool, error) {
	_, err := s.GetKey(key)
	if err != nil {
		if errors.Is(err, gafferr.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AllKeys returns every stored record.
func (s *SQLite) AllKeys() ([]keymanager.Record, error) {
	return s.query("SELECT key, data FROM keys")
}

// AllSubkeys returns every record whose parent is key.
func (s *SQLite) AllSubkeys(key string) ([]keymanager.Record, error) {
	return s.queryArgs("SELECT key, data FROM keys WHERE parent = ?", key)
}

func (s *SQLite) query(q string) ([]keymanager.Record, error) {
	return s.queryArgs(q)
}

func (s *SQLite) queryArgs(q string, args ...any) ([]keymanager.Record, error) {
	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("keystore: query: %w", err)
	}
	defer rows.Close()

	var out []keymanager.Record
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		rec, err := decodeRow(key, data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
