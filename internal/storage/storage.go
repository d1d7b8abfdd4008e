// Package storage persists small keyed values (tokens, client id, overlay
// layout and visibility) in a local SQLite database, degrading to an
// in-memory map for the session when the database cannot be opened.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	_ "modernc.org/sqlite"
)

var log = logging.Logger("storage")

// Keys used by flyover. Each is read and written independently.
const (
	KeyAccessToken  = "spotify_access_token"
	KeyRefreshToken = "spotify_refresh_token"
	KeyTokenExpiry  = "spotify_token_expiry"
	KeyClientID     = "spotify_client_id"
	KeyPKCEVerifier = "spotify_pkce_verifier"
	KeyLayout       = "overlay_positions_v1"
	KeyVisibility   = "overlay_visibility_v1"
)

// ErrUnavailable reports that persistent storage could not be used.
var ErrUnavailable = errors.New("local storage unavailable")

// KV is the persisted key/value capability consumed by the rest of flyover.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
	Close() error
}

var (
	_ KV = (*DB)(nil)
	_ KV = (*Memory)(nil)
)

const dbFile = "flyover.db"

// DB wraps a SQLite database holding a single kv table.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database in dir. Any failure wraps ErrUnavailable.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrUnavailable, err)
	}
	path := filepath.Join(dir, dbFile)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrUnavailable, err)
	}
	// Two processes (control and overlay) share the file.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: configure database: %v", ErrUnavailable, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create kv table: %v", ErrUnavailable, err)
	}
	return &DB{db: db, path: path}, nil
}

// OpenOrMemory opens the database in dir, or returns an in-memory store when
// that fails so startup can continue.
func OpenOrMemory(dir string) KV {
	db, err := Open(dir)
	if err != nil {
		log.Warnf("falling back to in-memory storage: %v", err)
		return NewMemory()
	}
	return db
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Get returns the value for key and whether it exists.
func (d *DB) Get(key string) (string, bool, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key; last write wins.
func (d *DB) Set(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (d *DB) Delete(keys ...string) error {
	for _, key := range keys {
		if _, err := d.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Memory is a session-only KV.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// LoadJSON decodes the value at key into dest. It reports false, leaving dest
// untouched, when the key is missing, unreadable or malformed.
func LoadJSON(kv KV, key string, dest any) bool {
	raw, ok, err := kv.Get(key)
	if err != nil {
		log.Warnf("read %s: %v", key, err)
		return false
	}
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		log.Warnf("ignoring malformed %s: %v", key, err)
		return false
	}
	return true
}

// SaveJSON encodes value and stores it under key.
func SaveJSON(kv KV, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(key, string(raw))
}
