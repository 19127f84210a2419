// Package cache stores compiled chunks in SQLite, keyed by the SHA-256
// of the source text that produced them.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/loxvm/vm"
)

var log = commonlog.GetLogger("lox.cache")

const schema = `CREATE TABLE IF NOT EXISTS chunks (
	hash       TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Cache is a content-addressed store of encoded chunks.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the cache database at path. The parent
// directory is created when missing.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened chunk cache %s", path)
	return &Cache{db: db, path: path}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Key returns the cache key for source: the hex SHA-256 of its bytes.
func Key(source string) string {
	h := sha256.Sum256([]byte(source))
	return hex.EncodeToString(h[:])
}

// Get returns the chunk cached for source. A missing entry, or one written
// with an older wire version, reports ok == false.
func (c *Cache) Get(source string) (chunk *vm.Chunk, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(source)
	var (
		version int
		data    []byte
	)
	err = c.db.QueryRow("SELECT version, data FROM chunks WHERE hash = ?", key).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("miss %s", key[:12])
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying chunk: %w", err)
	}
	if version != int(vm.WireVersion) {
		log.Debugf("stale %s (version %d)", key[:12], version)
		return nil, false, nil
	}

	chunk, err = vm.UnmarshalChunk(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached chunk %s: %w", key[:12], err)
	}
	log.Debugf("hit %s", key[:12])
	return chunk, true, nil
}

// Put stores chunk as the compiled form of source, replacing any previous
// entry.
func (c *Cache) Put(source string, chunk *vm.Chunk) error {
	data, err := vm.MarshalChunk(chunk)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO chunks (hash, version, data, created_at) VALUES (?, ?, ?, ?)",
		Key(source), int(vm.WireVersion), data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving chunk: %w", err)
	}
	return nil
}

// Len returns the number of cached chunks.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Purge deletes every entry not written with the current wire version and
// returns how many were removed.
func (c *Cache) Purge() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM chunks WHERE version != ?", int(vm.WireVersion))
	if err != nil {
		return 0, fmt.Errorf("purging chunks: %w", err)
	}
	return res.RowsAffected()
}
