// Package storage persists module scan results in a SQLite catalog
// cache at .depmig/depmig.db, keyed by module path and source content
// hash. A hit skips re-scanning a module whose bytes have not changed.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"depmig/internal/errors"
	"depmig/internal/logging"
	"depmig/internal/rules"
)

const schemaVersion = 1

// CatalogStore is the on-disk catalog cache. It satisfies deps.Store.
type CatalogStore struct {
	conn    *sql.DB
	logger  *logging.Logger
	dbPath  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenCatalogStore opens or creates the cache database under
// <projectRoot>/.depmig/.
func OpenCatalogStore(projectRoot string, logger *logging.Logger) (*CatalogStore, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	dir := filepath.Join(projectRoot, ".depmig")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .depmig directory: %w", err)
	}
	dbPath := filepath.Join(dir, "depmig.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog cache: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds on lock
		"PRAGMA temp_store=MEMORY",  // Use memory for temp tables
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &CatalogStore{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}
	if s.encoder, err = zstd.NewWriter(nil); err != nil {
		conn.Close()
		return nil, err
	}
	if s.decoder, err = zstd.NewReader(nil); err != nil {
		conn.Close()
		return nil, err
	}

	if err := s.initializeSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return s, nil
}

func (s *CatalogStore) initializeSchema() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_info (
			version INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS module_scans (
			module       TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			payload      BLOB NOT NULL,
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (module, content_hash)
		);
		CREATE INDEX IF NOT EXISTS idx_module_scans_created
			ON module_scans(created_at);
	`)
	if err != nil {
		return err
	}

	var version int
	err = s.conn.QueryRow("SELECT version FROM schema_info LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.conn.Exec("INSERT INTO schema_info (version) VALUES (?)", schemaVersion)
		return err
	case err != nil:
		return err
	case version != schemaVersion:
		// Incompatible cache layout: drop and start over. The cache is
		// derived data, so this loses nothing but scan time.
		s.logger.Warn("catalog cache schema changed, resetting", map[string]interface{}{
			"found": version,
			"want":  schemaVersion,
		})
		if err := s.Reset(); err != nil {
			return err
		}
		_, err = s.conn.Exec("UPDATE schema_info SET version = ?", schemaVersion)
		return err
	}
	return nil
}

// contentHash keys a module's source bytes.
func contentHash(source []byte) string {
	sum := blake2b.Sum256(source)
	return fmt.Sprintf("%x", sum[:])
}

// Get returns the cached scan for a module at this exact source
// content, if present.
func (s *CatalogStore) Get(module string, source []byte) (*rules.ModuleScan, bool, error) {
	var payload []byte
	err := s.conn.QueryRow(
		"SELECT payload FROM module_scans WHERE module = ? AND content_hash = ?",
		module, contentHash(source),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	raw, err := s.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, false, errors.New(errors.CacheCorrupt, "cached scan failed to decompress", err).
			WithDetails(module)
	}
	var ms rules.ModuleScan
	if err := msgpack.Unmarshal(raw, &ms); err != nil {
		return nil, false, errors.New(errors.CacheCorrupt, "cached scan failed to decode", err).
			WithDetails(module)
	}
	return &ms, true, nil
}

// Put stores a module's scan, replacing any rows for other versions of
// the same module so the cache never grows one row per edit.
func (s *CatalogStore) Put(module string, source []byte, ms *rules.ModuleScan) error {
	raw, err := msgpack.Marshal(ms)
	if err != nil {
		return err
	}
	payload := s.encoder.EncodeAll(raw, nil)

	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM module_scans WHERE module = ?", module); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO module_scans (module, content_hash, payload, created_at) VALUES (?, ?, ?, ?)",
		module, contentHash(source), payload, time.Now().Unix(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Prune deletes entries older than the given age and returns how many
// were removed.
func (s *CatalogStore) Prune(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.conn.Exec("DELETE FROM module_scans WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Reset drops all cached scans.
func (s *CatalogStore) Reset() error {
	_, err := s.conn.Exec("DELETE FROM module_scans")
	return err
}

// Stats returns the number of cached scans and their total payload size.
func (s *CatalogStore) Stats() (int, int64, error) {
	var entries int
	var bytes sql.NullInt64
	err := s.conn.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM module_scans",
	).Scan(&entries, &bytes)
	if err != nil {
		return 0, 0, err
	}
	return entries, bytes.Int64, nil
}

// Close releases the database connection and codec resources.
func (s *CatalogStore) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.conn.Close()
}
