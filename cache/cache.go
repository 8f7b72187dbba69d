// Package cache keeps a sqlite index of already-converted files so batch
// runs can skip work. A cache failure is never fatal to a conversion.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
	key TEXT PRIMARY KEY,
	output_path TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Index is the conversion index. Safe for concurrent use.
type Index struct {
	db *sql.DB
}

// Open opens (or creates) the index database at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: initialize schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Key derives the cache key for a source file converted at the given
// inference size with the given parameter fingerprint. The key is a SHA-256
// over the file contents, so edits to the source invalidate the entry.
func Key(srcPath string, size int, fingerprint string) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	fmt.Fprintf(h, "|size=%d|%s", size, fingerprint)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Lookup returns the cached output path for key, if present and the output
// file still exists. A stale entry (missing output) reads as a miss.
func (ix *Index) Lookup(key string) (string, bool, error) {
	var out string
	err := ix.db.QueryRow(`SELECT output_path FROM conversions WHERE key = ?`, key).Scan(&out)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return "", false, nil
	}
	return out, true, nil
}

// Store records (or replaces) the output path for key.
func (ix *Index) Store(key, outputPath string) error {
	_, err := ix.db.Exec(
		`INSERT INTO conversions (key, output_path, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET output_path = excluded.output_path, created_at = excluded.created_at`,
		key, outputPath, time.Now().Unix(),
	)
	return err
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}
