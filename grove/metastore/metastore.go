// Package metastore implements an optional SQLite catalogue of every
// subtree a grove has ever created: its path, its 32-byte storage
// prefix, and the element tag it was created with. It accelerates path
// resolution and catalogue-style queries ("list every subtree under
// this path") without having to walk badger's own key space; it is
// never authoritative — the underlying grove.DB remains the source of
// truth, and a catalogue record can always be rebuilt by re-walking it.
package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dashpay/grovedb-sub006/element"
)

// Store is a SQLite-backed subtree catalogue.
type Store struct {
	db *sql.DB
}

// Config holds configuration for a Store.
type Config struct {
	// DBPath is the path to the SQLite database file. ":memory:" opens
	// an in-process, non-persistent database.
	DBPath string
}

// New opens (creating if necessary) a subtree catalogue.
func New(config Config) (*Store, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("metastore: DBPath is required")
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("metastore: open: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS subtrees (
		path       TEXT NOT NULL PRIMARY KEY,
		prefix     BLOB NOT NULL,
		tag        INTEGER NOT NULL,
		parent     TEXT,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_subtrees_parent ON subtrees(parent);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// encodePath renders a grove path as a single catalogue key: each
// segment hex-encoded and joined by "/", so a segment containing "/" or
// non-printable bytes never collides with a sibling segment boundary.
func encodePath(path [][]byte) string {
	if len(path) == 0 {
		return "/"
	}
	parts := make([]string, len(path))
	for i, seg := range path {
		parts[i] = fmt.Sprintf("%x", seg)
	}
	return "/" + strings.Join(parts, "/")
}

func parentOf(path [][]byte) string {
	if len(path) == 0 {
		return ""
	}
	return encodePath(path[:len(path)-1])
}

// Record describes one catalogued subtree.
type Record struct {
	Path   [][]byte
	Prefix []byte
	Tag    element.Tag
}

// Put upserts path's catalogue entry.
func (s *Store) Put(ctx context.Context, path [][]byte, prefix []byte, tag element.Tag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subtrees (path, prefix, tag, parent) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET prefix = excluded.prefix, tag = excluded.tag`,
		encodePath(path), prefix, int(tag), parentOf(path),
	)
	if err != nil {
		return fmt.Errorf("metastore: put %x: %w", path, err)
	}
	return nil
}

// Get returns path's catalogue entry, or (nil, nil) if it has never been
// catalogued.
func (s *Store) Get(ctx context.Context, path [][]byte) (*Record, error) {
	var prefix []byte
	var tag int
	err := s.db.QueryRowContext(ctx,
		`SELECT prefix, tag FROM subtrees WHERE path = ?`, encodePath(path),
	).Scan(&prefix, &tag)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: get %x: %w", path, err)
	}
	return &Record{Path: path, Prefix: prefix, Tag: element.Tag(tag)}, nil
}

// Delete removes path's catalogue entry, if any.
func (s *Store) Delete(ctx context.Context, path [][]byte) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subtrees WHERE path = ?`, encodePath(path))
	if err != nil {
		return fmt.Errorf("metastore: delete %x: %w", path, err)
	}
	return nil
}

// Children returns the prefixes of the catalogue entries whose parent is
// exactly path, in no particular order.
func (s *Store) Children(ctx context.Context, path [][]byte) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT prefix FROM subtrees WHERE parent = ?`, encodePath(path))
	if err != nil {
		return nil, fmt.Errorf("metastore: children %x: %w", path, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var prefix []byte
		if err := rows.Scan(&prefix); err != nil {
			return nil, fmt.Errorf("metastore: scan child of %x: %w", path, err)
		}
		out = append(out, prefix)
	}
	return out, rows.Err()
}
