// Package incarnstore persists the local node's incarnation number across
// restarts so that a node rejoining after a crash never reuses an
// incarnation a peer has already seen (the classic SWIM clock-regression
// hazard: without durable state, a restarted node's incarnation resets to 0
// and its own earlier, higher-incarnation rumors would outrank its fresh
// "alive" announcement). Grounded on the teacher's internal/infra/sqlite
// package: migrations as a slice of plain SQL statements run against
// database/sql with the modernc.org/sqlite pure-Go driver, one row per
// logical key.
package incarnstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// migrations are executed in order against a fresh or existing database.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS incarnation (
			address     TEXT PRIMARY KEY,
			incarnation INTEGER NOT NULL DEFAULT 0
		)`,
	}
}

// Store wraps a SQLite-backed incarnation counter, one row per address.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// migrations. Use ":memory:" for tests that don't need durability.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("incarnstore: open: %w", err)
	}
	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("incarnstore: migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the last persisted incarnation for address, or 0 if none has
// been recorded yet.
func (s *Store) Load(address string) (int64, error) {
	var incarnation int64
	err := s.db.QueryRow(`SELECT incarnation FROM incarnation WHERE address = ?`, address).Scan(&incarnation)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("incarnstore: load: %w", err)
	}
	return incarnation, nil
}

// Bump persists incarnation for address, taking the higher of the stored
// and requested value so a concurrent writer (or an out-of-order restart)
// can never move the counter backwards.
func (s *Store) Bump(address string, incarnation int64) error {
	current, err := s.Load(address)
	if err != nil {
		return err
	}
	if incarnation <= current {
		return nil
	}
	_, err = s.db.Exec(`
		INSERT INTO incarnation (address, incarnation) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET incarnation = MAX(incarnation, excluded.incarnation)
	`, address, incarnation)
	if err != nil {
		return fmt.Errorf("incarnstore: bump: %w", err)
	}
	return nil
}

// NextOnRestart returns the incarnation a node should announce on this
// startup: one greater than whatever was last durably recorded, and
// immediately persists that reservation so a second restart before any
// gossip occurs still advances monotonically.
func (s *Store) NextOnRestart(address string) (int64, error) {
	current, err := s.Load(address)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.Bump(address, next); err != nil {
		return 0, err
	}
	return next, nil
}
