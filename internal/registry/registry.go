// Package registry persists the single default printer the app prints
// to. The slot survives restarts; registering a new printer overwrites
// the previous one.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrStorage tags every persistence failure so callers can match the
// whole category with errors.Is.
var ErrStorage = errors.New("registry: storage failure")

// Printer is the persisted identity of the default printer. Address is
// the transport-layer identifier (a BLE MAC or CoreBluetooth UUID);
// Name is the advertised label shown to the operator.
type Printer struct {
	Address string
	Name    string
}

// Store is the single-slot printer registry backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at dbPath and runs the
// schema migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, dbPath, err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set WAL mode: %v", ErrStorage, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorage, err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	// id is pinned to 1: the registry holds at most one printer.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS printer (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			address       TEXT NOT NULL,
			name          TEXT NOT NULL,
			registered_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Register stores the printer in the single slot, replacing whatever
// was there. The upsert is one statement, so concurrent registers
// cannot interleave.
func (s *Store) Register(ctx context.Context, address, name string) error {
	if address == "" {
		return fmt.Errorf("%w: printer address must not be empty", ErrStorage)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO printer (id, address, name, registered_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET address = excluded.address,
			name = excluded.name, registered_at = excluded.registered_at`,
		address, name, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: register printer: %v", ErrStorage, err)
	}
	return nil
}

// Default returns the registered printer, or (nil, nil) when the slot
// is empty. An empty slot is a normal state, not an error.
func (s *Store) Default(ctx context.Context) (*Printer, error) {
	var p Printer
	err := s.db.QueryRowContext(ctx,
		"SELECT address, name FROM printer WHERE id = 1",
	).Scan(&p.Address, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query printer: %v", ErrStorage, err)
	}
	return &p, nil
}

// Remove clears the slot. Removing an already-empty slot is a no-op.
func (s *Store) Remove(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM printer WHERE id = 1"); err != nil {
		return fmt.Errorf("%w: remove printer: %v", ErrStorage, err)
	}
	return nil
}
