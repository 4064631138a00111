// Package store persists the local mirror of requisition state. The record
// kept here is the reconciliation anchor for updates.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/atlet99/requisition-sync/internal/requisition"
)

// ErrNotFound is returned when no record exists for an id
var ErrNotFound = stderrors.New("requisition not found in store")

// Store is a durable record of requisition state keyed by id. Writes are
// last-write-wins; there is no concurrency token.
type Store interface {
	// Put writes the full record, replacing any existing one
	Put(ctx context.Context, r *requisition.Requisition) error
	// Get returns ErrNotFound when the id is unknown
	Get(ctx context.Context, id string) (*requisition.Requisition, error)
	// UpdateFields writes only the given fields, keyed by wire name
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	SetHeadcountPlanID(ctx context.Context, id, planID, updatedAt string) error
	UpdateStatus(ctx context.Context, id, status, updatedAt string) error
	// Delete is an administrative operation; the sync workflow never calls it
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Options select and configure a store implementation
type Options struct {
	Driver string
	DSN    string
}

// Open creates the store for opts.Driver: "sqlite3", "pgx" or "memory".
// SQL stores are returned unmigrated; call Migrate before use.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		logger.Info("Using in-memory requisition store")
		return NewMemoryStore(), nil
	case DriverSQLite, DriverPostgres:
		s, err := OpenSQL(ctx, opts.Driver, opts.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
}

// Migrate applies schema migrations when s is SQL-backed. It is a no-op for
// the memory store.
func Migrate(ctx context.Context, s Store) error {
	if m, ok := s.(interface{ Migrate(context.Context) error }); ok {
		return m.Migrate(ctx)
	}
	return nil
}
