package storage

import (
	"context"
	"errors"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

var (
	// ErrCursorNotFound is returned when a cursor doesn't exist
	ErrCursorNotFound = errors.New("cursor not found")

	// ErrBindingNotFound is returned when an address has no binding
	ErrBindingNotFound = errors.New("binding not found")
)

// CursorRepository persists scan cursor snapshots, one per scanner name
type CursorRepository interface {
	// Get retrieves the snapshot for a scanner
	Get(ctx context.Context, name string) (*domain.CursorSnapshot, error)

	// Save saves/updates the snapshot
	Save(ctx context.Context, snap *domain.CursorSnapshot) error

	// List returns all stored snapshots
	List(ctx context.Context) ([]*domain.CursorSnapshot, error)
}

// BindingRepository stores address to entity bindings.
//
// PutIfAbsent must be atomic: when two writers race for the same address,
// exactly one wins and both observe the winner's binding.
type BindingRepository interface {
	// PutIfAbsent stores b unless a binding for b.Address exists, and returns
	// the stored binding and whether b was the one written
	PutIfAbsent(ctx context.Context, b *domain.IdentityBinding) (*domain.IdentityBinding, bool, error)

	// Get retrieves the binding for an address
	Get(ctx context.Context, addr domain.Address) (*domain.IdentityBinding, error)

	// GetAll retrieves all bindings
	GetAll(ctx context.Context) ([]*domain.IdentityBinding, error)
}

// EventRepository stores emitted match events
type EventRepository interface {
	// SaveBatch saves events, ignoring ids that are already stored
	SaveBatch(ctx context.Context, events []domain.MatchEvent) (int, error)

	// ListByAddress retrieves recent events for an address, newest first
	ListByAddress(ctx context.Context, addr domain.Address, limit int) ([]domain.MatchEvent, error)

	// DeleteOlderThan removes events with a position before the given one
	DeleteOlderThan(ctx context.Context, before domain.Position) (int64, error)
}

// WatchlistRepository handles watched address storage
type WatchlistRepository interface {
	// Save saves a watched address
	Save(ctx context.Context, entry *domain.WatchEntry) error

	// GetAll retrieves all watched addresses
	GetAll(ctx context.Context) ([]*domain.WatchEntry, error)
}
