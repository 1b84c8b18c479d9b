package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// ErrCursorNotFound is returned when no snapshot exists for a scanner.
var ErrCursorNotFound = storage.ErrCursorNotFound

// Manager loads, commits and persists scan cursors.
type Manager interface {
	// Load restores the cursor for a scanner, or creates one at start.
	Load(ctx context.Context, name string, capacity int, start domain.Position) (*ScanCursor, error)

	// Commit records a processed batch and persists the snapshot.
	Commit(ctx context.Context, c *ScanCursor, entries []Entry) error

	// Get retrieves the persisted snapshot for a scanner.
	Get(ctx context.Context, name string) (*domain.CursorSnapshot, error)

	// List returns all persisted snapshots.
	List(ctx context.Context) ([]*domain.CursorSnapshot, error)

	// Reset overwrites the persisted snapshot so the scanner resumes after pos.
	Reset(ctx context.Context, name string, pos domain.Position) error

	// GetLag returns how far the watermark trails now.
	GetLag(ctx context.Context, name string, now time.Time) (time.Duration, error)

	// GetMetrics returns throughput metrics for a scanner.
	GetMetrics(name string) Metrics
}

// DefaultManager implements Manager on top of a CursorRepository.
type DefaultManager struct {
	repo    storage.CursorRepository
	mu      sync.RWMutex
	history map[string]*MetricsCollector
}

// NewManager creates a new cursor manager with the given repository.
func NewManager(repo storage.CursorRepository) *DefaultManager {
	return &DefaultManager{
		repo:    repo,
		history: make(map[string]*MetricsCollector),
	}
}

// Load restores the cursor for a scanner, or creates one at start.
func (m *DefaultManager) Load(
	ctx context.Context,
	name string,
	capacity int,
	start domain.Position,
) (*ScanCursor, error) {
	m.mu.Lock()
	m.collector(name)
	m.mu.Unlock()

	snap, err := m.repo.Get(ctx, name)
	if errors.Is(err, storage.ErrCursorNotFound) {
		c := New(name, capacity, start)
		if err := m.repo.Save(ctx, c.Snapshot()); err != nil {
			return nil, fmt.Errorf("failed to save cursor: %w", err)
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return Restore(snap, capacity), nil
}

// Commit records a processed batch and persists the snapshot. The in-memory
// cursor is advanced even when persisting fails; the next successful commit
// carries the state forward.
func (m *DefaultManager) Commit(ctx context.Context, c *ScanCursor, entries []Entry) error {
	watermark := c.Commit(entries)

	m.mu.Lock()
	m.collector(c.Name()).RecordCommit(len(entries), watermark, time.Now())
	m.mu.Unlock()

	if err := m.repo.Save(ctx, c.Snapshot()); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Get retrieves the persisted snapshot for a scanner.
func (m *DefaultManager) Get(ctx context.Context, name string) (*domain.CursorSnapshot, error) {
	return m.repo.Get(ctx, name)
}

// List returns all persisted snapshots.
func (m *DefaultManager) List(ctx context.Context) ([]*domain.CursorSnapshot, error) {
	return m.repo.List(ctx)
}

// Reset overwrites the persisted snapshot. A running scanner keeps its
// in-memory cursor, so resets are meant for stopped scanners.
func (m *DefaultManager) Reset(ctx context.Context, name string, pos domain.Position) error {
	snap := &domain.CursorSnapshot{
		Name:      name,
		Watermark: pos,
		UpdatedAt: time.Now(),
	}
	if err := m.repo.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}

	m.mu.Lock()
	m.collector(name).RecordReset(snap.UpdatedAt)
	m.mu.Unlock()
	return nil
}

// GetLag returns how far the watermark trails now.
func (m *DefaultManager) GetLag(ctx context.Context, name string, now time.Time) (time.Duration, error) {
	snap, err := m.repo.Get(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
	return now.Sub(snap.Watermark.Time()), nil
}

// GetMetrics returns throughput metrics for a scanner.
func (m *DefaultManager) GetMetrics(name string) Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if collector, ok := m.history[name]; ok {
		return collector.GetMetrics()
	}

	return Metrics{}
}

// collector returns the metrics collector for name, creating it if needed.
// Callers that may race must hold m.mu.
func (m *DefaultManager) collector(name string) *MetricsCollector {
	if c, ok := m.history[name]; ok {
		return c
	}
	c := NewMetricsCollector(100)
	m.history[name] = c
	return c
}
