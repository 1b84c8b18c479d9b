package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockCursorRepo struct {
	mu      sync.RWMutex
	cursors map[string]*domain.CursorSnapshot
	saveErr error
	saves   int
}

func newMockCursorRepo() *mockCursorRepo {
	return &mockCursorRepo{
		cursors: make(map[string]*domain.CursorSnapshot),
	}
}

func (r *mockCursorRepo) Get(ctx context.Context, name string) (*domain.CursorSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.cursors[name]
	if !ok {
		return nil, ErrCursorNotFound
	}
	// Return a copy
	c := *snap
	c.TieIDs = append([]string(nil), snap.TieIDs...)
	return &c, nil
}

func (r *mockCursorRepo) Save(ctx context.Context, snap *domain.CursorSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	c := *snap
	r.cursors[snap.Name] = &c
	return nil
}

func (r *mockCursorRepo) List(ctx context.Context) ([]*domain.CursorSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CursorSnapshot
	for _, s := range r.cursors {
		c := *s
		out = append(out, &c)
	}
	return out, nil
}

func entries(pos domain.Position, ids ...string) []Entry {
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry{ID: id, Position: pos})
	}
	return out
}

// =============================================================================
// ScanCursor Tests
// =============================================================================

func TestCommitAdvancesWatermark(t *testing.T) {
	c := New("transfers", 100, 10)

	if got := c.Commit(entries(20, "a")); got != 20 {
		t.Errorf("expected watermark 20, got %d", got)
	}
	if got := c.Commit(entries(35, "b", "c")); got != 35 {
		t.Errorf("expected watermark 35, got %d", got)
	}
	if !c.Seen("a") || !c.Seen("c") {
		t.Error("expected committed ids to be seen")
	}
	if c.Seen("z") {
		t.Error("unexpected id reported as seen")
	}
}

func TestCommitNeverDecreases(t *testing.T) {
	c := New("transfers", 100, 50)

	if got := c.Commit(nil); got != 50 {
		t.Errorf("empty batch moved watermark to %d", got)
	}
	if got := c.Commit(entries(40, "late")); got != 50 {
		t.Errorf("older entry moved watermark to %d", got)
	}
	c.Commit(entries(60, "x"))
	if got := c.Commit(entries(60, "x")); got != 60 {
		t.Errorf("duplicate commit moved watermark to %d", got)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 seen entries, got %d", c.Len())
	}
}

func TestTrimPreservesTies(t *testing.T) {
	c := New("transfers", 3, 0)

	c.Commit(entries(1, "p1"))
	c.Commit(entries(2, "p2"))
	c.Commit(entries(3, "t1", "t2", "t3", "t4", "t5"))

	// Capacity is 3, but all five ids tie the watermark.
	if c.Len() != 5 {
		t.Fatalf("expected 5 retained entries, got %d", c.Len())
	}
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		if !c.Seen(id) {
			t.Errorf("tie id %s was trimmed", id)
		}
	}
	if c.Seen("p1") || c.Seen("p2") {
		t.Error("expected entries below the watermark to be trimmed")
	}

	// Once the watermark moves on, the old ties become trimmable.
	c.Commit(entries(4, "n1"))
	if c.Len() != 3 {
		t.Errorf("expected trim back to capacity, got %d", c.Len())
	}
	if !c.Seen("n1") {
		t.Error("expected newest id to be retained")
	}
}

func TestTrimKeepsMostRecent(t *testing.T) {
	c := New("transfers", 2, 0)
	for i := 1; i <= 10; i++ {
		c.Commit(entries(domain.Position(i), fmt.Sprintf("tx-%d", i)))
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if !c.Seen("tx-9") || !c.Seen("tx-10") {
		t.Error("expected the two most recent ids to be retained")
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := New("transfers", 100, 0)
	c.Commit(entries(5, "old"))
	c.Commit(entries(9, "a", "b"))

	snap := c.Snapshot()
	if snap.Watermark != 9 {
		t.Errorf("expected watermark 9, got %d", snap.Watermark)
	}
	if len(snap.TieIDs) != 2 || snap.TieIDs[0] != "a" || snap.TieIDs[1] != "b" {
		t.Errorf("unexpected tie ids: %v", snap.TieIDs)
	}

	restored := Restore(snap, 100)
	if restored.Watermark() != 9 {
		t.Errorf("expected restored watermark 9, got %d", restored.Watermark())
	}
	if !restored.Seen("a") || !restored.Seen("b") {
		t.Error("expected tie ids to survive restore")
	}
	if restored.Seen("old") {
		t.Error("ids below the watermark are not persisted")
	}
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestManagerLoad_New(t *testing.T) {
	repo := newMockCursorRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	c, err := manager.Load(ctx, "transfers", 100, 1000)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Watermark() != 1000 {
		t.Errorf("expected watermark 1000, got %d", c.Watermark())
	}

	snap, err := manager.Get(ctx, "transfers")
	if err != nil {
		t.Fatalf("expected initial snapshot to be persisted: %v", err)
	}
	if snap.Watermark != 1000 {
		t.Errorf("expected persisted watermark 1000, got %d", snap.Watermark)
	}
}

func TestManagerLoad_Resume(t *testing.T) {
	repo := newMockCursorRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	c, _ := manager.Load(ctx, "transfers", 100, 0)
	if err := manager.Commit(ctx, c, entries(42, "tx-1", "tx-2")); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// A second manager over the same store simulates a restart.
	resumed, err := NewManager(repo).Load(ctx, "transfers", 100, 0)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if resumed.Watermark() != 42 {
		t.Errorf("expected watermark 42, got %d", resumed.Watermark())
	}
	if !resumed.Seen("tx-1") || !resumed.Seen("tx-2") {
		t.Error("expected tie ids to be restored")
	}
}

func TestManagerCommit_SaveError(t *testing.T) {
	repo := newMockCursorRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	c, _ := manager.Load(ctx, "transfers", 100, 0)
	repo.saveErr = errors.New("connection refused")

	err := manager.Commit(ctx, c, entries(7, "tx"))
	if err == nil {
		t.Fatal("expected save error")
	}
	if c.Watermark() != 7 {
		t.Errorf("in-memory cursor should still advance, got %d", c.Watermark())
	}
}

func TestManagerReset(t *testing.T) {
	repo := newMockCursorRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	c, _ := manager.Load(ctx, "transfers", 100, 0)
	_ = manager.Commit(ctx, c, entries(500, "tx"))

	if err := manager.Reset(ctx, "transfers", 100); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	snap, _ := manager.Get(ctx, "transfers")
	if snap.Watermark != 100 || len(snap.TieIDs) != 0 {
		t.Errorf("unexpected snapshot after reset: %+v", snap)
	}
	if manager.GetMetrics("transfers").LastResetAt == nil {
		t.Error("expected LastResetAt to be set")
	}
}

func TestManagerGetLag(t *testing.T) {
	repo := newMockCursorRepo()
	manager := NewManager(repo)
	ctx := context.Background()

	start := time.Unix(1700000000, 0)
	_, _ = manager.Load(ctx, "transfers", 100, domain.PositionFromTime(start))

	lag, err := manager.GetLag(ctx, "transfers", start.Add(90*time.Second))
	if err != nil {
		t.Fatalf("GetLag failed: %v", err)
	}
	if lag != 90*time.Second {
		t.Errorf("expected lag 90s, got %s", lag)
	}

	if _, err := manager.GetLag(ctx, "missing", start); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("expected ErrCursorNotFound, got %v", err)
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector(10)

	now := time.Now()
	for i := 0; i < 5; i++ {
		mc.RecordCommit(10, domain.Position(100+i), now.Add(time.Duration(i)*time.Second))
	}

	metrics := mc.GetMetrics()

	if metrics.TransactionsPerSecond < 9 || metrics.TransactionsPerSecond > 11 {
		t.Errorf("expected ~10 tx/sec, got %f", metrics.TransactionsPerSecond)
	}
	if metrics.AverageCommitInterval != time.Second {
		t.Errorf("expected 1s commit interval, got %s", metrics.AverageCommitInterval)
	}
	if metrics.LastWatermark != 104 {
		t.Errorf("expected last watermark 104, got %d", metrics.LastWatermark)
	}
}

func TestMetricsCollector_Window(t *testing.T) {
	mc := NewMetricsCollector(3)

	now := time.Now()
	for i := 0; i < 10; i++ {
		mc.RecordCommit(1, domain.Position(i), now.Add(time.Duration(i)*time.Second))
	}
	if len(mc.commits) != 3 {
		t.Errorf("expected window of 3, got %d", len(mc.commits))
	}
	if mc.commits[0].Watermark != 7 {
		t.Errorf("expected oldest retained watermark 7, got %d", mc.commits[0].Watermark)
	}
}
