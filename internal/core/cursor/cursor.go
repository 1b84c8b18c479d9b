// Package cursor tracks incremental scan progress for each scanner.
//
// # Purpose
//
// A ScanCursor is the scanner's "bookmark" in the transaction feed:
//   - Watermark: the highest fully processed consensus position
//   - Seen-set: recently processed transaction ids, for exactly-once delivery
//     when a page overlaps the previous one or several transactions tie at
//     the same position
//
// # Key Features
//
// Monotonic Watermark - Commit never moves the watermark backwards, even when
// a later batch is empty or only contains already seen ids.
//
// Tie Preservation - Trimming the seen-set to capacity never drops an id
// whose position equals the watermark. Those ids are the only ones a fetch
// "after watermark" could ever hand back again.
//
// Atomic Updates - The cursor only changes in Commit, after a batch has been
// fully matched and emitted.
//
// # Quick Start
//
//	manager := cursor.NewManager(cursorRepo)
//
//	// Resume (or start at the configured position)
//	c, _ := manager.Load(ctx, "transfers", 10000, start)
//
//	// Skip what was already processed
//	if c.Seen(tx.ID) { ... }
//
//	// Commit a processed batch and persist the snapshot
//	manager.Commit(ctx, c, []cursor.Entry{{ID: tx.ID, Position: tx.Position}})
//
// # Package Structure
//
//   - cursor.go  - ScanCursor, seen-set and snapshotting
//   - manager.go - Manager persisting snapshots through a CursorRepository
//   - metrics.go - Throughput metrics (transactions/sec, commit history)
package cursor

import (
	"sync"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// DefaultSeenCapacity bounds the seen-set when no capacity is configured.
const DefaultSeenCapacity = 10000

// Entry is one processed transaction.
type Entry struct {
	ID       string
	Position domain.Position
}

// ScanCursor is the watermark plus a bounded seen-set. It is safe for
// concurrent use, but only the owning scanner should call Commit.
type ScanCursor struct {
	name     string
	capacity int

	mu        sync.RWMutex
	watermark domain.Position
	seen      map[string]struct{}
	order     []Entry // ascending by position
	updatedAt time.Time
}

// New creates a cursor positioned at start with an empty seen-set.
func New(name string, capacity int, start domain.Position) *ScanCursor {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &ScanCursor{
		name:      name,
		capacity:  capacity,
		watermark: start,
		seen:      make(map[string]struct{}),
	}
}

// Name returns the scanner name the cursor belongs to.
func (c *ScanCursor) Name() string {
	return c.name
}

// Watermark returns the highest committed position.
func (c *ScanCursor) Watermark() domain.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watermark
}

// Seen reports whether id was committed and is still retained.
func (c *ScanCursor) Seen(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.seen[id]
	return ok
}

// Len returns the seen-set size.
func (c *ScanCursor) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Commit records a processed batch and returns the new watermark. Entries
// must be in processing order; ids already seen are ignored.
func (c *ScanCursor) Commit(entries []Entry) domain.Position {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		if _, ok := c.seen[e.ID]; ok {
			continue
		}
		c.seen[e.ID] = struct{}{}
		c.insert(e)
		if e.Position > c.watermark {
			c.watermark = e.Position
		}
	}
	c.trim()
	c.updatedAt = time.Now()
	return c.watermark
}

// insert keeps order sorted by position. Entries almost always arrive in
// ascending order, so this is an append in practice.
func (c *ScanCursor) insert(e Entry) {
	i := len(c.order)
	for i > 0 && c.order[i-1].Position > e.Position {
		i--
	}
	c.order = append(c.order, Entry{})
	copy(c.order[i+1:], c.order[i:])
	c.order[i] = e
}

// trim drops the oldest entries beyond capacity, stopping at the first entry
// that ties the watermark.
func (c *ScanCursor) trim() {
	drop := 0
	for len(c.order)-drop > c.capacity && c.order[drop].Position < c.watermark {
		delete(c.seen, c.order[drop].ID)
		drop++
	}
	if drop > 0 {
		c.order = append(c.order[:0], c.order[drop:]...)
	}
}

// Snapshot returns the persistable form. Only ids at the watermark are kept:
// after a restart the next fetch starts strictly after the watermark, so
// older ids can never be delivered again.
func (c *ScanCursor) Snapshot() *domain.CursorSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &domain.CursorSnapshot{
		Name:      c.name,
		Watermark: c.watermark,
		UpdatedAt: c.updatedAt,
	}
	for i := len(c.order) - 1; i >= 0 && c.order[i].Position == c.watermark; i-- {
		snap.TieIDs = append(snap.TieIDs, c.order[i].ID)
	}
	// Oldest first, matching insertion order.
	for i, j := 0, len(snap.TieIDs)-1; i < j; i, j = i+1, j-1 {
		snap.TieIDs[i], snap.TieIDs[j] = snap.TieIDs[j], snap.TieIDs[i]
	}
	return snap
}

// Restore creates a cursor from a persisted snapshot.
func Restore(snap *domain.CursorSnapshot, capacity int) *ScanCursor {
	c := New(snap.Name, capacity, snap.Watermark)
	for _, id := range snap.TieIDs {
		if _, ok := c.seen[id]; ok {
			continue
		}
		c.seen[id] = struct{}{}
		c.order = append(c.order, Entry{ID: id, Position: snap.Watermark})
	}
	c.updatedAt = snap.UpdatedAt
	return c
}
