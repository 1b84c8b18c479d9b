package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

type MemoryStorage struct {
	cursors   map[string]*domain.CursorSnapshot
	bindings  map[domain.Address]*domain.IdentityBinding
	events    map[uuid.UUID]domain.MatchEvent
	watchlist map[domain.Address]*domain.WatchEntry
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		cursors:   make(map[string]*domain.CursorSnapshot),
		bindings:  make(map[domain.Address]*domain.IdentityBinding),
		events:    make(map[uuid.UUID]domain.MatchEvent),
		watchlist: make(map[domain.Address]*domain.WatchEntry),
	}
}

// -----------------------------------------------------------------------------
// Cursor Repository
// -----------------------------------------------------------------------------

type CursorRepo struct {
	store *MemoryStorage
}

func NewCursorRepo(store *MemoryStorage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.CursorSnapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if c, ok := r.store.cursors[name]; ok {
		return copySnapshot(c), nil
	}
	return nil, storage.ErrCursorNotFound
}

func (r *CursorRepo) Save(ctx context.Context, snap *domain.CursorSnapshot) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cursors[snap.Name] = copySnapshot(snap)
	return nil
}

func (r *CursorRepo) List(ctx context.Context) ([]*domain.CursorSnapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.CursorSnapshot, 0, len(r.store.cursors))
	for _, c := range r.store.cursors {
		out = append(out, copySnapshot(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func copySnapshot(s *domain.CursorSnapshot) *domain.CursorSnapshot {
	cp := *s
	cp.TieIDs = append([]string(nil), s.TieIDs...)
	return &cp
}

// -----------------------------------------------------------------------------
// Binding Repository
// -----------------------------------------------------------------------------

type BindingRepo struct {
	store *MemoryStorage
}

func NewBindingRepo(store *MemoryStorage) *BindingRepo {
	return &BindingRepo{store: store}
}

func (r *BindingRepo) PutIfAbsent(ctx context.Context, b *domain.IdentityBinding) (*domain.IdentityBinding, bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if existing, ok := r.store.bindings[b.Address]; ok {
		cp := *existing
		return &cp, false, nil
	}
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.bindings[b.Address] = &cp
	out := cp
	return &out, true, nil
}

func (r *BindingRepo) Get(ctx context.Context, addr domain.Address) (*domain.IdentityBinding, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if b, ok := r.store.bindings[addr]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, storage.ErrBindingNotFound
}

func (r *BindingRepo) GetAll(ctx context.Context) ([]*domain.IdentityBinding, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.IdentityBinding, 0, len(r.store.bindings))
	for _, b := range r.store.bindings {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Compare(out[j].Address) < 0 })
	return out, nil
}

// -----------------------------------------------------------------------------
// Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	store *MemoryStorage
}

func NewEventRepo(store *MemoryStorage) *EventRepo {
	return &EventRepo{store: store}
}

func (r *EventRepo) SaveBatch(ctx context.Context, events []domain.MatchEvent) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	inserted := 0
	for _, e := range events {
		if _, ok := r.store.events[e.ID]; ok {
			continue
		}
		r.store.events[e.ID] = e
		inserted++
	}
	return inserted, nil
}

func (r *EventRepo) ListByAddress(ctx context.Context, addr domain.Address, limit int) ([]domain.MatchEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.MatchEvent
	for _, e := range r.store.events {
		if e.Address == addr {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position > out[j].Position
		}
		return out[i].TransferIndex < out[j].TransferIndex
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *EventRepo) DeleteOlderThan(ctx context.Context, before domain.Position) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for id, e := range r.store.events {
		if e.Position < before {
			delete(r.store.events, id)
			deleted++
		}
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Watchlist Repository
// -----------------------------------------------------------------------------

type WatchlistRepo struct {
	store *MemoryStorage
}

func NewWatchlistRepo(store *MemoryStorage) *WatchlistRepo {
	return &WatchlistRepo{store: store}
}

func (r *WatchlistRepo) Save(ctx context.Context, entry *domain.WatchEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.watchlist[entry.Address] = &cp
	return nil
}

func (r *WatchlistRepo) GetAll(ctx context.Context) ([]*domain.WatchEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.WatchEntry, 0, len(r.store.watchlist))
	for _, e := range r.store.watchlist {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Compare(out[j].Address) < 0 })
	return out, nil
}
