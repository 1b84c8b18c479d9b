// Package reconcile maintains the mapping between watched addresses and the
// ledger entities created for them, and resolves that mapping the first time
// a transfer to a not-yet-bound alias is observed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/metrics"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// ErrEntityBound is returned by Bind when the entity already belongs to a
// different address.
var ErrEntityBound = errors.New("entity already bound to another address")

// Reconciler is the bidirectional address <-> entity map. Bindings are
// first-writer-wins and never revised. When a BindingRepository is attached,
// its atomic PutIfAbsent decides the winner across processes.
type Reconciler struct {
	store  storage.BindingRepository
	logger *slog.Logger

	mu       sync.RWMutex
	byAddr   map[domain.Address]domain.EntityID
	byEntity map[domain.EntityID]domain.Address
}

// New creates a reconciler. store may be nil for a process-local map.
func New(store storage.BindingRepository, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		logger:   logger,
		byAddr:   make(map[domain.Address]domain.EntityID),
		byEntity: make(map[domain.EntityID]domain.Address),
	}
}

// Load warms the maps from the store.
func (r *Reconciler) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	bindings, err := r.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load bindings: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range bindings {
		r.record(b.Address, b.Entity)
	}
	return nil
}

// Lookup returns the entity bound to addr.
func (r *Reconciler) Lookup(addr domain.Address) (domain.EntityID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddr[addr]
	return id, ok
}

// ReverseLookup returns the address bound to id.
func (r *Reconciler) ReverseLookup(id domain.EntityID) (domain.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.byEntity[id]
	return addr, ok
}

// Len returns the number of known bindings.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddr)
}

// Bind binds addr to id unless addr is already bound. It returns the
// authoritative entity for addr and whether this call created the binding.
func (r *Reconciler) Bind(
	ctx context.Context,
	addr domain.Address,
	id domain.EntityID,
	source domain.BindingSource,
) (domain.EntityID, bool, error) {
	r.mu.RLock()
	existing, bound := r.byAddr[addr]
	owner, owned := r.byEntity[id]
	r.mu.RUnlock()

	if bound {
		return existing, false, nil
	}
	if owned && owner != addr {
		return domain.EntityID{}, false, fmt.Errorf("%w: %s is bound to %s", ErrEntityBound, id, owner)
	}

	winner, created := id, true
	if r.store != nil {
		stored, ok, err := r.store.PutIfAbsent(ctx, &domain.IdentityBinding{
			Address:   addr,
			Entity:    id,
			Source:    source,
			CreatedAt: time.Now(),
		})
		if err != nil {
			return domain.EntityID{}, false, fmt.Errorf("failed to store binding: %w", err)
		}
		winner, created = stored.Entity, ok
	}

	r.mu.Lock()
	// Another goroutine may have bound addr while the store was consulted.
	if current, ok := r.byAddr[addr]; ok {
		r.mu.Unlock()
		return current, false, nil
	}
	r.record(addr, winner)
	r.mu.Unlock()

	if created {
		metrics.BindingsCreated.WithLabelValues(string(source)).Inc()
		r.logger.Info("Identity bound",
			"address", addr.String(),
			"entity", winner.String(),
			"source", source,
		)
	}
	return winner, created, nil
}

// record must be called with r.mu held.
func (r *Reconciler) record(addr domain.Address, id domain.EntityID) {
	r.byAddr[addr] = id
	if _, ok := r.byEntity[id]; !ok {
		r.byEntity[id] = addr
	}
}
