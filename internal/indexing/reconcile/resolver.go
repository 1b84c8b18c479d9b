package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/metrics"
)

// ErrAmbiguousReconciliation is returned when the settlement heuristic finds
// zero or several candidate entities for a raw alias transfer.
var ErrAmbiguousReconciliation = errors.New("ambiguous reconciliation")

// DefaultSystemAccountMax is the highest entity num treated as a system or
// fee account.
const DefaultSystemAccountMax = 1000

// EntityResolver looks up the entity the ledger created for an alias.
// ok is false when no entity exists yet.
type EntityResolver interface {
	ResolveAlias(ctx context.Context, addr domain.Address) (id domain.EntityID, ok bool, err error)
}

// Config controls resolution.
type Config struct {
	// SystemAccountMax excludes entities with num <= this value. Zero means
	// DefaultSystemAccountMax; negative disables the range exclusion.
	SystemAccountMax int64
	// Exclude lists further accounts that are never candidates, such as the
	// network's fee collection accounts.
	Exclude []domain.EntityID
	// LookupTimeout bounds each EntityResolver call. Zero means no timeout.
	LookupTimeout time.Duration
}

// Resolver fills in the entity of raw alias matches that have no binding yet:
// first from the settlement heuristic, then from the optional lookup.
type Resolver struct {
	rec     *Reconciler
	lookup  EntityResolver
	exclude map[domain.EntityID]struct{}
	cfg     Config
	logger  *slog.Logger
}

// NewResolver creates a resolver. lookup may be nil.
func NewResolver(rec *Reconciler, lookup EntityResolver, cfg Config, logger *slog.Logger) *Resolver {
	if cfg.SystemAccountMax == 0 {
		cfg.SystemAccountMax = DefaultSystemAccountMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	exclude := make(map[domain.EntityID]struct{}, len(cfg.Exclude))
	for _, id := range cfg.Exclude {
		exclude[id] = struct{}{}
	}
	return &Resolver{
		rec:     rec,
		lookup:  lookup,
		exclude: exclude,
		cfg:     cfg,
		logger:  logger,
	}
}

// Heuristic picks the entity credited with exactly amount in the settlement,
// ignoring system, excluded and already bound accounts. It fails with
// ErrAmbiguousReconciliation unless there is exactly one such entity.
func (r *Resolver) Heuristic(addr domain.Address, amount int64, settlement []domain.AccountAmount) (domain.EntityID, error) {
	var (
		candidate domain.EntityID
		found     int
	)
	seen := make(map[domain.EntityID]struct{})
	for _, aa := range settlement {
		if aa.Amount != amount || aa.Amount <= 0 {
			continue
		}
		if _, dup := seen[aa.Account]; dup {
			continue
		}
		seen[aa.Account] = struct{}{}
		if r.excluded(aa.Account) {
			continue
		}
		if owner, ok := r.rec.ReverseLookup(aa.Account); ok && owner != addr {
			continue
		}
		candidate = aa.Account
		found++
	}
	if found != 1 {
		return domain.EntityID{}, ErrAmbiguousReconciliation
	}
	return candidate, nil
}

func (r *Resolver) excluded(id domain.EntityID) bool {
	if _, ok := r.exclude[id]; ok {
		return true
	}
	return r.cfg.SystemAccountMax > 0 && id.Shard == 0 && id.Realm == 0 && id.Num <= r.cfg.SystemAccountMax
}

// Resolve completes an unresolved raw alias event in place. Failures are
// logged and leave the event unresolved; they never abort the caller.
func (r *Resolver) Resolve(ctx context.Context, ev *domain.MatchEvent, settlement []domain.AccountAmount) {
	if ev.Entity != nil || !ev.SenderUsedRawAlias {
		return
	}

	// An earlier event in the same batch may have bound the address.
	if id, ok := r.rec.Lookup(ev.Address); ok {
		r.set(ev, id, domain.ResolutionBound)
		return
	}

	candidate, err := r.Heuristic(ev.Address, ev.Amount, settlement)
	if err == nil {
		r.bind(ctx, ev, candidate, domain.BindingSourceHeuristic, domain.ResolutionHeuristic)
		if ev.Entity != nil {
			return
		}
	} else {
		metrics.ReconcileAmbiguous.Inc()
		r.logger.Debug("Heuristic reconciliation failed",
			"address", ev.Address.String(),
			"tx", ev.TxID,
			"error", err,
		)
	}

	if r.lookup != nil {
		lookupCtx := ctx
		if r.cfg.LookupTimeout > 0 {
			var cancel context.CancelFunc
			lookupCtx, cancel = context.WithTimeout(ctx, r.cfg.LookupTimeout)
			defer cancel()
		}
		id, ok, err := r.lookup.ResolveAlias(lookupCtx, ev.Address)
		switch {
		case err != nil:
			r.logger.Warn("Entity lookup failed",
				"address", ev.Address.String(),
				"tx", ev.TxID,
				"error", err,
			)
		case ok:
			r.bind(ctx, ev, id, domain.BindingSourceLookup, domain.ResolutionLookup)
			if ev.Entity != nil {
				return
			}
		}
	}

	ev.Resolution = domain.ResolutionUnresolved
}

func (r *Resolver) bind(
	ctx context.Context,
	ev *domain.MatchEvent,
	id domain.EntityID,
	source domain.BindingSource,
	resolution domain.Resolution,
) {
	winner, created, err := r.rec.Bind(ctx, ev.Address, id, source)
	if err != nil {
		r.logger.Warn("Failed to bind identity",
			"address", ev.Address.String(),
			"entity", id.String(),
			"error", err,
		)
		return
	}
	if !created {
		resolution = domain.ResolutionBound
	}
	r.set(ev, winner, resolution)
}

func (r *Resolver) set(ev *domain.MatchEvent, id domain.EntityID, resolution domain.Resolution) {
	ev.Entity = &id
	ev.Resolution = resolution
}
