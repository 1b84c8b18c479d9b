package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/indexing/metrics"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// Refresher rebuilds a Watchlist from the configured entries plus a
// WatchlistRepository, at most once per interval. It is shared by all
// scanners, which call Refresh at the start of every cycle.
type Refresher struct {
	list     *Watchlist
	static   []domain.WatchEntry
	repo     storage.WatchlistRepository
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last time.Time
}

// NewRefresher creates a refresher. repo may be nil, in which case only the
// static entries are ever loaded.
func NewRefresher(
	list *Watchlist,
	static []domain.WatchEntry,
	repo storage.WatchlistRepository,
	interval time.Duration,
	logger *slog.Logger,
) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		list:     list,
		static:   static,
		repo:     repo,
		interval: interval,
		logger:   logger,
	}
}

// Refresh reloads the list if the interval has elapsed. On a repository
// error the current list is kept.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.last.IsZero() && time.Since(r.last) < r.interval {
		return nil
	}
	return r.reload(ctx)
}

// ForceRefresh reloads regardless of the interval.
func (r *Refresher) ForceRefresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reload(ctx)
}

func (r *Refresher) reload(ctx context.Context) error {
	entries := make([]domain.WatchEntry, 0, len(r.static))
	entries = append(entries, r.static...)

	if r.repo != nil {
		stored, err := r.repo.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load watched addresses: %w", err)
		}
		for _, e := range stored {
			entries = append(entries, *e)
		}
	}

	before := r.list.Size()
	r.list.Replace(entries)
	r.last = time.Now()
	metrics.WatchlistSize.Set(float64(r.list.Size()))

	if after := r.list.Size(); after != before {
		r.logger.Info("Watchlist refreshed", "before", before, "after", after)
	}
	return nil
}
