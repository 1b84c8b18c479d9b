package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// Pruner deletes stored match events older than the retention period.
type Pruner struct {
	repo      storage.EventRepository
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(repo storage.EventRepository, retention time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		repo:      repo,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check at a tenth of the retention period, between a minute and an hour.
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes events whose consensus position is older than the
// retention period.
func (p *Pruner) Prune(ctx context.Context) int64 {
	threshold := domain.PositionFromTime(p.now().Add(-p.retention))

	deleted, err := p.repo.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.logger.Error("Failed to prune match events", "error", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Info("Pruned match events", "deleted", deleted, "before", threshold)
	}
	return deleted
}
