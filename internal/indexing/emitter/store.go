package emitter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// StoreEmitter persists events through an EventRepository. Re-emitted
// events are dropped by the repository's id check.
type StoreEmitter struct {
	repo   storage.EventRepository
	logger *slog.Logger
}

// NewStoreEmitter creates a store emitter.
func NewStoreEmitter(repo storage.EventRepository, logger *slog.Logger) *StoreEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreEmitter{repo: repo, logger: logger}
}

func (e *StoreEmitter) Emit(ctx context.Context, event *domain.MatchEvent) error {
	return e.EmitBatch(ctx, []domain.MatchEvent{*event})
}

func (e *StoreEmitter) EmitBatch(ctx context.Context, events []domain.MatchEvent) error {
	if len(events) == 0 {
		return nil
	}
	inserted, err := e.repo.SaveBatch(ctx, events)
	if err != nil {
		return fmt.Errorf("failed to store events: %w", err)
	}
	if dup := len(events) - inserted; dup > 0 {
		e.logger.Debug("Skipped already stored events", "count", dup)
	}
	return nil
}

func (e *StoreEmitter) Close() error { return nil }
