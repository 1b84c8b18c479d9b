package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// LogEmitter writes events to a structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a log emitter. A nil logger means slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(ctx context.Context, event *domain.MatchEvent) error {
	attrs := []any{
		"id", event.ID.String(),
		"address", event.Address.String(),
		"amount", event.Amount,
		"tx", event.TxID,
		"index", event.TransferIndex,
		"consensus_timestamp", event.Position.String(),
		"raw_alias", event.SenderUsedRawAlias,
		"provenance", event.Provenance,
		"resolution", event.Resolution,
	}
	if event.Label != "" {
		attrs = append(attrs, "label", event.Label)
	}
	if event.Entity != nil {
		attrs = append(attrs, "entity", event.Entity.String())
	}
	if event.Memo != "" {
		attrs = append(attrs, "memo", event.Memo)
	}
	e.logger.InfoContext(ctx, "Transfer matched", attrs...)
	return nil
}

func (e *LogEmitter) EmitBatch(ctx context.Context, events []domain.MatchEvent) error {
	for i := range events {
		_ = e.Emit(ctx, &events[i])
	}
	return nil
}

func (e *LogEmitter) Close() error { return nil }
