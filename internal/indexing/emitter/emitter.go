package emitter

import (
	"context"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// Emitter defines the interface for delivering match events.
//
// Delivery is at-least-once: a batch whose commit fails is emitted again on
// the next cycle. Sinks that persist events should dedupe on MatchEvent.ID.
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.MatchEvent) error

	// EmitBatch sends multiple events
	EmitBatch(ctx context.Context, events []domain.MatchEvent) error

	// Close closes the emitter connection
	Close() error
}
