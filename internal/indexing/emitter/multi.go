package emitter

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// DefaultDeliveredCapacity bounds how many event ids each sink remembers.
const DefaultDeliveredCapacity = 10000

// MultiEmitter fans events out to several sinks. Every sink is attempted;
// the joined error is returned if any failed. Each sink remembers the ids it
// already accepted, so a batch retried after a partial failure only reaches
// the sinks that missed it.
type MultiEmitter struct {
	sinks []*trackedSink
}

type trackedSink struct {
	Emitter

	mu        sync.Mutex
	capacity  int
	delivered map[uuid.UUID]struct{}
	order     []uuid.UUID
}

// NewMultiEmitter creates a fan-out emitter.
func NewMultiEmitter(sinks ...Emitter) *MultiEmitter {
	tracked := make([]*trackedSink, len(sinks))
	for i, s := range sinks {
		tracked[i] = &trackedSink{
			Emitter:   s,
			capacity:  DefaultDeliveredCapacity,
			delivered: make(map[uuid.UUID]struct{}),
		}
	}
	return &MultiEmitter{sinks: tracked}
}

func (m *MultiEmitter) Emit(ctx context.Context, event *domain.MatchEvent) error {
	return m.EmitBatch(ctx, []domain.MatchEvent{*event})
}

func (m *MultiEmitter) EmitBatch(ctx context.Context, events []domain.MatchEvent) error {
	var errs []error
	for _, s := range m.sinks {
		pending := s.undelivered(events)
		if len(pending) == 0 {
			continue
		}
		if err := s.EmitBatch(ctx, pending); err != nil {
			errs = append(errs, err)
			continue
		}
		s.markDelivered(pending)
	}
	return errors.Join(errs...)
}

func (m *MultiEmitter) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *trackedSink) undelivered(events []domain.MatchEvent) []domain.MatchEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MatchEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := s.delivered[ev.ID]; !ok {
			out = append(out, ev)
		}
	}
	return out
}

// markDelivered records ids in arrival order, evicting the oldest beyond
// capacity.
func (s *trackedSink) markDelivered(events []domain.MatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if _, ok := s.delivered[ev.ID]; ok {
			continue
		}
		s.delivered[ev.ID] = struct{}{}
		s.order = append(s.order, ev.ID)
	}
	if over := len(s.order) - s.capacity; over > 0 {
		for _, id := range s.order[:over] {
			delete(s.delivered, id)
		}
		s.order = append(s.order[:0], s.order[over:]...)
	}
}
