package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

const (
	// DefaultStreamMaxLen caps the stream length (approximate trimming).
	DefaultStreamMaxLen = 100_000
	// DefaultMarkerTTL is how long a delivered event id is remembered.
	DefaultMarkerTTL = 7 * 24 * time.Hour
)

// StreamEmitter publishes match events to a Redis stream. A SETNX marker per
// event id keeps a re-emitted batch from producing duplicate entries.
type StreamEmitter struct {
	c         *Client
	maxLen    int64
	markerTTL time.Duration
	logger    *slog.Logger
}

// NewStreamEmitter creates a stream emitter writing to <prefix>:events.
func NewStreamEmitter(client *Client, maxLen int64, markerTTL time.Duration, logger *slog.Logger) *StreamEmitter {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	if markerTTL <= 0 {
		markerTTL = DefaultMarkerTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamEmitter{c: client, maxLen: maxLen, markerTTL: markerTTL, logger: logger}
}

// Emit publishes a single event.
func (e *StreamEmitter) Emit(ctx context.Context, event *domain.MatchEvent) error {
	id := event.ID.String()
	marker := e.c.eventMarkerKey(id)

	fresh, err := e.c.rdb.SetNX(ctx, marker, time.Now().Unix(), e.markerTTL).Result()
	if err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	if !fresh {
		e.logger.Debug("Event already published", "id", id)
		return nil
	}

	values, err := streamValues(event)
	if err != nil {
		_ = e.c.rdb.Del(ctx, marker).Err()
		return err
	}

	err = e.c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: e.c.streamKey(),
		MaxLen: e.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		// Let the retry publish it.
		_ = e.c.rdb.Del(ctx, marker).Err()
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// EmitBatch publishes events in order, stopping at the first failure.
func (e *StreamEmitter) EmitBatch(ctx context.Context, events []domain.MatchEvent) error {
	for i := range events {
		if err := e.Emit(ctx, &events[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (e *StreamEmitter) Close() error { return nil }

func streamValues(event *domain.MatchEvent) (map[string]any, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	values := map[string]any{
		"id":         event.ID.String(),
		"address":    event.Address.String(),
		"tx_id":      event.TxID,
		"amount":     event.Amount,
		"raw_alias":  strconv.FormatBool(event.SenderUsedRawAlias),
		"resolution": string(event.Resolution),
		"payload":    string(payload),
	}
	if event.Entity != nil {
		values["entity"] = event.Entity.String()
	}
	return values, nil
}
