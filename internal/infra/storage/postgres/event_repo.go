package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// EventRepo implements storage.EventRepository using PostgreSQL.
type EventRepo struct {
	db *DB
}

// NewEventRepo creates a new PostgreSQL event repository.
func NewEventRepo(db *DB) *EventRepo {
	return &EventRepo{db: db}
}

type eventRow struct {
	ID                 uuid.UUID      `db:"id"`
	Address            string         `db:"address"`
	Label              string         `db:"label"`
	Entity             sql.NullString `db:"entity"`
	Amount             int64          `db:"amount"`
	TxID               string         `db:"tx_id"`
	TransferIndex      int            `db:"transfer_index"`
	Position           int64          `db:"position"`
	Memo               string         `db:"memo"`
	SenderUsedRawAlias bool           `db:"sender_used_raw_alias"`
	Provenance         string         `db:"provenance"`
	Resolution         string         `db:"resolution"`
}

func (r eventRow) toDomain() (domain.MatchEvent, error) {
	addr, err := domain.NormalizeAddress(r.Address)
	if err != nil {
		return domain.MatchEvent{}, err
	}
	ev := domain.MatchEvent{
		ID:                 r.ID,
		Address:            addr,
		Label:              r.Label,
		Amount:             r.Amount,
		TxID:               r.TxID,
		TransferIndex:      r.TransferIndex,
		Position:           domain.Position(r.Position),
		Memo:               r.Memo,
		SenderUsedRawAlias: r.SenderUsedRawAlias,
		Provenance:         domain.Provenance(r.Provenance),
		Resolution:         domain.Resolution(r.Resolution),
	}
	if r.Entity.Valid {
		id, err := domain.ParseEntityID(r.Entity.String)
		if err != nil {
			return domain.MatchEvent{}, err
		}
		ev.Entity = &id
	}
	return ev, nil
}

// SaveBatch inserts events in one transaction, skipping ids already stored.
// It returns the number of rows written.
func (r *EventRepo) SaveBatch(ctx context.Context, events []domain.MatchEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO match_events (
			id, address, label, entity, amount, tx_id, transfer_index, position,
			memo, sender_used_raw_alias, provenance, resolution, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for _, ev := range events {
		var entity sql.NullString
		if ev.Entity != nil {
			entity = sql.NullString{String: ev.Entity.String(), Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			ev.ID, ev.Address.String(), ev.Label, entity, ev.Amount, ev.TxID,
			ev.TransferIndex, int64(ev.Position), ev.Memo, ev.SenderUsedRawAlias,
			string(ev.Provenance), string(ev.Resolution),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save event %s: %w", ev.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return written, nil
}

// ListByAddress retrieves the most recent events for an address.
func (r *EventRepo) ListByAddress(ctx context.Context, addr domain.Address, limit int) ([]domain.MatchEvent, error) {
	query := `
		SELECT id, address, label, entity, amount, tx_id, transfer_index, position,
			memo, sender_used_raw_alias, provenance, resolution
		FROM match_events
		WHERE address = $1
		ORDER BY position DESC, transfer_index DESC
		LIMIT $2
	`

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, addr.String(), limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]domain.MatchEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("invalid event row %s: %w", row.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// DeleteOlderThan removes events with a position before the given one.
func (r *EventRepo) DeleteOlderThan(ctx context.Context, before domain.Position) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM match_events WHERE position < $1`, int64(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return res.RowsAffected()
}
