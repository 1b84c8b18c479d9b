package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

type cursorRow struct {
	Name      string         `db:"name"`
	Watermark int64          `db:"watermark"`
	TieIDs    pq.StringArray `db:"tie_ids"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r cursorRow) toDomain() *domain.CursorSnapshot {
	return &domain.CursorSnapshot{
		Name:      r.Name,
		Watermark: domain.Position(r.Watermark),
		TieIDs:    []string(r.TieIDs),
		UpdatedAt: r.UpdatedAt,
	}
}

// Save upserts a cursor snapshot.
func (r *CursorRepo) Save(ctx context.Context, snap *domain.CursorSnapshot) error {
	query := `
		INSERT INTO scan_cursors (name, watermark, tie_ids, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			watermark = EXCLUDED.watermark,
			tie_ids = EXCLUDED.tie_ids,
			updated_at = EXCLUDED.updated_at
	`
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	ties := snap.TieIDs
	if ties == nil {
		ties = []string{}
	}

	_, err := r.db.ExecContext(ctx, query, snap.Name, int64(snap.Watermark), pq.Array(ties), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// Get retrieves a cursor snapshot by scanner name.
func (r *CursorRepo) Get(ctx context.Context, name string) (*domain.CursorSnapshot, error) {
	query := `SELECT name, watermark, tie_ids, updated_at FROM scan_cursors WHERE name = $1`

	var row cursorRow
	err := r.db.GetContext(ctx, &row, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return row.toDomain(), nil
}

// List returns all cursor snapshots ordered by name.
func (r *CursorRepo) List(ctx context.Context) ([]*domain.CursorSnapshot, error) {
	query := `SELECT name, watermark, tie_ids, updated_at FROM scan_cursors ORDER BY name`

	var rows []cursorRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}

	snaps := make([]*domain.CursorSnapshot, 0, len(rows))
	for _, row := range rows {
		snaps = append(snaps, row.toDomain())
	}
	return snaps, nil
}
