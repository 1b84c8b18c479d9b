package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// WatchlistRepo implements storage.WatchlistRepository using PostgreSQL.
type WatchlistRepo struct {
	db     *DB
	logger *slog.Logger
}

// NewWatchlistRepo creates a new PostgreSQL watchlist repository.
func NewWatchlistRepo(db *DB, logger *slog.Logger) *WatchlistRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchlistRepo{db: db, logger: logger}
}

type watchRow struct {
	Address   string    `db:"address"`
	Label     string    `db:"label"`
	CreatedAt time.Time `db:"created_at"`
}

// Save upserts a watched address.
func (r *WatchlistRepo) Save(ctx context.Context, entry *domain.WatchEntry) error {
	query := `
		INSERT INTO watched_addresses (address, label, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE SET label = EXCLUDED.label
	`
	if _, err := r.db.ExecContext(ctx, query, entry.Address.String(), entry.Label); err != nil {
		return fmt.Errorf("failed to save watched address: %w", err)
	}
	return nil
}

// GetAll retrieves all watched addresses. Rows that do not hold a valid
// address are skipped with a warning.
func (r *WatchlistRepo) GetAll(ctx context.Context) ([]*domain.WatchEntry, error) {
	query := `SELECT address, label, created_at FROM watched_addresses ORDER BY address`

	var rows []watchRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get watched addresses: %w", err)
	}

	entries := make([]*domain.WatchEntry, 0, len(rows))
	for _, row := range rows {
		addr, err := domain.NormalizeAddress(row.Address)
		if err != nil {
			r.logger.Warn("Skipping invalid watched address", "address", row.Address, "error", err)
			continue
		}
		entries = append(entries, &domain.WatchEntry{
			Address:   addr,
			Label:     row.Label,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}
