package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"github.com/vietddude/aliaswatch/internal/infra/storage"
)

// BindingRepo implements storage.BindingRepository using PostgreSQL.
type BindingRepo struct {
	db *DB
}

// NewBindingRepo creates a new PostgreSQL binding repository.
func NewBindingRepo(db *DB) *BindingRepo {
	return &BindingRepo{db: db}
}

type bindingRow struct {
	Address   string    `db:"address"`
	Shard     int64     `db:"shard"`
	Realm     int64     `db:"realm"`
	Num       int64     `db:"num"`
	Source    string    `db:"source"`
	CreatedAt time.Time `db:"created_at"`
}

func (r bindingRow) toDomain() (*domain.IdentityBinding, error) {
	addr, err := domain.NormalizeAddress(r.Address)
	if err != nil {
		return nil, err
	}
	return &domain.IdentityBinding{
		Address:   addr,
		Entity:    domain.EntityID{Shard: r.Shard, Realm: r.Realm, Num: r.Num},
		Source:    domain.BindingSource(r.Source),
		CreatedAt: r.CreatedAt,
	}, nil
}

// PutIfAbsent inserts the binding unless the address is already bound and
// returns the stored row. The primary key on address makes the race safe.
func (r *BindingRepo) PutIfAbsent(ctx context.Context, b *domain.IdentityBinding) (*domain.IdentityBinding, bool, error) {
	query := `
		INSERT INTO identity_bindings (address, shard, realm, num, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO NOTHING
	`
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, query,
		b.Address.String(), b.Entity.Shard, b.Entity.Realm, b.Entity.Num,
		string(b.Source), createdAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert binding: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert binding: %w", err)
	}

	stored, err := r.Get(ctx, b.Address)
	if err != nil {
		return nil, false, err
	}
	return stored, inserted == 1, nil
}

// Get retrieves the binding for an address.
func (r *BindingRepo) Get(ctx context.Context, addr domain.Address) (*domain.IdentityBinding, error) {
	query := `SELECT address, shard, realm, num, source, created_at FROM identity_bindings WHERE address = $1`

	var row bindingRow
	err := r.db.GetContext(ctx, &row, query, addr.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}
	return row.toDomain()
}

// GetAll retrieves all bindings, oldest first so reloads replay the
// original first-writer order.
func (r *BindingRepo) GetAll(ctx context.Context) ([]*domain.IdentityBinding, error) {
	query := `SELECT address, shard, realm, num, source, created_at FROM identity_bindings ORDER BY created_at, address`

	var rows []bindingRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get all bindings: %w", err)
	}

	bindings := make([]*domain.IdentityBinding, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("invalid binding row %q: %w", row.Address, err)
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}
