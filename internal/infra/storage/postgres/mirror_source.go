package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// MirrorSource reads transactions straight from a mirror node importer
// database. Entity ids are stored in the importer's packed int64 form.
type MirrorSource struct {
	db   *DB
	name string
}

// NewMirrorSource creates a source over an importer database connection.
func NewMirrorSource(db *DB, name string) *MirrorSource {
	if name == "" {
		name = "mirror-db"
	}
	return &MirrorSource{db: db, name: name}
}

// Name returns the source name.
func (s *MirrorSource) Name() string {
	return s.name
}

type mirrorTxRow struct {
	ConsensusTimestamp int64  `db:"consensus_timestamp"`
	PayerAccountID     int64  `db:"payer_account_id"`
	ValidStartNs       int64  `db:"valid_start_ns"`
	Nonce              int64  `db:"nonce"`
	Scheduled          bool   `db:"scheduled"`
	Type               int    `db:"type"`
	Result             int    `db:"result"`
	TransactionBytes   []byte `db:"transaction_bytes"`
}

type mirrorTransferRow struct {
	ConsensusTimestamp int64 `db:"consensus_timestamp"`
	EntityID           int64 `db:"entity_id"`
	Amount             int64 `db:"amount"`
}

// Fetch returns up to limit transactions of the given kinds after the
// position, ascending, with their settlement transfer lists attached.
func (s *MirrorSource) Fetch(
	ctx context.Context,
	after domain.Position,
	kinds []domain.TxKind,
	limit int,
) ([]domain.SourceTransaction, error) {
	codes := make([]int64, 0, len(kinds))
	for _, k := range kinds {
		if c := k.Code(); c != 0 {
			codes = append(codes, int64(c))
		}
	}
	if len(codes) == 0 {
		return nil, nil
	}

	query := `
		SELECT consensus_timestamp, payer_account_id, valid_start_ns,
			COALESCE(nonce, 0) AS nonce, COALESCE(scheduled, false) AS scheduled,
			type, result, transaction_bytes
		FROM transaction
		WHERE consensus_timestamp > $1 AND type = ANY($2)
		ORDER BY consensus_timestamp ASC
		LIMIT $3
	`

	var rows []mirrorTxRow
	if err := s.db.SelectContext(ctx, &rows, query, int64(after), pq.Array(codes), limit); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	timestamps := make([]int64, len(rows))
	for i, row := range rows {
		timestamps[i] = row.ConsensusTimestamp
	}
	settlements, err := s.settlements(ctx, timestamps)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.SourceTransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, domain.SourceTransaction{
			ID:         transactionID(row),
			Position:   domain.Position(row.ConsensusTimestamp),
			Kind:       domain.TxKindFromCode(row.Type),
			Result:     resultName(row.Result),
			Envelope:   row.TransactionBytes,
			Settlement: settlements[row.ConsensusTimestamp],
		})
	}
	return txs, nil
}

func (s *MirrorSource) settlements(ctx context.Context, timestamps []int64) (map[int64][]domain.AccountAmount, error) {
	query := `
		SELECT consensus_timestamp, entity_id, amount
		FROM crypto_transfer
		WHERE consensus_timestamp = ANY($1)
		ORDER BY consensus_timestamp, entity_id
	`

	var rows []mirrorTransferRow
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(timestamps)); err != nil {
		return nil, fmt.Errorf("failed to list crypto transfers: %w", err)
	}

	out := make(map[int64][]domain.AccountAmount, len(timestamps))
	for _, row := range rows {
		out[row.ConsensusTimestamp] = append(out[row.ConsensusTimestamp], domain.AccountAmount{
			Account: domain.EncodedEntityID(row.EntityID),
			Amount:  row.Amount,
		})
	}
	return out, nil
}

// ResolveAlias looks up the entity whose EVM address is addr.
func (s *MirrorSource) ResolveAlias(ctx context.Context, addr domain.Address) (domain.EntityID, bool, error) {
	query := `
		SELECT id FROM entity
		WHERE evm_address = $1 AND deleted IS NOT TRUE
		ORDER BY created_timestamp ASC
		LIMIT 1
	`

	var encoded int64
	err := s.db.GetContext(ctx, &encoded, query, addr.Bytes())
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EntityID{}, false, nil
	}
	if err != nil {
		return domain.EntityID{}, false, fmt.Errorf("failed to resolve alias %s: %w", addr, err)
	}
	return domain.EncodedEntityID(encoded), true, nil
}

func transactionID(row mirrorTxRow) string {
	base := domain.TransactionID(domain.EncodedEntityID(row.PayerAccountID), domain.Position(row.ValidStartNs))
	return domain.QualifyTransactionID(base, row.Nonce, row.Scheduled)
}

func resultName(code int) domain.TxResult {
	if code == domain.ResultSuccessCode() {
		return domain.TxResultSuccess
	}
	return domain.TxResult(fmt.Sprintf("RESULT_%d", code))
}
