package decoder

import (
	"math/big"

	"github.com/vietddude/aliaswatch/internal/core/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// TransactionBody field numbers.
const (
	bodyFieldTransactionID protowire.Number = 1
	bodyFieldMemo          protowire.Number = 6
	bodyFieldCryptoXfer    protowire.Number = 14
	bodyFieldEthereumTx    protowire.Number = 50

	txIDFieldValidStart protowire.Number = 1
	txIDFieldAccountID  protowire.Number = 2
	txIDFieldScheduled  protowire.Number = 3
	txIDFieldNonce      protowire.Number = 4

	tsFieldSeconds protowire.Number = 1
	tsFieldNanos   protowire.Number = 2

	xferFieldTransfers        protowire.Number = 1
	xferListFieldAccountAmnts protowire.Number = 1
	amountFieldAccountID      protowire.Number = 1
	amountFieldAmount         protowire.Number = 2

	accountFieldShard protowire.Number = 1
	accountFieldRealm protowire.Number = 2
	accountFieldNum   protowire.Number = 3
	accountFieldAlias protowire.Number = 4

	ethFieldData protowire.Number = 1
)

// weibarsPerTinybar converts foreign payload values (18 decimals) to ledger
// units (8 decimals).
var weibarsPerTinybar = big.NewInt(10_000_000_000)

type body struct {
	txID    transactionID
	memo    string
	kind    domain.TxKind
	payload []byte
}

func parseBody(b []byte) (*body, error) {
	out := &body{kind: domain.TxKindUnknown}
	err := walk(LayerBody, b, func(f field) error {
		switch f.num {
		case bodyFieldTransactionID:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			id, err := parseTransactionID(f.b)
			if err != nil {
				return err
			}
			out.txID = id
		case bodyFieldMemo:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			out.memo = string(f.b)
		case bodyFieldCryptoXfer:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			out.kind = domain.TxKindCryptoTransfer
			out.payload = f.b
		case bodyFieldEthereumTx:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			out.kind = domain.TxKindEthereum
			out.payload = f.b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseTransactionID(b []byte) (transactionID, error) {
	var id transactionID
	err := walk(LayerTransactionID, b, func(f field) error {
		switch f.num {
		case txIDFieldValidStart:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			ts, err := parseTimestamp(f.b)
			if err != nil {
				return err
			}
			id.validStart = ts
		case txIDFieldAccountID:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			acct, err := parseAccountID(f.b)
			if err != nil {
				return err
			}
			id.payer = acct.entity
		case txIDFieldScheduled:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			id.scheduled = f.v != 0
		case txIDFieldNonce:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			id.nonce = f.int64()
		}
		return nil
	})
	return id, err
}

func parseTimestamp(b []byte) (domain.Position, error) {
	var sec, nanos int64
	err := walk(LayerTimestamp, b, func(f field) error {
		switch f.num {
		case tsFieldSeconds:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			sec = f.int64()
		case tsFieldNanos:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			nanos = int64(int32(f.v))
		}
		return nil
	})
	return domain.Position(sec*1e9 + nanos), err
}

// accountID is a decoded AccountID. Exactly one of hasNum and alias is
// expected to be set.
type accountID struct {
	entity domain.EntityID
	hasNum bool
	alias  []byte
}

func parseAccountID(b []byte) (accountID, error) {
	var acct accountID
	err := walk(LayerAccountID, b, func(f field) error {
		switch f.num {
		case accountFieldShard:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			acct.entity.Shard = f.int64()
		case accountFieldRealm:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			acct.entity.Realm = f.int64()
		case accountFieldNum:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			acct.entity.Num = f.int64()
			acct.hasNum = true
			acct.alias = nil
		case accountFieldAlias:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			acct.alias = f.b
			acct.hasNum = false
		}
		return nil
	})
	return acct, err
}

// destination classifies an AccountID as the sender encoded it. Aliases that
// are not 20 bytes (public-key aliases) are not addresses and yield false.
func (a accountID) destination() (domain.Destination, bool) {
	if a.alias != nil {
		addr, err := domain.AddressFromBytes(a.alias)
		if err != nil {
			return domain.Destination{}, false
		}
		return domain.RawAlias(addr), true
	}
	if a.hasNum {
		return domain.EntityDestination(a.entity), true
	}
	return domain.Destination{}, false
}

// parseCryptoTransfer returns one instruction per credit in the hbar transfer
// list. Debits and zero amounts are fees or sources, never destinations.
func parseCryptoTransfer(b []byte) ([]domain.TransferInstruction, error) {
	var transfers []domain.TransferInstruction
	err := walk(LayerCryptoTransfer, b, func(f field) error {
		if f.num != xferFieldTransfers {
			return nil
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		list, err := parseTransferList(f.b, len(transfers))
		if err != nil {
			return err
		}
		transfers = append(transfers, list...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

func parseTransferList(b []byte, offset int) ([]domain.TransferInstruction, error) {
	var (
		transfers []domain.TransferInstruction
		index     = offset
	)
	err := walk(LayerTransferList, b, func(f field) error {
		if f.num != xferListFieldAccountAmnts {
			return nil
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		acct, amount, err := parseAccountAmount(f.b)
		if err != nil {
			return err
		}
		idx := index
		index++

		if amount <= 0 {
			return nil
		}
		dest, ok := acct.destination()
		if !ok {
			return nil
		}
		transfers = append(transfers, domain.TransferInstruction{
			Index:       idx,
			Destination: dest,
			Amount:      amount,
		})
		return nil
	})
	return transfers, err
}

func parseAccountAmount(b []byte) (accountID, int64, error) {
	var (
		acct   accountID
		amount int64
	)
	err := walk(LayerAccountAmount, b, func(f field) error {
		switch f.num {
		case amountFieldAccountID:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			parsed, err := parseAccountID(f.b)
			if err != nil {
				return err
			}
			acct = parsed
		case amountFieldAmount:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			amount = f.sint64()
		}
		return nil
	})
	return acct, amount, err
}

// parseEthereum decodes the optional foreign payload of a contract call body.
// Any failure past the outer wire layer degrades to an empty list.
func (d *Decoder) parseEthereum(b []byte) ([]domain.TransferInstruction, error) {
	var data []byte
	err := walk(LayerEthereumTransaction, b, func(f field) error {
		if f.num != ethFieldData {
			return nil
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		data = f.b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if d.foreign == nil || len(data) == 0 {
		return nil, nil
	}
	ft, ok := d.foreign.DecodeForeignPayload(data)
	if !ok || ft.Value == nil {
		return nil, nil
	}

	tinybars := new(big.Int).Quo(ft.Value, weibarsPerTinybar)
	if tinybars.Sign() <= 0 || !tinybars.IsInt64() {
		return nil, nil
	}

	dest := domain.RawAlias(ft.To)
	if id, ok := ft.To.LongZeroEntity(); ok {
		dest = domain.EntityDestination(id)
	}
	return []domain.TransferInstruction{{
		Index:       0,
		Destination: dest,
		Amount:      tinybars.Int64(),
		Foreign:     true,
	}}, nil
}
