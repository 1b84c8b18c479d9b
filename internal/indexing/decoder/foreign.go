package decoder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// ForeignTransfer is the value movement carried by a foreign-format payload.
// Value is in the payload's native unit (weibars).
type ForeignTransfer struct {
	To    domain.Address
	Value *big.Int
}

// ForeignDecoder extracts a value transfer from an embedded foreign payload.
// It returns false for payloads it cannot parse or that move no value to an
// address (contract creation, zero value).
type ForeignDecoder interface {
	DecodeForeignPayload(data []byte) (ForeignTransfer, bool)
}

// EVMDecoder decodes RLP and typed (EIP-2718) EVM transactions.
type EVMDecoder struct{}

// NewEVMDecoder returns a ForeignDecoder backed by go-ethereum.
func NewEVMDecoder() *EVMDecoder {
	return &EVMDecoder{}
}

func (EVMDecoder) DecodeForeignPayload(data []byte) (ForeignTransfer, bool) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(data); err != nil {
		return ForeignTransfer{}, false
	}
	to := tx.To()
	if to == nil {
		return ForeignTransfer{}, false
	}
	value := tx.Value()
	if value == nil || value.Sign() <= 0 {
		return ForeignTransfer{}, false
	}
	return ForeignTransfer{To: domain.Address(*to), Value: new(big.Int).Set(value)}, true
}
