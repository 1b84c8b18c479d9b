package decoder

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a layer ends in the middle of a field.
	ErrTruncated = errors.New("truncated input")

	// ErrMalformed is returned for invalid wire data or unexpected wire types.
	ErrMalformed = errors.New("malformed input")

	// ErrNoBody is returned when an envelope carries none of the body layouts.
	ErrNoBody = errors.New("no transaction body")
)

// Layer names used in DecodeError.
const (
	LayerTransaction         = "transaction"
	LayerSignedTransaction   = "signed_transaction"
	LayerBody                = "body"
	LayerTransactionID       = "transaction_id"
	LayerTimestamp           = "timestamp"
	LayerCryptoTransfer      = "crypto_transfer"
	LayerTransferList        = "transfer_list"
	LayerAccountAmount       = "account_amount"
	LayerAccountID           = "account_id"
	LayerEthereumTransaction = "ethereum_transaction"
)

// DecodeError reports a failure at a specific nesting layer of the envelope.
type DecodeError struct {
	Layer string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Layer, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func layerError(layer string, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Layer: layer, Err: err}
}
