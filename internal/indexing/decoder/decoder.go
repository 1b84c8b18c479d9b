// Package decoder recovers transfer instructions from signed transaction envelopes.
//
// An envelope is a protobuf Transaction that nests the body in one of three
// layouts. The layout is chosen by field presence, in this order:
//
//	Transaction.signedTransactionBytes (5) -> SignedTransaction.bodyBytes (1) -> TransactionBody
//	Transaction.bodyBytes (4)                                                  -> TransactionBody
//	Transaction.body (1)                                                       -> TransactionBody
//
// The body's oneof decides the kind. Transfer bodies yield one instruction per
// credit, keeping the destination exactly as the sender encoded it. Contract
// call bodies carry a foreign-format payload that is only decoded when a
// ForeignDecoder is configured.
package decoder

import (
	"github.com/vietddude/aliaswatch/internal/core/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// Transaction field numbers.
const (
	txFieldBody            protowire.Number = 1
	txFieldBodyBytes       protowire.Number = 4
	txFieldSignedTxBytes   protowire.Number = 5
	signedTxFieldBodyBytes protowire.Number = 1
)

// Decoder turns envelope bytes into a DecodedTransaction. It is stateless and
// safe for concurrent use.
type Decoder struct {
	foreign ForeignDecoder
}

// New creates a decoder. foreign may be nil, in which case contract call
// bodies decode to an empty transfer list.
func New(foreign ForeignDecoder) *Decoder {
	return &Decoder{foreign: foreign}
}

// Decode parses envelope bytes. ID and Position are derived from the body's
// transaction id when the caller has nothing better.
func (d *Decoder) Decode(envelope []byte) (*domain.DecodedTransaction, error) {
	layout, bodyBytes, err := unwrap(envelope)
	if err != nil {
		return nil, err
	}

	body, err := parseBody(bodyBytes)
	if err != nil {
		return nil, err
	}

	tx := &domain.DecodedTransaction{
		ID:       body.txID.String(),
		Position: body.txID.validStart,
		Kind:     body.kind,
		Layout:   layout,
		Memo:     body.memo,
		Payer:    body.txID.payer,
	}

	switch body.kind {
	case domain.TxKindCryptoTransfer:
		tx.Transfers, err = parseCryptoTransfer(body.payload)
		if err != nil {
			return nil, err
		}
	case domain.TxKindEthereum:
		tx.Transfers, err = d.parseEthereum(body.payload)
		if err != nil {
			return nil, err
		}
	}

	return tx, nil
}

// DecodeSource decodes a source transaction, keeping the source's id and
// consensus position rather than the ones derived from the body.
func (d *Decoder) DecodeSource(src *domain.SourceTransaction) (*domain.DecodedTransaction, error) {
	tx, err := d.Decode(src.Envelope)
	if err != nil {
		return nil, err
	}
	if src.ID != "" {
		tx.ID = src.ID
	}
	tx.Position = src.Position
	return tx, nil
}

// unwrap peels the outer Transaction down to TransactionBody bytes.
func unwrap(envelope []byte) (domain.EnvelopeLayout, []byte, error) {
	if len(envelope) == 0 {
		return 0, nil, layerError(LayerTransaction, ErrNoBody)
	}

	var signed, bodyBytes, body []byte
	err := walk(LayerTransaction, envelope, func(f field) error {
		switch f.num {
		case txFieldSignedTxBytes, txFieldBodyBytes, txFieldBody:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
		default:
			return nil
		}

		switch f.num {
		case txFieldSignedTxBytes:
			signed = f.b
		case txFieldBodyBytes:
			bodyBytes = f.b
		case txFieldBody:
			body = f.b
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	switch {
	case len(signed) > 0:
		inner, err := unwrapSigned(signed)
		if err != nil {
			return 0, nil, err
		}
		return domain.LayoutSigned, inner, nil
	case len(bodyBytes) > 0:
		return domain.LayoutLegacyBodyBytes, bodyBytes, nil
	case len(body) > 0:
		return domain.LayoutLegacyBody, body, nil
	default:
		return 0, nil, layerError(LayerTransaction, ErrNoBody)
	}
}

func unwrapSigned(signed []byte) ([]byte, error) {
	var bodyBytes []byte
	err := walk(LayerSignedTransaction, signed, func(f field) error {
		if f.num != signedTxFieldBodyBytes {
			return nil
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		bodyBytes = f.b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(bodyBytes) == 0 {
		return nil, layerError(LayerSignedTransaction, ErrNoBody)
	}
	return bodyBytes, nil
}

// transactionID is the decoded TransactionID of a body.
type transactionID struct {
	payer      domain.EntityID
	validStart domain.Position
	nonce      int64
	scheduled  bool
}

// String renders the mirror node form "shard.realm.num-seconds-nanos",
// suffixed with the nonce of a child and "-scheduled" for a scheduled run.
func (t transactionID) String() string {
	return domain.QualifyTransactionID(domain.TransactionID(t.payer, t.validStart), t.nonce, t.scheduled)
}
