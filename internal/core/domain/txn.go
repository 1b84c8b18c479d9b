package domain

import (
	"fmt"
	"strconv"
)

// TxKind is the transaction type as named by the mirror node.
type TxKind string

const (
	TxKindCryptoTransfer TxKind = "CRYPTOTRANSFER"
	TxKindEthereum       TxKind = "ETHEREUMTRANSACTION"
	TxKindUnknown        TxKind = "UNKNOWN"
)

// Protocol type codes as stored by the mirror importer database.
var txKindCodes = map[TxKind]int{
	TxKindCryptoTransfer: 14,
	TxKindEthereum:       50,
}

// Code returns the importer database type code, or 0 when unknown.
func (k TxKind) Code() int {
	return txKindCodes[k]
}

// TxKindFromCode is the inverse of Code.
func TxKindFromCode(code int) TxKind {
	for k, c := range txKindCodes {
		if c == code {
			return k
		}
	}
	return TxKindUnknown
}

// TxResult is the settlement status reported by the source.
type TxResult string

const (
	TxResultSuccess TxResult = "SUCCESS"
)

// resultSuccessCode is the importer database code for SUCCESS.
const resultSuccessCode = 22

// ResultSuccessCode returns the importer database code for a successful result.
func ResultSuccessCode() int {
	return resultSuccessCode
}

// AccountAmount is one line of the resolved settlement transfer list.
type AccountAmount struct {
	Account EntityID `json:"account"`
	Amount  int64    `json:"amount"`
}

// SourceTransaction is a transaction as delivered by a transaction source.
type SourceTransaction struct {
	ID         string          `json:"transaction_id"`
	Position   Position        `json:"consensus_timestamp"`
	Kind       TxKind          `json:"name"`
	Result     TxResult        `json:"result"`
	Envelope   []byte          `json:"bytes"`
	Settlement []AccountAmount `json:"transfers"`
}

// TransactionID renders the mirror node id "shard.realm.num-seconds-nanos"
// of a parent transaction.
func TransactionID(payer EntityID, validStart Position) string {
	return fmt.Sprintf("%s-%d-%09d", payer, int64(validStart)/1e9, int64(validStart)%1e9)
}

// QualifyTransactionID appends the child nonce and the scheduled marker, so
// children and scheduled executions get ids distinct from their parent.
func QualifyTransactionID(base string, nonce int64, scheduled bool) string {
	if nonce > 0 {
		base += "-" + strconv.FormatInt(nonce, 10)
	}
	if scheduled {
		base += "-scheduled"
	}
	return base
}

// Successful reports whether the transaction settled successfully.
func (t *SourceTransaction) Successful() bool {
	return t.Result == TxResultSuccess
}
