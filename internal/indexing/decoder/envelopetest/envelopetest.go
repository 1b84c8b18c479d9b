// Package envelopetest builds transaction envelopes for tests.
package envelopetest

import (
	"github.com/vietddude/aliaswatch/internal/core/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// Credit is one AccountAmount line. Exactly one of Alias or Entity is encoded;
// RawAlias overrides Alias for non-address aliases such as key aliases.
type Credit struct {
	Alias    *domain.Address
	RawAlias []byte
	Entity   *domain.EntityID
	Amount   int64
}

// ToAlias builds an alias-addressed line.
func ToAlias(a domain.Address, amount int64) Credit {
	return Credit{Alias: &a, Amount: amount}
}

// ToEntity builds an entity-addressed line.
func ToEntity(id domain.EntityID, amount int64) Credit {
	return Credit{Entity: &id, Amount: amount}
}

// Body describes a TransactionBody.
type Body struct {
	Payer      domain.EntityID
	ValidStart domain.Position
	Nonce      int32
	Scheduled  bool
	Memo       string

	// Transfers makes a transfer body. EthereumData makes a contract call
	// body. If both are nil the body has no recognised oneof.
	Transfers    []Credit
	EthereumData []byte
}

// Marshal encodes the body.
func (b Body) Marshal() []byte {
	var out []byte
	out = appendMessage(out, 1, b.transactionID())
	if b.Memo != "" {
		out = protowire.AppendTag(out, 6, protowire.BytesType)
		out = protowire.AppendString(out, b.Memo)
	}
	switch {
	case b.Transfers != nil:
		var list []byte
		for _, c := range b.Transfers {
			list = appendMessage(list, 1, accountAmount(c))
		}
		var xfer []byte
		xfer = appendMessage(xfer, 1, list)
		out = appendMessage(out, 14, xfer)
	case b.EthereumData != nil:
		var eth []byte
		eth = appendMessage(eth, 1, b.EthereumData)
		out = appendMessage(out, 50, eth)
	}
	return out
}

// Signed wraps body bytes in the current layout.
func Signed(body []byte) []byte {
	var signed []byte
	signed = appendMessage(signed, 1, body)
	signed = appendMessage(signed, 2, nil)
	var tx []byte
	return appendMessage(tx, 5, signed)
}

// LegacyBodyBytes wraps body bytes in the deprecated serialized-body layout.
func LegacyBodyBytes(body []byte) []byte {
	var tx []byte
	return appendMessage(tx, 4, body)
}

// LegacyBody wraps body bytes in the oldest, embedded-body layout.
func LegacyBody(body []byte) []byte {
	var tx []byte
	return appendMessage(tx, 1, body)
}

func (b Body) transactionID() []byte {
	var ts []byte
	ts = protowire.AppendTag(ts, 1, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(int64(b.ValidStart)/1e9))
	ts = protowire.AppendTag(ts, 2, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(int64(b.ValidStart)%1e9))

	var id []byte
	id = appendMessage(id, 1, ts)
	id = appendMessage(id, 2, entityAccount(b.Payer))
	if b.Scheduled {
		id = protowire.AppendTag(id, 3, protowire.VarintType)
		id = protowire.AppendVarint(id, 1)
	}
	if b.Nonce != 0 {
		id = protowire.AppendTag(id, 4, protowire.VarintType)
		id = protowire.AppendVarint(id, uint64(b.Nonce))
	}
	return id
}

func entityAccount(id domain.EntityID) []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(id.Shard))
	out = protowire.AppendTag(out, 2, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(id.Realm))
	out = protowire.AppendTag(out, 3, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(id.Num))
	return out
}

func accountAmount(c Credit) []byte {
	var acct []byte
	switch {
	case c.RawAlias != nil:
		acct = appendMessage(acct, 4, c.RawAlias)
	case c.Alias != nil:
		acct = appendMessage(acct, 4, c.Alias.Bytes())
	case c.Entity != nil:
		acct = entityAccount(*c.Entity)
	}

	var out []byte
	out = appendMessage(out, 1, acct)
	out = protowire.AppendTag(out, 2, protowire.VarintType)
	out = protowire.AppendVarint(out, protowire.EncodeZigZag(c.Amount))
	return out
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
