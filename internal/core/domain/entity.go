package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidEntityID is returned for a malformed shard.realm.num string.
var ErrInvalidEntityID = errors.New("invalid entity id")

// EntityID is the ledger-assigned identifier of a materialized entity.
type EntityID struct {
	Shard int64 `json:"shard"`
	Realm int64 `json:"realm"`
	Num   int64 `json:"num"`
}

// ParseEntityID parses the "shard.realm.num" form.
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return EntityID{}, fmt.Errorf("%w: %q", ErrInvalidEntityID, s)
	}

	var vals [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return EntityID{}, fmt.Errorf("%w: %q", ErrInvalidEntityID, s)
		}
		vals[i] = v
	}
	return EntityID{Shard: vals[0], Realm: vals[1], Num: vals[2]}, nil
}

// String returns "shard.realm.num".
func (e EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Shard, e.Realm, e.Num)
}

// IsZero reports whether the id is unset.
func (e EntityID) IsZero() bool {
	return e == EntityID{}
}

// Entity ids are packed into a single int64 by the mirror importer database:
// 10 bits shard, 16 bits realm, 38 bits num.
const (
	encodedNumBits   = 38
	encodedRealmBits = 16
	encodedNumMask   = int64(1)<<encodedNumBits - 1
	encodedRealmMask = int64(1)<<encodedRealmBits - 1
)

// EncodedEntityID converts from the packed int64 representation.
func EncodedEntityID(encoded int64) EntityID {
	return EntityID{
		Shard: encoded >> (encodedNumBits + encodedRealmBits),
		Realm: (encoded >> encodedNumBits) & encodedRealmMask,
		Num:   encoded & encodedNumMask,
	}
}

// Encoded returns the packed int64 representation.
func (e EntityID) Encoded() int64 {
	return e.Shard<<(encodedNumBits+encodedRealmBits) | (e.Realm&encodedRealmMask)<<encodedNumBits | e.Num&encodedNumMask
}

// MarshalText implements encoding.TextMarshaler.
func (e EntityID) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EntityID) UnmarshalText(text []byte) error {
	parsed, err := ParseEntityID(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// BindingSource records how an identity binding was established.
type BindingSource string

const (
	BindingSourceHeuristic BindingSource = "heuristic"
	BindingSourceLookup    BindingSource = "lookup"
	BindingSourceManual    BindingSource = "manual"
)

// IdentityBinding links an address to the entity the ledger created for it.
type IdentityBinding struct {
	Address   Address       `json:"address"`
	Entity    EntityID      `json:"entity"`
	Source    BindingSource `json:"source"`
	CreatedAt time.Time     `json:"created_at"`
}
