package domain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the size of an externally-derived address in bytes.
const AddressLength = 20

// ErrInvalidAddress is returned when input cannot be normalized to a 20-byte address.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a 20-byte externally-derived identifier (an EVM-style alias).
// The zero value is the all-zero address.
type Address [AddressLength]byte

// NormalizeAddress parses a hex address with or without a 0x prefix, in any case.
func NormalizeAddress(raw string) (Address, error) {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != AddressLength*2 {
		return Address{}, fmt.Errorf("%w: %q has %d hex chars, want %d", ErrInvalidAddress, raw, len(s), AddressLength*2)
	}

	var a Address
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}
	return a, nil
}

// AddressFromBytes copies exactly 20 bytes into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidAddress, len(b), AddressLength)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// MustAddress is NormalizeAddress for constants and tests. It panics on bad input.
func MustAddress(raw string) Address {
	a, err := NormalizeAddress(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical form: lowercase hex, no prefix.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Hex returns the 0x-prefixed form used by external APIs.
func (a Address) Hex() string {
	return "0x" + a.String()
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

// Compare orders addresses by byte value.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// IsZero reports whether every byte is zero.
func (a Address) IsZero() bool {
	return a == Address{}
}

// LongZeroEntity reports whether the address encodes an entity number directly
// (12 leading zero bytes followed by the 8-byte entity num), and returns it.
func (a Address) LongZeroEntity() (EntityID, bool) {
	for _, b := range a[:12] {
		if b != 0 {
			return EntityID{}, false
		}
	}
	var num int64
	for _, b := range a[12:] {
		num = num<<8 | int64(b)
	}
	if num <= 0 {
		return EntityID{}, false
	}
	return EntityID{Num: num}, true
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := NormalizeAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
