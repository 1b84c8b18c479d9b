// Package filter holds the watched address set.
package filter

import "github.com/vietddude/aliaswatch/internal/core/domain"

// Filter defines the interface for address filtering
type Filter interface {
	// Contains checks if an address is watched
	Contains(addr domain.Address) bool

	// Label returns the human label of a watched address, or ""
	Label(addr domain.Address) string

	// Size returns the number of watched addresses
	Size() int
}
