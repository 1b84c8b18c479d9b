package filter

import (
	"sort"
	"sync"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

var _ Filter = (*Watchlist)(nil)

// Watchlist implements Filter with an in-memory map of canonical addresses
// to labels, fronted by a bloom filter. Replace swaps the whole set at once so
// a cycle never matches against a half-updated list.
type Watchlist struct {
	entries map[domain.Address]domain.WatchEntry
	bloom   *BloomFilter
	mu      sync.RWMutex
}

// NewWatchlist creates a watchlist holding entries.
func NewWatchlist(entries []domain.WatchEntry) *Watchlist {
	w := &Watchlist{}
	w.Replace(entries)
	return w
}

// Contains checks if an address is watched.
func (w *Watchlist) Contains(addr domain.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.bloom.MayContain(addr) {
		return false
	}
	_, exists := w.entries[addr]
	return exists
}

// Label returns the label of a watched address.
func (w *Watchlist) Label(addr domain.Address) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entries[addr].Label
}

// Add adds or relabels a single address.
func (w *Watchlist) Add(entry domain.WatchEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[entry.Address] = entry
	w.bloom.Add(entry.Address)
}

// Remove removes an address. The bloom filter keeps its bits until the next
// Replace, which only costs a map lookup on a false positive.
func (w *Watchlist) Remove(addr domain.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, addr)
}

// Replace swaps in a new set. Later duplicates win, so a label from the
// database can override one from configuration.
func (w *Watchlist) Replace(entries []domain.WatchEntry) {
	next := make(map[domain.Address]domain.WatchEntry, len(entries))
	addrs := make([]domain.Address, 0, len(entries))
	for _, e := range entries {
		if _, dup := next[e.Address]; !dup {
			addrs = append(addrs, e.Address)
		}
		next[e.Address] = e
	}

	bloom := NewBloomFilterWithSize(bloomBits(len(addrs)), 7)
	bloom.Build(addrs)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = next
	w.bloom = bloom
}

// Size returns the number of watched addresses.
func (w *Watchlist) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// Entries returns the watched entries in address order.
func (w *Watchlist) Entries() []domain.WatchEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	result := make([]domain.WatchEntry, 0, len(w.entries))
	for _, e := range w.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.Compare(result[j].Address) < 0
	})
	return result
}

// bloomBits sizes the filter at ~10 bits per address (~1% false positives
// with 7 hashes), with a floor for small lists.
func bloomBits(n int) uint64 {
	const minBits = 1024
	bits := uint64(n) * 10
	if bits < minBits {
		return minBits
	}
	return bits
}
