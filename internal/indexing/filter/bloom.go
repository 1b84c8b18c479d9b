package filter

import (
	"hash/fnv"
	"sync"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// BloomFilter provides probabilistic address membership testing.
// It uses FNV-1a hashing with multiple hash functions for low false positive rates.
type BloomFilter struct {
	bits        []uint64
	size        uint64
	hashes      int
	mu          sync.RWMutex
	initialized bool
}

// NewBloomFilter creates a new bloom filter.
// Default size is optimized for ~10,000 addresses with ~1% false positive rate.
func NewBloomFilter() *BloomFilter {
	return NewBloomFilterWithSize(100000, 7)
}

// NewBloomFilterWithSize creates a bloom filter with custom size (in bits) and hash count.
// For n addresses with p false positive rate: size ≈ -n*ln(p)/(ln(2)^2), hashes = (size/n)*ln(2)
func NewBloomFilterWithSize(size uint64, hashes int) *BloomFilter {
	if size == 0 {
		size = 64
	}
	if hashes <= 0 {
		hashes = 1
	}
	return &BloomFilter{
		bits:   make([]uint64, (size+63)/64),
		size:   size,
		hashes: hashes,
	}
}

// Build initializes the filter with a set of addresses.
func (bf *BloomFilter) Build(addresses []domain.Address) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	// Clear existing bits
	bf.bits = make([]uint64, len(bf.bits))

	for _, addr := range addresses {
		bf.addUnsafe(addr)
	}

	bf.initialized = true
}

// Add adds a single address to the filter.
func (bf *BloomFilter) Add(addr domain.Address) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.addUnsafe(addr)
	bf.initialized = true
}

func (bf *BloomFilter) addUnsafe(addr domain.Address) {
	for i := 0; i < bf.hashes; i++ {
		bit := bf.hash(addr, i) % bf.size
		bf.bits[bit/64] |= 1 << (bit % 64)
	}
}

// MayContain returns true if the address MIGHT be in the set.
// Returns false only if the address is DEFINITELY NOT in the set.
// False positives are possible, false negatives are not.
func (bf *BloomFilter) MayContain(addr domain.Address) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()

	if !bf.initialized {
		return true // If not initialized, assume everything might match
	}

	for i := 0; i < bf.hashes; i++ {
		bit := bf.hash(addr, i) % bf.size
		if bf.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// IsInitialized returns true if Build() or Add() has been called.
func (bf *BloomFilter) IsInitialized() bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.initialized
}

// Clear resets the filter to empty state.
func (bf *BloomFilter) Clear() {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.bits = make([]uint64, len(bf.bits))
	bf.initialized = false
}

func (bf *BloomFilter) hash(addr domain.Address, seed int) uint64 {
	h := fnv.New64a()
	h.Write(addr[:])
	h.Write([]byte{byte(seed)})
	return h.Sum64()
}
