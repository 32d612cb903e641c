// Package bloom implements a fixed-size probabilistic membership filter.
// No false negatives: once an item has been added, check always returns
// true for it. check may return true for items never added.
package bloom

import "github.com/guycipher/k4/v2/murmur"

const (
	DefaultBits uint32 = 10000
	DefaultK    uint8  = 4
)

type Filter struct {
	k    uint8
	bits uint32
	buf  []byte
}

// New builds a filter with m bits and k hash functions. Not persisted;
// callers rebuild it by re-Add-ing every resident key at startup.
func New(bits uint32, k uint8) *Filter {
	if k == 0 {
		k = DefaultK
	}
	if bits < 8 {
		bits = 8
	}
	byteLen := (bits + 7) / 8
	bits = byteLen * 8
	return &Filter{k: k, bits: bits, buf: make([]byte, byteLen)}
}

// Add marks item as present.
func (f *Filter) Add(item string) {
	h1, h2 := hash2([]byte(item))
	for i := uint8(0); i < f.k; i++ {
		// double hashing: h_i = h1 + i*h2
		h := h1 + uint64(i)*h2
		f.setBit(uint32(h % uint64(f.bits)))
	}
}

// Check reports whether item may be present. False means definitely
// absent; true means maybe present (subject to false positives).
func (f *Filter) Check(item string) bool {
	h1, h2 := hash2([]byte(item))
	for i := uint8(0); i < f.k; i++ {
		h := h1 + uint64(i)*h2
		if !f.getBit(uint32(h % uint64(f.bits))) {
			return false
		}
	}
	return true
}

func (f *Filter) setBit(bit uint32) {
	f.buf[bit/8] |= 1 << (bit % 8)
}

func (f *Filter) getBit(bit uint32) bool {
	return f.buf[bit/8]&(1<<(bit%8)) != 0
}

// hash2 derives two independent 64-bit hashes for double hashing from
// murmur3-style hashing with distinct seeds.
func hash2(item []byte) (uint64, uint64) {
	h1 := murmur.Hash64(item, 0)
	h2 := murmur.Hash64(item, 0x9e3779b97f4a7c15)
	if h2 == 0 {
		h2 = 0x9e3779b97f4a7c15
	}
	return h1, h2
}
