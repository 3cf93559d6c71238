// Package bitset provides a fixed-size bit set used for slot occupancy
// tracking. The set is not thread-safe; callers must handle
// synchronization.
package bitset

import "math/bits"

// WordBits is the number of bits per occupancy word.
const WordBits = 32

// Set is a fixed-size bit set backed by 32-bit words.
// The zero value is not usable; create sets with New.
type Set struct {
	words []uint32
	size  int
}

// New creates a set holding exactly size bits, all clear.
func New(size int) *Set {
	if size < 0 {
		size = 0
	}
	return &Set{
		words: make([]uint32, (size+WordBits-1)/WordBits),
		size:  size,
	}
}

// Size returns the number of bits the set holds.
func (s *Set) Size() int { return s.size }

// Test reports whether bit i is set.
// Out-of-range indices report false.
func (s *Set) Test(i int) bool {
	if i < 0 || i >= s.size {
		return false
	}
	return s.words[i/WordBits]&(1<<(uint(i)%WordBits)) != 0
}

// Set sets bit i. Out-of-range indices are ignored.
func (s *Set) Set(i int) {
	if i < 0 || i >= s.size {
		return
	}
	s.words[i/WordBits] |= 1 << (uint(i) % WordBits)
}

// Clear clears bit i. Out-of-range indices are ignored.
func (s *Set) Clear(i int) {
	if i < 0 || i >= s.size {
		return
	}
	s.words[i/WordBits] &^= 1 << (uint(i) % WordBits)
}

// FirstClear returns the index of the lowest clear bit, or -1 if every
// bit is set.
func (s *Set) FirstClear() int {
	for w, word := range s.words {
		if word == ^uint32(0) {
			continue
		}
		i := w*WordBits + bits.TrailingZeros32(^word)
		if i >= s.size {
			return -1
		}
		return i
	}
	return -1
}

// Count returns the number of set bits.
func (s *Set) Count() int {
	n := 0
	for _, word := range s.words {
		n += bits.OnesCount32(word)
	}
	return n
}

// Full reports whether every bit is set.
func (s *Set) Full() bool { return s.FirstClear() == -1 }
