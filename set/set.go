package set

import (
	"bytes"
	"fmt"
	"math/bits"
)

const (
	// word bit = 2^setBits,(32/64)
	setBits = 5 + (^uint(0) >> 63)
	word    = 1 << setBits
	setMask = word - 1
)

// IntSet is a set of non-negative integers.
// Its zero value represents the empty set. It is not safe for
// concurrent use.
//
// x = word*idx + mod, stored as dirty[idx]&(1<<mod).
type IntSet struct {
	dirty []uint
}

func idxMod(x int) (idx int, mod uint) {
	return x >> setBits, uint(x & setMask)
}

// Len return the number of elements in set
func (s *IntSet) Len() int {
	var sum int
	for _, e := range s.dirty {
		sum += bits.OnesCount(e)
	}
	return sum
}

// Clear remove all elements from the set
func (s *IntSet) Clear() {
	s.dirty = s.dirty[:0]
}

// Has reports whether the set contains the non-negative value x.
func (s *IntSet) Has(x int) bool {
	idx, mod := idxMod(x)
	if x < 0 || idx >= len(s.dirty) {
		return false
	}
	return (s.dirty[idx]>>mod)&1 == 1
}

// Add adds the non-negative value x to the set and reports whether it
// was absent before.
func (s *IntSet) Add(x int) bool {
	if x < 0 {
		panic(fmt.Sprintf("set: negative value %d", x))
	}
	idx, mod := idxMod(x)
	for idx >= len(s.dirty) {
		s.dirty = append(s.dirty, 0)
	}
	if s.dirty[idx]&(1<<mod) != 0 {
		return false
	}
	s.dirty[idx] |= 1 << mod
	return true
}

// Remove removes x from the set.
func (s *IntSet) Remove(x int) {
	idx, mod := idxMod(x)
	if x < 0 || idx >= len(s.dirty) {
		return
	}
	s.dirty[idx] &^= 1 << mod
}

// UnionWith sets s to the union of s and t and returns the elements
// that were in both.
func (s *IntSet) UnionWith(t *IntSet) (both []int) {
	for i, dirty := range t.dirty {
		if i >= len(s.dirty) {
			s.dirty = append(s.dirty, dirty)
			continue
		}
		both = appendBits(both, i, s.dirty[i]&dirty)
		s.dirty[i] |= dirty
	}
	return both
}

// Missing returns, in order, the values in [0,n) that are not in s.
func (s *IntSet) Missing(n int) []int {
	var out []int
	for x := 0; x < n; x++ {
		idx, _ := idxMod(x)
		if idx < len(s.dirty) && s.dirty[idx] == ^uint(0) {
			// whole word present
			x += word - 1
			continue
		}
		if !s.Has(x) {
			out = append(out, x)
		}
	}
	return out
}

// Items return all elements in ascending order.
func (s *IntSet) Items() []int {
	var out []int
	for i, item := range s.dirty {
		out = appendBits(out, i, item)
	}
	return out
}

func appendBits(out []int, idx int, item uint) []int {
	for item != 0 {
		j := bits.TrailingZeros(item)
		out = append(out, word*idx+j)
		item &^= 1 << uint(j)
	}
	return out
}

// String returns the set as a string of the form "{1 2 3}".
func (s *IntSet) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, x := range s.Items() {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%d", x)
	}
	buf.WriteByte('}')
	return buf.String()
}
