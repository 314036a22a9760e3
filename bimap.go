// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hashtab

import (
	"fmt"
	"iter"
)

// BiMap is a one-to-one mapping between keys of type K1 (the first keys)
// and keys of type K2 (the second keys), with O(1) average lookup in both
// directions.
//
// A BiMap is built from two tables, forward over the first keys and reverse
// over the second keys, that share their mutation state. The pair stored at
// index i is (forward.entries[i].key, reverse.entries[i].key), so the
// partner of a key is read by index once the key is found; a second lookup
// is never needed. Removed pairs are pushed onto a free list that both
// tables agree on.
//
// A BiMap is NOT goroutine-safe.
type BiMap[K1, K2 comparable] struct {
	state   *tableState
	forward *table[K1, struct{}]
	reverse *table[K2, struct{}]
	// inverse is the view returned by Reverse. It shares all storage with
	// this map.
	inverse *BiMap[K2, K1]
}

// NewBiMap constructs a new BiMap with room for at least capacity pairs. If
// capacity is 0 no memory is allocated until the first insert. NewBiMap
// panics if capacity is negative.
func NewBiMap[K1, K2 comparable](capacity int, options ...Option) *BiMap[K1, K2] {
	if capacity < 0 {
		panic(invalidCapacity(capacity, 0))
	}
	c := makeConfig(options)
	st := new(tableState)
	*st = makeTableState()
	forward := &table[K1, struct{}]{}
	reverse := &table[K2, struct{}]{}
	forward.init(&c, st, capacity)
	reverse.init(&c, st, capacity)

	m := &BiMap[K1, K2]{state: st, forward: forward, reverse: reverse}
	m.inverse = &BiMap[K2, K1]{state: st, forward: reverse, reverse: forward, inverse: m}
	m.checkInvariants()
	return m
}

// Reverse returns the BiMap viewed from the second keys. The returned map
// shares storage with m: mutations through either are visible in both, and
// m.Reverse().Reverse() == m.
func (m *BiMap[K1, K2]) Reverse() *BiMap[K2, K1] {
	return m.inverse
}

// Get returns the second key paired with first key a.
func (m *BiMap[K1, K2]) Get(a K1) (b K2, ok bool) {
	checkKey(a)
	if i := m.forward.find(a); i >= 0 {
		return m.reverse.entries[i].key, true
	}
	return b, false
}

// Value returns the second key paired with a, or an error wrapping
// ErrKeyNotFound.
func (m *BiMap[K1, K2]) Value(a K1) (K2, error) {
	b, ok := m.Get(a)
	if !ok {
		return b, keyNotFound(a)
	}
	return b, nil
}

// Contains returns true if a is present as a first key.
func (m *BiMap[K1, K2]) Contains(a K1) bool {
	checkKey(a)
	return m.forward.find(a) >= 0
}

// IndexOf returns the index of the pair holding first key a. Indexes are
// stable until the pair is removed or the map is trimmed, and the index of
// a removed pair is reused by a later insert.
func (m *BiMap[K1, K2]) IndexOf(a K1) (index int, ok bool) {
	checkKey(a)
	if i := m.forward.find(a); i >= 0 {
		return i, true
	}
	return -1, false
}

// Add inserts the pair (a, b). It returns an error wrapping ErrDuplicateKey
// if either key is already present.
func (m *BiMap[K1, K2]) Add(a K1, b K2) error {
	checkKey(a)
	checkKey(b)
	ha, hb := m.forward.hashOf(a), m.reverse.hashOf(b)
	if m.forward.findHashed(a, ha) >= 0 {
		return duplicateKey("first", a)
	}
	if m.reverse.findHashed(b, hb) >= 0 {
		return duplicateKey("second", b)
	}
	m.insert(a, ha, b, hb)
	return nil
}

// Set pairs a with b. If a is already present its partner is replaced by b.
// Set returns an error wrapping ErrDuplicateKey if b is already paired with
// a key other than a; the map is left unchanged.
func (m *BiMap[K1, K2]) Set(a K1, b K2) error {
	checkKey(a)
	checkKey(b)
	ha, hb := m.forward.hashOf(a), m.reverse.hashOf(b)
	ia := m.forward.findHashed(a, ha)
	ib := m.reverse.findHashed(b, hb)
	switch {
	case ia >= 0 && ia == ib:
		return nil
	case ib >= 0:
		return duplicateKey("second", b)
	case ia >= 0:
		// The pair keeps its index; only the reverse chain changes.
		m.reverse.unchain(ia)
		m.reverse.chain(ia, hb, b, struct{}{})
		m.state.version++
		m.checkInvariants()
		return nil
	}
	m.insert(a, ha, b, hb)
	return nil
}

func (m *BiMap[K1, K2]) insert(a K1, ha uint32, b K2, hb uint32) {
	if m.forward.full() {
		size := expandCapacity(len(m.forward.entries))
		m.forward.resize(size)
		m.reverse.resize(size)
	}
	i := m.forward.allocate()
	m.forward.chain(i, ha, a, struct{}{})
	m.reverse.chain(i, hb, b, struct{}{})
	m.state.version++
	m.checkInvariants()
}

// Remove deletes the pair holding first key a, returning its second key.
func (m *BiMap[K1, K2]) Remove(a K1) (b K2, ok bool) {
	checkKey(a)
	i := m.forward.find(a)
	if i < 0 {
		return b, false
	}
	b = m.reverse.entries[i].key
	m.forward.unchain(i)
	m.reverse.unchain(i)
	l := m.forward.release(i)
	m.reverse.markFree(i, l)
	m.state.version++

	if debug {
		fmt.Printf("remove: index=%d free=%d\n", i, m.state.freeCount)
	}
	m.checkInvariants()
	return b, true
}

// Clear deletes all pairs, keeping the capacity.
func (m *BiMap[K1, K2]) Clear() {
	m.forward.reset()
	m.reverse.reset()
	m.state.reset(0)
	m.state.version++
	m.checkInvariants()
}

// Len returns the number of pairs.
func (m *BiMap[K1, K2]) Len() int {
	return m.state.len()
}

// Capacity returns the number of pairs that fit without growing.
func (m *BiMap[K1, K2]) Capacity() int {
	return len(m.forward.entries)
}

// EnsureCapacity grows the map so that it can hold at least n pairs without
// growing again, and returns the resulting capacity.
func (m *BiMap[K1, K2]) EnsureCapacity(n int) (int, error) {
	if n < 0 {
		return 0, invalidCapacity(n, m.Len())
	}
	if n <= len(m.forward.entries) {
		return len(m.forward.entries), nil
	}
	size := nextCapacity(n)
	m.forward.resize(size)
	m.reverse.resize(size)
	m.state.version++
	m.checkInvariants()
	return size, nil
}

// Trim compacts the pairs into a dense prefix, dropping the free list, and
// shrinks the capacity to the smallest size that holds n pairs. It returns
// an error wrapping ErrInvalidCapacity if n is less than Len. Trim never
// grows the map, and changes the index of every pair that follows a
// removed one.
func (m *BiMap[K1, K2]) Trim(n int) error {
	if n < m.Len() {
		return invalidCapacity(n, m.Len())
	}
	size := len(m.forward.entries)
	if n == 0 {
		size = 0
	} else if c := nextCapacity(n); c < size {
		size = c
	}
	if size == len(m.forward.entries) && m.state.freeCount == 0 {
		return nil
	}

	order := make([]int32, 0, m.Len())
	for i := 0; i < m.state.count; i++ {
		if !m.forward.entries[i].next.isFree() {
			order = append(order, int32(i))
		}
	}
	m.forward.rebuild(size, order)
	m.reverse.rebuild(size, order)
	m.state.reset(len(order))
	m.state.version++
	m.checkInvariants()
	return nil
}

// TrimExcess compacts the map and shrinks the capacity to fit the pairs.
func (m *BiMap[K1, K2]) TrimExcess() {
	_ = m.Trim(m.Len())
}

// Iter returns an iterator over the pairs in index order.
func (m *BiMap[K1, K2]) Iter() *Iterator[K1, K2] {
	return newIterator(&m.state.version,
		func() int { return m.state.count },
		func(i int) (a K1, b K2, ok bool) {
			e := &m.forward.entries[i]
			if e.next.isFree() {
				return a, b, false
			}
			return e.key, m.reverse.entries[i].key, true
		})
}

// All calls yield sequentially for each pair in index order. If yield
// returns false, iteration stops. All panics with an error wrapping
// ErrConcurrentMutation if the map is structurally modified during
// iteration.
func (m *BiMap[K1, K2]) All(yield func(a K1, b K2) bool) {
	m.Iter().all(yield)
}

// FirstKeys returns an iterator over the first keys in index order.
func (m *BiMap[K1, K2]) FirstKeys() iter.Seq[K1] {
	return keys(m.Iter)
}

// SecondKeys returns an iterator over the second keys in index order.
func (m *BiMap[K1, K2]) SecondKeys() iter.Seq[K2] {
	return values(m.Iter)
}

// Validate checks the internal consistency of both tables and that they
// agree on which indexes are free.
func (m *BiMap[K1, K2]) Validate() error {
	if err := m.forward.verify(); err != nil {
		return fmt.Errorf("first keys: %w", err)
	}
	if err := m.reverse.verify(); err != nil {
		return fmt.Errorf("second keys: %w", err)
	}
	if len(m.forward.entries) != len(m.reverse.entries) {
		return fmt.Errorf("invariant failed: capacities differ: %d != %d",
			len(m.forward.entries), len(m.reverse.entries))
	}
	for i := 0; i < m.state.count; i++ {
		f, r := m.forward.entries[i].next, m.reverse.entries[i].next
		if f.isFree() != r.isFree() || (f.isFree() && f != r) {
			return fmt.Errorf("invariant failed: entry %d: links disagree: %d != %d", i, f, r)
		}
	}
	return nil
}

func (m *BiMap[K1, K2]) checkInvariants() {
	if invariants {
		if err := m.Validate(); err != nil {
			panic(fmt.Sprintf("%v\nfirst keys:\n%s\nsecond keys:\n%s",
				err, m.forward.debugString(), m.reverse.debugString()))
		}
	}
}
