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
	"slices"
)

// Ordered is a map that remembers the order in which keys were inserted
// and exposes that order through positions: the entry at position i is the
// i-th entry of an iteration. Keys can be inserted at, removed from, and
// moved between arbitrary positions.
//
// Position i is the index of the entry in the engine's entries array, so
// positional access is O(1) and lookups by key are O(1) on average.
// Inserting or removing anywhere but at the end shifts the following
// entries and renumbers the chain links that referred to them, which is
// O(n).
//
// An Ordered is NOT goroutine-safe.
type Ordered[K comparable, V any] struct {
	state tableState
	t     table[K, V]
}

// NewOrdered constructs a new Ordered with room for at least capacity
// entries. If capacity is 0 no memory is allocated until the first insert.
// NewOrdered panics if capacity is negative.
func NewOrdered[K comparable, V any](capacity int, options ...Option) *Ordered[K, V] {
	if capacity < 0 {
		panic(invalidCapacity(capacity, 0))
	}
	c := makeConfig(options)
	m := &Ordered[K, V]{state: makeTableState()}
	m.t.init(&c, &m.state, capacity)
	m.t.checkInvariants()
	return m
}

// Get retrieves the value for the specified key, returning ok=false if the
// key is not present.
func (m *Ordered[K, V]) Get(key K) (value V, ok bool) {
	checkKey(key)
	if i := m.t.find(key); i >= 0 {
		return m.t.entries[i].value, true
	}
	return value, false
}

// Value retrieves the value for the specified key, returning an error
// wrapping ErrKeyNotFound if the key is not present.
func (m *Ordered[K, V]) Value(key K) (V, error) {
	value, ok := m.Get(key)
	if !ok {
		return value, keyNotFound(key)
	}
	return value, nil
}

// Contains returns true if the key is present.
func (m *Ordered[K, V]) Contains(key K) bool {
	checkKey(key)
	return m.t.find(key) >= 0
}

// IndexOf returns the position of key, or ok=false if it is not present.
func (m *Ordered[K, V]) IndexOf(key K) (index int, ok bool) {
	checkKey(key)
	if i := m.t.find(key); i >= 0 {
		return i, true
	}
	return -1, false
}

// Set overwrites the value of an existing key in place, or appends a new
// entry at the end.
func (m *Ordered[K, V]) Set(key K, value V) {
	checkKey(key)
	h := m.t.hashOf(key)
	if i := m.t.findHashed(key, h); i >= 0 {
		m.t.entries[i].value = value
		return
	}
	m.insert(m.state.count, key, h, value)
}

// Add appends a new entry at the end. It returns an error wrapping
// ErrDuplicateKey if the key is already present.
func (m *Ordered[K, V]) Add(key K, value V) error {
	return m.InsertAt(m.state.count, key, value)
}

// InsertAt inserts a new entry at position index, shifting the entries at
// index and after up by one. index may equal Len to append.
func (m *Ordered[K, V]) InsertAt(index int, key K, value V) error {
	checkKey(key)
	if index < 0 || index > m.state.count {
		return indexOutOfRange("insert", index, m.state.count)
	}
	h := m.t.hashOf(key)
	if m.t.findHashed(key, h) >= 0 {
		return duplicateKey("", key)
	}
	m.insert(index, key, h, value)
	return nil
}

func (m *Ordered[K, V]) insert(p int, key K, h uint32, value V) {
	t := &m.t
	if t.full() {
		t.resize(expandCapacity(len(t.entries)))
	}
	n := m.state.count
	if p < n {
		copy(t.entries[p+1:n+1], t.entries[p:n])
		t.remap(n+1, func(i int32) int32 {
			if int(i) >= p {
				return i + 1
			}
			return i
		})
	}
	t.chain(p, h, key, value)
	m.state.count++
	m.state.version++
	t.checkInvariants()
}

// Remove deletes the entry for key, returning its value and ok=true if it
// was present. The entries after it shift down by one.
func (m *Ordered[K, V]) Remove(key K) (value V, ok bool) {
	checkKey(key)
	i := m.t.find(key)
	if i < 0 {
		return value, false
	}
	return m.removeAt(i), true
}

// RemoveAt deletes the entry at position index.
func (m *Ordered[K, V]) RemoveAt(index int) error {
	if index < 0 || index >= m.state.count {
		return indexOutOfRange("remove", index, m.state.count)
	}
	m.removeAt(index)
	return nil
}

func (m *Ordered[K, V]) removeAt(p int) V {
	t := &m.t
	value := t.entries[p].value
	t.unchain(p)
	n := m.state.count
	if p < n-1 {
		copy(t.entries[p:n-1], t.entries[p+1:n])
		t.remap(n-1, func(i int32) int32 {
			if int(i) > p {
				return i - 1
			}
			return i
		})
	}
	t.entries[n-1] = entry[K, V]{}
	m.state.count--
	m.state.version++

	if debug {
		fmt.Printf("remove: index=%d count=%d\n", p, m.state.count)
	}
	t.checkInvariants()
	return value
}

// GetAt returns the key and value at position index.
func (m *Ordered[K, V]) GetAt(index int) (key K, value V, err error) {
	if index < 0 || index >= m.state.count {
		return key, value, indexOutOfRange("get", index, m.state.count)
	}
	e := &m.t.entries[index]
	return e.key, e.value, nil
}

// SetAt replaces the value at position index.
func (m *Ordered[K, V]) SetAt(index int, value V) error {
	if index < 0 || index >= m.state.count {
		return indexOutOfRange("set", index, m.state.count)
	}
	m.t.entries[index].value = value
	return nil
}

// Move moves the entry at position from to position to. The entries in
// between shift by one to make room.
func (m *Ordered[K, V]) Move(from, to int) error {
	return m.MoveRange(from, to, 1)
}

// MoveRange moves the n entries starting at position from so that they
// start at position to, preserving their relative order. The result is the
// same as removing the run and inserting it back at to.
func (m *Ordered[K, V]) MoveRange(from, to, n int) error {
	count := m.state.count
	switch {
	case n < 0:
		return fmt.Errorf("%w: move: negative count %d", ErrIndexOutOfRange, n)
	case from < 0 || from+n > count:
		return indexOutOfRange("move", from, count)
	case to < 0 || to+n > count:
		return indexOutOfRange("move", to, count)
	case n == 0 || from == to:
		return nil
	}

	t := &m.t
	run := slices.Clone(t.entries[from : from+n])
	var f func(i int32) int32
	if from < to {
		// [from+n, to+n) slides down to [from, to).
		copy(t.entries[from:to], t.entries[from+n:to+n])
		f = func(i int32) int32 {
			switch {
			case int(i) < from || int(i) >= to+n:
				return i
			case int(i) < from+n:
				return i + int32(to-from)
			default:
				return i - int32(n)
			}
		}
	} else {
		// [to, from) slides up to [to+n, from+n).
		copy(t.entries[to+n:from+n], t.entries[to:from])
		f = func(i int32) int32 {
			switch {
			case int(i) < to || int(i) >= from+n:
				return i
			case int(i) >= from:
				return i - int32(from-to)
			default:
				return i + int32(n)
			}
		}
	}
	copy(t.entries[to:to+n], run)
	t.remap(count, f)
	m.state.version++

	if debug {
		fmt.Printf("move: from=%d to=%d n=%d\n", from, to, n)
	}
	t.checkInvariants()
	return nil
}

// Clear deletes all entries, keeping the capacity.
func (m *Ordered[K, V]) Clear() {
	m.t.reset()
	m.state.reset(0)
	m.state.version++
	m.t.checkInvariants()
}

// Len returns the number of entries.
func (m *Ordered[K, V]) Len() int {
	return m.state.count
}

// Capacity returns the number of entries that fit without growing.
func (m *Ordered[K, V]) Capacity() int {
	return len(m.t.entries)
}

// EnsureCapacity grows the map so that it can hold at least n entries
// without growing again, and returns the resulting capacity.
func (m *Ordered[K, V]) EnsureCapacity(n int) (int, error) {
	if n < 0 {
		return 0, invalidCapacity(n, m.state.count)
	}
	if n <= len(m.t.entries) {
		return len(m.t.entries), nil
	}
	m.t.resize(nextCapacity(n))
	m.state.version++
	m.t.checkInvariants()
	return len(m.t.entries), nil
}

// Trim shrinks the capacity to the smallest size that holds n entries. It
// returns an error wrapping ErrInvalidCapacity if n is less than Len. Trim
// never grows the map.
func (m *Ordered[K, V]) Trim(n int) error {
	if n < m.state.count {
		return invalidCapacity(n, m.state.count)
	}
	size := 0
	if n > 0 {
		size = nextCapacity(n)
	}
	if size >= len(m.t.entries) {
		return nil
	}
	if size == 0 {
		m.t.rebuild(0, nil)
	} else {
		m.t.resize(size)
	}
	m.state.version++
	m.t.checkInvariants()
	return nil
}

// TrimExcess shrinks the capacity to fit the entries.
func (m *Ordered[K, V]) TrimExcess() {
	_ = m.Trim(m.state.count)
}

// Iter returns an iterator over the entries in position order.
func (m *Ordered[K, V]) Iter() *Iterator[K, V] {
	return newIterator(&m.state.version,
		func() int { return m.state.count },
		func(i int) (K, V, bool) {
			e := &m.t.entries[i]
			return e.key, e.value, true
		})
}

// All calls yield sequentially for each key and value in position order. If
// yield returns false, iteration stops. All panics with an error wrapping
// ErrConcurrentMutation if the map is structurally modified during
// iteration.
func (m *Ordered[K, V]) All(yield func(key K, value V) bool) {
	m.Iter().all(yield)
}

// Keys returns an iterator over the keys in position order.
func (m *Ordered[K, V]) Keys() iter.Seq[K] {
	return keys(m.Iter)
}

// Values returns an iterator over the values in position order.
func (m *Ordered[K, V]) Values() iter.Seq[V] {
	return values(m.Iter)
}

// Validate checks the internal consistency of the map, returning an error
// describing the first violation found.
func (m *Ordered[K, V]) Validate() error {
	if m.state.freeCount != 0 {
		return fmt.Errorf("invariant failed: %d free entries in an ordered map", m.state.freeCount)
	}
	return m.t.verify()
}
