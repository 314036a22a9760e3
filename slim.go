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
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

type slimEntry[K comparable, V any] struct {
	key   K
	value V
	// next is the index of the next entry in the chain, or -1.
	next int32
}

// Slim is an unordered map from keys to values that trades features for
// speed and memory. Hashes are not cached, the bucket array is a power of
// two indexed with a mask, and removal moves the last entry into the hole
// so the live entries are always the dense prefix entries[:Len()].
//
// GetOrInsert gives direct access to the stored value, which makes
// read-modify-write of a value a single lookup:
//
//	counts := hashtab.NewSlim[string, int](0)
//	for _, w := range words {
//	    *counts.GetOrInsert(w)++
//	}
//
// A Slim is NOT goroutine-safe.
type Slim[K comparable, V any] struct {
	hasher    Hasher[K]
	allocator Allocator
	// buckets holds 1-based indexes of chain heads. len(buckets) is always
	// a power of two and equal to len(entries) once the first entry has been
	// added.
	buckets []int32
	entries []slimEntry[K, V]
	count   int
	version uint64
}

// NewSlim constructs a new Slim with room for at least capacity entries. If
// capacity is 0 no memory is allocated until the first insert. NewSlim
// panics if capacity is negative.
func NewSlim[K comparable, V any](capacity int, options ...Option) *Slim[K, V] {
	if capacity < 0 {
		panic(invalidCapacity(capacity, 0))
	}
	c := makeConfig(options)
	m := &Slim[K, V]{
		hasher:    hasherFor[K](&c),
		allocator: c.allocator,
		buckets:   emptyBuckets,
	}
	if capacity > 0 {
		m.resize(nextPowerOfTwo(capacity))
	}
	m.checkInvariants()
	return m
}

func (m *Slim[K, V]) bucket(h uint64) *int32 {
	return &m.buckets[h&uint64(len(m.buckets)-1)]
}

func (m *Slim[K, V]) find(key K, h uint64) int {
	i := *m.bucket(h) - 1
	for hops := 0; i >= 0; hops++ {
		checkChain("find", hops, i, m.count)
		e := &m.entries[i]
		if m.hasher.Equal(e.key, key) {
			return int(i)
		}
		i = e.next
	}
	return -1
}

// Get retrieves the value for the specified key, returning ok=false if the
// key is not present.
func (m *Slim[K, V]) Get(key K) (value V, ok bool) {
	checkKey(key)
	if i := m.find(key, m.hasher.Hash(key)); i >= 0 {
		return m.entries[i].value, true
	}
	return value, false
}

// Value retrieves the value for the specified key, returning an error
// wrapping ErrKeyNotFound if the key is not present.
func (m *Slim[K, V]) Value(key K) (V, error) {
	value, ok := m.Get(key)
	if !ok {
		return value, keyNotFound(key)
	}
	return value, nil
}

// Contains returns true if the key is present.
func (m *Slim[K, V]) Contains(key K) bool {
	checkKey(key)
	return m.find(key, m.hasher.Hash(key)) >= 0
}

// GetOrInsert returns a pointer to the value for key, inserting the zero
// value if the key is not present. The pointer refers to the table's own
// storage and is only valid until the next insert or remove.
func (m *Slim[K, V]) GetOrInsert(key K) *V {
	checkKey(key)
	h := m.hasher.Hash(key)
	if i := m.find(key, h); i >= 0 {
		return &m.entries[i].value
	}
	var zero V
	return &m.entries[m.insertNew(key, h, zero)].value
}

// Set inserts an entry, overwriting the value if the key already exists.
func (m *Slim[K, V]) Set(key K, value V) {
	*m.GetOrInsert(key) = value
}

// TryAdd inserts an entry if the key is not present, returning false and
// leaving the table unchanged otherwise.
func (m *Slim[K, V]) TryAdd(key K, value V) bool {
	checkKey(key)
	h := m.hasher.Hash(key)
	if m.find(key, h) >= 0 {
		return false
	}
	m.insertNew(key, h, value)
	return true
}

// insertNew adds an entry for a key known not to be present.
func (m *Slim[K, V]) insertNew(key K, h uint64, value V) int {
	if m.count == len(m.entries) {
		m.resize(nextPowerOfTwo(2 * len(m.entries)))
	}
	b := m.bucket(h)
	i := m.count
	m.entries[i] = slimEntry[K, V]{key: key, value: value, next: *b - 1}
	*b = int32(i) + 1
	m.count++
	m.version++
	m.checkInvariants()
	return i
}

// Remove deletes the entry for key, returning its value and ok=true if it
// was present.
func (m *Slim[K, V]) Remove(key K) (value V, ok bool) {
	checkKey(key)
	b := m.bucket(m.hasher.Hash(key))
	prev := int32(-1)
	i := *b - 1
	for hops := 0; i >= 0; hops++ {
		checkChain("remove", hops, i, m.count)
		e := &m.entries[i]
		if m.hasher.Equal(e.key, key) {
			value = e.value
			if prev < 0 {
				*b = e.next + 1
			} else {
				m.entries[prev].next = e.next
			}
			m.compact(int(i))
			return value, true
		}
		prev, i = i, e.next
	}
	return value, false
}

// compact fills the hole left by unlinking entry i with the last entry.
func (m *Slim[K, V]) compact(i int) {
	last := m.count - 1
	if i != last {
		// Exactly one link refers to the last entry: its bucket head or the
		// link of its predecessor in the chain. Point it at i instead.
		b := m.bucket(m.hasher.Hash(m.entries[last].key))
		if int(*b-1) == last {
			*b = int32(i) + 1
		} else {
			j := *b - 1
			for hops := 0; ; hops++ {
				if j < 0 {
					panic(concurrentMutation("remove"))
				}
				checkChain("remove", hops, j, m.count)
				e := &m.entries[j]
				if int(e.next) == last {
					e.next = int32(i)
					break
				}
				j = e.next
			}
		}
		m.entries[i] = m.entries[last]
	}
	m.entries[last] = slimEntry[K, V]{}
	m.count--
	m.version++

	if debug {
		fmt.Printf("remove: index=%d moved=%d count=%d\n", i, last, m.count)
	}
	m.checkInvariants()
}

// Clear deletes all entries from the map, keeping its capacity.
func (m *Slim[K, V]) Clear() {
	if m.count > 0 {
		clear(m.buckets)
		clear(m.entries[:m.count])
		m.count = 0
	}
	m.version++
	m.checkInvariants()
}

// Len returns the number of entries in the map.
func (m *Slim[K, V]) Len() int {
	return m.count
}

// Capacity returns the number of entries the map can hold without growing.
func (m *Slim[K, V]) Capacity() int {
	return len(m.entries)
}

// EnsureCapacity grows the map so that it can hold at least n entries
// without growing again, and returns the resulting capacity.
func (m *Slim[K, V]) EnsureCapacity(n int) (int, error) {
	if n < 0 {
		return 0, invalidCapacity(n, m.count)
	}
	if n <= len(m.entries) {
		return len(m.entries), nil
	}
	m.resize(nextPowerOfTwo(n))
	m.version++
	m.checkInvariants()
	return len(m.entries), nil
}

// Trim shrinks the capacity of the map to the smallest size that holds n
// entries. It returns an error wrapping ErrInvalidCapacity if n is less than
// Len. Trim never grows the map.
func (m *Slim[K, V]) Trim(n int) error {
	if n < m.count {
		return invalidCapacity(n, m.count)
	}
	if n == 0 {
		if len(m.entries) > 0 {
			m.allocator.FreeBuckets(m.buckets)
			m.buckets = emptyBuckets
			m.entries = nil
			m.version++
		}
		return nil
	}
	if size := nextPowerOfTwo(n); size < len(m.entries) {
		m.resize(size)
		m.version++
		m.checkInvariants()
	}
	return nil
}

// TrimExcess shrinks the capacity of the map to fit its entries.
func (m *Slim[K, V]) TrimExcess() {
	_ = m.Trim(m.count)
}

// resize replaces the entries and buckets with arrays of the given power of
// two size and rehashes every entry.
func (m *Slim[K, V]) resize(size int) {
	if debug {
		fmt.Printf("resize: capacity=%d->%d  count=%d\n", len(m.entries), size, m.count)
	}
	entries := make([]slimEntry[K, V], size)
	copy(entries, m.entries[:m.count])
	buckets := m.allocator.AllocBuckets(size)
	mask := uint64(size - 1)
	for i := 0; i < m.count; i++ {
		b := &buckets[m.hasher.Hash(entries[i].key)&mask]
		entries[i].next = *b - 1
		*b = int32(i) + 1
	}
	if len(m.entries) > 0 {
		m.allocator.FreeBuckets(m.buckets)
	}
	m.entries = entries
	m.buckets = buckets
}

// Iter returns an iterator over the entries of the map.
func (m *Slim[K, V]) Iter() *Iterator[K, V] {
	return newIterator(&m.version,
		func() int { return m.count },
		func(i int) (K, V, bool) {
			e := &m.entries[i]
			return e.key, e.value, true
		})
}

// All calls yield sequentially for each key and value present in the map.
// If yield returns false, iteration stops. All panics with an error wrapping
// ErrConcurrentMutation if the map is structurally modified during
// iteration.
func (m *Slim[K, V]) All(yield func(key K, value V) bool) {
	m.Iter().all(yield)
}

// Keys returns an iterator over the keys of the map.
func (m *Slim[K, V]) Keys() iter.Seq[K] {
	return keys(m.Iter)
}

// Values returns an iterator over the values of the map.
func (m *Slim[K, V]) Values() iter.Seq[V] {
	return values(m.Iter)
}

// Validate checks the internal consistency of the map, returning an error
// describing the first violation found.
func (m *Slim[K, V]) Validate() error {
	if m.count > len(m.entries) {
		return fmt.Errorf("invariant failed: count=%d capacity=%d", m.count, len(m.entries))
	}
	if len(m.entries) > 0 && len(m.buckets) != len(m.entries) {
		return fmt.Errorf("invariant failed: %d buckets for %d entries", len(m.buckets), len(m.entries))
	}
	mask := uint64(len(m.buckets) - 1)
	reached := roaring.New()
	for b, head := range m.buckets {
		i := head - 1
		for hops := 0; i >= 0; hops++ {
			if hops >= m.count || int(i) >= m.count {
				return fmt.Errorf("invariant failed: bucket %d: chain does not terminate within %d entries", b, m.count)
			}
			if !reached.CheckedAdd(uint32(i)) {
				return fmt.Errorf("invariant failed: entry %d reachable more than once", i)
			}
			e := &m.entries[i]
			if want := m.hasher.Hash(e.key) & mask; want != uint64(b) {
				return fmt.Errorf("invariant failed: entry %d in bucket %d, belongs in %d", i, b, want)
			}
			i = e.next
		}
	}
	if reached.GetCardinality() != uint64(m.count) {
		return fmt.Errorf("invariant failed: reached %d entries, but count is %d",
			reached.GetCardinality(), m.count)
	}
	return nil
}

func (m *Slim[K, V]) checkInvariants() {
	if invariants {
		if err := m.Validate(); err != nil {
			panic(fmt.Sprintf("%v\n%s", err, m.debugString()))
		}
	}
}

func (m *Slim[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  count=%d  version=%d\n", len(m.entries), m.count, m.version)
	for b, head := range m.buckets {
		if head != 0 {
			fmt.Fprintf(&buf, "  bucket %4d: %d\n", b, head-1)
		}
	}
	for i := 0; i < m.count; i++ {
		e := &m.entries[i]
		fmt.Fprintf(&buf, "  %4d: %v [next=%d]\n", i, e.key, e.next)
	}
	return buf.String()
}
