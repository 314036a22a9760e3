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

// Package hashtab implements a family of in-memory associative containers
// built on one open-chaining hash table engine:
//
//   - Slim: a lean unordered map with in-place value access.
//   - Ordered: a map that preserves insertion order and exposes positions.
//   - BiMap: a one-to-one map with O(1) lookup in both directions.
//
// # Engine
//
// Entries live in a flat array and are only ever referred to by their
// index. Each entry carries the index of the next entry in its bucket's
// chain, and the bucket array holds the 1-based index of the first entry
// of each chain (0 is an empty chain):
//
//	buckets:  [ 0 | 3 | 0 | 2 | 0 ]        hash % 5 selects a bucket
//	entries:  0:{k=a next=-1}  1:{k=d next=-1}  2:{k=b next=0}
//
// Relocating the entries on growth is therefore a plain array copy. Lookups
// walk a chain comparing the cached hash before calling the equality
// function. Every walk is bounded by the number of entries: a chain that
// does not terminate can only be produced by unsynchronized concurrent
// mutation and is reported as ErrConcurrentMutation instead of looping.
//
// Removed entries are reclaimed in one of three ways. Slim moves the last
// entry into the hole (swap-compact). Ordered slides the tail down
// (shift-compact) and renumbers the links that referred to moved entries.
// BiMap pushes the index onto a free list threaded through the entries'
// link field, so that its two halves stay index-aligned.
//
// Each table carries a version counter that is bumped on every structural
// mutation. Iterators snapshot it and fail with ErrConcurrentMutation once
// it changes.
//
// None of the containers are goroutine-safe.
package hashtab

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

const debug = false

// link is the overloaded link field of an entry. A value >= -1 is a chain
// link: the index of the next entry in the bucket chain, or endOfChain. A
// value <= -2 marks a free entry and encodes the index of the next free
// entry as -3-link, so that the end of the free list (-1) encodes as -2.
type link int32

const endOfChain link = -1

func freeLink(next int32) link {
	return link(-3 - next)
}

func (l link) isFree() bool {
	return l < endOfChain
}

func (l link) freeNext() int32 {
	return -3 - int32(l)
}

// entry holds a key, its value, the cached hash of the key, and a link.
type entry[K comparable, V any] struct {
	hash  uint32
	next  link
	key   K
	value V
}

// tableState is the mutation state of a table. The two halves of a BiMap
// share a single tableState so that inserts and removes affect both.
type tableState struct {
	// count is the number of entries handed out, live or free. Entries in
	// [count, len(entries)) have never been used.
	count int
	// freeList is the index of the first free entry, or -1.
	freeList  int32
	freeCount int
	// version is bumped on every structural mutation.
	version uint64
}

func makeTableState() tableState {
	return tableState{freeList: -1}
}

func (s *tableState) len() int {
	return s.count - s.freeCount
}

// reset makes entries [0, count) the dense set of live entries.
func (s *tableState) reset(count int) {
	s.count = count
	s.freeList = -1
	s.freeCount = 0
}

// emptyBuckets is the bucket array of a table with no entries. It is never
// written: a table without entries always grows before its first insert,
// which lets find and unchain avoid checking for a nil bucket array.
var emptyBuckets = []int32{0}

// table is the chained hash table engine shared by Ordered and BiMap. The
// bucket array is prime-sized and indexed by hash % len(buckets).
type table[K comparable, V any] struct {
	hasher    Hasher[K]
	allocator Allocator
	state     *tableState
	// buckets holds 1-based indexes of chain heads, 0 for an empty chain.
	buckets []int32
	entries []entry[K, V]
}

func (t *table[K, V]) init(c *config, st *tableState, capacity int) {
	t.hasher = hasherFor[K](c)
	t.allocator = c.allocator
	t.state = st
	t.buckets = emptyBuckets
	if capacity > 0 {
		t.resize(nextCapacity(capacity))
	}
}

func hash32(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}

func (t *table[K, V]) hashOf(key K) uint32 {
	return hash32(t.hasher.Hash(key))
}

// bucket returns the bucket for hash value h.
func (t *table[K, V]) bucket(h uint32) *int32 {
	return &t.buckets[h%uint32(len(t.buckets))]
}

// checkChain panics if a chain walk is about to visit more entries than
// exist, or to follow an index outside of the entries array.
func checkChain(op string, hops int, i int32, n int) {
	if hops >= n || int(i) >= n {
		panic(concurrentMutation(op))
	}
}

// find returns the index of the entry for key, or -1.
func (t *table[K, V]) find(key K) int {
	return t.findHashed(key, t.hashOf(key))
}

func (t *table[K, V]) findHashed(key K, h uint32) int {
	i := *t.bucket(h) - 1
	for hops := 0; i >= 0; hops++ {
		checkChain("find", hops, i, len(t.entries))
		e := &t.entries[i]
		if e.hash == h && t.hasher.Equal(e.key, key) {
			return int(i)
		}
		if e.next.isFree() {
			panic(concurrentMutation("find"))
		}
		i = int32(e.next)
	}
	return -1
}

// full returns true if there is no entry left to hand out without growing.
func (t *table[K, V]) full() bool {
	return t.state.freeCount == 0 && t.state.count == len(t.entries)
}

// allocate returns the index of an unused entry, preferring the free list.
// The caller must have grown the table if it was full.
func (t *table[K, V]) allocate() int {
	st := t.state
	if st.freeCount > 0 {
		i := st.freeList
		st.freeList = t.entries[i].next.freeNext()
		st.freeCount--
		return int(i)
	}
	i := st.count
	st.count++
	return i
}

// chain writes entry i and threads it at the head of its bucket's chain.
func (t *table[K, V]) chain(i int, h uint32, key K, value V) {
	b := t.bucket(h)
	t.entries[i] = entry[K, V]{hash: h, next: link(*b - 1), key: key, value: value}
	*b = int32(i) + 1
}

// unchain removes entry i from its bucket's chain. The entry itself is left
// untouched.
func (t *table[K, V]) unchain(i int) {
	b := t.bucket(t.entries[i].hash)
	prev := int32(-1)
	cur := *b - 1
	for hops := 0; cur >= 0; hops++ {
		checkChain("unlink", hops, cur, len(t.entries))
		e := &t.entries[cur]
		if int(cur) == i {
			if prev < 0 {
				*b = int32(e.next) + 1
			} else {
				t.entries[prev].next = e.next
			}
			return
		}
		if e.next.isFree() {
			break
		}
		prev, cur = cur, int32(e.next)
	}
	// Entry i was not reachable from its own bucket.
	panic(concurrentMutation("unlink"))
}

// release zeroes entry i, releasing any references it held, and pushes it
// onto the free list. It returns the free link written to the entry.
func (t *table[K, V]) release(i int) link {
	st := t.state
	l := freeLink(st.freeList)
	t.entries[i] = entry[K, V]{next: l}
	st.freeList = int32(i)
	st.freeCount++
	return l
}

// markFree zeroes entry i and sets its link to l without touching the free
// list. It is used for the second half of a BiMap.
func (t *table[K, V]) markFree(i int, l link) {
	t.entries[i] = entry[K, V]{next: l}
}

// resize replaces the entries and buckets with arrays of the given size.
// Entries keep their indexes; free entries keep their free links and the
// chains are rebuilt from the cached hashes.
func (t *table[K, V]) resize(size int) {
	n := t.state.count
	if debug {
		fmt.Printf("resize: capacity=%d->%d  count=%d\n", len(t.entries), size, n)
	}

	entries := make([]entry[K, V], size)
	copy(entries, t.entries[:n])
	buckets := t.allocator.AllocBuckets(size)
	for i := 0; i < n; i++ {
		e := &entries[i]
		if e.next.isFree() {
			continue
		}
		b := &buckets[e.hash%uint32(size)]
		e.next = link(*b - 1)
		*b = int32(i) + 1
	}

	t.freeBuckets()
	t.entries = entries
	t.buckets = buckets
}

// rebuild replaces the entries and buckets with arrays of the given size
// where new entry j is old entry order[j]. Every index in order must refer
// to a live entry. The caller resets the table state.
func (t *table[K, V]) rebuild(size int, order []int32) {
	if debug {
		fmt.Printf("rebuild: capacity=%d->%d  live=%d\n", len(t.entries), size, len(order))
	}
	if size == 0 {
		t.freeBuckets()
		t.entries = nil
		t.buckets = emptyBuckets
		return
	}

	entries := make([]entry[K, V], size)
	buckets := t.allocator.AllocBuckets(size)
	for j, old := range order {
		e := t.entries[old]
		b := &buckets[e.hash%uint32(size)]
		e.next = link(*b - 1)
		entries[j] = e
		*b = int32(j) + 1
	}

	t.freeBuckets()
	t.entries = entries
	t.buckets = buckets
}

// reset empties the table in place, keeping its capacity. The caller resets
// the table state.
func (t *table[K, V]) reset() {
	if t.state.count == 0 {
		return
	}
	clear(t.buckets)
	clear(t.entries[:t.state.count])
}

func (t *table[K, V]) freeBuckets() {
	if len(t.entries) > 0 {
		t.allocator.FreeBuckets(t.buckets)
	}
}

// remap rewrites every bucket head and chain link among entries [0, n)
// through f. Links for which f returns its argument are left untouched.
func (t *table[K, V]) remap(n int, f func(i int32) int32) {
	for b, head := range t.buckets {
		if head != 0 {
			t.buckets[b] = f(head-1) + 1
		}
	}
	for i := 0; i < n; i++ {
		e := &t.entries[i]
		if e.next >= 0 {
			e.next = link(f(int32(e.next)))
		}
	}
}

// verify checks the structural invariants of the table: every chain
// terminates within the number of entries, every live entry is reachable
// from exactly one chain (its own bucket's), free entries are only reachable
// from the free list, and the counts agree.
func (t *table[K, V]) verify() error {
	st := t.state
	if st.count > len(t.entries) || st.freeCount > st.count {
		return fmt.Errorf("invariant failed: count=%d free=%d capacity=%d",
			st.count, st.freeCount, len(t.entries))
	}

	reached := roaring.New()
	for b, head := range t.buckets {
		i := head - 1
		for hops := 0; i >= 0; hops++ {
			if hops >= len(t.entries) {
				return fmt.Errorf("invariant failed: bucket %d: chain does not terminate", b)
			}
			if int(i) >= st.count {
				return fmt.Errorf("invariant failed: bucket %d: link to unused entry %d", b, i)
			}
			if !reached.CheckedAdd(uint32(i)) {
				return fmt.Errorf("invariant failed: entry %d reachable more than once", i)
			}
			e := &t.entries[i]
			if e.next.isFree() {
				return fmt.Errorf("invariant failed: free entry %d in bucket %d", i, b)
			}
			if h := t.hashOf(e.key); h != e.hash {
				return fmt.Errorf("invariant failed: entry %d: cached hash %08x, key hashes to %08x", i, e.hash, h)
			}
			if int(e.hash%uint32(len(t.buckets))) != b {
				return fmt.Errorf("invariant failed: entry %d in bucket %d, belongs in %d",
					i, b, e.hash%uint32(len(t.buckets)))
			}
			i = int32(e.next)
		}
	}

	var free int
	for i := st.freeList; i >= 0; free++ {
		if free >= st.freeCount || int(i) >= st.count {
			return fmt.Errorf("invariant failed: free list longer than %d", st.freeCount)
		}
		if reached.Contains(uint32(i)) {
			return fmt.Errorf("invariant failed: free entry %d is chained", i)
		}
		e := &t.entries[i]
		if !e.next.isFree() {
			return fmt.Errorf("invariant failed: entry %d on free list has chain link %d", i, e.next)
		}
		i = e.next.freeNext()
	}
	if free != st.freeCount {
		return fmt.Errorf("invariant failed: found %d free entries, but free count is %d", free, st.freeCount)
	}
	if live := uint64(st.len()); reached.GetCardinality() != live {
		return fmt.Errorf("invariant failed: reached %d entries, but %d are live",
			reached.GetCardinality(), live)
	}
	return nil
}

func (t *table[K, V]) checkInvariants() {
	if invariants {
		if err := t.verify(); err != nil {
			panic(fmt.Sprintf("%v\n%s", err, t.debugString()))
		}
	}
}

func (t *table[K, V]) debugString() string {
	st := t.state
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  count=%d  free=%d  free-list=%d  version=%d\n",
		len(t.entries), st.count, st.freeCount, st.freeList, st.version)
	for b, head := range t.buckets {
		if head != 0 {
			fmt.Fprintf(&buf, "  bucket %4d: %d\n", b, head-1)
		}
	}
	for i := 0; i < st.count && i < len(t.entries); i++ {
		e := &t.entries[i]
		if e.next.isFree() {
			fmt.Fprintf(&buf, "  %4d: free [next=%d]\n", i, e.next.freeNext())
		} else {
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x next=%d]\n", i, e.key, e.hash, e.next)
		}
	}
	return buf.String()
}
