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

import "iter"

// Iterator is a forward iterator over the entries of a table. It is
// invalidated by any structural mutation of the table made after it was
// created: the next call to Next returns false and Err returns an error
// wrapping ErrConcurrentMutation. Replacing the value of an existing key is
// not a structural mutation.
//
//	it := m.Iter()
//	for it.Next() {
//	    fmt.Println(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//	    ...
//	}
type Iterator[K, V any] struct {
	version  *uint64
	expected uint64
	// pos is the index of the next entry to examine.
	pos   int
	limit func() int
	at    func(i int) (key K, value V, ok bool)
	key   K
	value V
	err   error
	done  bool
}

func newIterator[K, V any](
	version *uint64, limit func() int, at func(i int) (K, V, bool),
) *Iterator[K, V] {
	return &Iterator[K, V]{
		version:  version,
		expected: *version,
		limit:    limit,
		at:       at,
	}
}

// Next advances the iterator to the next entry, returning false when there
// are no more entries or the table was mutated.
func (it *Iterator[K, V]) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	if *it.version != it.expected {
		var key K
		var value V
		it.key, it.value = key, value
		it.err = concurrentMutation("iteration")
		return false
	}
	for n := it.limit(); it.pos < n; {
		key, value, ok := it.at(it.pos)
		it.pos++
		if ok {
			it.key, it.value = key, value
			return true
		}
	}
	it.done = true
	return false
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// all calls yield for every remaining entry. It panics with the iterator's
// error if the table is mutated before yield returns false.
func (it *Iterator[K, V]) all(yield func(K, V) bool) {
	for it.Next() {
		if !yield(it.key, it.value) {
			return
		}
	}
	if it.err != nil {
		panic(it.err)
	}
}

func keys[K, V any](newIter func() *Iterator[K, V]) iter.Seq[K] {
	return func(yield func(K) bool) {
		newIter().all(func(k K, _ V) bool {
			return yield(k)
		})
	}
}

func values[K, V any](newIter func() *Iterator[K, V]) iter.Seq[V] {
	return func(yield func(V) bool) {
		newIter().all(func(_ K, v V) bool {
			return yield(v)
		})
	}
}
