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

import "hash/maphash"

// Hasher supplies the hash function and equality relation for keys of type
// K. Equal must be an equivalence relation, and Equal(a, b) must imply
// Hash(a) == Hash(b). Violating this makes lookups return wrong answers,
// but never corrupts memory.
type Hasher[K any] interface {
	Hash(key K) uint64
	Equal(a, b K) bool
}

// comparableHasher is the default Hasher. It hashes with the same
// algorithm as Go's builtin map[K]V, using a per-table random seed.
type comparableHasher[K comparable] struct {
	seed maphash.Seed
}

func (h comparableHasher[K]) Hash(key K) uint64 {
	return maphash.Comparable(h.seed, key)
}

func (comparableHasher[K]) Equal(a, b K) bool {
	return a == b
}

type hashFunc[K comparable] func(key K) uint64

func (f hashFunc[K]) Hash(key K) uint64 {
	return f(key)
}

func (hashFunc[K]) Equal(a, b K) bool {
	return a == b
}

// Allocator specifies an interface for allocating and releasing the bucket
// arrays used by a table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
type Allocator interface {
	// AllocBuckets should return a slice equivalent to make([]int32, n).
	AllocBuckets(n int) []int32

	// FreeBuckets can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets.
	FreeBuckets(v []int32)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocBuckets(n int) []int32 {
	return make([]int32, n)
}

func (defaultAllocator) FreeBuckets(v []int32) {
}

type config struct {
	hashers   []any
	allocator Allocator
}

// Option configures a table while it is being created.
type Option func(c *config)

// WithHasher is an option to specify the hash and equality capability used
// for keys of type K. It applies to every key of type K in the table being
// constructed, which for a BiMap with identical key types means both sides.
func WithHasher[K comparable](h Hasher[K]) Option {
	return func(c *config) {
		c.hashers = append(c.hashers, h)
	}
}

// WithHash is an option to specify the hash function used for keys of type
// K. Keys are compared with ==.
func WithHash[K comparable](hash func(key K) uint64) Option {
	return WithHasher[K](hashFunc[K](hash))
}

// WithAllocator is an option to specify the Allocator for bucket arrays.
func WithAllocator(allocator Allocator) Option {
	return func(c *config) {
		c.allocator = allocator
	}
}

func makeConfig(options []Option) config {
	c := config{allocator: defaultAllocator{}}
	for _, op := range options {
		op(&c)
	}
	return c
}

// hasherFor returns the last registered Hasher for K, or the default.
func hasherFor[K comparable](c *config) Hasher[K] {
	for i := len(c.hashers) - 1; i >= 0; i-- {
		if h, ok := c.hashers[i].(Hasher[K]); ok {
			return h
		}
	}
	return comparableHasher[K]{seed: maphash.MakeSeed()}
}
