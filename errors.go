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
	"errors"
	"fmt"
)

// Sentinel errors. Errors returned (or panicked) by this package wrap one of
// these, so callers should test with errors.Is:
//
//	if err := m.Add(k, v); errors.Is(err, hashtab.ErrDuplicateKey) {
//	    m.Set(k, v)
//	}
var (
	// ErrInvalidKey indicates a nil interface key. This is a programming
	// error and is reported by panicking.
	ErrInvalidKey = errors.New("hashtab: invalid key")

	// ErrInvalidCapacity indicates a negative capacity, or a trim target
	// smaller than the number of entries.
	ErrInvalidCapacity = errors.New("hashtab: invalid capacity")

	// ErrDuplicateKey indicates an insert-only operation found the key
	// already present. For a BiMap it is also returned when either side of
	// the pair is already bound to a different partner.
	ErrDuplicateKey = errors.New("hashtab: duplicate key")

	// ErrKeyNotFound is returned by accessors that require the key to be
	// present. Get and Contains never return it.
	ErrKeyNotFound = errors.New("hashtab: key not found")

	// ErrIndexOutOfRange is returned by the positional operations of
	// Ordered.
	ErrIndexOutOfRange = errors.New("hashtab: index out of range")

	// ErrConcurrentMutation indicates the table changed underneath an
	// in-progress iteration, or a bucket chain failed to terminate. The
	// table is not made safe for concurrent use; this is only detection.
	ErrConcurrentMutation = errors.New("hashtab: concurrent mutation")
)

func invalidKey() error {
	return fmt.Errorf("%w: nil key", ErrInvalidKey)
}

func duplicateKey(side string, key any) error {
	if side == "" {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}
	return fmt.Errorf("%w: %s key %v", ErrDuplicateKey, side, key)
}

func keyNotFound(key any) error {
	return fmt.Errorf("%w: %v", ErrKeyNotFound, key)
}

func indexOutOfRange(op string, index, length int) error {
	return fmt.Errorf("%w: %s: index %d, length %d", ErrIndexOutOfRange, op, index, length)
}

func invalidCapacity(capacity, length int) error {
	if capacity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return fmt.Errorf("%w: %d is less than length %d", ErrInvalidCapacity, capacity, length)
}

func concurrentMutation(op string) error {
	return fmt.Errorf("%w: %s", ErrConcurrentMutation, op)
}

// checkKey panics if key is a nil interface value. Non-interface key types
// can never be nil.
func checkKey[K comparable](key K) {
	if any(key) == nil {
		panic(invalidKey())
	}
}
