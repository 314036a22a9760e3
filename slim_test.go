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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// toBuiltinMap returns the elements as a map[K]V. Useful for testing.
func (m *Slim[K, V]) toBuiltinMap() map[K]V {
	r := make(map[K]V)
	m.All(func(k K, v V) bool {
		r[k] = v
		return true
	})
	return r
}

func (m *Slim[K, V]) randElement(rng *rand.Rand) (key K, value V, ok bool) {
	if m.count == 0 {
		return key, value, false
	}
	e := &m.entries[rng.Intn(m.count)]
	return e.key, e.value, true
}

func TestSlimGetOrInsert(t *testing.T) {
	m := NewSlim[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)
	version := m.version

	p := m.GetOrInsert("a")
	require.EqualValues(t, 1, *p)
	require.EqualValues(t, 2, m.Len())
	require.EqualValues(t, version, m.version)

	*p = 10
	v, ok := m.Get("a")
	require.True(t, ok)
	require.EqualValues(t, 10, v)

	p = m.GetOrInsert("c")
	require.EqualValues(t, 0, *p)
	require.EqualValues(t, 3, m.Len())
	require.EqualValues(t, version+1, m.version)
	*p++
	require.Equal(t, map[string]int{"a": 10, "b": 2, "c": 1}, m.toBuiltinMap())
	require.NoError(t, m.Validate())
}

func TestSlimGrowth(t *testing.T) {
	m := NewSlim[int, int](0)
	require.EqualValues(t, 0, m.Capacity())
	for i := 1; i <= 1000; i++ {
		m.Set(i, i*2)
	}
	require.EqualValues(t, 1000, m.Len())
	require.EqualValues(t, 1024, m.Capacity())
	for i := 1; i <= 1000; i++ {
		v, err := m.Value(i)
		require.NoError(t, err)
		require.EqualValues(t, i*2, v)
	}
	require.NoError(t, m.Validate())
}

func TestSlimBasic(t *testing.T) {
	test := func(t *testing.T, m *Slim[int, int]) {
		const count = 100

		e := make(map[int]int)
		require.EqualValues(t, 0, m.Len())

		// Non-existent.
		for i := 0; i < count; i++ {
			_, ok := m.Get(i)
			require.False(t, ok)
			_, err := m.Value(i)
			require.ErrorIs(t, err, ErrKeyNotFound)
		}

		// Insert.
		for i := 0; i < count; i++ {
			require.True(t, m.TryAdd(i, i+count))
			e[i] = i + count
			v, ok := m.Get(i)
			require.True(t, ok)
			require.EqualValues(t, i+count, v)
			require.EqualValues(t, i+1, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// TryAdd never overwrites.
		for i := 0; i < count; i++ {
			require.False(t, m.TryAdd(i, -1))
		}
		require.Equal(t, e, m.toBuiltinMap())

		// Update.
		for i := 0; i < count; i++ {
			m.Set(i, i+2*count)
			e[i] = i + 2*count
			v, ok := m.Get(i)
			require.True(t, ok)
			require.EqualValues(t, i+2*count, v)
			require.EqualValues(t, count, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Delete.
		for i := 0; i < count; i++ {
			v, ok := m.Remove(i)
			require.True(t, ok)
			require.EqualValues(t, e[i], v)
			delete(e, i)
			require.EqualValues(t, count-i-1, m.Len())
			_, ok = m.Get(i)
			require.False(t, ok)
			_, ok = m.Remove(i)
			require.False(t, ok)
			require.Equal(t, e, m.toBuiltinMap())
			require.NoError(t, m.Validate())
		}
	}

	t.Run("normal", func(t *testing.T) {
		test(t, NewSlim[int, int](0))
	})

	t.Run("degenerate", func(t *testing.T) {
		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				test(t, NewSlim[int, int](0, constantHash(v)))
			})
		}
		for i := 0; i < 10; i++ {
			v := rand.Uint64()
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				test(t, NewSlim[int, int](0, constantHash(v)))
			})
		}
	})
}

func TestSlimRandom(t *testing.T) {
	test := func(t *testing.T, m *Slim[int, int]) {
		rng := rand.New(rand.NewSource(rand.Int63()))
		e := make(map[int]int)
		for i := 0; i < 10000; i++ {
			switch r := rng.Float64(); {
			case r < 0.5: // 50% inserts
				k, v := rng.Intn(2000), rng.Int()
				m.Set(k, v)
				e[k] = v
			case r < 0.65: // 15% updates
				if k, _, ok := m.randElement(rng); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					v := rng.Int()
					*m.GetOrInsert(k) = v
					e[k] = v
				}
			case r < 0.80: // 15% deletes
				if k, _, ok := m.randElement(rng); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					_, ok := m.Remove(k)
					require.True(t, ok)
					delete(e, k)
				}
			case r < 0.95: // 15% lookups
				if k, v, ok := m.randElement(rng); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.EqualValues(t, e[k], v)
				}
			default: // 5% trim and iterate
				m.TrimExcess()
				require.Equal(t, e, m.toBuiltinMap())
				require.NoError(t, m.Validate())
			}
			require.EqualValues(t, len(e), m.Len())
		}
		require.NoError(t, m.Validate())
	}

	t.Run("normal", func(t *testing.T) {
		test(t, NewSlim[int, int](0))
	})

	t.Run("degenerate", func(t *testing.T) {
		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				test(t, NewSlim[int, int](0, constantHash(v)))
			})
		}
	})
}

func TestSlimRemoveCompacts(t *testing.T) {
	m := NewSlim[int, string](8, constantHash(0))
	for i := 0; i < 5; i++ {
		m.Set(i, fmt.Sprint(i))
	}
	// The last entry moves into the hole left by the removed one.
	v, ok := m.Remove(1)
	require.True(t, ok)
	require.Equal(t, "1", v)
	require.EqualValues(t, 4, m.entries[1].key)
	require.Equal(t, slimEntry[int, string]{}, m.entries[4])
	require.NoError(t, m.Validate())

	// Removing the last entry needs no move.
	_, ok = m.Remove(3)
	require.True(t, ok)
	require.EqualValues(t, 3, m.Len())
	require.EqualValues(t, 4, m.entries[1].key)
	require.Equal(t, map[int]string{0: "0", 2: "2", 4: "4"}, m.toBuiltinMap())
	require.NoError(t, m.Validate())
}

func TestSlimClear(t *testing.T) {
	m := NewSlim[int, int](0)
	for i := 0; i < 1000; i++ {
		m.Set(i, i)
	}
	capacity := m.Capacity()
	m.Clear()
	require.EqualValues(t, 0, m.Len())
	require.EqualValues(t, capacity, m.Capacity())
	require.NoError(t, m.Validate())

	m.All(func(k, v int) bool {
		require.Fail(t, "should not iterate")
		return true
	})
	m.Set(1, 1)
	require.Equal(t, map[int]int{1: 1}, m.toBuiltinMap())
}

func TestSlimCapacity(t *testing.T) {
	m := NewSlim[int, int](100)
	require.EqualValues(t, 128, m.Capacity())

	c, err := m.EnsureCapacity(50)
	require.NoError(t, err)
	require.EqualValues(t, 128, c)
	c, err = m.EnsureCapacity(129)
	require.NoError(t, err)
	require.EqualValues(t, 256, c)
	_, err = m.EnsureCapacity(-1)
	require.ErrorIs(t, err, ErrInvalidCapacity)

	for i := 0; i < 10; i++ {
		m.Set(i, i)
	}
	require.ErrorIs(t, m.Trim(9), ErrInvalidCapacity)
	require.NoError(t, m.Trim(1000))
	require.EqualValues(t, 256, m.Capacity())
	m.TrimExcess()
	require.EqualValues(t, 16, m.Capacity())
	require.NoError(t, m.Validate())

	m.Clear()
	require.NoError(t, m.Trim(0))
	require.EqualValues(t, 0, m.Capacity())
	m.Set(1, 1)
	require.EqualValues(t, 2, m.Capacity())
	require.NoError(t, m.Validate())

	require.Panics(t, func() { NewSlim[int, int](-1) })
}

func TestSlimInvalidKey(t *testing.T) {
	m := NewSlim[any, int](0)
	m.Set(1, 1)
	m.Set("x", 2)
	requirePanicsIs(t, ErrInvalidKey, func() { m.Set(nil, 3) })
	requirePanicsIs(t, ErrInvalidKey, func() { m.Get(nil) })
	requirePanicsIs(t, ErrInvalidKey, func() { m.Remove(nil) })
	require.EqualValues(t, 2, m.Len())
}

func TestSlimCorruption(t *testing.T) {
	m := NewSlim[int, int](8, constantHash(0))
	for i := 0; i < 4; i++ {
		m.Set(i, i)
	}
	// Chain is 3 -> 2 -> 1 -> 0; close it into a cycle.
	m.entries[0].next = 3
	require.Error(t, m.Validate())
	requirePanicsIs(t, ErrConcurrentMutation, func() { m.Get(42) })
	requirePanicsIs(t, ErrConcurrentMutation, func() { m.Remove(42) })
}
