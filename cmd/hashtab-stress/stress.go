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

package main

import (
	"errors"
	"fmt"
	"maps"
	"math/rand"
	"slices"

	"github.com/cockroachdb/hashtab"
)

// checkpoint reports whether op is due for a full validation.
func (o options) checkpoint(op int) bool {
	return o.validateEvery > 0 && (op+1)%o.validateEvery == 0
}

func stressSlim(rng *rand.Rand, opts options) (int, error) {
	m := hashtab.NewSlim[int, int](0)
	model := make(map[int]int)
	var mutations int

	for op := 0; op < opts.ops; op++ {
		k := rng.Intn(opts.keys)
		mutated := true
		switch r := rng.Intn(100); {
		case r < 35:
			v := rng.Int()
			m.Set(k, v)
			model[k] = v
		case r < 45:
			_, present := model[k]
			if added := m.TryAdd(k, op); added == present {
				return mutations, fmt.Errorf("op %d: TryAdd(%d) = %t with key present=%t", op, k, added, present)
			}
			if !present {
				model[k] = op
			}
		case r < 55:
			*m.GetOrInsert(k)++
			model[k]++
		case r < 75:
			got, ok := m.Remove(k)
			want, found := model[k]
			if ok != found || got != want {
				return mutations, fmt.Errorf("op %d: Remove(%d) = %d, %t; want %d, %t", op, k, got, ok, want, found)
			}
			delete(model, k)
		case r < 98:
			got, ok := m.Get(k)
			want, found := model[k]
			if ok != found || got != want {
				return mutations, fmt.Errorf("op %d: Get(%d) = %d, %t; want %d, %t", op, k, got, ok, want, found)
			}
			mutated = false
		default:
			m.TrimExcess()
		}
		if mutated {
			mutations++
		}
		if m.Len() != len(model) {
			return mutations, fmt.Errorf("op %d: Len() = %d, want %d", op, m.Len(), len(model))
		}
		if opts.checkpoint(op) {
			if err := m.Validate(); err != nil {
				return mutations, fmt.Errorf("op %d: %w", op, err)
			}
			got := maps.Collect(m.All)
			if !maps.Equal(got, model) {
				return mutations, fmt.Errorf("op %d: contents diverged: %d entries, want %d", op, len(got), len(model))
			}
			opts.logger.Debug("validated", "table", "slim", "op", op, "len", m.Len(), "capacity", m.Capacity())
		}
	}
	return mutations, m.Validate()
}

type entry struct {
	key, value int
}

func stressOrdered(rng *rand.Rand, opts options) (int, error) {
	m := hashtab.NewOrdered[int, int](0)
	var model []entry
	indexOf := func(k int) int {
		return slices.IndexFunc(model, func(e entry) bool { return e.key == k })
	}
	var mutations int

	for op := 0; op < opts.ops; op++ {
		k := rng.Intn(opts.keys)
		mutated := true
		switch r := rng.Intn(100); {
		case r < 30:
			p := rng.Intn(len(model) + 1)
			err := m.InsertAt(p, k, op)
			if indexOf(k) >= 0 {
				if !errors.Is(err, hashtab.ErrDuplicateKey) {
					return mutations, fmt.Errorf("op %d: InsertAt(%d, %d) = %v, want duplicate", op, p, k, err)
				}
				mutated = false
				break
			}
			if err != nil {
				return mutations, fmt.Errorf("op %d: InsertAt(%d, %d): %w", op, p, k, err)
			}
			model = slices.Insert(model, p, entry{k, op})
		case r < 40:
			m.Set(k, op)
			if j := indexOf(k); j >= 0 {
				model[j].value = op
			} else {
				model = append(model, entry{k, op})
			}
		case r < 55:
			if len(model) == 0 {
				mutated = false
				break
			}
			p := rng.Intn(len(model))
			if err := m.RemoveAt(p); err != nil {
				return mutations, fmt.Errorf("op %d: RemoveAt(%d): %w", op, p, err)
			}
			model = slices.Delete(model, p, p+1)
		case r < 65:
			got, ok := m.Remove(k)
			j := indexOf(k)
			if ok != (j >= 0) || (ok && got != model[j].value) {
				return mutations, fmt.Errorf("op %d: Remove(%d) = %d, %t", op, k, got, ok)
			}
			if ok {
				model = slices.Delete(model, j, j+1)
			}
		case r < 75:
			if len(model) == 0 {
				mutated = false
				break
			}
			n := rng.Intn(min(len(model), 8)) + 1
			from, to := rng.Intn(len(model)-n+1), rng.Intn(len(model)-n+1)
			if err := m.MoveRange(from, to, n); err != nil {
				return mutations, fmt.Errorf("op %d: MoveRange(%d, %d, %d): %w", op, from, to, n, err)
			}
			run := slices.Clone(model[from : from+n])
			model = slices.Delete(model, from, from+n)
			model = slices.Insert(model, to, run...)
		case r < 99:
			got, ok := m.IndexOf(k)
			if want := indexOf(k); got != want || ok != (want >= 0) {
				return mutations, fmt.Errorf("op %d: IndexOf(%d) = %d, want %d", op, k, got, want)
			}
			mutated = false
		default:
			m.TrimExcess()
		}
		if mutated {
			mutations++
		}
		if m.Len() != len(model) {
			return mutations, fmt.Errorf("op %d: Len() = %d, want %d", op, m.Len(), len(model))
		}
		if opts.checkpoint(op) {
			if err := m.Validate(); err != nil {
				return mutations, fmt.Errorf("op %d: %w", op, err)
			}
			for i, e := range model {
				k, v, err := m.GetAt(i)
				if err != nil || k != e.key || v != e.value {
					return mutations, fmt.Errorf("op %d: GetAt(%d) = %d, %d, %v; want %d, %d",
						op, i, k, v, err, e.key, e.value)
				}
			}
			opts.logger.Debug("validated", "table", "ordered", "op", op, "len", m.Len(), "capacity", m.Capacity())
		}
	}
	return mutations, m.Validate()
}

func stressBiMap(rng *rand.Rand, opts options) (int, error) {
	m := hashtab.NewBiMap[int, string](0)
	forward := make(map[int]string)
	reverse := make(map[string]int)
	var mutations int

	for op := 0; op < opts.ops; op++ {
		a, b := rng.Intn(opts.keys), fmt.Sprint(rng.Intn(opts.keys))
		mutated := true
		switch r := rng.Intn(100); {
		case r < 35:
			err := m.Add(a, b)
			_, dupA := forward[a]
			_, dupB := reverse[b]
			if dupA || dupB {
				if !errors.Is(err, hashtab.ErrDuplicateKey) {
					return mutations, fmt.Errorf("op %d: Add(%d, %q) = %v, want duplicate", op, a, b, err)
				}
				mutated = false
				break
			}
			if err != nil {
				return mutations, fmt.Errorf("op %d: Add(%d, %q): %w", op, a, b, err)
			}
			forward[a], reverse[b] = b, a
		case r < 45:
			err := m.Set(a, b)
			if owner, ok := reverse[b]; ok && owner != a {
				if !errors.Is(err, hashtab.ErrDuplicateKey) {
					return mutations, fmt.Errorf("op %d: Set(%d, %q) = %v, want duplicate", op, a, b, err)
				}
				mutated = false
				break
			}
			if err != nil {
				return mutations, fmt.Errorf("op %d: Set(%d, %q): %w", op, a, b, err)
			}
			if old, ok := forward[a]; ok {
				delete(reverse, old)
			}
			forward[a], reverse[b] = b, a
		case r < 55:
			got, ok := m.Remove(a)
			want, found := forward[a]
			if ok != found || got != want {
				return mutations, fmt.Errorf("op %d: Remove(%d) = %q, %t; want %q, %t", op, a, got, ok, want, found)
			}
			delete(forward, a)
			delete(reverse, want)
		case r < 65:
			got, ok := m.Reverse().Remove(b)
			want, found := reverse[b]
			if ok != found || got != want {
				return mutations, fmt.Errorf("op %d: Reverse().Remove(%q) = %d, %t; want %d, %t", op, b, got, ok, want, found)
			}
			delete(reverse, b)
			delete(forward, want)
		case r < 99:
			got, ok := m.Get(a)
			want, found := forward[a]
			if ok != found || got != want {
				return mutations, fmt.Errorf("op %d: Get(%d) = %q, %t; want %q, %t", op, a, got, ok, want, found)
			}
			gotA, ok := m.Reverse().Get(b)
			wantA, found := reverse[b]
			if ok != found || gotA != wantA {
				return mutations, fmt.Errorf("op %d: Reverse().Get(%q) = %d, %t; want %d, %t", op, b, gotA, ok, wantA, found)
			}
			mutated = false
		default:
			m.TrimExcess()
		}
		if mutated {
			mutations++
		}
		if m.Len() != len(forward) || m.Len() != len(reverse) {
			return mutations, fmt.Errorf("op %d: Len() = %d, want %d and %d", op, m.Len(), len(forward), len(reverse))
		}
		if opts.checkpoint(op) {
			if err := m.Validate(); err != nil {
				return mutations, fmt.Errorf("op %d: %w", op, err)
			}
			if got := maps.Collect(m.All); !maps.Equal(got, forward) {
				return mutations, fmt.Errorf("op %d: pairs diverged: %d pairs, want %d", op, len(got), len(forward))
			}
			opts.logger.Debug("validated", "table", "bimap", "op", op, "len", m.Len(), "capacity", m.Capacity())
		}
	}
	return mutations, m.Validate()
}
