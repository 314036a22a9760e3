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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextCapacity(t *testing.T) {
	testCases := []struct {
		requested int
		expected  int
	}{
		{0, 3},
		{1, 3},
		{3, 3},
		{4, 7},
		{100, 107},
		{7199369, 7199369},
		{maxPrimeCapacity, maxPrimeCapacity},
		{maxPrimeCapacity + 1, maxPrimeCapacity},
	}
	for _, c := range testCases {
		require.EqualValues(t, c.expected, nextCapacity(c.requested), "%d", c.requested)
	}

	prev := 0
	for _, n := range []int{5, 50, 500, 5000, 50000, 7199370, 10_000_000, 123_456_789} {
		c := nextCapacity(n)
		require.GreaterOrEqual(t, c, n)
		require.GreaterOrEqual(t, c, prev)
		require.True(t, isPrime(c), "%d", c)
		prev = c
	}
}

func TestIsPrime(t *testing.T) {
	var found []int
	for i := 0; i < 30; i++ {
		if isPrime(i) {
			found = append(found, i)
		}
	}
	require.Equal(t, []int{2, 3, 5, 7, 11, 13, 17, 19, 23, 29}, found)
	for _, p := range primes {
		require.True(t, isPrime(p), "%d", p)
	}
}

func TestExpandCapacity(t *testing.T) {
	require.EqualValues(t, 3, expandCapacity(0))
	require.EqualValues(t, 7, expandCapacity(3))
	require.EqualValues(t, 17, expandCapacity(7))
	require.EqualValues(t, maxPrimeCapacity, expandCapacity(maxPrimeCapacity))
	for n := 3; n < 1_000_000; n = expandCapacity(n) {
		require.GreaterOrEqual(t, expandCapacity(n), 2*n)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	testCases := []struct {
		n        int
		expected int
	}{
		{0, 2},
		{1, 2},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1000, 1024},
		{1024, 1024},
		{1025, 2048},
		{maxSlimCapacity, maxSlimCapacity},
		{maxSlimCapacity + 1, maxSlimCapacity},
	}
	for _, c := range testCases {
		require.EqualValues(t, c.expected, nextPowerOfTwo(c.n), "%d", c.n)
	}
}
