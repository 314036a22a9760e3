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
	"math"
	"math/bits"
)

const (
	// maxPrimeCapacity is the largest prime below math.MaxInt32 that
	// nextCapacity returns, so that 1-based bucket heads fit in an int32.
	maxPrimeCapacity = 0x7FFFFFC3

	// hashPrime is skipped as a factor of p-1 so that table sizes interact
	// well with hash functions that multiply by it.
	hashPrime = 101

	// maxSlimCapacity is the largest power of two usable by Slim.
	maxSlimCapacity = 1 << 30
)

// primes is a table of primes roughly 1.2x apart, used to size
// modulo-indexed bucket arrays without searching.
var primes = [...]int{
	3, 7, 11, 17, 23, 29, 37, 47, 59, 71, 89, 107, 131, 163, 197, 239, 293, 353, 431, 521, 631, 761, 919,
	1103, 1327, 1597, 1931, 2333, 2801, 3371, 4049, 4861, 5839, 7013, 8419, 10103, 12143, 14591,
	17519, 21023, 25229, 30293, 36353, 43627, 52361, 62851, 75431, 90523, 108631, 130363, 156437,
	187751, 225307, 270371, 324449, 389357, 467237, 560689, 672827, 807403, 968897, 1162687, 1395263,
	1674319, 2009191, 2411033, 2893249, 3471899, 4166287, 4999559, 5999471, 7199369,
}

func isPrime(n int) bool {
	if n&1 == 0 {
		return n == 2
	}
	limit := int(math.Sqrt(float64(n)))
	for d := 3; d <= limit; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return n > 1
}

// nextCapacity returns the smallest table size >= requested. The result is
// prime and monotonic in requested. Requests beyond maxPrimeCapacity are
// clamped.
func nextCapacity(requested int) int {
	if requested > maxPrimeCapacity {
		return maxPrimeCapacity
	}
	for _, p := range primes {
		if p >= requested {
			return p
		}
	}
	for n := requested | 1; n < maxPrimeCapacity; n += 2 {
		if isPrime(n) && (n-1)%hashPrime != 0 {
			return n
		}
	}
	return maxPrimeCapacity
}

// expandCapacity returns the size to grow to from a full table of size
// old: the next prime at least twice as large.
func expandCapacity(old int) int {
	if old >= maxPrimeCapacity/2 {
		return maxPrimeCapacity
	}
	return nextCapacity(2 * old)
}

// nextPowerOfTwo returns the smallest power of two >= n, and at least 2.
func nextPowerOfTwo(n int) int {
	if n <= 2 {
		return 2
	}
	if n > maxSlimCapacity {
		return maxSlimCapacity
	}
	return 1 << bits.Len(uint(n-1))
}
