// Copyright 2022 Praetorian Security, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kex

import (
	"math/big"
	"sync"
)

// The RFC 3526 MODP primes are defined as
//
//	p = 2^N - 2^(N-64) - 1 + 2^64 * (floor(2^(N-130) * pi) + k)
//
// and are rebuilt from that formula on first use.
var groupParams = map[int]struct {
	bits   uint
	offset int64
}{
	14: {2048, 124476},
	16: {4096, 240904},
	18: {8192, 4743158},
}

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

// group is a multiplicative group suitable for Diffie-Hellman key agreement.
type group struct {
	g, p, pMinus1 *big.Int
	// q is (p-1)/2, the order of the subgroup generated by g.
	q *big.Int
}

var (
	groupsMu sync.Mutex
	groups   = map[int]*group{}
)

// modpGroup returns the RFC 3526 group with the given number, or nil.
func modpGroup(number int) *group {
	params, ok := groupParams[number]
	if !ok {
		return nil
	}
	groupsMu.Lock()
	defer groupsMu.Unlock()
	if g, ok := groups[number]; ok {
		return g
	}
	p := modpPrime(params.bits, params.offset)
	pMinus1 := new(big.Int).Sub(p, bigOne)
	g := &group{
		g:       big.NewInt(2),
		p:       p,
		pMinus1: pMinus1,
		q:       new(big.Int).Rsh(pMinus1, 1),
	}
	groups[number] = g
	return g
}

func modpPrime(bits uint, offset int64) *big.Int {
	const guard = 64
	pi := piFixed(bits - 130 + guard)
	pi.Rsh(pi, guard)
	pi.Add(pi, big.NewInt(offset))
	pi.Lsh(pi, 64)

	p := new(big.Int).Lsh(bigOne, bits)
	p.Sub(p, new(big.Int).Lsh(bigOne, bits-64))
	p.Sub(p, bigOne)
	return p.Add(p, pi)
}

// piFixed returns pi scaled by 2^bits using Machin's formula
// pi = 16 atan(1/5) - 4 atan(1/239).
func piFixed(bits uint) *big.Int {
	pi := new(big.Int).Mul(arctanInv(5, bits), big.NewInt(16))
	return pi.Sub(pi, new(big.Int).Mul(arctanInv(239, bits), big.NewInt(4)))
}

// arctanInv returns atan(1/x) scaled by 2^bits.
func arctanInv(x int64, bits uint) *big.Int {
	xSquared := big.NewInt(x * x)
	term := new(big.Int).Lsh(bigOne, bits)
	term.Quo(term, big.NewInt(x))
	sum := new(big.Int).Set(term)
	t := new(big.Int)
	for k := int64(1); term.Sign() != 0; k++ {
		term.Quo(term, xSquared)
		t.Quo(term, big.NewInt(2*k+1))
		if k%2 == 1 {
			sum.Sub(sum, t)
		} else {
			sum.Add(sum, t)
		}
	}
	return sum
}

// Group returns the generator and prime of RFC 3526 MODP group number.
func Group(number int) (g, p *big.Int, ok bool) {
	grp := modpGroup(number)
	if grp == nil {
		return nil, nil, false
	}
	return new(big.Int).Set(grp.g), new(big.Int).Set(grp.p), true
}
