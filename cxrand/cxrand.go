// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package cxrand provides the deterministic random number generation used
by the compartment step kernel's noise injection (spec §4.4 step 7).

It is adapted from emer/emergent's erand package -- same IntRange /
UniformPM1 generator shapes -- but deliberately does not reuse erand's
global-source design: a Source here is always a standalone instance
owned by one StepKernel, never package-level state, so that two
kernels built from the same seed can run concurrently without racing
on, or secretly sharing, RNG state (required by the StepKernel's
reproducibility invariant).
*/
package cxrand

import "math/rand"

// Source is a self-contained random source for one StepKernel.
// It is not safe for concurrent use by multiple goroutines -- the
// kernel draws noise once per tick, synchronously, per spec §5.
type Source struct {
	rng *rand.Rand
}

// New returns a Source seeded deterministically from seed. The same
// seed always produces the same sequence of draws, on any platform,
// because it wraps a fixed math/rand.Source rather than the process
// global.
func New(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// IntRange returns a uniform random integer in [lo, hi), matching the
// donor erand.IntMinMax shape but drawn from this Source's own rng.
func (s *Source) IntRange(lo, hi int32) int32 {
	if hi <= lo {
		return lo
	}
	return lo + int32(s.rng.Int63n(int64(hi-lo)))
}

// UniformPM1 returns a uniform random float64 in [-1, 1).
func (s *Source) UniformPM1() float64 {
	return s.rng.Float64()*2 - 1
}

// NextSeed draws a deterministic int64 from this Source, for deriving
// independent per-group sub-Sources up front (so sharded workers never
// share one underlying rng.Rand across goroutines).
func (s *Source) NextSeed() int64 {
	return s.rng.Int63()
}
