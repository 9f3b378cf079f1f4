// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cxrand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicSameSeed(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.IntRange(-128, 128), b.IntRange(-128, 128))
		assert.Equal(t, a.UniformPM1(), b.UniformPM1())
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := New(1)
	b := New(2)
	same := true
	for i := 0; i < 20; i++ {
		if a.IntRange(-1000, 1000) != b.IntRange(-1000, 1000) {
			same = false
			break
		}
	}
	assert.False(t, same)
}

func TestIntRangeBounds(t *testing.T) {
	s := New(7)
	for i := 0; i < 1000; i++ {
		v := s.IntRange(-128, 128)
		assert.GreaterOrEqual(t, v, int32(-128))
		assert.Less(t, v, int32(128))
	}
}
