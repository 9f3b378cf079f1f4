// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVthToManExpRoundTrip(t *testing.T) {
	mant, exp, err := VthToManExp(1024)
	require.NoError(t, err)
	assert.Equal(t, VthExp, exp)
	assert.InDelta(t, 1024, ManExpValue(mant, exp), 1e-6)
}

func TestVthToManExpOutOfRange(t *testing.T) {
	_, _, err := VthToManExp(VthMax * 4)
	require.Error(t, err)
	var rangeErr *RangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestBiasToManExpRoundTrip(t *testing.T) {
	mant, exp, err := BiasToManExp(100)
	require.NoError(t, err)
	assert.InDelta(t, 100, ManExpValue(mant, exp), float64(int32(1)<<exp))
}

func TestBiasToManExpOutOfRange(t *testing.T) {
	_, _, err := BiasToManExp(BiasMax * 100)
	require.Error(t, err)
}

func TestDecayToFixedClamps(t *testing.T) {
	assert.Equal(t, int32(0), DecayToFixed(-1))
	assert.Equal(t, DecayMax, DecayToFixed(2))
	assert.Equal(t, int32(0), DecayToFixed(0))
	assert.Equal(t, DecayMax, DecayToFixed(1))
}

func TestVminVmaxToFixed(t *testing.T) {
	vmin := VminToFixed(0)
	assert.Equal(t, float32(0), vmin)

	vmax := VmaxToFixed(511)
	assert.InDelta(t, 511, vmax, 1)
}

func TestSynapseFmtDiscretizeSymmetric(t *testing.T) {
	f := DefaultSynapseFmt(3)
	pos := f.Discretize(50)
	neg := f.Discretize(-50)
	assert.Equal(t, -pos, neg)
}

func TestSynapseFmtWScale(t *testing.T) {
	assert.Equal(t, float32(64), WScale(0))
	assert.Equal(t, float32(32), WScale(-1))
}

func TestIdxBitsReal(t *testing.T) {
	f := SynapseFmt{IdxBits: 0}
	assert.Equal(t, int32(0), f.IdxBitsReal())
	f.IdxBits = 7
	assert.Equal(t, int32(12), f.IdxBitsReal())
}
