// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"testing"

	"github.com/emer/loihicx/manexp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDiscretizeInvariant1 checks invariant 1: after Discretize every
// group's scaleU/scaleV are false and its per-compartment arrays hold
// integer dtype.
func TestDiscretizeInvariant1(t *testing.T) {
	m := NewModel("t")
	gh, _ := m.AddGroup("g", 3)
	g := m.Group(gh)
	g.ConfigureLIF(LIFParams{TauS: 0.005, TauRC: 0.02, TauRef: 0.001, Vth: 1, Dt: 0.001})
	g.SetBias([]float32{0.1, 0.2, 0.3})

	require.NoError(t, m.Discretize())

	assert.False(t, g.ScaleU)
	assert.False(t, g.ScaleV)
	assert.True(t, g.DecayU.IsInt())
	assert.True(t, g.DecayV.IsInt())
	assert.True(t, g.Vth.IsInt())
	assert.True(t, g.Bias.IsInt())
}

// TestDiscretizeTwiceFails checks the UsageError on double-discretize.
func TestDiscretizeTwiceFails(t *testing.T) {
	m := NewModel("t")
	gh, _ := m.AddGroup("g", 1)
	m.Group(gh).ConfigureLIF(LIFParams{TauS: 0.005, TauRC: 0.02, TauRef: 0.001, Vth: 1, Dt: 0.001})
	require.NoError(t, m.Discretize())
	err := m.Discretize()
	require.Error(t, err)
	var usageErr *UsageError
	assert.ErrorAs(t, err, &usageErr)
}

// TestDiscretizeQuietRoundTrip checks invariant 7: for a group with
// zero bias and zero weights (quiet regime), vth_manexp -> vth
// reproduces the input up to the encoding granularity (steps of 64,
// since VthExp=6).
func TestDiscretizeQuietRoundTrip(t *testing.T) {
	m := NewModel("t")
	gh, _ := m.AddGroup("g", 1)
	g := m.Group(gh)
	g.ConfigureLIF(LIFParams{TauS: 0.005, TauRC: 0.02, TauRef: 0.001, Vth: 1, Dt: 0.001})

	require.NoError(t, m.Discretize())

	vth := g.Vth.Int()[0]
	// the reconstructed value is a whole number of mantissa steps (2^6)
	assert.LessOrEqual(t, vth%64, int32(0))
	// and lies within one mantissa step of the scaled input (vth=1 times
	// v_scale), since VthToManExp rounds to the nearest multiple.
	assert.InDelta(t, float64(g.VScale[0]), float64(vth), 64)
}

// TestDiscretizeWeightDominantRoundTrip exercises the weight-dominant
// regime and checks that the discretized weights are populated and none
// exceeds the threshold ceiling VthMax.
func TestDiscretizeWeightDominantRoundTrip(t *testing.T) {
	m := NewModel("t")
	agh, _ := m.AddGroup("a", 2)
	a := m.Group(agh)
	a.ConfigureReLU(ReLUParams{TauS: 0.005, TauRef: 0.001, Vth: 1, Dt: 0.001})

	bgh, _ := m.AddGroup("b", 2)
	b := m.Group(bgh)
	b.ConfigureReLU(ReLUParams{TauS: 0.005, TauRef: 0.001, Vth: 1, Dt: 0.001})

	syn := b.AddSynapses("a-to-b", 2)
	require.NoError(t, syn.SetDiagonalWeights([]float32{1.0, 0.5}))
	_, err := a.AddAxons("fan", syn, nil)
	require.NoError(t, err)

	require.NoError(t, m.Discretize())

	require.NotNil(t, syn.WeightsI)
	for _, row := range syn.WeightsI {
		for _, w := range row {
			assert.LessOrEqual(t, float32(w), manexp.VthMax) // sanity: no runaway magnitude
		}
	}
}

// TestDiscretizeCapacityInvariant checks invariant 6: axon/bit budgets
// are enforced before Discretize ever runs (synchronously in
// SetFullWeights/SetDiagonalWeights); a bank of exactly 4096 axons
// stays within budget.
func TestDiscretizeCapacityInvariant(t *testing.T) {
	m := NewModel("t")
	gh, _ := m.AddGroup("g", 1)
	g := m.Group(gh)
	g.ConfigureNonSpiking(NonSpikingParams{TauS: 0.005, Vth: 1, Dt: 0.001})
	syn := g.AddSynapses("s", 4096)
	w := make([][]float32, 4096)
	for i := range w {
		w[i] = []float32{0.1}
	}
	require.NoError(t, syn.SetFullWeights(w))
}
