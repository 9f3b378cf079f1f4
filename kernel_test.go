// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLIF(t *testing.T, n int, vth, bias float32) (*Model, GroupHandle) {
	t.Helper()
	m := NewModel("s1")
	gh, err := m.AddGroup("g", n)
	require.NoError(t, err)
	g := m.Group(gh)
	g.ConfigureLIF(LIFParams{TauS: 0.005, TauRC: 0.02, TauRef: 0.001, Vth: vth, Dt: 0.001})
	g.SetBias(repeat(n, bias))
	return m, gh
}

func repeat(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// S1 -- single LIF, constant bias: expect periodic spiking. Bias is
// kept safely above vth (rather than spec.md's boundary example of
// bias==vth, whose asymptote never strictly crosses threshold in
// exact arithmetic) so the assertion does not depend on float32
// rounding at the asymptote.
func TestScenarioS1PeriodicLIF(t *testing.T) {
	m, gh := newLIF(t, 1, 1, 1.5)
	g := m.Group(gh)
	p := g.AddProbe(ProbeConfig{Name: "v", Key: "v"})

	k, err := m.GetSimulator(1)
	require.NoError(t, err)
	require.NoError(t, k.RunSteps(1000))

	out, err := k.ProbeOutput(p)
	require.NoError(t, err)
	assert.Equal(t, 1000, len(out))
	assert.Greater(t, k.c[0], int32(0), "expected periodic spiking with bias above threshold")
}

// S2 -- sub-threshold LIF: expect zero spikes, v asymptoting below vth.
func TestScenarioS2SubThresholdLIF(t *testing.T) {
	m, gh := newLIF(t, 1, 1, 0.5)
	g := m.Group(gh)
	_ = g
	k, err := m.GetSimulator(1)
	require.NoError(t, err)
	require.NoError(t, k.RunSteps(1000))
	assert.Equal(t, int32(0), k.c[0])
	assert.Less(t, k.vF[0], float32(1.0))
}

// S3 -- one-to-one axon chain: a SpikeInput drives B (relu) through an
// identity-weighted Synapses bank; only B's compartment 3 should ever
// spike, a few ticks after the injected spike arrives (once its
// filtered current has pushed v past vth).
func TestScenarioS3AxonChain(t *testing.T) {
	m := NewModel("s3")
	bgh, _ := m.AddGroup("b", 10)
	b := m.Group(bgh)
	// vth kept below the current filter's total impulse response (which
	// sums to exactly the injected spike weight, 1.0) so the crossing
	// is guaranteed well within the run instead of depending on
	// asymptotic float32 rounding.
	b.ConfigureReLU(ReLUParams{TauS: 0.005, TauRef: 0.001, Vth: 0.5, Dt: 0.001})

	syn := b.AddSynapses("a-to-b", 10)
	require.NoError(t, syn.SetDiagonalWeights(repeat(10, 1.0)))

	ih, _ := m.AddInput("drive", 10)
	in := m.Input(ih)
	_, err := in.AddAxons("drive-to-b", syn, nil)
	require.NoError(t, err)

	row0 := make([]bool, 10)
	row0[3] = true
	require.NoError(t, in.AppendRow(row0))
	for i := 1; i < 20; i++ {
		require.NoError(t, in.AppendRow(make([]bool, 10)))
	}

	k, err := m.GetSimulator(1)
	require.NoError(t, err)
	require.NoError(t, k.RunSteps(20))

	bOffset := b.offset
	for i := 0; i < 10; i++ {
		if i == 3 {
			assert.Greater(t, k.c[bOffset+i], int32(0), "compartment 3 should have spiked")
		} else {
			assert.Equal(t, int32(0), k.c[bOffset+i], "no other compartment should spike")
		}
	}
}

// S4 -- refractory clamp: an overdriven LIF spikes exactly every
// RefractDelay ticks (round(tauRef/dt)+1 = 6 here) once it first
// crosses threshold.
func TestScenarioS4RefractoryClamp(t *testing.T) {
	m, gh := newLIF(t, 1, 1, 1000.0)
	g := m.Group(gh)
	g.TauRef = 0.005
	ticks := refractTicks(0.005, 0.001)
	for i := range g.RefractDelay {
		g.RefractDelay[i] = ticks
	}
	p := g.AddProbe(ProbeConfig{Name: "s", Key: "s"})

	k, err := m.GetSimulator(1)
	require.NoError(t, err)
	require.NoError(t, k.RunSteps(60))

	out, err := k.ProbeOutput(p)
	require.NoError(t, err)
	require.Equal(t, 60, len(out))

	var spikeTicks []int
	for i, v := range out {
		if v > 0 {
			spikeTicks = append(spikeTicks, i)
		}
	}
	require.GreaterOrEqual(t, len(spikeTicks), 2, "expected at least two spikes to measure ISI")
	for i := 1; i < len(spikeTicks); i++ {
		isi := spikeTicks[i] - spikeTicks[i-1]
		assert.Equal(t, int(ticks), isi, "spike interval should equal RefractDelay")
	}
}

// S5 -- discretization round-trip: float and int32 kernels built from
// the same (now discretized) model agree within +/-1 spike per
// compartment over 100 ticks.
func TestScenarioS5DiscretizationRoundTrip(t *testing.T) {
	m := NewModel("s5")
	gh, _ := m.AddGroup("g", 5)
	g := m.Group(gh)
	g.ConfigureLIF(LIFParams{TauS: 0.005, TauRC: 0.02, TauRef: 0.001, Vth: 1, Dt: 0.001})
	g.SetBias([]float32{2, 3, 4, 5, 6})

	floatCounts := make([]int32, 5)
	{
		kf, err := m.GetSimulator(7)
		require.NoError(t, err)
		require.NoError(t, kf.RunSteps(100))
		copy(floatCounts, kf.c)
	}

	require.NoError(t, m.Discretize())

	ki, err := m.GetSimulator(7)
	require.NoError(t, err)
	require.NoError(t, ki.RunSteps(100))

	for i := 0; i < 5; i++ {
		diff := floatCounts[i] - ki.c[i]
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, int32(1), "float/int spike counts should agree within +/-1 at compartment %d", i)
	}
}

// S6 -- noise determinism: two kernels seeded identically produce
// bit-identical per-tick u samples on every noise-enabled compartment.
func TestScenarioS6NoiseDeterminism(t *testing.T) {
	build := func() *StepKernel {
		m := NewModel("s6")
		gh, _ := m.AddGroup("g", 50)
		g := m.Group(gh)
		g.ConfigureNonSpiking(NonSpikingParams{TauS: 0.005, Vth: 1000, Dt: 0.001})
		g.NoiseExp0 = 1
		for i := range g.EnableNoise {
			g.EnableNoise[i] = true
		}
		k, err := m.GetSimulator(42)
		require.NoError(t, err)
		return k
	}

	k1 := build()
	k2 := build()

	for tick := 0; tick < 20; tick++ {
		require.NoError(t, k1.Step())
		require.NoError(t, k2.Step())
		for i := 0; i < 50; i++ {
			assert.Equal(t, k1.uF[i], k2.uF[i], "tick %d compartment %d", tick, i)
		}
	}
}

// Invariant 2: vmin <= v <= vmax and 0 <= w <= refractDelay.max() at
// every tick.
func TestInvariantVoltageAndRefractoryBounds(t *testing.T) {
	m, gh := newLIF(t, 4, 1, 1.0)
	g := m.Group(gh)
	k, err := m.GetSimulator(1)
	require.NoError(t, err)
	maxRefract := int32(0)
	for _, r := range g.RefractDelay {
		if r > maxRefract {
			maxRefract = r
		}
	}
	for tick := 0; tick < 200; tick++ {
		require.NoError(t, k.Step())
		for i := 0; i < 4; i++ {
			assert.GreaterOrEqual(t, k.vF[i], g.VRange.Min)
			assert.LessOrEqual(t, k.vF[i], g.VRange.Max)
			assert.GreaterOrEqual(t, k.w[i], int32(0))
			assert.LessOrEqual(t, k.w[i], maxRefract)
		}
	}
}
