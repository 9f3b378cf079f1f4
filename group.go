// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/emer/etable/v2/minmax"
)

// Location is where a Group's compartments are evaluated: on the chip
// core, or on the host. Host-located groups run the same tick
// algorithm but are treated specially at threshold (spec §4.4 step
// 10): their post-spike voltage preserves overshoot instead of being
// zeroed, recovering nengo_loihi/splitter.py's host/chip partition.
type Location int32

const (
	Core Location = iota
	Host
)

func (l Location) String() string {
	if l == Host {
		return "host"
	}
	return "core"
}

// Group is a population of N compartments sharing build-time
// configuration -- the core unit of the data model (spec §3).
type Group struct {
	Name string
	N    int

	DecayU, DecayV NumArray
	Vth, Bias      NumArray
	RefractDelay   []int32
	EnableNoise    []bool

	VRange           minmax.F32
	NoiseExp0        float32
	NoiseMantOffset0 float32
	NoiseAtDendOrVm  int32

	ScaleU, ScaleV bool
	Location       Location

	// provenance of the continuous-time parameters passed to
	// configure_lif/relu/nonspiking/filter, kept for diagnostics only
	// (nengo_loihi/neurons.py keeps these around on LIF/LoihiLIF too).
	TauS, TauRC, TauRef, Dt float32

	Synapses []*Synapses
	Axons    []*Axons
	Probes   []*Probe

	namedSynapses map[string]*Synapses
	namedAxons    map[string]*Axons

	// Discretized, VScale, BScale, WScale, wgtExpGroup are populated by
	// Model.Discretize (discretize.go) and read by the per-synapse
	// weight discretization pass and by probe weight rescaling.
	Discretized bool
	VScale      []float32
	BScale      []float32
	WScale      float32
	wgtExpGroup int32

	// offset is this group's starting index into the StepKernel's flat
	// compartment arrays, assigned by Model.ensureLayout.
	offset int
}

func newGroup(name string, n int) *Group {
	g := &Group{
		Name:          name,
		N:             n,
		DecayU:        NewFloatArray(n),
		DecayV:        NewFloatArray(n),
		Vth:           NewFloatArray(n),
		Bias:          NewFloatArray(n),
		RefractDelay:  make([]int32, n),
		EnableNoise:   make([]bool, n),
		VRange:        minmax.F32{Min: 0, Max: math32.Inf(1)},
		namedSynapses: map[string]*Synapses{},
		namedAxons:    map[string]*Axons{},
	}
	return g
}

// FilterParams configures a pure synaptic current filter
// (configure_filter) for a plain low-pass Group. Probe readout filters
// are configured separately, through ProbeConfig.FilterTauS.
type FilterParams struct {
	TauS float32
	Dt   float32
}

// LIFParams configures a leaky integrate-and-fire Group.
type LIFParams struct {
	TauS, TauRC, TauRef float32
	Vth                 float32
	Dt                  float32
}

// ReLUParams configures a non-leaky, rectifying (ReLU-like spiking)
// Group: decayV is always zero, so voltage never leaks between ticks.
type ReLUParams struct {
	TauS, TauRef float32
	Vth          float32
	Dt           float32
}

// NonSpikingParams configures a Group whose voltage simply tracks its
// filtered input with no threshold crossing semantics exercised
// (decayV=1, refractDelay=1): used for pure integrator compartments.
type NonSpikingParams struct {
	TauS float32
	Vth  float32
	Dt   float32
}

func decayFromTau(tauS, dt float32) float32 {
	if tauS == 0 {
		return 1
	}
	if tauS < 1e-6 {
		Warning("tau_s=%g is below the recommended minimum 1e-6", tauS)
	}
	return -math32.Expm1(-dt / tauS)
}

func refractTicks(tauRef, dt float32) int32 {
	return int32(math32.Round(tauRef/dt)) + 1
}

// ConfigureFilter sets decayU from tau_s, dt; decayV, refractDelay,
// vmin/vmax are left at their current values (spec §4.2 "filter"
// row: "unchanged").
func (g *Group) ConfigureFilter(p FilterParams) {
	g.TauS, g.Dt = p.TauS, p.Dt
	g.DecayU.SetAll(decayFromTau(p.TauS, p.Dt))
}

// ConfigureLIF sets up a leaky integrate-and-fire Group per spec §4.2's
// "lif" row.
func (g *Group) ConfigureLIF(p LIFParams) {
	g.TauS, g.TauRC, g.TauRef, g.Dt = p.TauS, p.TauRC, p.TauRef, p.Dt
	g.DecayU.SetAll(decayFromTau(p.TauS, p.Dt))
	decayV := -math32.Expm1(-p.Dt / p.TauRC)
	g.DecayV.SetAll(decayV)
	ticks := refractTicks(p.TauRef, p.Dt)
	for i := range g.RefractDelay {
		g.RefractDelay[i] = ticks
	}
	g.Vth.SetAll(p.Vth)
	g.VRange = minmax.F32{Min: 0, Max: math32.Inf(1)}
	g.ScaleU = true
	g.ScaleV = decayV > 1e-15
}

// ConfigureReLU sets up a non-leaky rectifying Group per spec §4.2's
// "relu" row.
func (g *Group) ConfigureReLU(p ReLUParams) {
	g.TauS, g.TauRef, g.Dt = p.TauS, p.TauRef, p.Dt
	g.DecayU.SetAll(decayFromTau(p.TauS, p.Dt))
	g.DecayV.SetAll(0)
	ticks := refractTicks(p.TauRef, p.Dt)
	for i := range g.RefractDelay {
		g.RefractDelay[i] = ticks
	}
	g.Vth.SetAll(p.Vth)
	g.VRange = minmax.F32{Min: 0, Max: math32.Inf(1)}
	g.ScaleU = true
	g.ScaleV = false
}

// ConfigureNonSpiking sets up a pure integrator Group per spec §4.2's
// "nonspiking" row.
func (g *Group) ConfigureNonSpiking(p NonSpikingParams) {
	g.TauS, g.Dt = p.TauS, p.Dt
	g.DecayU.SetAll(decayFromTau(p.TauS, p.Dt))
	g.DecayV.SetAll(1)
	for i := range g.RefractDelay {
		g.RefractDelay[i] = 1
	}
	g.Vth.SetAll(p.Vth)
	g.VRange = minmax.F32{Min: 0, Max: math32.Inf(1)}
	g.ScaleU = true
	g.ScaleV = false
}

// SetBias sets the per-compartment bias array (build-time float view).
func (g *Group) SetBias(bias []float32) {
	copy(g.Bias.Float(), bias)
}

// SetEnableNoise enables noise injection on the given compartments.
func (g *Group) SetEnableNoise(enable []bool) {
	copy(g.EnableNoise, enable)
}

// Offset is this group's starting index into a StepKernel's flat
// compartment arrays. Valid once the owning Model's layout has been
// finalized (by Discretize or GetSimulator).
func (g *Group) Offset() int { return g.offset }

const (
	maxAxonsPerGroup      = 4096
	maxSynapseBitsPerGroup = 16384 * 64
)

func (g *Group) totalAxons() int {
	n := 0
	for _, s := range g.Synapses {
		n += s.NAxons
	}
	return n
}

func (g *Group) totalSynapseBits() int64 {
	var n int64
	for _, s := range g.Synapses {
		n += s.bits()
	}
	return n
}

func (g *Group) checkCapacity() error {
	if n := g.totalAxons(); n > maxAxonsPerGroup {
		return &ConfigurationError{Group: g.Name, Reason: fmt.Sprintf("total axons exceeded max: %d > %d", n, maxAxonsPerGroup)}
	}
	if n := g.totalSynapseBits(); n > maxSynapseBitsPerGroup {
		return &ConfigurationError{Group: g.Name, Reason: fmt.Sprintf("total synapse bits exceeded max: %d > %d", n, maxSynapseBitsPerGroup)}
	}
	return nil
}
