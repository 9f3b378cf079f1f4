// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import "github.com/emer/etable/v2/etensor"

// probeTarget is either a Group or a SpikeInput (spec §3: "A target
// (Group or SpikeInput)").
type probeTarget struct {
	group *Group
	input *SpikeInput
}

func (t probeTarget) n() int {
	if t.group != nil {
		return t.group.N
	}
	return t.input.N()
}

// ProbeConfig configures a Probe at build time (spec §3, §6).
type ProbeConfig struct {
	Name string

	// Key selects which state to sample: "u", "v", "s", or "x" (x =
	// u / vth, the donor's normalized-drive readout).
	Key string

	// Lo, Hi select a half-open slice of the target's compartments;
	// Hi == 0 means "to the end" (the whole target).
	Lo, Hi int

	// Weights is an optional dense decode matrix applied at readout:
	// output[t] = weights . raw[t]. Shape [hi-lo][NOut]; NOut must be
	// set whenever Weights is non-nil.
	Weights *etensor.Float32
	NOut    int

	// Rate, when Key == "s", multiplies spikes by 1/dt at readout so
	// spike probes report a rate (spikes/sec) instead of raw 0/1
	// (spec §6).
	Rate bool

	// FilterTauS, if nonzero, applies a first-order synaptic filter at
	// readout with this time constant (spec §4.4 "Probe readout").
	FilterTauS float32
}

// Probe is a recording tap on a Group or SpikeInput (spec §3). The
// StepKernel captures one row per tick into kernel-owned state (see
// kernel.go's probeState); Probe itself only carries build-time
// configuration, consistent with the non-owning-handle design (spec.md
// Design Notes §9).
type Probe struct {
	Name       string
	Key        string
	Lo, Hi     int
	Weights    *etensor.Float32
	NOut       int
	Rate       bool
	FilterTauS float32
	target     probeTarget
}

func newProbe(cfg ProbeConfig, target probeTarget) *Probe {
	hi := cfg.Hi
	if hi == 0 {
		hi = target.n()
	}
	return &Probe{
		Name: cfg.Name, Key: cfg.Key, Lo: cfg.Lo, Hi: hi,
		Weights: cfg.Weights, NOut: cfg.NOut, Rate: cfg.Rate, FilterTauS: cfg.FilterTauS,
		target: target,
	}
}

// sliceLen is the number of compartments/lines this probe samples.
func (p *Probe) sliceLen() int { return p.Hi - p.Lo }

// outWidth is the probe's output width after optional decode weights.
func (p *Probe) outWidth() int {
	if p.Weights == nil {
		return p.sliceLen()
	}
	return p.NOut
}
