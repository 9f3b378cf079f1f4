// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import "fmt"

// axonSource is either a Group or a SpikeInput -- the two things an
// Axons fan-out can originate from (spec §3).
type axonSource struct {
	group *Group
	input *SpikeInput
}

// Axons is a fan-out from a source Group (or SpikeInput) to a target
// Synapses bank's input lines. Currently one-to-one: NAxons equals the
// source's compartment count (spec §3). Axons own no data arrays of
// their own -- TargetInds selects which of the target bank's input
// axons receive each source compartment's spike.
type Axons struct {
	Name       string
	NAxons     int
	src        axonSource
	Target     *Synapses
	TargetInds []int32 // len == NAxons; nil means identity (i -> i)
}

func newAxonsFromGroup(g *Group, target *Synapses, targetInds []int32) (*Axons, error) {
	if g.N != target.NAxons && targetInds == nil {
		return nil, &ConfigurationError{Group: g.Name, Reason: fmt.Sprintf("axons must be one-to-one: source n=%d, target n_axons=%d", g.N, target.NAxons)}
	}
	return &Axons{NAxons: g.N, src: axonSource{group: g}, Target: target, TargetInds: targetInds}, nil
}

func newAxonsFromInput(si *SpikeInput, target *Synapses, targetInds []int32) (*Axons, error) {
	if si.N() != target.NAxons && targetInds == nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("axons must be one-to-one: input n=%d, target n_axons=%d", si.N(), target.NAxons)}
	}
	return &Axons{NAxons: si.N(), src: axonSource{input: si}, Target: target, TargetInds: targetInds}, nil
}

// SourceGroup returns the source Group, or nil if sourced from a SpikeInput.
func (a *Axons) SourceGroup() *Group { return a.src.group }

// SourceInput returns the source SpikeInput, or nil if sourced from a Group.
func (a *Axons) SourceInput() *SpikeInput { return a.src.input }

func (a *Axons) targetIndex(i int) int32 {
	if a.TargetInds == nil {
		return int32(i)
	}
	return a.TargetInds[i]
}
