// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"fmt"
	"sort"
	"strings"

	"cogentcore.org/core/base/errors"
	"github.com/c2h5oh/datasize"
)

// GroupHandle and InputHandle are non-owning, Copy-able indices into
// the Model's internal group and input slices (spec.md Design Notes
// §9). The Model owns all backing storage; handles are only ever
// resolved back through it. Synapses, Axons and Probes have no handle
// type: the builder methods that create them return pointers.
type GroupHandle struct{ idx int }
type InputHandle struct{ idx int }

// Model is the build-time owner of the whole compartment graph: an
// ordered set of SpikeInputs and an ordered set of Groups (spec §3).
// Build: populate groups/synapses/axons/probes. Discretize once.
// Simulate: GetSimulator returns a StepKernel that borrows the
// (now-frozen) runtime arrays for the lifetime of the run (spec §5).
type Model struct {
	Name string

	groups []*Group
	inputs []*SpikeInput

	discretized bool

	// layoutDone, nCx, coreEnd are populated by ensureLayout: the
	// host-tail stable reorder and flat-array offset assignment that
	// both Discretize and GetSimulator depend on (spec §3, §4.4).
	layoutDone bool
	nCx        int
	coreEnd    int
}

// ensureLayout stably reorders groups so host-located groups occupy a
// contiguous tail, then assigns each group its starting offset into
// the StepKernel's flat per-compartment arrays. Idempotent: safe to
// call from both Discretize and GetSimulator regardless of order.
func (m *Model) ensureLayout() {
	if m.layoutDone {
		return
	}
	sort.SliceStable(m.groups, func(i, j int) bool {
		return m.groups[i].Location < m.groups[j].Location
	})
	off := 0
	for _, g := range m.groups {
		g.offset = off
		off += g.N
	}
	m.nCx = off
	coreEnd := 0
	for _, g := range m.groups {
		if g.Location == Core {
			coreEnd += g.N
		}
	}
	m.coreEnd = coreEnd
	m.layoutDone = true
}

// CoreSlice returns the [lo, hi) index range of core-located
// compartments in the StepKernel's flat arrays.
func (m *Model) CoreSlice() (lo, hi int) {
	m.ensureLayout()
	return 0, m.coreEnd
}

// HostSlice returns the [lo, hi) index range of host-located
// compartments in the StepKernel's flat arrays.
func (m *Model) HostSlice() (lo, hi int) {
	m.ensureLayout()
	return m.coreEnd, m.nCx
}

// NewModel returns an empty Model ready for building.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddGroup creates and adds a new Group of n compartments.
func (m *Model) AddGroup(name string, n int) (GroupHandle, error) {
	if m.discretized {
		return GroupHandle{}, &UsageError{Reason: "AddGroup after Discretize"}
	}
	if n <= 0 {
		return GroupHandle{}, &ConfigurationError{Group: name, Reason: "n must be positive"}
	}
	g := newGroup(name, n)
	m.groups = append(m.groups, g)
	return GroupHandle{idx: len(m.groups) - 1}, nil
}

// Group resolves a GroupHandle back to its *Group.
func (m *Model) Group(h GroupHandle) *Group {
	return m.groups[h.idx]
}

// MustGroup is a builder/example convenience for lookups that cannot
// fail (the handle was just returned by AddGroup) -- mirrors the
// donor's errors.Log1(...) idiom (leabra/hip.go): an invalid handle is
// logged and MustGroup returns nil rather than panicking.
func (m *Model) MustGroup(h GroupHandle) *Group {
	return errors.Log1(m.groupOrErr(h))
}

func (m *Model) groupOrErr(h GroupHandle) (*Group, error) {
	if h.idx < 0 || h.idx >= len(m.groups) {
		return nil, fmt.Errorf("loihicx: MustGroup: invalid handle %d", h.idx)
	}
	return m.groups[h.idx], nil
}

// AddInput creates and adds a new SpikeInput driving n lines.
func (m *Model) AddInput(name string, n int) (InputHandle, error) {
	if m.discretized {
		return InputHandle{}, &UsageError{Reason: "AddInput after Discretize"}
	}
	si := newSpikeInput(name, n)
	m.inputs = append(m.inputs, si)
	return InputHandle{idx: len(m.inputs) - 1}, nil
}

// Input resolves an InputHandle back to its *SpikeInput.
func (m *Model) Input(h InputHandle) *SpikeInput {
	return m.inputs[h.idx]
}

// AddSynapses adds a new Synapses bank of nAxons input lines to g,
// returning the bank so the caller can call SetFullWeights /
// SetDiagonalWeights / SetLearning / Format on it.
func (g *Group) AddSynapses(name string, nAxons int) *Synapses {
	s := newSynapses(g, name, nAxons)
	g.Synapses = append(g.Synapses, s)
	if name != "" {
		g.namedSynapses[name] = s
	}
	return s
}

// SynapsesByName looks up a previously-added, named Synapses bank.
func (g *Group) SynapsesByName(name string) *Synapses { return g.namedSynapses[name] }

// AddAxons adds a one-to-one fan-out from this Group to target,
// optionally permuting destination input lines via targetInds.
func (g *Group) AddAxons(name string, target *Synapses, targetInds []int32) (*Axons, error) {
	a, err := newAxonsFromGroup(g, target, targetInds)
	if err != nil {
		return nil, err
	}
	a.Name = name
	g.Axons = append(g.Axons, a)
	if name != "" {
		g.namedAxons[name] = a
	}
	return a, nil
}

// AddAxons on SpikeInput fans out the input's lines to target.
func (si *SpikeInput) AddAxons(name string, target *Synapses, targetInds []int32) (*Axons, error) {
	a, err := newAxonsFromInput(si, target, targetInds)
	if err != nil {
		return nil, err
	}
	a.Name = name
	si.Axons = append(si.Axons, a)
	return a, nil
}

// AddProbe adds a recording tap on this Group.
func (g *Group) AddProbe(cfg ProbeConfig) *Probe {
	p := newProbe(cfg, probeTarget{group: g})
	g.Probes = append(g.Probes, p)
	return p
}

// AddProbe adds a recording tap on this SpikeInput (Key must be "s").
func (si *SpikeInput) AddProbe(cfg ProbeConfig) *Probe {
	p := newProbe(cfg, probeTarget{input: si})
	si.Probes = append(si.Probes, p)
	return p
}

// Groups returns the model's groups in insertion order until the
// layout is finalized (by Discretize, GetSimulator, CoreSlice or
// HostSlice), and in host-tail order after.
func (m *Model) Groups() []*Group { return m.groups }

// Inputs returns the model's SpikeInputs in insertion order.
func (m *Model) Inputs() []*SpikeInput { return m.inputs }

// SizeReport returns a human-readable breakdown of per-group
// compartment memory and per-synapses-bank weight memory, and how
// close each group is to the §3 capacity ceilings -- grounded on the
// donor's Network.SizeReport (leabra/network.go), extended with the
// capacity-fraction columns this domain's groups actually need to
// watch.
func (m *Model) SizeReport() string {
	var b strings.Builder
	var totalMem uint64
	for _, g := range m.groups {
		neurMem := uint64(g.N) * (4 /*decayU*/ + 4 /*decayV*/ + 4 /*vth*/ + 4 /*bias*/ + 4 /*refract*/ + 1 /*noise*/)
		var synMem uint64
		nAxons := g.totalAxons()
		bits := g.totalSynapseBits()
		for _, s := range g.Synapses {
			for _, row := range s.Weights {
				synMem += uint64(len(row)) * 8
			}
		}
		totalMem += neurMem + synMem
		fmt.Fprintf(&b, "%16s:\t N: %d\t NeurMem: %v\t Axons: %d/%d\t SynBits: %d/%d\t SynMem: %v\n",
			g.Name, g.N, datasize.ByteSize(neurMem).HumanReadable(),
			nAxons, maxAxonsPerGroup, bits, int64(maxSynapseBitsPerGroup),
			datasize.ByteSize(synMem).HumanReadable())
	}
	fmt.Fprintf(&b, "\n%16s:\t TotalMem: %v\n", m.Name, datasize.ByteSize(totalMem).HumanReadable())
	return b.String()
}
