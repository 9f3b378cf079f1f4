// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/emer/etable/v2/etensor"
	"github.com/emer/loihicx/manexp"
)

// Synapses is a weighted fan-in bank of NAxons input lines into its
// owning Group, one weight/index pair per axon (spec §3). Build-time
// weights live in the ragged per-axon Weights/Indices lists below;
// SetFullWeights also mirrors the dense matrix into WeightTensor (an
// etensor.Float32, one row per axon), following the donor's Prjn.Syns
// tensor-backed convention.
type Synapses struct {
	Name    string
	NAxons  int
	group   *Group
	Fmt     manexp.SynapseFmt
	Weights [][]float32 // per-axon weight list, float32 build-time view
	WeightsI [][]int32  // per-axon discretized weights, populated by Discretize
	Indices [][]int32   // per-axon target compartment indices within the owning group

	Tracing     bool
	TracingTau  float32
	TracingMag  float32

	// dWgtExp is the per-bank exponent adjustment chosen by
	// Model.Discretize's per-synapse pass (spec.md §4.3(d)).
	dWgtExp int32

	// WeightTensor mirrors Weights as a dense etensor.Float32 for tools
	// that want matrix-shaped access (e.g. plotting, inspection) --
	// populated by SetFullWeights, nil for diagonal/sparse formats.
	WeightTensor *etensor.Float32
}

func newSynapses(g *Group, name string, nAxons int) *Synapses {
	return &Synapses{
		Name:    name,
		NAxons:  nAxons,
		group:   g,
		Weights: make([][]float32, nAxons),
		Indices: make([][]int32, nAxons),
	}
}

// Group returns the owning Group.
func (s *Synapses) Group() *Group { return s.group }

// SetFullWeights sets a dense full weight matrix: w has shape
// [NAxons][nTarget], one row per input axon, indices 0..nTarget-1.
func (s *Synapses) SetFullWeights(w [][]float32) error {
	if len(w) != s.NAxons {
		return &ConfigurationError{Group: s.group.Name, Reason: fmt.Sprintf("SetFullWeights: %d rows, expected NAxons=%d", len(w), s.NAxons)}
	}
	nTarget := 0
	if len(w) > 0 {
		nTarget = len(w[0])
	}
	t := etensor.NewFloat32([]int{s.NAxons, nTarget}, nil, nil)
	maxIdx := 0
	for i, row := range w {
		s.Weights[i] = append([]float32(nil), row...)
		idxs := make([]int32, len(row))
		for j := range row {
			idxs[j] = int32(j)
			t.Values[i*nTarget+j] = row[j]
		}
		if len(row) > 0 {
			maxIdx = len(row) - 1
		}
		s.Indices[i] = idxs
	}
	s.WeightTensor = t
	idxBits := idxBitsFor(maxIdx)
	s.Fmt = manexp.DefaultSynapseFmt(idxBits)
	return s.group.checkCapacity()
}

// SetDiagonalWeights sets a one-to-one (diagonal) weight bank: axon i
// targets compartment i only, with weight diag[i].
func (s *Synapses) SetDiagonalWeights(diag []float32) error {
	if len(diag) != s.NAxons {
		return &ConfigurationError{Group: s.group.Name, Reason: fmt.Sprintf("SetDiagonalWeights: %d values, expected NAxons=%d", len(diag), s.NAxons)}
	}
	for i, d := range diag {
		s.Weights[i] = []float32{d}
		s.Indices[i] = []int32{int32(i)}
	}
	idxBits := idxBitsFor(s.NAxons - 1)
	s.Fmt = manexp.DefaultSynapseFmt(idxBits)
	return s.group.checkCapacity()
}

// SetLearning enables per-axon trace accumulation (spec §4.4 step 6):
// z *= exp(-1/tau); z += mag * a_in. Weight modification from the
// trace is explicitly out of scope (spec.md §9 open question).
func (s *Synapses) SetLearning(tau, mag float32) error {
	if tau != math32.Round(tau) {
		return &ConfigurationError{Group: s.group.Name, Reason: "SetLearning: tau must be an integer tick count"}
	}
	s.Tracing = true
	s.TracingTau = tau
	s.TracingMag = mag
	s.Fmt.Learn = true
	s.Fmt.TraceTau = tau
	s.Fmt.TraceMag = mag
	return nil
}

// discretize implements spec.md §4.3(d) for this bank: choose the
// per-bank exponent adjustment relative to the group's base wgtExp,
// then discretize every weight through the resulting SynapseFmt.
// Tracing banks override to wgtExp=4, per spec.md.
func (s *Synapses) discretize(groupWMax float32, wgtExpGroup int32) {
	if s.Tracing {
		s.Fmt.WgtExp = 4
		s.dWgtExp = 0
	} else {
		bankMax := s.maxAbsWeight()
		dWgtExp := int32(0)
		if groupWMax > wMaxThreshold && bankMax > wMaxThreshold {
			dWgtExp = int32(math32.Floor(math32.Log2(groupWMax / bankMax)))
		}
		s.dWgtExp = dWgtExp
		s.Fmt.WgtExp = clipi32(wgtExpGroup-dWgtExp, -6, 7)
	}
	scaleFactor := s.group.WScale * math32.Pow(2, float32(s.dWgtExp))
	ints := make([][]int32, len(s.Weights))
	for i, row := range s.Weights {
		ints[i] = make([]int32, len(row))
		for j, wv := range row {
			ints[i][j] = s.Fmt.Discretize(wv * scaleFactor)
		}
	}
	s.WeightsI = ints
}

// Format overrides the synapse bank's field widths directly (index
// width, weight width, mixed-sign fanout, compression) -- used when a
// caller needs a format other than the one SetFullWeights/
// SetDiagonalWeights infer.
func (s *Synapses) Format(fmtSpec manexp.SynapseFmt) {
	s.Fmt = fmtSpec
}

// idxBitsFor returns the smallest IndexBitsMap entry covering indices
// in [0, maxIdx].
func idxBitsFor(maxIdx int) int32 {
	need := int32(0)
	for (1 << uint(need)) <= maxIdx {
		need++
	}
	for i, v := range manexp.IndexBitsMap {
		if v >= need {
			return int32(i)
		}
	}
	return int32(len(manexp.IndexBitsMap) - 1)
}

func (s *Synapses) maxAbsWeight() float32 {
	max := float32(0)
	any := false
	for _, row := range s.Weights {
		for _, w := range row {
			a := math32.Abs(w)
			if !any || a > max {
				max = a
				any = true
			}
		}
	}
	if !any {
		return 0
	}
	return max
}

func (s *Synapses) bits() int64 {
	var n int64
	for _, row := range s.Weights {
		n += s.Fmt.BitsPerAxon(len(row))
	}
	return n
}
