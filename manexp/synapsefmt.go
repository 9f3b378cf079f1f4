// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manexp

import "github.com/chewxy/math32"

// SynapseFmt describes the per-bank field widths and discretization
// parameters for one Synapses bank: index width, weight width,
// mixed-sign fanout, weight exponent, compression, and the optional
// learning/tracing configuration. One SynapseFmt is owned by exactly
// one Synapses bank.
type SynapseFmt struct {

	// WgtBits is the raw (width-1) weight bit-width field; Width() = 1+WgtBits.
	WgtBits int32

	// WgtExp is the per-bank weight exponent, in [-7, 7] before
	// per-synapse adjustment narrows it to [-6, 7].
	WgtExp int32

	// IdxBits indexes IndexBitsMap to give the real per-axon index width.
	IdxBits int32

	// FanoutType selects mixed-sign (1) vs unsigned (0) weight encoding.
	FanoutType int32

	// Compression selects the on-chip index compression scheme (opaque
	// to the simulator's arithmetic, carried for fidelity).
	Compression int32

	// Learn enables spike-triggered trace accumulation (§4.4 step 6).
	Learn bool

	// TraceTau is the trace decay time constant tau, in ticks.
	TraceTau float32

	// TraceMag is the per-spike trace increment magnitude.
	TraceMag float32
}

// DefaultSynapseFmt returns the dense one-to-one format produced by
// Synapses.SetFullWeights / SetDiagonalWeights: 8-bit mixed-sign
// weights, index width chosen by the caller.
func DefaultSynapseFmt(idxBits int32) SynapseFmt {
	return SynapseFmt{WgtBits: 7, IdxBits: idxBits, FanoutType: 1, Compression: 3}
}

// Width is 1 + WgtBits, the discretized weight's bit width including sign.
func (f SynapseFmt) Width() int32 { return 1 + f.WgtBits }

// IsMixed reports whether this format uses mixed-sign (signed) weights.
func (f SynapseFmt) IsMixed() bool { return f.FanoutType == 1 }

// IdxBitsReal decodes IdxBits through IndexBitsMap.
func (f SynapseFmt) IdxBitsReal() int32 {
	i := f.IdxBits
	if i < 0 {
		i = 0
	}
	if i >= int32(len(IndexBitsMap)) {
		i = int32(len(IndexBitsMap)) - 1
	}
	return IndexBitsMap[i]
}

// WScale returns 2^(6+wgtExp), the weight scaling factor (§4.1).
func WScale(wgtExp int32) float32 {
	return float32(int32(1) << uint(6+wgtExp))
}

// Discretize implements disc(x) from §4.1: given width w = 1+WgtBits
// and mixed flag m, let s = 8-w+m and M = 2^(8-s)-1; then
// disc(x) = clip(round(x/2^s), -M, M) << (6+WgtExp+s).
func (f SynapseFmt) Discretize(x float32) int32 {
	w := f.Width()
	m := int32(0)
	if f.IsMixed() {
		m = 1
	}
	s := 8 - w + m
	maxMag := int32(1)<<uint(8-s) - 1
	v := int32(math32.Round(x / float32(int32(1)<<uint(s))))
	v = clipi(v, -maxMag, maxMag)
	return v << uint(6+f.WgtExp+s)
}

// BitsPerAxon estimates the on-chip storage cost of one axon's row of
// nSyn entries under this format: each entry stores an index
// (IdxBitsReal bits) and a weight (Width bits), plus the bank's shared
// format overhead is amortized elsewhere. Used by Group capacity
// accounting (§3: total synapse bits per group <= 16384*64).
func (f SynapseFmt) BitsPerAxon(nSyn int) int64 {
	return int64(nSyn) * int64(f.IdxBitsReal()+f.Width())
}
