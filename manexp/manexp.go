// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package manexp provides the mantissa/exponent fixed-point encodings used
by the chip's compartment core: voltage threshold, bias, synaptic decay,
voltage range, refractory delay, and synapse weight formats. Every
function here is pure -- there is no package-level state. VthToManExp
and BiasToManExp return a RangeError when a value does not fit its
mantissa/exponent budget; DecayToFixed, VminToFixed, VmaxToFixed and
RefractToFixed clamp to their field range instead of reporting an error.
*/
package manexp

import (
	"strconv"

	"github.com/chewxy/math32"
)

// RangeError reports a value that does not fit the bit budget a
// mantissa/exponent conversion assumed.
type RangeError struct {
	Field string
	Value float32
	Low   float32
	High  float32
}

func (e *RangeError) Error() string {
	return "manexp: " + e.Field + " value " + ftoa(e.Value) +
		" out of range [" + ftoa(e.Low) + ", " + ftoa(e.High) + "]"
}

func ftoa(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// Vth encoding: vth = mantissa * 2^VthExp, mantissa in [0, VthManMax].
const (
	VthExp    int32   = 6
	VthManMax int32   = 1<<17 - 1
	VthMax    float32 = float32(VthManMax) * (1 << VthExp)
)

// Bias encoding: bias = mantissa * 2^exp, |mantissa| <= BiasManMax,
// exp in [0, BiasExpMax].
const (
	BiasManMax int32   = 1<<12 - 1
	BiasExpMax int32   = 1<<3 - 1
	BiasMax    float32 = float32(BiasManMax) * float32(int32(1)<<uint(BiasExpMax))
)

// Decay fields (decayU, decayV) are 12-bit unsigned.
const DecayMax int32 = 1<<12 - 1

// Refractory delay is 6-bit unsigned.
const RefractMax int32 = 1<<6 - 1

// VminExpMax / VmaxExpMax bound the vmin/vmax exponent fields.
const (
	VminExpMax int32 = 31
	VmaxExpMax int32 = 7
)

// IndexBitsMap is the index into which SynapseFmt.IdxBits selects the
// real index width, per the chip's SynapseFmt.INDEX_BITS_MAP.
var IndexBitsMap = [8]int32{0, 6, 7, 8, 9, 10, 11, 12}

// VthToManExp splits a threshold into (mantissa, exponent) at the
// chip's fixed VthExp, asserting the mantissa fits VthManMax.
func VthToManExp(vth float32) (mant, exp int32, err error) {
	m := int32(math32.Round(vth / float32(int32(1)<<uint(VthExp))))
	if m < 0 || m > VthManMax {
		return 0, 0, &RangeError{Field: "vth mantissa", Value: float32(m), Low: 0, High: float32(VthManMax)}
	}
	return m, VthExp, nil
}

// BiasToManExp splits a bias into (mantissa, exponent), choosing the
// smallest exponent in [0, BiasExpMax] that fits the mantissa within
// BiasManMax.
func BiasToManExp(bias float32) (mant, exp int32, err error) {
	r := math32.Abs(bias) / float32(BiasManMax)
	if r < 1 {
		r = 1
	}
	e := int32(math32.Ceil(math32.Log2(r)))
	if e < 0 || e > BiasExpMax {
		return 0, 0, &RangeError{Field: "bias exponent", Value: float32(e), Low: 0, High: float32(BiasExpMax)}
	}
	m := int32(math32.Round(bias / float32(int32(1)<<uint(e))))
	if math32.Abs(float32(m)) > float32(BiasManMax) {
		return 0, 0, &RangeError{Field: "bias mantissa", Value: float32(m), Low: -float32(BiasManMax), High: float32(BiasManMax)}
	}
	return m, e, nil
}

// ManExpValue reconstructs mant * 2^exp as a float32 -- used for the
// discretization round-trip test (invariant 7).
func ManExpValue(mant, exp int32) float32 {
	return float32(mant) * float32(int32(1)<<uint(exp))
}

// DecayToFixed rounds a float decay rate in [0,1] to the 12-bit
// fixed-point representation round(d * (2^12-1)).
func DecayToFixed(d float32) int32 {
	v := int32(math32.Round(d * float32(DecayMax)))
	if v < 0 {
		v = 0
	}
	if v > DecayMax {
		v = DecayMax
	}
	return v
}

// VminToFixed encodes vmin as -2^vmine + 1, vmine = clip(round(log2(-vmin+1)), 0, 31).
func VminToFixed(vmin float32) float32 {
	e := math32.Round(math32.Log2(-vmin + 1))
	e = clipf(e, 0, float32(VminExpMax))
	return -math32.Pow(2, e) + 1
}

// VmaxToFixed encodes vmax as 2^(9+2*vmaxe) - 1,
// vmaxe = clip(round((log2(vmax+1)-9)/2), 0, 7).
func VmaxToFixed(vmax float32) float32 {
	e := math32.Round((math32.Log2(vmax+1) - 9) / 2)
	e = clipf(e, 0, float32(VmaxExpMax))
	return math32.Pow(2, 9+2*e) - 1
}

// RefractToFixed clamps a refractory tick count to the 6-bit field.
func RefractToFixed(ticks int32) int32 {
	if ticks < 0 {
		ticks = 0
	}
	if ticks > RefractMax {
		ticks = RefractMax
	}
	return ticks
}

func clipf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clipi(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
