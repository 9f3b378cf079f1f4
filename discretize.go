// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"github.com/chewxy/math32"
	"github.com/emer/etable/v2/minmax"
	"github.com/emer/loihicx/manexp"
)

// wMaxThreshold is the "trivially small" floor below which a group's
// weights or bias are treated as absent for regime selection and
// per-synapse exponent adjustment (spec.md §4.3(c)/(d), grounded on
// the donor reference's discretize_weights floor that avoids log2(0)).
const wMaxThreshold = 1e-8

// Discretize performs the one-shot float->int transform of spec.md
// §4.3, once per group, then freezes the flat-array layout all
// StepKernels over this Model share. Calling it twice is a usage
// error, matching the donor's own idempotent Network.Build guard.
func (m *Model) Discretize() error {
	if m.discretized {
		return &UsageError{Reason: "Model.Discretize called twice"}
	}
	m.ensureLayout()
	for _, g := range m.groups {
		if err := g.discretize(); err != nil {
			return err
		}
	}
	m.discretized = true
	return nil
}

func (g *Group) discretize() error {
	if g.Discretized {
		return &UsageError{Reason: "group " + g.Name + " discretized twice"}
	}

	uIn, vIn := g.saveFilterInputs()

	// (a) decays
	g.discretizeDecays()

	// (b) vmin/vmax
	g.VRange = minmax.F32{
		Min: manexp.VminToFixed(g.VRange.Min),
		Max: manexp.VmaxToFixed(g.VRange.Max),
	}

	// (c) select weight/bias/threshold scales
	wMax := g.maxWeight()
	bMax := maxAbsFloat(g.Bias.Float())
	vScale, bScale, wScale, wgtExpGroup, regime, err := g.selectScales(wMax, bMax, uIn, vIn)
	if err != nil {
		return err
	}
	g.VScale, g.BScale, g.WScale, g.wgtExpGroup = vScale, bScale, wScale, wgtExpGroup

	if err := g.applyThresholdBiasScale(vScale, bScale, regime); err != nil {
		return err
	}

	// (d) per-synapse weight discretization
	for _, s := range g.Synapses {
		s.discretize(wMax, wgtExpGroup)
	}

	// (e) noise exponent and probe weight rescaling
	g.discretizeNoise(vScale)
	g.scaleProbeWeights(vScale)

	g.Discretized = true
	return nil
}

// saveFilterInputs returns the u_in/v_in float copies spec.md §4.3(a)
// requires before decayU/decayV are overwritten in place.
func (g *Group) saveFilterInputs() (uIn, vIn []float32) {
	uIn = make([]float32, g.N)
	vIn = make([]float32, g.N)
	decayU := g.DecayU.Float()
	decayV := g.DecayV.Float()
	for i := 0; i < g.N; i++ {
		if g.ScaleU {
			uIn[i] = decayU[i]
		} else {
			uIn[i] = 1
		}
		if g.ScaleV {
			vIn[i] = decayV[i]
		} else {
			vIn[i] = 1
		}
	}
	return uIn, vIn
}

func (g *Group) discretizeDecays() {
	decayU := g.DecayU.Float()
	decayV := g.DecayV.Float()
	intU := make([]int32, g.N)
	intV := make([]int32, g.N)
	for i := range decayU {
		intU[i] = manexp.DecayToFixed(decayU[i])
	}
	for i := range decayV {
		intV[i] = manexp.DecayToFixed(decayV[i])
	}
	g.DecayU.Discretize(intU)
	g.DecayV.Discretize(intV)
	g.ScaleU = false
	g.ScaleV = false
}

// selectScales implements spec.md §4.3(c)'s three regimes, returning
// per-compartment v_scale/b_scale arrays, a group-wide w_scale, and
// the base wgtExp later adjusted per-bank in step (d).
//
// wgtExpGroup for the bias-dominant and quiet regimes is not spelled
// out by spec.md (only the weight-dominant loop names it explicitly);
// for those two regimes it is resolved (DESIGN.md) by inverting
// W_scale(wgtExp) = w_scale: wgtExpGroup = round(log2(w_scale)) - 6,
// clipped to the bank adjustment's own [-6,7] range. The weight-dominant
// regime returns the exponent its search loop accepted.
func (g *Group) selectScales(wMax, bMax float32, uIn, vIn []float32) (vScale, bScale []float32, wScale float32, wgtExpGroup int32, regime string, err error) {
	vth := g.Vth.Float()
	bias := g.Bias.Float()

	feasible := func(vs, bs []float32) bool {
		for i := range vth {
			if _, _, e := manexp.VthToManExp(vth[i] * vs[i]); e != nil {
				return false
			}
			if _, _, e := manexp.BiasToManExp(bias[i] * bs[i]); e != nil {
				return false
			}
		}
		return true
	}

	switch {
	case wMax > wMaxThreshold:
		regime = "weight-dominant"
		wScale = 255 / wMax
		sScale := make([]float32, g.N)
		for i := range sScale {
			sScale[i] = 1 / (uIn[i] * vIn[i])
		}
		for exp := int32(0); exp >= -7; exp-- {
			vs := make([]float32, g.N)
			bs := make([]float32, g.N)
			ws := manexp.WScale(exp)
			for i := range vs {
				vs[i] = sScale[i] * wScale * ws
				bs[i] = vs[i] * vIn[i]
			}
			if feasible(vs, bs) {
				return vs, bs, wScale, exp, regime, nil
			}
		}
		return nil, nil, 0, 0, regime, &DiscretizationError{Group: g.Name, Regime: regime, Reason: "no feasible wgtExp in [-7,0] satisfies all thresholds and biases"}

	case bMax > wMaxThreshold:
		regime = "bias-dominant"
		bs0 := manexp.BiasMax / bMax
		for bs0 >= 1e-30 {
			vs := make([]float32, g.N)
			bs := make([]float32, g.N)
			ok := true
			for i := range vs {
				vs[i] = bs0 / vIn[i]
				bs[i] = bs0
				if _, _, e := manexp.VthToManExp(vth[i] * vs[i]); e != nil {
					ok = false
				}
			}
			if ok {
				wScale = consistentWScale(wMax)
				return vs, bs, wScale, consistentWgtExp(wScale), regime, nil
			}
			bs0 /= 2
		}
		return nil, nil, 0, 0, regime, &DiscretizationError{Group: g.Name, Regime: regime, Reason: "no feasible b_scale found by repeated halving"}

	default:
		regime = "quiet"
		vs0 := manexp.VthMax / (maxFloat(vth) + 1)
		vs := make([]float32, g.N)
		bs := make([]float32, g.N)
		for i := range vs {
			vs[i] = vs0
			bs[i] = vs0 * vIn[i]
		}
		wScale = consistentWScale(wMax)
		return vs, bs, wScale, consistentWgtExp(wScale), regime, nil
	}
}

func consistentWScale(wMax float32) float32 {
	if wMax > wMaxThreshold {
		return 255 / wMax
	}
	return 1
}

func consistentWgtExp(wScale float32) int32 {
	e := int32(math32.Round(math32.Log2(wScale))) - 6
	return clipi32(e, -6, 7)
}

// applyThresholdBiasScale replaces vth/bias with their scaled
// mant*2^exp reconstruction and converts both arrays to int32,
// finishing spec.md §4.3(c).
func (g *Group) applyThresholdBiasScale(vScale, bScale []float32, regime string) error {
	vth := g.Vth.Float()
	bias := g.Bias.Float()
	vthInt := make([]int32, g.N)
	biasInt := make([]int32, g.N)
	for i := 0; i < g.N; i++ {
		mant, exp, err := manexp.VthToManExp(vth[i] * vScale[i])
		if err != nil {
			return &DiscretizationError{Group: g.Name, Regime: regime, Reason: err.Error()}
		}
		vthInt[i] = int32(manexp.ManExpValue(mant, exp))

		mant, exp, err = manexp.BiasToManExp(bias[i] * bScale[i])
		if err != nil {
			return &DiscretizationError{Group: g.Name, Regime: regime, Reason: err.Error()}
		}
		biasInt[i] = int32(manexp.ManExpValue(mant, exp))
	}
	g.Vth.Discretize(vthInt)
	g.Bias.Discretize(biasInt)
	return nil
}

func (g *Group) maxWeight() float32 {
	var m float32
	for _, s := range g.Synapses {
		if a := s.maxAbsWeight(); a > m {
			m = a
		}
	}
	return m
}

// discretizeNoise implements spec.md §4.3(e)'s exponent clip, warning
// (not erroring) on saturation.
func (g *Group) discretizeNoise(vScale []float32) {
	rep := float32(1)
	if len(vScale) > 0 {
		rep = vScale[0]
	}
	raw := math32.Round(math32.Log2(math32.Pow(10, g.NoiseExp0) * rep))
	clipped := clipf32(raw, 0, 23)
	if clipped != raw {
		Warning("group %q: noiseExp0 saturated to %g", g.Name, clipped)
	}
	g.NoiseExp0 = clipped
	g.NoiseMantOffset0 = math32.Round(2 * g.NoiseMantOffset0)
}

// scaleProbeWeights pre-divides voltage-probe decode weights by
// v_scale so probe output remains in user units (spec.md §4.3(e)).
func (g *Group) scaleProbeWeights(vScale []float32) {
	for _, p := range g.Probes {
		if p.Key != "v" || p.Weights == nil {
			continue
		}
		rows := p.sliceLen()
		if rows == 0 {
			continue
		}
		cols := len(p.Weights.Values) / rows
		for i := 0; i < rows; i++ {
			idx := p.Lo + i
			scale := float32(1)
			if idx >= 0 && idx < len(vScale) {
				scale = vScale[idx]
			}
			if scale == 0 {
				continue
			}
			for j := 0; j < cols; j++ {
				p.Weights.Values[i*cols+j] /= scale
			}
		}
	}
}

func maxAbsFloat(vals []float32) float32 {
	var m float32
	for _, v := range vals {
		a := math32.Abs(v)
		if a > m {
			m = a
		}
	}
	return m
}

func maxFloat(vals []float32) float32 {
	m := float32(0)
	any := false
	for _, v := range vals {
		if !any || v > m {
			m = v
			any = true
		}
	}
	return m
}

func clipf32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clipi32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
