// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/emer/loihicx/cxrand"
)

// KernelOption configures a StepKernel at construction time -- the
// strict/lenient arithmetic flag is a runtime field set this way
// rather than process-wide state, per spec.md §9's explicit redesign
// instruction.
type KernelOption func(*StepKernel)

// WithStrict overrides the default strict-mode setting (default true):
// strict aborts RunSteps with a SimulationError on arithmetic range
// violations; lenient clamps and warns once per violation site.
func WithStrict(strict bool) KernelOption {
	return func(k *StepKernel) {
		k.strict = strict
		if !strict {
			Warning("strict mode disabled: arithmetic range violations will be clamped")
		}
	}
}

// WithWorkers shards the decay/threshold stages (tick steps 8-11)
// across n goroutines partitioned by group, never splitting a single
// group across workers. n<=1 (the default) runs synchronously.
func WithWorkers(n int) KernelOption {
	return func(k *StepKernel) {
		if n < 1 {
			n = 1
		}
		k.workers = n
	}
}

// GetSimulator returns a StepKernel borrowing this Model's runtime
// arrays for the lifetime of the run (spec §5: "no shared ownership").
// The model may be run either before or after Discretize; the kernel's
// numeric mode is selected once, here, from that state.
func (m *Model) GetSimulator(seed int64, opts ...KernelOption) (*StepKernel, error) {
	m.ensureLayout()
	k := &StepKernel{
		model:       m,
		nCx:         m.nCx,
		intMode:     m.discretized,
		strict:      true,
		workers:     1,
		rng:         cxrand.New(seed),
		warned:      map[string]bool{},
		probeStates: map[*Probe]*probeState{},
	}
	for _, o := range opts {
		o(k)
	}
	k.initState()
	return k, nil
}

// bankState is the StepKernel's per-synapses-bank runtime state: the
// a_in accumulator (always int32, a spike/weight tally) and, for
// tracing banks, the float64 trace z.
type bankState struct {
	syn   *Synapses
	group *Group
	aIn   []int32
	z     []float64
}

// probeState is the StepKernel's per-probe runtime state: the
// accumulated raw snapshots, the readout filter's persistent state,
// and the cursor marking how many raw samples have already been
// folded into output (spec §5/§6: ProbeOutput is idempotent w.r.t.
// already-returned samples).
type probeState struct {
	probe       *Probe
	raw         [][]float32
	filtered    int
	filterState []float64
	output      [][]float32
}

// StepKernel is the time-stepping simulator of spec.md §4.4. It
// borrows its Model's Group/Synapses/Axons/Probe configuration and
// owns all per-tick runtime state itself.
type StepKernel struct {
	model   *Model
	nCx     int
	intMode bool
	strict  bool
	workers int
	rng     *cxrand.Source
	t       int
	closed  bool

	// float-mode per-compartment state
	qF, uF, vF []float32
	// int-mode per-compartment state
	qI, uI, vI []int32

	s []bool
	c []int32
	w []int32 // refractory counters

	banks []*bankState

	// groupRng holds one independent noise Source per group, derived
	// once (sequentially, from k.rng) at init time so that sharded
	// workers (WithWorkers) can draw noise for different groups
	// concurrently without racing on, or reordering draws from, a
	// single shared *cxrand.Source -- the derivation order is fixed by
	// model.groups, so results stay identical regardless of worker
	// count (spec §5).
	groupRng map[*Group]*cxrand.Source

	probeStates map[*Probe]*probeState

	warned map[string]bool
	warnMu sync.Mutex
}

func (k *StepKernel) initState() {
	n := k.nCx
	k.s = make([]bool, n)
	k.c = make([]int32, n)
	k.w = make([]int32, n)
	if k.intMode {
		k.qI = make([]int32, n)
		k.uI = make([]int32, n)
		k.vI = make([]int32, n)
	} else {
		k.qF = make([]float32, n)
		k.uF = make([]float32, n)
		k.vF = make([]float32, n)
	}
	k.groupRng = make(map[*Group]*cxrand.Source, len(k.model.groups))
	for _, g := range k.model.groups {
		k.groupRng[g] = cxrand.New(k.rng.NextSeed())
		for _, s := range g.Synapses {
			bs := &bankState{syn: s, group: g, aIn: make([]int32, s.NAxons)}
			if s.Tracing {
				bs.z = make([]float64, s.NAxons)
			}
			k.banks = append(k.banks, bs)
		}
		for _, p := range g.Probes {
			k.probeStates[p] = &probeState{probe: p}
		}
	}
	for _, si := range k.model.inputs {
		for _, p := range si.Probes {
			k.probeStates[p] = &probeState{probe: p}
		}
	}
}

// Inputs exposes the outgoing-collaborator hook of spec.md §6: an
// external host simulator appends rows to a SpikeInput's Spikes
// matrix between ticks.
func (k *StepKernel) Inputs() []*SpikeInput { return k.model.inputs }

// Step advances the simulation by exactly one tick, implementing the
// 13-step fixed order of spec.md §4.4.
func (k *StepKernel) Step() error {
	if k.closed {
		return &UsageError{Reason: "Step called on a closed StepKernel"}
	}

	// 1. advance delay queue (MAX_DELAY=1: clear the sole slot)
	k.clearQ()

	// 2. reset per-bank inputs
	for _, bs := range k.banks {
		for i := range bs.aIn {
			bs.aIn[i] = 0
		}
	}

	// 3. inject external spikes
	for _, si := range k.model.inputs {
		row, ok := si.Row(k.t)
		if !ok {
			return &SimulationError{Tick: k.t, Reason: fmt.Sprintf("spike matrix for input %q exhausted before requested step count", si.Name)}
		}
		for _, a := range si.Axons {
			for i, spiked := range row {
				if !spiked {
					continue
				}
				ti := a.targetIndex(i)
				a.Target.bank(k).aIn[ti]++
			}
		}
	}

	// 4. inject internal spikes (scatter, duplicate indices accumulate)
	for _, g := range k.model.groups {
		lo := g.offset
		for _, a := range g.Axons {
			for i := 0; i < g.N; i++ {
				if !k.s[lo+i] {
					continue
				}
				ti := a.targetIndex(i)
				a.Target.bank(k).aIn[ti]++
			}
		}
	}

	// 5. synaptic accumulation into q
	for _, bs := range k.banks {
		lo := bs.group.offset
		for axonIdx, n := range bs.aIn {
			if n <= 0 {
				continue
			}
			idxs := bs.syn.Indices[axonIdx]
			if k.intMode {
				row := bs.syn.WeightsI[axonIdx]
				for j, ci := range idxs {
					k.qI[lo+int(ci)] += int32(n) * row[j]
				}
			} else {
				row := bs.syn.Weights[axonIdx]
				for j, ci := range idxs {
					k.qF[lo+int(ci)] += float32(n) * row[j]
				}
			}
		}
	}

	// 6. tracing update (STDP banks)
	for _, bs := range k.banks {
		if bs.z == nil {
			continue
		}
		tau := float64(bs.syn.TracingTau)
		decay := 1.0
		if tau > 0 {
			decay = math32Exp(-1 / tau)
		}
		mag := float64(bs.syn.TracingMag)
		for i := range bs.z {
			bs.z[i] *= decay
			bs.z[i] += mag * float64(bs.aIn[i])
		}
	}

	var stepErr error
	if k.intMode {
		stepErr = k.stepInt()
	} else {
		stepErr = k.stepFloat()
	}
	if stepErr != nil {
		return stepErr
	}

	// 12. probe capture
	k.captureProbes()

	// 13. advance t
	k.t++
	return nil
}

func math32Exp(x float64) float64 {
	return float64(math32.Exp(float32(x)))
}

func (k *StepKernel) clearQ() {
	if k.intMode {
		for i := range k.qI {
			k.qI[i] = 0
		}
	} else {
		for i := range k.qF {
			k.qF[i] = 0
		}
	}
}

// bank resolves the Synapses bank's runtime accumulator for this
// kernel -- a small linear scan is fine, bank counts are tiny
// relative to compartment counts and this only runs at injection time.
func (s *Synapses) bank(k *StepKernel) *bankState {
	for _, bs := range k.banks {
		if bs.syn == s {
			return bs
		}
	}
	panic("loihicx: synapses bank not found in kernel state (model changed after GetSimulator)")
}

// noiseAt draws this tick's noise sample for compartment i of group g,
// implementing both formulas of spec.md §4.4 step 7, selected by
// kernel mode.
func (k *StepKernel) noiseAt(g *Group, i int) float32 {
	if !g.EnableNoise[i] {
		return 0
	}
	rng := k.groupRng[g]
	if k.intMode {
		r := rng.IntRange(-128, 128)
		v := r + 64*int32(g.NoiseMantOffset0)
		return float32(shiftPow2(v, int32(g.NoiseExp0)-7))
	}
	u := rng.UniformPM1()
	return float32((u + float64(g.NoiseMantOffset0)) * math32Pow10(g.NoiseExp0))
}

// shiftPow2 multiplies v by 2^exp via shifts, exp possibly negative.
func shiftPow2(v, exp int32) int32 {
	if exp >= 0 {
		return v << uint(exp)
	}
	return v >> uint(-exp)
}

func math32Pow10(e float32) float64 {
	return float64(math32.Pow(10, e))
}

// runSharded dispatches fn once per group, either synchronously (the
// default, workers<=1) or across k.workers goroutines pulling from a
// shared work queue -- never splitting one group's compartments across
// workers, per WithWorkers' contract. Grounded on the donor's
// ThrLay/WaitGp layer-range worker pool (leabra/network.go), scaled
// down to this package's group-is-the-unit-of-work model.
func (k *StepKernel) runSharded(fn func(g *Group) error) error {
	groups := k.model.groups
	if k.workers <= 1 || len(groups) <= 1 {
		for _, g := range groups {
			if err := fn(g); err != nil {
				return err
			}
		}
		return nil
	}

	nw := k.workers
	if nw > len(groups) {
		nw = len(groups)
	}
	jobs := make(chan *Group, len(groups))
	for _, g := range groups {
		jobs <- g
	}
	close(jobs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for i := 0; i < nw; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range jobs {
				if err := fn(g); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (k *StepKernel) stepFloat() error {
	coreLo, coreHi := k.model.CoreSlice()
	return k.runSharded(func(g *Group) error {
		return k.stepFloatGroup(g, coreLo, coreHi)
	})
}

func (k *StepKernel) stepFloatGroup(g *Group, coreLo, coreHi int) error {
	lo := g.offset
	decayU := g.DecayU.Float()
	decayV := g.DecayV.Float()
	vth := g.Vth.Float()
	bias := g.Bias.Float()
	for i := 0; i < g.N; i++ {
		gi := lo + i
		noiseU := float32(0)
		if g.NoiseAtDendOrVm == 0 {
			noiseU = k.noiseAt(g, i)
		}
		// 8. current filter. scaleU selects whether the incoming
		// term is gain-normalized by decayU (steady state = q0) or
		// added raw (steady state = q0/decayU) -- spec.md §3's
		// "whether incoming current ... gets scaled by the decay".
		q0 := k.qF[gi] + noiseU
		uGain := float32(1)
		if g.ScaleU {
			uGain = decayU[i]
		}
		k.uF[gi] = (1-decayU[i])*k.uF[gi] + uGain*q0

		// 9. voltage filter, same gain-selection rule.
		noiseV := float32(0)
		if g.NoiseAtDendOrVm == 1 {
			noiseV = k.noiseAt(g, i)
		}
		u2 := k.uF[gi] + bias[i] + noiseV
		vGain := float32(1)
		if g.ScaleV {
			vGain = decayV[i]
		}
		vNew := (1-decayV[i])*k.vF[gi] + vGain*u2
		vNew = clipf32(vNew, g.VRange.Min, g.VRange.Max)
		if k.w[gi] > 0 {
			vNew = 0
		}
		k.vF[gi] = vNew

		// 10. threshold
		spiked := k.vF[gi] > vth[i]
		k.s[gi] = spiked
		if spiked {
			if gi >= coreLo && gi < coreHi {
				k.vF[gi] = 0
			} else {
				k.vF[gi] = k.vF[gi] - vth[i]
			}
		}

		// 11. refractory. The decrement is unconditional and runs
		// after the conditional set, so a spiking compartment's w
		// lands at refractDelay-1 on the spike tick itself (spec.md
		// §4.4 step 11: "w[s] <- refractDelay[s]; w <- max(w-1,0)").
		if spiked {
			k.w[gi] = g.RefractDelay[i]
			k.c[gi]++
		}
		if k.w[gi] > 0 {
			k.w[gi]--
		}
	}
	return nil
}

func (k *StepKernel) stepInt() error {
	coreLo, coreHi := k.model.CoreSlice()
	return k.runSharded(func(g *Group) error {
		return k.stepIntGroup(g, coreLo, coreHi)
	})
}

func (k *StepKernel) stepIntGroup(g *Group, coreLo, coreHi int) error {
	lo := g.offset
	decayU := g.DecayU.Int()
	decayV := g.DecayV.Int()
	vth := g.Vth.Int()
	bias := g.Bias.Int()
	for i := 0; i < g.N; i++ {
		gi := lo + i
		noiseU := int32(0)
		if g.NoiseAtDendOrVm == 0 {
			noiseU = int32(k.noiseAt(g, i))
		}
		// 8. current filter (round-toward-zero)
		q0 := k.qI[gi] + noiseU
		u := k.uI[gi]
		mag := int64(absI32(u)) * int64(manexpDecayMax-decayU[i])
		u = signI32(u)*int32(mag>>12) + q0
		if absI32(u) > int32(1)<<23 {
			if err := k.onRangeViolation(gi, "u overflow"); err != nil {
				return err
			}
			u = clipi32(u, -(1<<23), (1<<23)-1)
		}
		k.uI[gi] = u

		// 9. voltage filter (no -1 bias term, per spec.md)
		noiseV := int32(0)
		if g.NoiseAtDendOrVm == 1 {
			noiseV = int32(k.noiseAt(g, i))
		}
		u2 := u + bias[i] + noiseV
		v := k.vI[gi]
		vmag := int64(absI32(v)) * int64(manexpDecayMax-decayV[i]+1)
		v = signI32(v)*int32(vmag>>12) + u2
		v = clipi32(v, int32(g.VRange.Min), int32(g.VRange.Max))
		if k.w[gi] > 0 {
			v = 0
		}
		k.vI[gi] = v

		// 10. threshold
		spiked := k.vI[gi] > vth[i]
		k.s[gi] = spiked
		if spiked {
			if gi >= coreLo && gi < coreHi {
				k.vI[gi] = 0
			} else {
				k.vI[gi] = k.vI[gi] - vth[i]
			}
		}

		// 11. refractory (see stepFloatGroup: unconditional decrement
		// after the conditional set).
		if spiked {
			k.w[gi] = g.RefractDelay[i]
			k.c[gi]++
		}
		if k.w[gi] > 0 {
			k.w[gi]--
		}
	}
	return nil
}

const manexpDecayMax = int32(1)<<12 - 1

func absI32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func signI32(v int32) int32 {
	if v < 0 {
		return -1
	}
	return 1
}

// onRangeViolation implements the strict/lenient failure policy of
// spec.md §4.4's "Failure policy": strict returns a SimulationError
// (surfaced by the caller that owns the current tick), lenient warns
// once per distinct site and clamps. Returned (not panicked) so a
// sharded worker goroutine can report it back through runSharded
// rather than needing its own recover.
func (k *StepKernel) onRangeViolation(gi int, code string) error {
	if k.strict {
		return &SimulationError{Tick: k.t, Reason: fmt.Sprintf("range violation at compartment %d: %s", gi, code)}
	}
	k.warnMu.Lock()
	defer k.warnMu.Unlock()
	if !k.warned[code] {
		k.warned[code] = true
		Warning("range violation: %s (further occurrences suppressed)", code)
	}
	return nil
}

func (k *StepKernel) captureProbes() {
	for _, g := range k.model.groups {
		for _, p := range g.Probes {
			k.captureOne(p, g.offset)
		}
	}
	for _, si := range k.model.inputs {
		for _, p := range si.Probes {
			k.captureSpikeProbe(p, si)
		}
	}
}

func (k *StepKernel) captureOne(p *Probe, groupOffset int) {
	ps := k.probeStates[p]
	row := make([]float32, p.sliceLen())
	for i := 0; i < p.sliceLen(); i++ {
		gi := groupOffset + p.Lo + i
		row[i] = k.readKey(p, gi)
	}
	ps.raw = append(ps.raw, row)
}

func (k *StepKernel) readKey(p *Probe, gi int) float32 {
	switch p.Key {
	case "u":
		if k.intMode {
			return float32(k.uI[gi])
		}
		return k.uF[gi]
	case "v":
		if k.intMode {
			return float32(k.vI[gi])
		}
		return k.vF[gi]
	case "s":
		v := float32(0)
		if k.s[gi] {
			v = 1
		}
		if p.Rate && v > 0 {
			return v / k.dtAt(gi)
		}
		return v
	case "x":
		g := k.groupAt(gi)
		var u, vth float32
		if k.intMode {
			u = float32(k.uI[gi])
			vth = float32(g.Vth.Int()[gi-g.offset])
		} else {
			u = k.uF[gi]
			vth = g.Vth.Float()[gi-g.offset]
		}
		if vth == 0 {
			return 0
		}
		return u / vth
	default:
		return 0
	}
}

func (k *StepKernel) dtAt(gi int) float32 {
	g := k.groupAt(gi)
	if g.Dt == 0 {
		return 0.001
	}
	return g.Dt
}

func (k *StepKernel) groupAt(gi int) *Group {
	for _, g := range k.model.groups {
		if gi >= g.offset && gi < g.offset+g.N {
			return g
		}
	}
	return nil
}

// captureSpikeProbe handles a Probe on a SpikeInput: only key "s" is
// meaningful (SpikeInput carries no u/v/compartment state).
func (k *StepKernel) captureSpikeProbe(p *Probe, si *SpikeInput) {
	ps := k.probeStates[p]
	row := make([]float32, p.sliceLen())
	cur, _ := si.Row(k.t)
	for i := 0; i < p.sliceLen(); i++ {
		idx := p.Lo + i
		v := float32(0)
		if idx < len(cur) && cur[idx] {
			v = 1
		}
		row[i] = v
	}
	ps.raw = append(ps.raw, row)
}

// RunSteps advances the simulation by n ticks, stopping at (and
// returning) the first SimulationError, with state inspectable at the
// failing tick (spec §7).
func (k *StepKernel) RunSteps(n int) error {
	for i := 0; i < n; i++ {
		if e := k.Step(); e != nil {
			return e
		}
	}
	return nil
}

// SpikeCount returns the cumulative spike count at flat compartment
// index gi (a Group's compartments start at its Offset()).
func (k *StepKernel) SpikeCount(gi int) int32 { return k.c[gi] }

// ProbeOutput returns this probe's accumulated output: raw snapshots
// optionally multiplied by its decode matrix, then passed through its
// optional first-order readout filter. Repeated calls are idempotent
// with respect to already-filtered samples -- only samples captured
// since the last call are processed and appended (spec §5/§6).
func (k *StepKernel) ProbeOutput(p *Probe) ([]float32, error) {
	ps, ok := k.probeStates[p]
	if !ok {
		return nil, &SimulationError{Tick: k.t, Reason: "probe key refers to missing state"}
	}
	newRaw := ps.raw[ps.filtered:]
	if len(newRaw) == 0 {
		return flattenOutput(ps.output), nil
	}
	decoded := make([][]float32, len(newRaw))
	for i, row := range newRaw {
		decoded[i] = p.decodeRow(row)
	}
	if p.FilterTauS > 0 {
		if ps.filterState == nil {
			ps.filterState = make([]float64, p.outWidth())
		}
		dt := p.dtOrDefault()
		decayC := -math32.Expm1(-dt / p.FilterTauS)
		for _, row := range decoded {
			for j, x := range row {
				ps.filterState[j] += float64(decayC) * (float64(x) - ps.filterState[j])
				row[j] = float32(ps.filterState[j])
			}
		}
	}
	ps.output = append(ps.output, decoded...)
	ps.filtered = len(ps.raw)
	return flattenOutput(ps.output), nil
}

func (p *Probe) dtOrDefault() float32 {
	if t := p.target.group; t != nil && t.Dt != 0 {
		return t.Dt
	}
	return 0.001
}

// decodeRow applies the probe's optional dense decode matrix:
// out[j] = sum_i weights[i][j] * raw[i] (spec §6's probe output shape).
func (p *Probe) decodeRow(raw []float32) []float32 {
	if p.Weights == nil {
		out := make([]float32, len(raw))
		copy(out, raw)
		return out
	}
	cols := p.outWidth()
	out := make([]float32, cols)
	for i, x := range raw {
		for j := 0; j < cols; j++ {
			out[j] += p.Weights.Values[i*cols+j] * x
		}
	}
	return out
}

func flattenOutput(rows [][]float32) []float32 {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	out := make([]float32, 0, len(rows)*width)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
