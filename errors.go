// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import "fmt"

// ConfigurationError reports a non-positive group size, axons that are
// not one-to-one with their target bank, exceeded axon or synapse-bit
// capacity, a weight matrix whose row count does not match NAxons, a
// non-integer trace tau, or a SpikeInput row of the wrong length --
// always raised synchronously from the offending builder call.
// Negative refractory delays, vmin > 0 and unknown Location values are
// not checked.
type ConfigurationError struct {
	Group  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ConfigurationError: group %q: %s", e.Group, e.Reason)
}

// DiscretizationError reports that no feasible wgtExp (weight-dominant
// regime) or b_scale (bias-dominant regime) could be found during
// Model.Discretize.
type DiscretizationError struct {
	Group  string
	Regime string
	Reason string
}

func (e *DiscretizationError) Error() string {
	return fmt.Sprintf("DiscretizationError: group %q (%s regime): %s", e.Group, e.Regime, e.Reason)
}

// SimulationError reports an integer overflow detected in strict mode,
// a spike matrix exhausted before the requested step count, or a probe
// key referring to missing state. Simulation errors abort the current
// RunSteps at the failing tick; kernel state remains inspectable.
type SimulationError struct {
	Tick   int
	Reason string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("SimulationError: tick %d: %s", e.Tick, e.Reason)
}

// UsageError reports AddGroup or AddInput called after Discretize, a
// double Discretize call, or Step/RunSteps called on a closed
// StepKernel.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("UsageError: %s", e.Reason)
}
