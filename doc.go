// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package loihicx is a Loihi-style compartment simulator core: a flat
library for describing populations of current/voltage-filter
compartments ("Groups"), connecting them through weighted synapse
banks and axon fan-outs, and stepping them deterministically one tick
at a time through a StepKernel.

A Model is built up from Groups and SpikeInputs, each configured with
one of the LIF/ReLU/NonSpiking/Filter flavors. Synapses banks and Axon
fan-outs wire Groups (and external SpikeInputs) together. Model.Discretize
performs a one-shot float->fixed-point quantization of a Model's
parameters, after which Model.GetSimulator returns a StepKernel running
in integer mode instead of float32; either mode implements the same
13-step tick algorithm and the same Probe-based readout.

kernel_test.go builds and runs small example networks (a single LIF,
an axon chain, a refractory clamp, a noisy group).
*/
package loihicx
