// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

// SpikeInput is an externally-supplied dense 2-D boolean matrix
// Spikes[t][n] driving a set of outgoing Axons -- a pseudo-group with
// no compartment state of its own (spec §3). The StepKernel exposes
// the live SpikeInput list so a host-side collaborator can append rows
// between ticks (spec §6's outgoing-collaborator hook).
type SpikeInput struct {
	Name   string
	Spikes [][]bool // Spikes[t][n]; may grow between ticks
	n      int

	Axons  []*Axons
	Probes []*Probe
}

func newSpikeInput(name string, n int) *SpikeInput {
	return &SpikeInput{Name: name, n: n}
}

// N is the number of input lines this SpikeInput drives.
func (si *SpikeInput) N() int { return si.n }

// AppendRow appends one tick's worth of spikes (len must equal N()).
func (si *SpikeInput) AppendRow(row []bool) error {
	if len(row) != si.n {
		return &ConfigurationError{Reason: "SpikeInput.AppendRow: row length does not match N"}
	}
	si.Spikes = append(si.Spikes, row)
	return nil
}

// Row returns the spikes at tick t, or (nil, false) if not yet supplied.
func (si *SpikeInput) Row(t int) ([]bool, bool) {
	if t < 0 || t >= len(si.Spikes) {
		return nil, false
	}
	return si.Spikes[t], true
}
