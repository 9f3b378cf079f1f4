// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loihicx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGroupAndInput(t *testing.T) {
	m := NewModel("test")
	gh, err := m.AddGroup("a", 5)
	require.NoError(t, err)
	g := m.Group(gh)
	assert.Equal(t, 5, g.N)
	assert.Equal(t, "a", g.Name)

	ih, err := m.AddInput("in", 3)
	require.NoError(t, err)
	in := m.Input(ih)
	assert.Equal(t, 3, in.N())
}

func TestAddGroupRejectsNonPositiveN(t *testing.T) {
	m := NewModel("test")
	_, err := m.AddGroup("bad", 0)
	require.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestAxonsMustBeOneToOneUnlessPermuted(t *testing.T) {
	m := NewModel("test")
	gh, _ := m.AddGroup("a", 4)
	a := m.Group(gh)
	bh, _ := m.AddGroup("b", 4)
	b := m.Group(bh)

	syn := b.AddSynapses("fromA", 4)
	_, err := a.AddAxons("a-to-b", syn, nil)
	require.NoError(t, err)

	syn2 := b.AddSynapses("fromA2", 3)
	_, err = a.AddAxons("a-to-b-2", syn2, nil)
	require.Error(t, err)
}

func TestCapacityExceeded(t *testing.T) {
	m := NewModel("test")
	gh, _ := m.AddGroup("a", 1)
	g := m.Group(gh)
	syn := g.AddSynapses("big", maxAxonsPerGroup+1)
	w := make([][]float32, maxAxonsPerGroup+1)
	for i := range w {
		w[i] = []float32{1}
	}
	err := syn.SetFullWeights(w)
	require.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSizeReportIncludesGroupName(t *testing.T) {
	m := NewModel("net")
	gh, _ := m.AddGroup("layer1", 10)
	g := m.Group(gh)
	g.ConfigureLIF(LIFParams{TauS: 0.005, TauRC: 0.02, TauRef: 0.001, Vth: 1, Dt: 0.001})
	report := m.SizeReport()
	assert.Contains(t, report, "layer1")
	assert.Contains(t, report, "net")
}

func TestHostTailLayout(t *testing.T) {
	m := NewModel("test")
	ch, _ := m.AddGroup("core1", 4)
	core1 := m.Group(ch)
	hh, _ := m.AddGroup("host1", 3)
	host1 := m.Group(hh)
	host1.Location = Host
	c2h, _ := m.AddGroup("core2", 2)
	core2 := m.Group(c2h)

	lo, hi := m.CoreSlice()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 6, hi) // core1(4) + core2(2)

	hlo, hhi := m.HostSlice()
	assert.Equal(t, 6, hlo)
	assert.Equal(t, 9, hhi)

	assert.Equal(t, 0, core1.offset)
	assert.Equal(t, 4, core2.offset)
	assert.Equal(t, 6, host1.offset)
}
