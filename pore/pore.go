// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pore provides the nanopore pore model and per-read signal
// calibration.
//
// A pore model holds the expected signal statistics for each k-mer of a
// fixed length together with a set of read scaling parameters. The
// model predicts an observed event level for k-mer x at time t as
//
//	level = scale·level_mean(x) + shift + drift·t
//
// with standard deviation var·level_stdv(x). Shift, scale, drift and
// var are fitted per read by Recalibrate.
package pore

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kortschak/poretrain/kmer"
)

// State holds the primary signal parameters for a single k-mer.
type State struct {
	LevelMean float64 // mean event current in pA
	LevelStdv float64 // standard deviation of event current in pA
	SdMean    float64 // mean event current standard deviation in pA
	SdStdv    float64 // standard deviation of event current standard deviation in pA
}

// Model is a pore model for k-mers of a fixed length.
type Model struct {
	// K is the length of the k-mers described by the model.
	K int

	// States holds the primary signal parameters for each k-mer
	// in rank order. It has length kmer.Count(K).
	States []State

	// Read scaling parameters.
	Shift, Scale, Drift, Var float64
	ScaleSD, VarSD           float64

	// Scaled holds the per-k-mer event level distributions with the
	// read scaling parameters applied. It is nil until Bake is
	// called. Drift is time dependent and so is not included; it
	// must be applied by the caller.
	Scaled []distuv.Normal
}

// New returns a model for k-mers of length k with default states and
// identity scaling parameters. The default state for each k-mer is a
// zero level mean with a unit level standard deviation.
func New(k int) *Model {
	m := &Model{
		K:      k,
		States: make([]State, kmer.Count(k)),
		Scale:  1, Var: 1,
		ScaleSD: 1, VarSD: 1,
	}
	for i := range m.States {
		m.States[i].LevelStdv = 1
	}
	return m
}

// Bake derives the scaled event level distributions from the primary
// state parameters and the current read scaling parameters.
func (m *Model) Bake() {
	if m.Scaled == nil {
		m.Scaled = make([]distuv.Normal, len(m.States))
	}
	for i, s := range m.States {
		m.Scaled[i] = distuv.Normal{
			Mu:    s.LevelMean*m.Scale + m.Shift,
			Sigma: s.LevelStdv * m.Var,
		}
	}
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	c := *m
	c.States = append([]State(nil), m.States...)
	if m.Scaled != nil {
		c.Scaled = append([]distuv.Normal(nil), m.Scaled...)
	}
	return &c
}
