// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pore

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Observation is a single aligned event used for read recalibration.
type Observation struct {
	Level float64 // observed mean event current in pA
	Time  float64 // event start time relative to the read start in seconds
	Rank  int     // rank of the k-mer the event is aligned to
}

// MinObservations is the smallest number of observations Recalibrate
// will fit scaling parameters from.
const MinObservations = 200

// Recalibrate fits the model's shift, scale and drift parameters to the
// given observations by weighted least squares, solving
//
//	level ≈ shift + scale·level_mean + drift·time
//
// with each observation weighted by the inverse variance of its k-mer
// state. If fitVar is true the var parameter is set to the root mean
// square of the standardised residuals of the fit. On success the model
// is rebaked and Recalibrate returns true. If there are fewer than
// MinObservations observations, or the system is singular, the model is
// left unchanged and Recalibrate returns false.
//
// Observation ranks must be valid for the model; an out of range rank
// panics.
func (m *Model) Recalibrate(obs []Observation, fitVar bool) bool {
	if len(obs) < MinObservations {
		return false
	}

	// Accumulate the normal equations AᵀWA x = AᵀWb for the design
	// matrix rows [1 level_mean time].
	var (
		ata [9]float64
		atb [3]float64
	)
	for _, o := range obs {
		s := m.States[o.Rank]
		w := 1 / (s.LevelStdv * s.LevelStdv)
		ata[0] += w
		ata[1] += w * s.LevelMean
		ata[2] += w * o.Time
		ata[4] += w * s.LevelMean * s.LevelMean
		ata[5] += w * s.LevelMean * o.Time
		ata[8] += w * o.Time * o.Time
		atb[0] += w * o.Level
		atb[1] += w * s.LevelMean * o.Level
		atb[2] += w * o.Time * o.Level
	}
	ata[3] = ata[1]
	ata[6] = ata[2]
	ata[7] = ata[5]

	var x mat.VecDense
	err := x.SolveVec(mat.NewDense(3, 3, ata[:]), mat.NewVecDense(3, atb[:]))
	if err != nil {
		return false
	}
	m.Shift = x.AtVec(0)
	m.Scale = x.AtVec(1)
	m.Drift = x.AtVec(2)

	if fitVar {
		var ss float64
		for _, o := range obs {
			s := m.States[o.Rank]
			r := (o.Level - (m.Scale*s.LevelMean + m.Shift + m.Drift*o.Time)) / s.LevelStdv
			ss += r * r
		}
		m.Var = math.Sqrt(ss / float64(len(obs)))
	}

	m.Bake()
	return true
}
