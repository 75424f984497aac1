// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kortschak/poretrain/pore"
)

// plotModel writes a scatter plot of the trained level means of the
// model's usable k-mers to the given file. The output format is
// determined by the file's extension.
func plotModel(m *pore.Model, use []bool, path string) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = fmt.Sprintf("trained %d-mer levels", m.K)
	p.X.Label.Text = "k-mer rank"
	p.Y.Label.Text = "level mean (pA)"

	var xys plotter.XYs
	for rank, s := range m.States {
		if !use[rank] {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(rank), Y: s.LevelMean})
	}
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(sc, plotter.NewGrid())

	return p.Save(20*vg.Centimeter, 10*vg.Centimeter, path)
}
