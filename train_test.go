// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/poretrain/kmer"
	"github.com/kortschak/poretrain/squiggle"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		values []float64
		want   float64
	}{
		{values: nil, want: 0},
		{values: []float64{42}, want: 42},
		{values: []float64{3, 1}, want: 2},
		{values: []float64{5, 1, 3}, want: 3},
		{values: []float64{4, 1, 3, 2}, want: 2.5},
		{values: []float64{10, 10, 2, 10}, want: 10},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, median(test.values), "median of %v", test.values)
	}
}

func TestBestRead(t *testing.T) {
	tests := []struct {
		totals []int
		want   int
	}{
		{totals: []int{10, 3}, want: 0},
		{totals: []int{3, 10}, want: 1},
		{totals: []int{5, 5}, want: 0},
		{totals: []int{0, 0, 0}, want: 0},
		{totals: []int{1, 7, 7, 2}, want: 1},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, bestRead(test.totals), "best of %v", test.totals)
	}
}

// testRead returns a read with a hand constructed event map holding
// positions with no event, single events and a multiple event range.
func testRead() *squiggle.Read {
	r := &squiggle.Read{
		ID:       "test",
		K:        2,
		Sequence: "ACGTA",
	}
	r.Events[squiggle.Template] = []squiggle.Event{
		{Start: 0.00, Length: 0.01, Mean: 80},
		{Start: 0.01, Length: 0.01, Mean: 85},
		{Start: 0.02, Length: 0.01, Mean: 85.5},
		{Start: 0.03, Length: 0.01, Mean: 90},
	}
	r.EventMap[squiggle.Template] = []squiggle.Range{
		{Start: 0, Stop: 0},   // AC
		{Start: 1, Stop: 2},   // CG two events
		{Start: -1, Stop: -1}, // GT no event
		{Start: 3, Stop: 3},   // TA
	}
	return r
}

func TestAlignBasecalls(t *testing.T) {
	r := testRead()

	aln := alignBasecalls(r, squiggle.Template, nil)
	ac, err := kmer.Rank("AC")
	require.NoError(t, err)
	ta, err := kmer.Rank("TA")
	require.NoError(t, err)
	want := []alignedEvent{
		{pos: 0, rank: ac, event: 0},
		{pos: 3, rank: ta, event: 3},
	}
	assert.Equal(t, want, aln)

	// Restrict usable k-mers to TA.
	use := make([]bool, kmer.Count(r.K))
	use[ta] = true
	aln = alignBasecalls(r, squiggle.Template, use)
	assert.Equal(t, []alignedEvent{{pos: 3, rank: ta, event: 3}}, aln)
}

func TestTrainingData(t *testing.T) {
	r := testRead()
	aln := alignBasecalls(r, squiggle.Template, nil)
	samples := trainingData(r, squiggle.Template, aln)
	require.Len(t, samples, 16)

	ac, _ := kmer.Rank("AC")
	ta, _ := kmer.Rank("TA")
	for rank, v := range samples {
		switch rank {
		case ac:
			assert.Equal(t, []float64{80}, v)
		case ta:
			assert.Equal(t, []float64{90}, v)
		default:
			assert.Empty(t, v)
		}
	}
	assert.Equal(t, 2, totalEvents(samples))
}

func TestBuildModel(t *testing.T) {
	const k = 2
	samples := make([][]float64, kmer.Count(k))
	ac, _ := kmer.Rank("AC")
	gt, _ := kmer.Rank("GT")
	ta, _ := kmer.Rank("TA")
	samples[ac] = []float64{82, 80, 84, 90}
	samples[gt] = []float64{70, 71, 69}
	samples[ta] = []float64{100}

	m, use := buildModel(k, samples)
	assert.Equal(t, 83.0, m.States[ac].LevelMean)
	assert.Equal(t, 70.0, m.States[gt].LevelMean)
	assert.Equal(t, 100.0, m.States[ta].LevelMean)
	for rank, s := range m.States {
		switch rank {
		case ac, gt, ta:
			assert.True(t, use[rank])
			assert.Equal(t, 1.0, s.LevelStdv)
		default:
			assert.False(t, use[rank], "rank %d should be unusable", rank)
			assert.Equal(t, 0.0, s.LevelMean)
		}
	}
	require.Len(t, m.Scaled, len(m.States))
	assert.InDelta(t, 83.0, m.Scaled[ac].Mu, 1e-12)
}

// randomSequence returns an n-base nucleotide sequence generated from
// rng.
func randomSequence(rng *rand.Rand, n int) string {
	const letters = "ACGT"
	s := make([]byte, n)
	for i := range s {
		s[i] = letters[rng.Intn(len(letters))]
	}
	return string(s)
}

// eventTable returns an event table for seq with one event per k-mer
// position. Event levels are generated by level from the position's
// k-mer rank and the event time.
func eventTable(id, seq string, k int, level func(rank int, t float64) float64) string {
	const dwell = 0.004
	var sb strings.Builder
	fmt.Fprintf(&sb, "#read_id\t%s\n%s\n", id, squiggle.Header)
	var t float64
	for pos := 0; pos+k <= len(seq); pos++ {
		state := seq[pos : pos+k]
		rank, err := kmer.Rank(state)
		if err != nil {
			panic(err)
		}
		move := 1
		if pos == 0 {
			move = 0
		}
		fmt.Fprintf(&sb, "%.6f\t%.6f\t%.6f\t%.6f\t%s\t%d\n", t, dwell, level(rank, t), 1.0, state, move)
		t += dwell
	}
	return sb.String()
}

// TestTrainAndRecalibrate runs the full training pipeline over two
// synthetic reads. The first read's levels are the model level means,
// the second read's levels have known scaling applied, so the trained
// model must recover identity scaling for the first read and the known
// scaling for the second.
func TestTrainAndRecalibrate(t *testing.T) {
	const (
		k     = 5
		shift = 15
		scale = 1.2
		drift = 0.3
	)
	mean := func(rank int) float64 { return 65 + 0.05*float64(rank) }

	rng := rand.New(rand.NewSource(1))
	seq := randomSequence(rng, 300)

	tableA := eventTable("a", seq, k, func(rank int, t float64) float64 {
		return mean(rank)
	})
	tableB := eventTable("b", seq, k, func(rank int, t float64) float64 {
		return scale*mean(rank) + shift + drift*t
	})

	var reads []*squiggle.Read
	for _, table := range []string{tableA, tableB} {
		r, err := squiggle.Parse(strings.NewReader(table))
		require.NoError(t, err)
		require.Equal(t, k, r.K)
		reads = append(reads, r)
	}

	alignments := make([][]alignedEvent, len(reads))
	samples := make([][][]float64, len(reads))
	totals := make([]int, len(reads))
	for i, r := range reads {
		alignments[i] = alignBasecalls(r, squiggle.Template, nil)
		samples[i] = trainingData(r, squiggle.Template, alignments[i])
		totals[i] = totalEvents(samples[i])
		require.True(t, totals[i] >= 200, "read %d has too few events", i)
	}

	// The reads tie so the first read trains the model.
	best := bestRead(totals)
	require.Equal(t, 0, best)
	model, use := buildModel(k, samples[best])

	tests := []struct {
		shift, scale, drift float64
	}{
		{shift: 0, scale: 1, drift: 0},
		{shift: shift, scale: scale, drift: drift},
	}
	for i, r := range reads {
		r.Model[squiggle.Template] = model.Clone()
		aln := alignBasecalls(r, squiggle.Template, use)
		m := r.Model[squiggle.Template]
		require.True(t, m.Recalibrate(observations(r, squiggle.Template, aln), true))

		assert.InDelta(t, tests[i].shift, m.Shift, 1e-3, "read %d shift", i)
		assert.InDelta(t, tests[i].scale, m.Scale, 1e-4, "read %d scale", i)
		assert.InDelta(t, tests[i].drift, m.Drift, 1e-3, "read %d drift", i)
		assert.InDelta(t, 0, m.Var, 1e-3, "read %d var", i)
	}
}
