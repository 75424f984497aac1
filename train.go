// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"

	"github.com/kortschak/poretrain/kmer"
	"github.com/kortschak/poretrain/pore"
	"github.com/kortschak/poretrain/squiggle"
)

// alignedEvent is a one to one correspondence between a k-mer position
// of a read's basecalled sequence and an event.
type alignedEvent struct {
	pos   int // k-mer position in the basecalled sequence
	rank  int // rank of the k-mer at pos
	event int // index of the event assigned to pos
}

// alignBasecalls returns the alignment of the read's basecalled k-mers
// to its events for the given strand. Only k-mer positions assigned
// exactly one event are included. If use is non-nil, positions whose
// k-mer rank is not marked in use are excluded.
func alignBasecalls(r *squiggle.Read, strand int, use []bool) []alignedEvent {
	var aln []alignedEvent
	for pos, e := range r.EventMap[strand] {
		if e.Start == -1 || e.Start != e.Stop {
			continue
		}
		rank, err := kmer.Rank(r.Sequence[pos : pos+r.K])
		if err != nil {
			panic(err)
		}
		if use != nil && !use[rank] {
			continue
		}
		aln = append(aln, alignedEvent{pos: pos, rank: rank, event: e.Start})
	}
	return aln
}

// trainingData returns the observed event levels for each k-mer rank
// in the given alignment.
func trainingData(r *squiggle.Read, strand int, aln []alignedEvent) [][]float64 {
	samples := make([][]float64, kmer.Count(r.K))
	for _, a := range aln {
		samples[a.rank] = append(samples[a.rank], r.Events[strand][a.event].Mean)
	}
	return samples
}

// totalEvents returns the number of observations held by samples.
func totalEvents(samples [][]float64) int {
	var n int
	for _, v := range samples {
		n += len(v)
	}
	return n
}

// bestRead returns the index of the first read with the strictly
// greatest observation total, printing the per read totals and the
// running maximum as it scans.
func bestRead(totals []int) int {
	var max, best int
	for i, n := range totals {
		fmt.Printf("read %d has %d events (max: %d, %d)\n", i, n, max, best)
		if n > max {
			max = n
			best = i
		}
	}
	return best
}

// median returns the median of values, sorting them in place. The
// median of an even count is the mean of the two central values and
// the median of no values is zero.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return (values[n/2-1] + values[n/2]) / 2
	default:
		return values[n/2]
	}
}

// buildModel returns a baked pore model derived from the given per
// k-mer training samples, together with the set of k-mer ranks that
// were observed. The level mean of each observed k-mer is the median
// of its samples with a unit level standard deviation; unobserved
// k-mers keep the default state and are marked unusable.
func buildModel(k int, samples [][]float64) (*pore.Model, []bool) {
	m := pore.New(k)
	use := make([]bool, kmer.Count(k))
	for rank, v := range samples {
		if len(v) == 0 {
			continue
		}
		var obs string
		if verbosity >= 1 {
			obs = fmt.Sprintf("%v", v)
		}
		med := median(v)
		if verbosity >= 1 {
			fmt.Printf("k: %d median: %.2f values: %s\n", rank, med, obs)
		}
		use[rank] = true
		m.States[rank] = pore.State{LevelMean: med, LevelStdv: 1}
	}
	m.Bake()
	return m, use
}

// observations returns the recalibration observations for the given
// alignment of the read.
func observations(r *squiggle.Read, strand int, aln []alignedEvent) []pore.Observation {
	obs := make([]pore.Observation, len(aln))
	for i, a := range aln {
		obs[i] = pore.Observation{
			Level: r.Events[strand][a.event].Mean,
			Time:  r.Time(strand, a.event),
			Rank:  a.rank,
		}
	}
	return obs
}
