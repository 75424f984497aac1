// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kmer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount(t *testing.T) {
	tests := []struct {
		k    int
		want int
	}{
		{0, 1},
		{1, 4},
		{2, 16},
		{5, 1024},
		{6, 4096},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, Count(test.k))
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		kmer string
		want int
	}{
		{"A", 0},
		{"C", 1},
		{"G", 2},
		{"T", 3},
		{"AAAAA", 0},
		{"AAAAC", 1},
		{"ACGTA", 108},
		{"TTTTT", 1023},
		{"acgta", 108},
		{"AcGtA", 108},
	}
	for _, test := range tests {
		got, err := Rank(test.kmer)
		assert.NoError(t, err)
		assert.Equal(t, test.want, got, "rank of %q", test.kmer)
	}

	for _, invalid := range []string{"ACGNA", "ACGT-", "AXGTA"} {
		_, err := Rank(invalid)
		assert.Error(t, err, "rank of %q", invalid)
	}
}

func TestFormat(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		for rank := 0; rank < Count(k); rank++ {
			s := Format(rank, k)
			assert.Len(t, s, k)
			got, err := Rank(s)
			assert.NoError(t, err)
			assert.Equal(t, rank, got, "round trip of rank %d k=%d", rank, k)
		}
	}

	assert.Equal(t, "AAAAA", Format(0, 5))
	assert.Equal(t, "ACGTA", Format(108, 5))
	assert.Equal(t, "TTTTT", Format(1023, 5))

	assert.Panics(t, func() { Format(-1, 5) })
	assert.Panics(t, func() { Format(1024, 5) })
}
