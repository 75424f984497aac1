// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kmer provides conversions between nucleotide k-mers and dense
// table ranks. Ranks follow the index order of the biogo DNA alphabet,
// A=0, C=1, G=2 and T=3, matching the ordering used by basecaller model
// tables.
package kmer

import (
	"fmt"

	"github.com/biogo/biogo/alphabet"
)

var (
	letters []byte
	index   *[256]int
)

func init() {
	index = alphabet.DNA.LetterIndex()
	letters = make([]byte, alphabet.DNA.Len())
	for i := range letters {
		l := byte(alphabet.DNA.Letter(i))
		letters[i] = l &^ ('a' - 'A')
	}
}

// Count returns the number of distinct k-mers of length k.
func Count(k int) int {
	return 1 << (2 * uint(k))
}

// Rank returns the dense table rank of the given k-mer, considered
// without case. Rank returns an error if the k-mer contains a letter
// outside the nucleotide alphabet.
func Rank(kmer string) (int, error) {
	var r int
	for i := 0; i < len(kmer); i++ {
		b := index[kmer[i]]
		if b < 0 {
			return 0, fmt.Errorf("kmer: invalid letter %q in %q", kmer[i], kmer)
		}
		r = r<<2 | b
	}
	return r, nil
}

// Format returns the k-mer with the given rank as an upper case string
// of length k. Format panics if rank is outside [0, Count(k)).
func Format(rank, k int) string {
	if rank < 0 || Count(k) <= rank {
		panic(fmt.Sprintf("kmer: rank %d out of range for k=%d", rank, k))
	}
	s := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		s[i] = letters[rank&3]
		rank >>= 2
	}
	return string(s)
}
