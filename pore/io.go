// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pore

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kortschak/poretrain/kmer"
)

// ModelHeader is the column header line of a model table.
const ModelHeader = "kmer\tlevel_mean\tlevel_stdv\tsd_mean\tsd_stdv"

const (
	kmerField = iota
	levelMeanField
	levelStdvField
	sdMeanField
	sdStdvField
	numModelFields
)

// WriteModel writes m to w as a tab separated model table. The table
// holds a row for every k-mer of the model's k in rank order, preceded
// by tab separated metadata lines giving the k-mer length and the
// alphabet. Read scaling parameters are not part of a model table.
func WriteModel(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#k\t%d\n", m.K)
	fmt.Fprintln(bw, "#alphabet\tnucleotide")
	fmt.Fprintln(bw, "#strand\ttemplate")
	fmt.Fprintln(bw, ModelHeader)
	for rank, s := range m.States {
		_, err := fmt.Fprintf(bw, "%s\t%.6f\t%.6f\t%.6f\t%.6f\n",
			kmer.Format(rank, m.K), s.LevelMean, s.LevelStdv, s.SdMean, s.SdStdv)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadModel reads a model table from r. The table must hold values for
// every k-mer of its k. The returned model has identity scaling
// parameters and is not baked.
func ReadModel(r io.Reader) (*Model, error) {
	sc := bufio.NewScanner(r)

	k := -1
	var haveHeader bool
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			fields := strings.SplitN(line[1:], "\t", 2)
			if len(fields) == 2 && fields[0] == "k" {
				var err error
				k, err = strconv.Atoi(fields[1])
				if err != nil || k < 1 {
					return nil, errors.Errorf("pore: invalid k metadata %q", line)
				}
			}
			continue
		}
		if line != ModelHeader {
			return nil, errors.Errorf("pore: unexpected model header %q", line)
		}
		haveHeader = true
		break
	}
	if !haveHeader {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("pore: no model header")
	}

	var (
		m    *Model
		seen []bool
		rows int
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		s, kmerText, err := parseState(line)
		if err != nil {
			return nil, err
		}
		if m == nil {
			if k == -1 {
				k = len(kmerText)
			}
			m = New(k)
			seen = make([]bool, kmer.Count(k))
		}
		if len(kmerText) != k {
			return nil, errors.Errorf("pore: k-mer %q does not match k=%d", kmerText, k)
		}
		rank, err := kmer.Rank(kmerText)
		if err != nil {
			return nil, err
		}
		if seen[rank] {
			return nil, errors.Errorf("pore: duplicate k-mer %q", kmerText)
		}
		seen[rank] = true
		m.States[rank] = s
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("pore: no model states")
	}
	if rows != kmer.Count(k) {
		return nil, errors.Errorf("pore: model has %d of %d k-mer states", rows, kmer.Count(k))
	}
	return m, nil
}

// parseState returns the state and k-mer parsed from a model table row.
func parseState(line string) (s State, kmerText string, err error) {
	defer handlePanic(&err)
	fields := strings.Split(line, "\t")
	if len(fields) != numModelFields {
		return State{}, "", errors.Errorf("pore: unexpected number of fields in %q", line)
	}
	return State{
		LevelMean: mustAtof(fields[levelMeanField]),
		LevelStdv: mustAtof(fields[levelStdvField]),
		SdMean:    mustAtof(fields[sdMeanField]),
		SdStdv:    mustAtof(fields[sdStdvField]),
	}, fields[kmerField], nil
}

func handlePanic(err *error) {
	r := recover()
	if r != nil {
		switch r := r.(type) {
		case error:
			*err = r
		default:
			panic(r)
		}
	}
}

func mustAtof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(err)
	}
	return f
}
