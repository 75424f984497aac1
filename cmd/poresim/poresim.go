// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// poresim generates synthetic basecaller event tables from fasta
// sequences using a pore model.
//
// Sequences are read from standard input and each yields one event
// table named <id>.events.tsv in the output directory. Events are
// generated by walking the sequence's k-mers with the given stay and
// skip probabilities, drawing levels from the model's k-mer states and
// durations from an exponential dwell distribution. Shift, scale and
// drift distortions may be applied to emulate an uncalibrated read.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kortschak/poretrain/kmer"
	"github.com/kortschak/poretrain/pore"
	"github.com/kortschak/poretrain/squiggle"
)

var (
	modelFile = flag.String("model", "", "input pore model file (required)")
	outDir    = flag.String("dir", ".", "output directory for event tables")
	seed      = flag.Uint64("seed", 1, "random number seed")
	stay      = flag.Float64("stay", 0.1, "probability of a zero move event")
	skip      = flag.Float64("skip", 0.05, "probability of an advance skipping a k-mer")
	dwell     = flag.Float64("dwell", 0.004, "mean event duration in seconds")
	shift     = flag.Float64("shift", 0, "level shift applied to simulated events")
	scale     = flag.Float64("scale", 1, "level scale applied to simulated events")
	drift     = flag.Float64("drift", 0, "level drift applied to simulated events in pA/s")
)

func main() {
	flag.Parse()
	if *modelFile == "" {
		fmt.Fprintln(os.Stderr, "invalid argument: must have a pore model")
		flag.Usage()
		os.Exit(1)
	}
	if *stay < 0 || 1 <= *stay || *skip < 0 || 1 <= *skip {
		log.Fatalf("stay and skip probabilities must be in [0,1): stay=%v skip=%v", *stay, *skip)
	}
	if *dwell <= 0 {
		log.Fatalf("dwell must be positive: %v", *dwell)
	}

	m, err := readModel(*modelFile)
	if err != nil {
		log.Fatalf("failed to read model %q: %v", *modelFile, err)
	}
	if *skip > 0 && m.K < 2 {
		log.Fatalf("skip simulation requires k of at least 2, got k=%d", m.K)
	}

	src := rand.NewSource(*seed)
	rng := rand.New(src)

	sc := seqio.NewScanner(fasta.NewReader(os.Stdin, linear.NewSeq("", nil, alphabet.DNA)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		path, n, err := writeEvents(s, m, rng, src)
		if err != nil {
			log.Fatalf("failed to simulate %q: %v", s.ID, err)
		}
		log.Printf("simulated %d events for %q to %q", n, s.ID, path)
	}
	if err := sc.Error(); err != nil {
		log.Fatalf("error during fasta read: %v", err)
	}
}

// readModel reads the pore model table at path.
func readModel(path string) (*pore.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return pore.ReadModel(f)
}

// writeEvents writes a simulated event table for the sequence to the
// output directory, returning the path written and the number of
// events.
func writeEvents(s *linear.Seq, m *pore.Model, rng *rand.Rand, src rand.Source) (path string, n int, err error) {
	seq := strings.ToUpper(s.Seq.String())
	if len(seq) < m.K {
		return "", 0, errors.Errorf("sequence length %d shorter than k=%d", len(seq), m.K)
	}

	path = filepath.Join(*outDir, s.ID+".events.tsv")
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "#read_id\t%s\n", s.ID)
	fmt.Fprintln(w, squiggle.Header)

	dur := distuv.Exponential{Rate: 1 / *dwell, Src: src}
	var (
		t    float64
		move int
	)
	for pos := 0; pos+m.K <= len(seq); {
		state := seq[pos : pos+m.K]
		rank, rerr := kmer.Rank(state)
		if rerr != nil {
			err = errors.Wrapf(rerr, "invalid sequence %q", s.ID)
			break
		}
		st := m.States[rank]
		level := distuv.Normal{Mu: st.LevelMean, Sigma: st.LevelStdv, Src: src}.Rand()
		level = *scale*level + *shift + *drift*t
		sd := distuv.Normal{Mu: st.SdMean, Sigma: st.SdStdv, Src: src}.Rand()
		length := dur.Rand()
		_, err = fmt.Fprintf(w, "%.6f\t%.6f\t%.2f\t%.2f\t%s\t%d\n", t, length, level, sd, state, move)
		if err != nil {
			break
		}
		n++
		t += length

		if rng.Float64() < *stay {
			move = 0
			continue
		}
		move = 1
		if rng.Float64() < *skip {
			move = 2
		}
		pos += move
	}

	if err == nil {
		err = w.Flush()
	}
	if e := f.Close(); e != nil && err == nil {
		err = e
	}
	return path, n, err
}
