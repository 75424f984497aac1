// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// poretrain trains a nanopore pore model from a set of basecalled
// reads and recalibrates each read's scaling parameters against the
// trained model.
//
// The single argument is a file listing basecaller event table paths,
// one per line. The k-mer length of the model is taken from the reads'
// model states. Training data are collected from k-mer positions that
// are assigned exactly one event, the model's level means are the per
// k-mer medians of the data from the read contributing the most
// observations, and each read is then recalibrated against the model
// by weighted least squares. The collected observations are written to
// trainmodel.tsv and recalibration results for each read are written
// to standard output.
//
// The program is based on the trainmodel subprogram of nanopolish by
// Jared Simpson.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/grailbio/base/traverse"
	"gonum.org/v1/gonum/stat"

	"github.com/kortschak/poretrain/pore"
	"github.com/kortschak/poretrain/squiggle"
)

const version = "0.1.0"

// counter is a flag.Value that counts repeated applications of its
// flag, so -v -v sets it to two. An explicit numeric value sets the
// count directly.
type counter int

func (c *counter) Set(s string) error {
	switch s {
	case "", "true":
		*c++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid count: %q", s)
	}
	*c = counter(n)
	return nil
}

func (c *counter) String() string { return strconv.Itoa(int(*c)) }

func (c *counter) IsBoolFlag() bool { return true }

var (
	procs       = flag.Int("procs", 1, "number of concurrent read processing workers")
	modelFile   = flag.String("model", "", "write the trained model to this file if option not empty")
	plotFile    = flag.String("plot", "", "write a plot of trained levels to this file if option not empty")
	bgzip       = flag.Bool("z", false, "bgzip compress the observation table")
	showVersion = flag.Bool("version", false, "print the program version and exit")

	verbosity counter
)

func main() {
	flag.Var(&verbosity, "v", "display verbose output (repeat for more detail)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: poretrain [options] reads.fofn\n\noptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("poretrain version %s\n", version)
		return
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "invalid argument: must have a single read list file")
		flag.Usage()
		os.Exit(1)
	}

	reads, err := readsFromFofn(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to load reads: %v", err)
	}
	if len(reads) == 0 {
		log.Fatalf("no reads listed in %q", flag.Arg(0))
	}
	log.Printf("loaded %d reads", len(reads))

	k := reads[0].K
	for _, r := range reads[1:] {
		if r.K != k {
			log.Fatalf("inconsistent model state length: %d != %d in %q", r.K, k, r.ID)
		}
	}

	workers := *procs
	if workers < 1 {
		workers = 1
	}
	if workers > len(reads) {
		workers = len(reads)
	}

	// Align each read's basecalls to its events and collect the per
	// k-mer training data.
	alignments := make([][]alignedEvent, len(reads))
	samples := make([][][]float64, len(reads))
	err = traverse.Each(workers, func(job int) error {
		start := job * len(reads) / workers
		end := (job + 1) * len(reads) / workers
		for i := start; i < end; i++ {
			alignments[i] = alignBasecalls(reads[i], squiggle.Template, nil)
			samples[i] = trainingData(reads[i], squiggle.Template, alignments[i])
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed training pass: %v", err)
	}

	obsFile := "trainmodel.tsv"
	if *bgzip {
		obsFile += ".gz"
	}
	err = writeObservations(obsFile, reads, alignments)
	if err != nil {
		log.Fatalf("failed to write observations: %v", err)
	}
	log.Printf("wrote observations to %q", obsFile)

	totals := make([]int, len(samples))
	for i, s := range samples {
		totals[i] = totalEvents(s)
	}
	best := bestRead(totals)

	model, use := buildModel(k, samples[best])
	if *modelFile != "" {
		err = writeModelFile(*modelFile, model)
		if err != nil {
			log.Fatalf("failed to write model: %v", err)
		}
		log.Printf("wrote model to %q", *modelFile)
	}
	if *plotFile != "" {
		err = plotModel(model, use, *plotFile)
		if err != nil {
			log.Fatalf("failed to write plot: %v", err)
		}
		log.Printf("wrote level plot to %q", *plotFile)
	}

	// Recalibrate each read against the trained model.
	type recalibration struct {
		events  int
		aligned int
		ok      bool
	}
	results := make([]recalibration, len(reads))
	err = traverse.Each(workers, func(job int) error {
		start := job * len(reads) / workers
		end := (job + 1) * len(reads) / workers
		for i := start; i < end; i++ {
			r := reads[i]
			r.Model[squiggle.Template] = model.Clone()
			aln := alignBasecalls(r, squiggle.Template, use)
			ok := r.Model[squiggle.Template].Recalibrate(observations(r, squiggle.Template, aln), true)
			results[i] = recalibration{
				events:  len(r.Events[squiggle.Template]),
				aligned: len(aln),
				ok:      ok,
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("failed recalibration pass: %v", err)
	}
	for i, res := range results {
		if !res.ok && verbosity >= 1 {
			log.Printf("read %d: not recalibrated from %d aligned events", i, res.aligned)
		}
		m := reads[i].Model[squiggle.Template]
		fmt.Printf("[recalibration] events: %d alignment: %d shift: %.2f scale: %.2f drift: %.4f var: %.2f\n",
			res.events, res.aligned, m.Shift, m.Scale, m.Drift, m.Var)
	}

	if verbosity >= 1 && len(reads) > 1 {
		shifts := make([]float64, len(reads))
		scales := make([]float64, len(reads))
		for i, r := range reads {
			m := r.Model[squiggle.Template]
			shifts[i] = m.Shift
			scales[i] = m.Scale
		}
		meanShift, sdShift := stat.MeanStdDev(shifts, nil)
		meanScale, sdScale := stat.MeanStdDev(scales, nil)
		log.Printf("calibration spread: shift %.2f (sd %.2f) scale %.3f (sd %.3f)",
			meanShift, sdShift, meanScale, sdScale)
	}
}

// readsFromFofn loads the reads from the event tables listed in the
// file at path. Blank lines and lines starting with '#' are ignored.
func readsFromFofn(path string) ([]*squiggle.Read, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reads []*squiggle.Read
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		log.Printf("loading %q", name)
		r, err := squiggle.Load(name)
		if err != nil {
			return nil, err
		}
		reads = append(reads, r)
	}
	return reads, sc.Err()
}

// writeObservations writes the aligned training observations to a tab
// separated file at path, bgzip compressing it if -z is set.
func writeObservations(path string, reads []*squiggle.Read, alignments [][]alignedEvent) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := io.Writer(f)
	var gz *bgzf.Writer
	if *bgzip {
		wc := *procs
		if wc < 1 {
			wc = 1
		}
		gz = bgzf.NewWriter(f, wc)
		w = gz
	}
	defer func() {
		if gz != nil {
			if e := gz.Close(); e != nil && err == nil {
				err = e
			}
		}
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "read_idx\tkmer\tlevel_mean\tduration")
	for i, r := range reads {
		for _, a := range alignments[i] {
			ev := r.Events[squiggle.Template][a.event]
			_, err := fmt.Fprintf(bw, "%d\t%s\t%.2f\t%.5f\n", i, r.Sequence[a.pos:a.pos+r.K], ev.Mean, ev.Length)
			if err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// writeModelFile writes the model to a table file at path.
func writeModelFile(path string, m *pore.Model) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = pore.WriteModel(f, m)
	if e := f.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
