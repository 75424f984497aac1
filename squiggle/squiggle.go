// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package squiggle provides basecalled nanopore reads loaded from
// event tables.
//
// An event table is a tab separated file holding one basecaller event
// per row with the columns start, length, mean, stdv, model_state and
// move. Metadata may precede the column header in lines starting with
// '#'; a '#read_id' line gives the read's name. The basecalled sequence
// and the mapping from sequence k-mers to events are reconstructed from
// the model_state and move columns.
package squiggle

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/kortschak/poretrain/kmer"
	"github.com/kortschak/poretrain/pore"
)

// Strand indexes for per-strand read data. Event tables describe the
// template strand; complement data exists only for 2D reads.
const (
	Template = iota
	Complement
	NumStrands
)

// Event is a single basecaller signal event.
type Event struct {
	Start  float64 // start time in seconds
	Length float64 // duration in seconds
	Mean   float64 // mean current in pA
	Stdv   float64 // standard deviation of current in pA
}

// Range is an inclusive range of event indices assigned to a single
// k-mer position of the basecalled sequence. A Start of -1 marks a
// position with no assigned event.
type Range struct {
	Start, Stop int
}

// Read is a basecalled read.
type Read struct {
	// ID is the name of the read.
	ID string

	// K is the length of the basecaller's model states.
	K int

	// Sequence is the basecalled sequence.
	Sequence string

	// Events holds the signal events for each strand.
	Events [NumStrands][]Event

	// EventMap maps each k-mer position of Sequence to the events
	// assigned to it, for each strand. EventMap ranges index into
	// the corresponding Events slice.
	EventMap [NumStrands][]Range

	// Model holds the pore model assigned to each strand of the
	// read. It is nil until a model is assigned.
	Model [NumStrands]*pore.Model
}

// Time returns the start time of event i on the given strand relative
// to the first event of the strand.
func (r *Read) Time(strand, i int) float64 {
	ev := r.Events[strand]
	return ev[i].Start - ev[0].Start
}

// Header is the column header line of an event table.
const Header = "start\tlength\tmean\tstdv\tmodel_state\tmove"

const (
	startField = iota
	lengthField
	meanField
	stdvField
	stateField
	moveField
	numFields
)

// Load reads the event table at path, decompressing it if the path has
// a .gz extension. If the table carries no read_id metadata the read is
// named by the file's base name.
func Load(path string) (*Read, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := io.Reader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "squiggle: failed to decompress %q", path)
		}
		defer gz.Close()
		r = gz
	}
	read, err := Parse(r)
	if err != nil {
		return nil, errors.Wrapf(err, "squiggle: failed to read %q", path)
	}
	if read.ID == "" {
		read.ID = filepath.Base(path)
	}
	return read, nil
}

// Parse reads a single event table from src.
//
// The basecalled sequence starts as the first event's model state and
// is extended by the trailing move bases of each event with a non-zero
// move. Each event is assigned to the k-mer position given by the
// cumulative move count. Parse returns an error if an event's model
// state disagrees with the reconstructed sequence at its position.
func Parse(src io.Reader) (*Read, error) {
	sc := bufio.NewScanner(src)

	r := &Read{}
	var haveHeader bool
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			fields := strings.SplitN(line[1:], "\t", 2)
			if len(fields) == 2 && fields[0] == "read_id" {
				r.ID = fields[1]
			}
			continue
		}
		if line != Header {
			return nil, errors.Errorf("squiggle: unexpected column header %q", line)
		}
		haveHeader = true
		break
	}
	if !haveHeader {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("squiggle: no event table header")
	}

	var (
		seq    strings.Builder
		states []string
		pos    []int

		kmerIdx int
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		ev, state, move, err := parseEvent(line)
		if err != nil {
			return nil, err
		}
		if r.K == 0 {
			r.K = len(state)
		} else if len(state) != r.K {
			return nil, errors.Errorf("squiggle: inconsistent model state length in %q", state)
		}
		if _, err := kmer.Rank(state); err != nil {
			return nil, errors.Wrap(err, "squiggle: invalid model state")
		}
		if move < 0 || move > r.K {
			return nil, errors.Errorf("squiggle: invalid move %d at event %d", move, len(states))
		}
		if len(states) == 0 {
			// The first event's move is not meaningful.
			seq.WriteString(state)
		} else {
			if move > 0 {
				seq.WriteString(state[r.K-move:])
			}
			kmerIdx += move
		}
		states = append(states, state)
		pos = append(pos, kmerIdx)
		r.Events[Template] = append(r.Events[Template], ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, errors.New("squiggle: no events")
	}
	r.Sequence = seq.String()

	for i, state := range states {
		if r.Sequence[pos[i]:pos[i]+r.K] != state {
			return nil, errors.Errorf("squiggle: model state %q disagrees with sequence at event %d", state, i)
		}
	}

	m := make([]Range, len(r.Sequence)-r.K+1)
	for i := range m {
		m[i] = Range{Start: -1, Stop: -1}
	}
	for i, p := range pos {
		if m[p].Start == -1 {
			m[p] = Range{Start: i, Stop: i}
		} else {
			m[p].Stop = i
		}
	}
	r.EventMap[Template] = m

	return r, nil
}

// parseEvent returns the event, model state and move parsed from an
// event table row.
func parseEvent(line string) (ev Event, state string, move int, err error) {
	defer handlePanic(&err)
	fields := strings.Split(line, "\t")
	if len(fields) != numFields {
		return Event{}, "", 0, errors.Errorf("squiggle: unexpected number of fields in %q", line)
	}
	return Event{
		Start:  mustAtof(fields[startField]),
		Length: mustAtof(fields[lengthField]),
		Mean:   mustAtof(fields[meanField]),
		Stdv:   mustAtof(fields[stdvField]),
	}, fields[stateField], mustAtoi(fields[moveField]), nil
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

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		panic(err)
	}
	return i
}

func mustAtof(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(err)
	}
	return f
}
