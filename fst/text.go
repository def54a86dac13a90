package fst

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadText parses a graph in AT&T text format: arc lines are
// "src dst ilabel olabel [weight]", final lines are "state [weight]".
// The source state of the first line becomes the start state.
func ReadText(r io.Reader) (*VectorFst, error) {
	f := NewVectorFst()
	ensure := func(s int32) {
		for int32(f.NumStates()) <= s {
			f.AddState()
		}
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch len(fields) {
		case 1, 2: // final state
			s, err := strconv.ParseInt(fields[0], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad state %q: %w", lineNo, fields[0], err)
			}
			w := WeightOne()
			if len(fields) == 2 {
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad final weight %q: %w", lineNo, fields[1], err)
				}
				w = Weight(v)
			}
			ensure(int32(s))
			if f.Start() == NoState {
				f.SetStart(int32(s))
			}
			f.SetFinal(int32(s), w)
		case 4, 5: // arc
			var nums [4]int64
			for i := 0; i < 4; i++ {
				v, err := strconv.ParseInt(fields[i], 10, 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad field %q: %w", lineNo, fields[i], err)
				}
				nums[i] = v
			}
			w := WeightOne()
			if len(fields) == 5 {
				v, err := strconv.ParseFloat(fields[4], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad weight %q: %w", lineNo, fields[4], err)
				}
				w = Weight(v)
			}
			src, dst := int32(nums[0]), int32(nums[1])
			ensure(src)
			ensure(dst)
			if f.Start() == NoState {
				f.SetStart(src)
			}
			f.AddArc(src, Arc{
				ILabel:    int32(nums[2]),
				OLabel:    int32(nums[3]),
				Weight:    w,
				NextState: dst,
			})
		default:
			return nil, fmt.Errorf("line %d: expected 1, 2, 4 or 5 fields, got %d", lineNo, len(fields))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return f, nil
}

// WriteText writes a graph in AT&T text format.
func WriteText(w io.Writer, g Graph) error {
	bw := bufio.NewWriter(w)
	for s := int32(0); s < int32(g.NumStates()); s++ {
		for _, a := range g.Arcs(s) {
			if _, err := fmt.Fprintf(bw, "%d\t%d\t%d\t%d\t%g\n",
				s, a.NextState, a.ILabel, a.OLabel, a.Weight.Value()); err != nil {
				return err
			}
		}
		if fw := g.Final(s); !fw.IsZero() {
			if _, err := fmt.Fprintf(bw, "%d\t%g\n", s, fw.Value()); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
