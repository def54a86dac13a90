package decoder

import (
	"strconv"
	"strings"

	"github.com/ieee0824/lattice-go/lat"
)

// Result holds the recognition output.
type Result struct {
	Text     string  // recognized text
	Words    []Word  // word-level details
	LogScore float64 // negated total path cost
}

// Word holds per-word timing and score information. Frame ranges come
// from the transition-id alignments on the best path.
type Word struct {
	ID         int32
	Text       string
	StartFrame int
	EndFrame   int
	LogScore   float64 // negated word arc cost
}

// ExtractResult turns a lattice into a Result by tracing its best path.
// syms maps word-ids to their surface form; words missing from syms
// (or all words, when syms is nil) render as decimal ids.
func ExtractResult(clat *lat.CompactLattice, syms map[int32]string) (*Result, error) {
	best, err := lat.ShortestPath(clat)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if best.NumStates() == 0 {
		return res, nil
	}

	lookup := func(id int32) string {
		if s, ok := syms[id]; ok {
			return s
		}
		return strconv.FormatInt(int64(id), 10)
	}

	frame := 0
	totalCost := 0.0
	var texts []string
	s := best.Start()
	for {
		arcs := best.Arcs(s)
		if len(arcs) == 0 {
			totalCost += best.Final(s).Weight.Total()
			f := best.Final(s)
			frame += len(f.Alignment)
			break
		}
		a := arcs[0]
		start := frame
		frame += len(a.Weight.Alignment)
		cost := a.Weight.Weight.Total()
		totalCost += cost
		if a.Label != 0 {
			text := lookup(a.Label)
			res.Words = append(res.Words, Word{
				ID:         a.Label,
				Text:       text,
				StartFrame: start,
				EndFrame:   frame,
				LogScore:   -cost,
			})
			texts = append(texts, text)
		}
		s = a.NextState
	}
	res.Text = strings.Join(texts, " ")
	res.LogScore = -totalCost
	return res, nil
}
