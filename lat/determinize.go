package lat

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DetOptions controls DeterminizePruned.
type DetOptions struct {
	// Delta is the quantization tolerance used when comparing residual
	// weights of subset states.
	Delta float64
	// MaxMem bounds the approximate memory (bytes) of the subset table;
	// 0 means no bound. Exceeding it truncates determinization.
	MaxMem int
	// MaxStates bounds the number of output states; 0 means no bound.
	MaxStates int
}

// DefaultDetOptions returns the standard determinization options.
func DefaultDetOptions() DetOptions {
	return DetOptions{Delta: 1e-6, MaxMem: 512 << 20}
}

// detElement is one member of a determinization subset: an input state
// with its residual weight and residual label string.
type detElement struct {
	state int32
	w     Weight
	str   []int32
}

// DeterminizePruned determinizes an acyclic lattice on its input
// labels, accumulating output labels into compact-arc alignments, and
// prunes subset members whose best completion exceeds the best path by
// more than beam. The input must have the determinization alphabet on
// ILabel (invert first when determinizing on words).
//
// The second return value is false if determinization was truncated by
// MaxStates or MaxMem before the beam was exhausted.
func DeterminizePruned(l *Lattice, beam float64, opts DetOptions) (*CompactLattice, bool, error) {
	out := NewCompactLattice()
	if l.Start() < 0 || l.NumStates() == 0 {
		return out, true, nil
	}
	order, err := topOrder(l)
	if err != nil {
		return nil, false, fmt.Errorf("determinize: %w", err)
	}
	if opts.Delta <= 0 {
		opts.Delta = 1e-6
	}

	// Backward best-completion costs over reverse topological order.
	inf := math.Inf(1)
	beta := make([]float64, l.NumStates())
	for i := range beta {
		beta[i] = inf
	}
	for i := len(order) - 1; i >= 0; i-- {
		s := order[i]
		b := inf
		if f := l.Final(s); !f.IsZero() {
			b = f.Total()
		}
		for _, a := range l.Arcs(s) {
			if c := a.Weight.Total() + beta[a.NextState]; c < b {
				b = c
			}
		}
		beta[s] = b
	}
	best := beta[l.Start()]
	if math.IsInf(best, 1) {
		// no successful path at all
		return out, true, nil
	}
	cutoff := best + beam

	d := &determinizer{
		lat:    l,
		beta:   beta,
		cutoff: cutoff,
		opts:   opts,
		out:    out,
		table:  make(map[string]int32),
	}

	start := d.closure([]detElement{{state: l.Start(), w: WeightOne()}}, 0)
	if len(start) == 0 {
		return out, true, nil
	}
	// The start subset is not factored; any common weight stays inside.
	startID := d.findOrAdd(start, 0)
	out.SetStart(startID)

	for qi := 0; qi < len(d.subsets) && !d.truncated; qi++ {
		d.expand(int32(qi))
	}
	return out, !d.truncated, nil
}

type determinizer struct {
	lat    *Lattice
	beta   []float64
	cutoff float64
	opts   DetOptions

	out     *CompactLattice
	table   map[string]int32 // canonical subset -> output state
	subsets [][]detElement
	bases   []float64 // cost factored out on the path to each subset
	memUsed int
	truncated bool
}

// closure expands a member list over epsilon input arcs, merging
// duplicate states by the better residual, and prunes members outside
// the beam. base is the cost already factored onto the path.
func (d *determinizer) closure(members []detElement, base float64) []detElement {
	byState := make(map[int32]detElement, len(members))
	var work []int32
	consider := func(e detElement) {
		old, ok := byState[e.state]
		if !ok || betterElement(e, old) {
			byState[e.state] = e
			work = append(work, e.state)
		}
	}
	for _, e := range members {
		consider(e)
	}
	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]
		e, ok := byState[s]
		if !ok || e.state != s {
			continue
		}
		for _, a := range d.lat.Arcs(s) {
			if a.ILabel != 0 {
				continue
			}
			ne := detElement{
				state: a.NextState,
				w:     e.w.Times(a.Weight),
				str:   appendLabel(e.str, a.OLabel),
			}
			consider(ne)
		}
	}
	res := make([]detElement, 0, len(byState))
	for _, e := range byState {
		if base+e.w.Total()+d.beta[e.state] > d.cutoff {
			continue
		}
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].state < res[j].state })
	return res
}

func appendLabel(str []int32, label int32) []int32 {
	if label == 0 {
		return str
	}
	ns := make([]int32, 0, len(str)+1)
	ns = append(ns, str...)
	return append(ns, label)
}

// betterElement orders residuals deterministically: weight first, then
// shorter string, then lexicographic.
func betterElement(a, b detElement) bool {
	if c := compareWeights(a.w, b.w); c != 0 {
		return c < 0
	}
	if len(a.str) != len(b.str) {
		return len(a.str) < len(b.str)
	}
	for i := range a.str {
		if a.str[i] != b.str[i] {
			return a.str[i] < b.str[i]
		}
	}
	return false
}

func (d *determinizer) key(members []detElement) string {
	var sb strings.Builder
	for _, e := range members {
		sb.WriteString(strconv.FormatInt(int64(e.state), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(quantize(e.w.Graph, d.opts.Delta), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(quantize(e.w.Acoustic, d.opts.Delta), 10))
		for _, lab := range e.str {
			sb.WriteByte(',')
			sb.WriteString(strconv.FormatInt(int64(lab), 10))
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

func quantize(v, delta float64) int64 {
	return int64(math.Floor(v/delta + 0.5))
}

func (d *determinizer) findOrAdd(members []detElement, base float64) int32 {
	k := d.key(members)
	if id, ok := d.table[k]; ok {
		return id
	}
	if d.opts.MaxStates > 0 && len(d.subsets) >= d.opts.MaxStates {
		d.truncated = true
		return -1
	}
	for _, e := range members {
		d.memUsed += 32 + 4*len(e.str)
	}
	d.memUsed += len(k)
	if d.opts.MaxMem > 0 && d.memUsed > d.opts.MaxMem {
		d.truncated = true
		return -1
	}
	id := d.out.AddState()
	d.table[k] = id
	d.subsets = append(d.subsets, members)
	d.bases = append(d.bases, base)
	d.setFinal(id, members)
	return id
}

func (d *determinizer) setFinal(id int32, members []detElement) {
	bestW := WeightZero()
	var bestStr []int32
	for _, e := range members {
		f := d.lat.Final(e.state)
		if f.IsZero() {
			continue
		}
		cand := detElement{state: e.state, w: e.w.Times(f), str: e.str}
		if bestW.IsZero() || betterElement(cand, detElement{w: bestW, str: bestStr}) {
			bestW = cand.w
			bestStr = cand.str
		}
	}
	if !bestW.IsZero() {
		d.out.SetFinal(id, CompactWeight{Weight: bestW, Alignment: bestStr})
	}
}

// expand generates the outgoing arcs of one subset state.
func (d *determinizer) expand(id int32) {
	members := d.subsets[id]
	base := d.bases[id]

	byLabel := make(map[int32][]detElement)
	for _, e := range members {
		for _, a := range d.lat.Arcs(e.state) {
			if a.ILabel == 0 {
				continue
			}
			byLabel[a.ILabel] = append(byLabel[a.ILabel], detElement{
				state: a.NextState,
				w:     e.w.Times(a.Weight),
				str:   appendLabel(e.str, a.OLabel),
			})
		}
	}
	labels := make([]int32, 0, len(byLabel))
	for lab := range byLabel {
		labels = append(labels, lab)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	for _, lab := range labels {
		next := d.closure(byLabel[lab], base)
		if len(next) == 0 {
			continue
		}
		// Factor the common part onto the arc: the best member's weight
		// and the longest common prefix of the strings.
		bestIdx := 0
		for i := 1; i < len(next); i++ {
			if betterElement(next[i], next[bestIdx]) {
				bestIdx = i
			}
		}
		common := next[bestIdx].w
		prefix := next[0].str
		for _, e := range next[1:] {
			prefix = commonPrefix(prefix, e.str)
		}
		for i := range next {
			next[i].w = next[i].w.Divide(common)
			next[i].str = next[i].str[len(prefix):]
		}
		nid := d.findOrAdd(next, base+common.Total())
		if nid < 0 {
			return // truncated
		}
		d.out.AddArc(id, CompactArc{
			Label:     lab,
			Weight:    CompactWeight{Weight: common, Alignment: prefix},
			NextState: nid,
		})
	}
}

func commonPrefix(a, b []int32) []int32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
