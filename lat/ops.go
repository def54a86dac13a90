package lat

import (
	"errors"
	"fmt"
)

// ErrCycle is returned when an operation requires an acyclic lattice
// but the input contains a cycle.
var ErrCycle = errors.New("lattice contains a cycle")

// Invert swaps the input and output labels of every arc.
func Invert(l *Lattice) {
	for s := range l.states {
		arcs := l.states[s].arcs
		for i := range arcs {
			arcs[i].ILabel, arcs[i].OLabel = arcs[i].OLabel, arcs[i].ILabel
		}
	}
}

// topOrder returns the states of l in topological order, considering
// only states reachable from the start. Returns ErrCycle if the
// reachable part contains a cycle.
func topOrder(l *Lattice) ([]int32, error) {
	if l.start < 0 {
		return nil, nil
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]uint8, l.NumStates())
	order := make([]int32, 0, l.NumStates())
	// Iterative DFS with explicit stack; post-order reversed is a
	// topological order.
	type frame struct {
		state int32
		arc   int
	}
	stack := []frame{{state: l.start}}
	color[l.start] = gray
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		arcs := l.states[top.state].arcs
		if top.arc < len(arcs) {
			next := arcs[top.arc].NextState
			top.arc++
			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, frame{state: next})
			case gray:
				return nil, ErrCycle
			}
			continue
		}
		color[top.state] = black
		order = append(order, top.state)
		stack = stack[:len(stack)-1]
	}
	// reverse post-order
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// TopSort renumbers the states of l into topological order. Returns
// ErrCycle if the lattice is cyclic. Unreachable states are dropped.
func TopSort(l *Lattice) error {
	order, err := topOrder(l)
	if err != nil {
		return fmt.Errorf("top sort: %w", err)
	}
	remap := make([]int32, l.NumStates())
	for i := range remap {
		remap[i] = -1
	}
	for newID, s := range order {
		remap[s] = int32(newID)
	}
	states := make([]latticeState, len(order))
	for oldID, st := range l.states {
		newID := remap[oldID]
		if newID < 0 {
			continue
		}
		arcs := make([]Arc, 0, len(st.arcs))
		for _, a := range st.arcs {
			a.NextState = remap[a.NextState]
			arcs = append(arcs, a)
		}
		states[newID] = latticeState{arcs: arcs, final: st.final}
	}
	l.states = states
	if l.start >= 0 {
		l.start = remap[l.start]
	}
	return nil
}

// Connect trims states that are not both accessible from the start and
// coaccessible to a final state, renumbering the survivors.
func Connect(l *CompactLattice) {
	n := l.NumStates()
	if l.start < 0 || n == 0 {
		l.DeleteStates()
		return
	}
	access := make([]bool, n)
	stack := []int32{l.start}
	access[l.start] = true
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, a := range l.states[s].arcs {
			if !access[a.NextState] {
				access[a.NextState] = true
				stack = append(stack, a.NextState)
			}
		}
	}
	// reverse adjacency for coaccessibility
	rev := make([][]int32, n)
	for s := int32(0); s < int32(n); s++ {
		for _, a := range l.states[s].arcs {
			rev[a.NextState] = append(rev[a.NextState], s)
		}
	}
	coaccess := make([]bool, n)
	for s := int32(0); s < int32(n); s++ {
		if !l.states[s].final.IsZero() {
			coaccess[s] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range rev[s] {
			if !coaccess[p] {
				coaccess[p] = true
				stack = append(stack, p)
			}
		}
	}
	remap := make([]int32, n)
	kept := 0
	for s := 0; s < n; s++ {
		if access[s] && coaccess[s] {
			remap[s] = int32(kept)
			kept++
		} else {
			remap[s] = -1
		}
	}
	if l.start < 0 || remap[l.start] < 0 {
		l.DeleteStates()
		return
	}
	states := make([]compactState, kept)
	for s := 0; s < n; s++ {
		newID := remap[s]
		if newID < 0 {
			continue
		}
		st := compactState{final: l.states[s].final}
		for _, a := range l.states[s].arcs {
			if remap[a.NextState] < 0 {
				continue
			}
			a.NextState = remap[a.NextState]
			st.arcs = append(st.arcs, a)
		}
		states[newID] = st
	}
	l.states = states
	l.start = remap[l.start]
}

// compactTopOrder returns the states of l reachable from the start in
// topological order, or ErrCycle.
func compactTopOrder(l *CompactLattice) ([]int32, error) {
	if l.start < 0 {
		return nil, nil
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]uint8, l.NumStates())
	order := make([]int32, 0, l.NumStates())
	type frame struct {
		state int32
		arc   int
	}
	stack := []frame{{state: l.start}}
	color[l.start] = gray
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		arcs := l.states[top.state].arcs
		if top.arc < len(arcs) {
			next := arcs[top.arc].NextState
			top.arc++
			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, frame{state: next})
			case gray:
				return nil, ErrCycle
			}
			continue
		}
		color[top.state] = black
		order = append(order, top.state)
		stack = stack[:len(stack)-1]
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// ShortestPath returns the single best path of l as a linear compact
// lattice, or an empty lattice if l has no successful path. The input
// must be acyclic.
func ShortestPath(l *CompactLattice) (*CompactLattice, error) {
	out := NewCompactLattice()
	order, err := compactTopOrder(l)
	if err != nil {
		return nil, fmt.Errorf("shortest path: %w", err)
	}
	if len(order) == 0 {
		return out, nil
	}
	type back struct {
		prev int32
		arc  int // arc position in prev; -1 for the start
	}
	inf := WeightZero()
	dist := make([]Weight, l.NumStates())
	bp := make([]back, l.NumStates())
	reached := make([]bool, l.NumStates())
	for i := range dist {
		dist[i] = inf
		bp[i] = back{prev: -1, arc: -1}
	}
	dist[l.start] = WeightOne()
	reached[l.start] = true
	bestFinal := int32(-1)
	bestCost := inf
	for _, s := range order {
		if !reached[s] {
			continue
		}
		if f := l.states[s].final; !f.IsZero() {
			total := dist[s].Times(f.Weight)
			if compareWeights(total, bestCost) < 0 {
				bestCost = total
				bestFinal = s
			}
		}
		for pos, a := range l.states[s].arcs {
			if a.Weight.IsZero() {
				continue
			}
			nd := dist[s].Times(a.Weight.Weight)
			if !reached[a.NextState] || compareWeights(nd, dist[a.NextState]) < 0 {
				reached[a.NextState] = true
				dist[a.NextState] = nd
				bp[a.NextState] = back{prev: s, arc: pos}
			}
		}
	}
	if bestFinal < 0 {
		return out, nil
	}
	// Trace back, then emit forward.
	var path []back
	for s := bestFinal; bp[s].prev >= 0; s = bp[s].prev {
		path = append(path, bp[s])
	}
	cur := out.AddState()
	out.SetStart(cur)
	for i := len(path) - 1; i >= 0; i-- {
		a := l.states[path[i].prev].arcs[path[i].arc]
		next := out.AddState()
		out.AddArc(cur, CompactArc{Label: a.Label, Weight: a.Weight, NextState: next})
		cur = next
	}
	out.SetFinal(cur, l.states[bestFinal].final)
	return out, nil
}

// ConvertToLattice expands a compact lattice into a state-level
// lattice: each arc's alignment becomes a chain of transition-id arcs,
// with the word label and weight on the first arc of the chain.
func ConvertToLattice(cl *CompactLattice) *Lattice {
	l := NewLattice()
	if cl.start < 0 {
		return l
	}
	for range cl.states {
		l.AddState()
	}
	l.SetStart(cl.start)
	for s := int32(0); s < int32(cl.NumStates()); s++ {
		for _, a := range cl.states[s].arcs {
			expandCompactArc(l, s, a.Label, a.Weight, a.NextState)
		}
		if f := cl.states[s].final; !f.IsZero() {
			if len(f.Alignment) == 0 {
				l.SetFinal(s, f.Weight)
			} else {
				// final weight with alignment expands into a chain to a
				// fresh final state
				end := l.AddState()
				expandCompactArc(l, s, 0, f, end)
				l.SetFinal(end, WeightOne())
			}
		}
	}
	return l
}

// ConvertToCompact wraps a state-level lattice arc-for-arc as a compact
// lattice, without factoring: each arc becomes one compact arc whose
// alignment holds the single transition-id (empty for epsilon). Word
// labels are preserved as compact labels.
func ConvertToCompact(l *Lattice) *CompactLattice {
	cl := NewCompactLattice()
	if l.start < 0 {
		return cl
	}
	for range l.states {
		cl.AddState()
	}
	cl.SetStart(l.start)
	for s := int32(0); s < int32(l.NumStates()); s++ {
		for _, a := range l.states[s].arcs {
			var al []int32
			if a.ILabel != 0 {
				al = []int32{a.ILabel}
			}
			cl.AddArc(s, CompactArc{
				Label:     a.OLabel,
				Weight:    CompactWeight{Weight: a.Weight, Alignment: al},
				NextState: a.NextState,
			})
		}
		if f := l.states[s].final; !f.IsZero() {
			cl.SetFinal(s, CompactWeight{Weight: f})
		}
	}
	return cl
}

func expandCompactArc(l *Lattice, src int32, word int32, w CompactWeight, dst int32) {
	if len(w.Alignment) == 0 {
		l.AddArc(src, Arc{ILabel: 0, OLabel: word, Weight: w.Weight, NextState: dst})
		return
	}
	cur := src
	for i, tid := range w.Alignment {
		next := dst
		if i+1 < len(w.Alignment) {
			next = l.AddState()
		}
		arc := Arc{ILabel: tid, NextState: next}
		if i == 0 {
			arc.OLabel = word
			arc.Weight = w.Weight
		} else {
			arc.Weight = WeightOne()
		}
		l.AddArc(cur, arc)
		cur = next
	}
}
