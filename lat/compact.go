package lat

// CompactWeight is a compact-lattice weight: a (graph, acoustic) pair
// together with the aligned transition-id sequence it was factored
// from.
type CompactWeight struct {
	Weight    Weight
	Alignment []int32
}

// CompactWeightZero returns the semiring zero.
func CompactWeightZero() CompactWeight {
	return CompactWeight{Weight: WeightZero()}
}

// CompactWeightOne returns the semiring one.
func CompactWeightOne() CompactWeight { return CompactWeight{} }

// IsZero reports whether w is the semiring zero.
func (w CompactWeight) IsZero() bool { return w.Weight.IsZero() }

// Times concatenates alignments and multiplies weights.
func (w CompactWeight) Times(o CompactWeight) CompactWeight {
	if w.IsZero() || o.IsZero() {
		return CompactWeightZero()
	}
	al := make([]int32, 0, len(w.Alignment)+len(o.Alignment))
	al = append(al, w.Alignment...)
	al = append(al, o.Alignment...)
	return CompactWeight{Weight: w.Weight.Times(o.Weight), Alignment: al}
}

// CompactArc is a transition in a compact lattice: one word label with
// a compact weight.
type CompactArc struct {
	Label     int32
	Weight    CompactWeight
	NextState int32
}

type compactState struct {
	arcs  []CompactArc
	final CompactWeight
}

// CompactLattice is a word-level, typically determinized lattice with
// aligned transition-id sequences on arcs.
type CompactLattice struct {
	start  int32
	states []compactState
}

// NewCompactLattice returns an empty compact lattice.
func NewCompactLattice() *CompactLattice {
	return &CompactLattice{start: -1}
}

// AddState appends a new state and returns its id.
func (l *CompactLattice) AddState() int32 {
	l.states = append(l.states, compactState{final: CompactWeightZero()})
	return int32(len(l.states) - 1)
}

// DeleteStates removes all states.
func (l *CompactLattice) DeleteStates() {
	l.states = l.states[:0]
	l.start = -1
}

// SetStart marks the start state.
func (l *CompactLattice) SetStart(s int32) { l.start = s }

// Start returns the start state, or -1 if empty.
func (l *CompactLattice) Start() int32 { return l.start }

// SetFinal sets the final weight of a state.
func (l *CompactLattice) SetFinal(s int32, w CompactWeight) { l.states[s].final = w }

// Final returns the final weight of a state.
func (l *CompactLattice) Final(s int32) CompactWeight { return l.states[s].final }

// AddArc appends an outgoing arc to a state.
func (l *CompactLattice) AddArc(s int32, a CompactArc) {
	l.states[s].arcs = append(l.states[s].arcs, a)
}

// Arcs returns the outgoing arcs of a state. Callers must not modify
// the returned slice; use SetArc to rewrite an arc in place.
func (l *CompactLattice) Arcs(s int32) []CompactArc { return l.states[s].arcs }

// Arc returns the arc at a given position of a state.
func (l *CompactLattice) Arc(s int32, pos int) CompactArc { return l.states[s].arcs[pos] }

// SetArc rewrites the arc at a given position of a state.
func (l *CompactLattice) SetArc(s int32, pos int, a CompactArc) {
	l.states[s].arcs[pos] = a
}

// NumStates returns the number of states.
func (l *CompactLattice) NumStates() int { return len(l.states) }

// NumArcs returns the total arc count.
func (l *CompactLattice) NumArcs() int {
	n := 0
	for i := range l.states {
		n += len(l.states[i].arcs)
	}
	return n
}

// Clone returns a deep copy.
func (l *CompactLattice) Clone() *CompactLattice {
	c := &CompactLattice{start: l.start, states: make([]compactState, len(l.states))}
	for i := range l.states {
		s := compactState{final: l.states[i].final}
		s.arcs = append([]CompactArc(nil), l.states[i].arcs...)
		c.states[i] = s
	}
	return c
}
