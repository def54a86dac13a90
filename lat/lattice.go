package lat

// Arc is a transition in a state-level lattice. ILabel is a
// transition-id (0 = epsilon), OLabel a word-id or a synthetic
// boundary label.
type Arc struct {
	ILabel    int32
	OLabel    int32
	Weight    Weight
	NextState int32
}

type latticeState struct {
	arcs  []Arc
	final Weight
}

// Lattice is a mutable state-level lattice: an acceptor on
// transition-ids carrying (graph, acoustic) weights, with word-ids as
// output labels.
type Lattice struct {
	start  int32
	states []latticeState
}

// NewLattice returns an empty lattice.
func NewLattice() *Lattice {
	return &Lattice{start: -1}
}

// AddState appends a new state and returns its id.
func (l *Lattice) AddState() int32 {
	l.states = append(l.states, latticeState{final: WeightZero()})
	return int32(len(l.states) - 1)
}

// DeleteStates removes all states.
func (l *Lattice) DeleteStates() {
	l.states = l.states[:0]
	l.start = -1
}

// SetStart marks the start state.
func (l *Lattice) SetStart(s int32) { l.start = s }

// Start returns the start state, or -1 if empty.
func (l *Lattice) Start() int32 { return l.start }

// SetFinal sets the final weight of a state.
func (l *Lattice) SetFinal(s int32, w Weight) { l.states[s].final = w }

// Final returns the final weight of a state.
func (l *Lattice) Final(s int32) Weight { return l.states[s].final }

// AddArc appends an outgoing arc to a state.
func (l *Lattice) AddArc(s int32, a Arc) {
	l.states[s].arcs = append(l.states[s].arcs, a)
}

// Arcs returns the outgoing arcs of a state. Callers must not modify
// the returned slice.
func (l *Lattice) Arcs(s int32) []Arc { return l.states[s].arcs }

// NumStates returns the number of states.
func (l *Lattice) NumStates() int { return len(l.states) }

// NumArcs returns the total arc count.
func (l *Lattice) NumArcs() int {
	n := 0
	for i := range l.states {
		n += len(l.states[i].arcs)
	}
	return n
}
