package fst

// ConstFst is a frozen decoding graph: all arcs in one contiguous slice
// with per-state offsets. It trades mutability for cache locality and
// may be shared read-only across decoder instances.
type ConstFst struct {
	start   int32
	arcs    []Arc
	offsets []int32 // len = numStates+1
	finals  []Weight
	numIEps []int32
}

// NewConstFst freezes a VectorFst into a ConstFst.
func NewConstFst(src *VectorFst) *ConstFst {
	n := src.NumStates()
	c := &ConstFst{
		start:   src.Start(),
		offsets: make([]int32, n+1),
		finals:  make([]Weight, n),
		numIEps: make([]int32, n),
	}
	total := 0
	for s := 0; s < n; s++ {
		total += len(src.Arcs(int32(s)))
	}
	c.arcs = make([]Arc, 0, total)
	for s := 0; s < n; s++ {
		c.offsets[s] = int32(len(c.arcs))
		c.arcs = append(c.arcs, src.Arcs(int32(s))...)
		c.finals[s] = src.Final(int32(s))
		c.numIEps[s] = int32(src.NumInputEpsilons(int32(s)))
	}
	c.offsets[n] = int32(len(c.arcs))
	return c
}

// Start implements Graph.
func (c *ConstFst) Start() int32 { return c.start }

// Final implements Graph.
func (c *ConstFst) Final(state int32) Weight { return c.finals[state] }

// NumInputEpsilons implements Graph.
func (c *ConstFst) NumInputEpsilons(state int32) int { return int(c.numIEps[state]) }

// Arcs implements Graph.
func (c *ConstFst) Arcs(state int32) []Arc {
	return c.arcs[c.offsets[state]:c.offsets[state+1]]
}

// NumStates implements Graph.
func (c *ConstFst) NumStates() int { return len(c.finals) }

// Type implements Graph.
func (c *ConstFst) Type() string { return "const" }
