package lat

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightAlgebra(t *testing.T) {
	a := Weight{Graph: 1, Acoustic: 2}
	b := Weight{Graph: 3, Acoustic: 4}

	assert.Equal(t, Weight{Graph: 4, Acoustic: 6}, a.Times(b))
	assert.Equal(t, a, a.Times(b).Divide(b))
	assert.Equal(t, a, a.Times(WeightOne()))
	assert.True(t, a.Times(WeightZero()).IsZero())

	assert.Equal(t, a, a.Plus(b))
	assert.Equal(t, a, b.Plus(a))
	assert.InDelta(t, 3.0, a.Total(), 1e-12)
}

func TestWeightPlusTieBreak(t *testing.T) {
	// Same total cost: the weight with more graph cost wins so Plus is
	// deterministic regardless of argument order.
	a := Weight{Graph: 2, Acoustic: 1}
	b := Weight{Graph: 1, Acoustic: 2}
	assert.Equal(t, a, a.Plus(b))
	assert.Equal(t, a, b.Plus(a))
}

func TestWeightZero(t *testing.T) {
	z := WeightZero()
	assert.True(t, z.IsZero())
	assert.False(t, WeightOne().IsZero())
	assert.True(t, math.IsInf(z.Total(), 1))
	assert.True(t, z.Times(WeightOne()).IsZero())
	assert.True(t, WeightOne().Times(z).IsZero())
}

func TestCompactWeightTimes(t *testing.T) {
	a := CompactWeight{Weight: Weight{Graph: 1}, Alignment: []int32{1, 2}}
	b := CompactWeight{Weight: Weight{Acoustic: 2}, Alignment: []int32{3}}

	p := a.Times(b)
	assert.Equal(t, Weight{Graph: 1, Acoustic: 2}, p.Weight)
	assert.Equal(t, []int32{1, 2, 3}, p.Alignment)

	assert.True(t, a.Times(CompactWeightZero()).IsZero())
	assert.Equal(t, a.Weight, a.Times(CompactWeightOne()).Weight)
}

func TestTopSortRenumbers(t *testing.T) {
	l := NewLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	s2 := l.AddState()
	l.SetStart(s2)
	l.AddArc(s2, Arc{ILabel: 1, NextState: s0, Weight: WeightOne()})
	l.AddArc(s0, Arc{ILabel: 2, NextState: s1, Weight: WeightOne()})
	l.SetFinal(s1, WeightOne())

	require.NoError(t, TopSort(l))
	assert.Equal(t, int32(0), l.Start())
	require.Equal(t, 3, l.NumStates())
	require.Len(t, l.Arcs(0), 1)
	assert.Equal(t, int32(1), l.Arcs(0)[0].NextState)
	require.Len(t, l.Arcs(1), 1)
	assert.Equal(t, int32(2), l.Arcs(1)[0].NextState)
	assert.False(t, l.Final(2).IsZero())
}

func TestTopSortDropsUnreachable(t *testing.T) {
	l := NewLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	l.AddState() // unreachable
	l.SetStart(s0)
	l.AddArc(s0, Arc{ILabel: 1, NextState: s1, Weight: WeightOne()})
	l.SetFinal(s1, WeightOne())

	require.NoError(t, TopSort(l))
	assert.Equal(t, 2, l.NumStates())
}

func TestTopSortCycle(t *testing.T) {
	l := NewLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, Arc{ILabel: 1, NextState: s1, Weight: WeightOne()})
	l.AddArc(s1, Arc{ILabel: 2, NextState: s0, Weight: WeightOne()})

	err := TopSort(l)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))
}

func TestConnectTrims(t *testing.T) {
	l := NewCompactLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	s2 := l.AddState() // dead end
	s3 := l.AddState() // unreachable
	l.SetStart(s0)
	l.AddArc(s0, CompactArc{Label: 1, Weight: CompactWeightOne(), NextState: s1})
	l.AddArc(s0, CompactArc{Label: 2, Weight: CompactWeightOne(), NextState: s2})
	l.SetFinal(s1, CompactWeightOne())
	l.SetFinal(s3, CompactWeightOne())

	Connect(l)
	assert.Equal(t, 2, l.NumStates())
	assert.Equal(t, 1, l.NumArcs())
	require.Len(t, l.Arcs(l.Start()), 1)
	assert.Equal(t, int32(1), l.Arcs(l.Start())[0].Label)
}

func TestConnectEmptiesDisconnected(t *testing.T) {
	l := NewCompactLattice()
	s0 := l.AddState()
	l.AddState()
	l.SetStart(s0) // no final state reachable

	Connect(l)
	assert.Equal(t, 0, l.NumStates())
	assert.Equal(t, int32(-1), l.Start())
}

func TestShortestPathPicksBest(t *testing.T) {
	l := NewCompactLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	s2 := l.AddState()
	s3 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, CompactArc{Label: 5, Weight: CompactWeight{Weight: Weight{Graph: 1}}, NextState: s1})
	l.AddArc(s0, CompactArc{Label: 6, Weight: CompactWeight{Weight: Weight{Graph: 3}}, NextState: s2})
	l.AddArc(s1, CompactArc{Label: 7, Weight: CompactWeight{Weight: Weight{Acoustic: 2}}, NextState: s3})
	l.AddArc(s2, CompactArc{Label: 8, Weight: CompactWeight{Weight: Weight{Acoustic: 0.5}}, NextState: s3})
	l.SetFinal(s3, CompactWeightOne())

	best, err := ShortestPath(l)
	require.NoError(t, err)
	require.Equal(t, 3, best.NumStates())

	var labels []int32
	total := 0.0
	s := best.Start()
	for {
		arcs := best.Arcs(s)
		if len(arcs) == 0 {
			break
		}
		require.Len(t, arcs, 1)
		labels = append(labels, arcs[0].Label)
		total += arcs[0].Weight.Weight.Total()
		s = arcs[0].NextState
	}
	assert.Equal(t, []int32{5, 7}, labels)
	assert.InDelta(t, 3.0, total, 1e-12)
	assert.False(t, best.Final(s).IsZero())
}

func TestShortestPathEmpty(t *testing.T) {
	best, err := ShortestPath(NewCompactLattice())
	require.NoError(t, err)
	assert.Equal(t, 0, best.NumStates())

	// start but no reachable final state
	l := NewCompactLattice()
	l.SetStart(l.AddState())
	best, err = ShortestPath(l)
	require.NoError(t, err)
	assert.Equal(t, 0, best.NumStates())
}

func TestInvertSwapsLabels(t *testing.T) {
	l := NewLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, Arc{ILabel: 1, OLabel: 2, NextState: s1, Weight: WeightOne()})

	Invert(l)
	a := l.Arcs(s0)[0]
	assert.Equal(t, int32(2), a.ILabel)
	assert.Equal(t, int32(1), a.OLabel)
}

func TestConvertToLatticeExpandsAlignments(t *testing.T) {
	cl := NewCompactLattice()
	s0 := cl.AddState()
	s1 := cl.AddState()
	cl.SetStart(s0)
	cl.AddArc(s0, CompactArc{
		Label:     7,
		Weight:    CompactWeight{Weight: Weight{Graph: 1.5, Acoustic: 2.5}, Alignment: []int32{1, 2, 3}},
		NextState: s1,
	})
	cl.SetFinal(s1, CompactWeightOne())

	l := ConvertToLattice(cl)
	// two original states plus two inserted chain states
	assert.Equal(t, 4, l.NumStates())
	assert.Equal(t, 3, l.NumArcs())

	s := l.Start()
	var tids []int32
	var words []int32
	total := WeightOne()
	for len(l.Arcs(s)) > 0 {
		a := l.Arcs(s)[0]
		tids = append(tids, a.ILabel)
		if a.OLabel != 0 {
			words = append(words, a.OLabel)
		}
		total = total.Times(a.Weight)
		s = a.NextState
	}
	assert.Equal(t, []int32{1, 2, 3}, tids)
	assert.Equal(t, []int32{7}, words)
	assert.Equal(t, Weight{Graph: 1.5, Acoustic: 2.5}, total)
	assert.False(t, l.Final(s).IsZero())
}

func TestConvertToLatticeFinalAlignment(t *testing.T) {
	cl := NewCompactLattice()
	s0 := cl.AddState()
	cl.SetStart(s0)
	cl.SetFinal(s0, CompactWeight{Weight: Weight{Graph: 1}, Alignment: []int32{4, 5}})

	l := ConvertToLattice(cl)
	// the aligned final weight becomes a chain to a fresh final state
	assert.True(t, l.Final(s0).IsZero())
	assert.Equal(t, 2, l.NumArcs())
	s := s0
	for len(l.Arcs(s)) > 0 {
		s = l.Arcs(s)[0].NextState
	}
	assert.Equal(t, WeightOne(), l.Final(s))
}

func TestConvertToCompactRoundTrip(t *testing.T) {
	l := NewLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	s2 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, Arc{ILabel: 1, OLabel: 9, Weight: Weight{Acoustic: 0.5}, NextState: s1})
	l.AddArc(s1, Arc{ILabel: 0, OLabel: 0, Weight: Weight{Graph: 0.25}, NextState: s2})
	l.SetFinal(s2, WeightOne())

	cl := ConvertToCompact(l)
	assert.Equal(t, 3, cl.NumStates())
	a := cl.Arcs(s0)[0]
	assert.Equal(t, int32(9), a.Label)
	assert.Equal(t, []int32{1}, a.Weight.Alignment)
	// the epsilon arc carries no alignment
	assert.Empty(t, cl.Arcs(s1)[0].Weight.Alignment)
	assert.False(t, cl.Final(s2).IsZero())
}

// detLattice builds an acceptor-on-ILabel lattice with two equal-label
// paths of different cost plus one expensive alternative.
func detLattice() *Lattice {
	l := NewLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	s2 := l.AddState()
	s3 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, Arc{ILabel: 1, OLabel: 10, Weight: Weight{Graph: 1}, NextState: s1})
	l.AddArc(s0, Arc{ILabel: 1, OLabel: 10, Weight: Weight{Graph: 2}, NextState: s2})
	l.AddArc(s0, Arc{ILabel: 2, OLabel: 11, Weight: Weight{Graph: 50}, NextState: s3})
	l.SetFinal(s1, WeightOne())
	l.SetFinal(s2, WeightOne())
	l.SetFinal(s3, WeightOne())
	return l
}

func TestDeterminizeMergesEqualLabels(t *testing.T) {
	out, complete, err := DeterminizePruned(detLattice(), 100, DefaultDetOptions())
	require.NoError(t, err)
	assert.True(t, complete)

	// the two label-1 paths collapse into a single arc carrying the
	// better weight; the label-2 path survives the wide beam
	require.Len(t, out.Arcs(out.Start()), 2)
	var lab1 *CompactArc
	for i := range out.Arcs(out.Start()) {
		a := out.Arc(out.Start(), i)
		if a.Label == 1 {
			lab1 = &a
		}
	}
	require.NotNil(t, lab1)
	assert.InDelta(t, 1.0, lab1.Weight.Weight.Total(), 1e-9)
	assert.Equal(t, []int32{10}, lab1.Weight.Alignment)
	assert.False(t, out.Final(lab1.NextState).IsZero())
}

func TestDeterminizePrunesBeam(t *testing.T) {
	out, complete, err := DeterminizePruned(detLattice(), 10, DefaultDetOptions())
	require.NoError(t, err)
	assert.True(t, complete)

	// cost 50 vs best 1 is outside a beam of 10
	require.Len(t, out.Arcs(out.Start()), 1)
	assert.Equal(t, int32(1), out.Arcs(out.Start())[0].Label)
}

func TestDeterminizeMaxStatesTruncates(t *testing.T) {
	opts := DefaultDetOptions()
	opts.MaxStates = 1
	_, complete, err := DeterminizePruned(detLattice(), 100, opts)
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestDeterminizeEmptyInput(t *testing.T) {
	out, complete, err := DeterminizePruned(NewLattice(), 10, DefaultDetOptions())
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, 0, out.NumStates())
}

func TestDeterminizeCycleErrors(t *testing.T) {
	l := NewLattice()
	s0 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, Arc{ILabel: 1, NextState: s0, Weight: WeightOne()})
	l.SetFinal(s0, WeightOne())

	_, _, err := DeterminizePruned(l, 10, DefaultDetOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))
}

func TestWriteCompactText(t *testing.T) {
	l := NewCompactLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, CompactArc{
		Label:     3,
		Weight:    CompactWeight{Weight: Weight{Graph: 1.5, Acoustic: 2}, Alignment: []int32{7, 8}},
		NextState: s1,
	})
	l.SetFinal(s1, CompactWeightOne())

	var buf bytes.Buffer
	require.NoError(t, WriteCompactText(&buf, l))
	assert.Equal(t, "0\t1\t3\t1.5,2,7_8\n1\n", buf.String())
}

func TestCloneIsDeep(t *testing.T) {
	l := NewCompactLattice()
	s0 := l.AddState()
	s1 := l.AddState()
	l.SetStart(s0)
	l.AddArc(s0, CompactArc{Label: 1, Weight: CompactWeightOne(), NextState: s1})
	l.SetFinal(s1, CompactWeightOne())

	c := l.Clone()
	c.SetArc(s0, 0, CompactArc{Label: 2, Weight: CompactWeightOne(), NextState: s1})
	assert.Equal(t, int32(1), l.Arcs(s0)[0].Label)
	assert.Equal(t, int32(2), c.Arcs(s0)[0].Label)
}
