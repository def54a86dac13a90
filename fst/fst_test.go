package fst

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T) *VectorFst {
	t.Helper()
	f := NewVectorFst()
	s0 := f.AddState()
	s1 := f.AddState()
	s2 := f.AddState()
	f.SetStart(s0)
	f.AddArc(s0, Arc{ILabel: 1, OLabel: 10, Weight: 0.5, NextState: s1})
	f.AddArc(s1, Arc{ILabel: Epsilon, OLabel: 0, Weight: 0.25, NextState: s2})
	f.AddArc(s1, Arc{ILabel: 2, OLabel: 11, Weight: 1, NextState: s2})
	f.SetFinal(s2, 0.75)
	return f
}

func TestVectorFst(t *testing.T) {
	f := buildGraph(t)
	assert.Equal(t, int32(0), f.Start())
	assert.Equal(t, 3, f.NumStates())
	assert.Equal(t, "vector", f.Type())
	assert.Equal(t, 0, f.NumInputEpsilons(0))
	assert.Equal(t, 1, f.NumInputEpsilons(1))
	assert.True(t, f.Final(0).IsZero())
	assert.Equal(t, Weight(0.75), f.Final(2))
	require.Len(t, f.Arcs(1), 2)
}

func TestConstFstMatchesVector(t *testing.T) {
	v := buildGraph(t)
	c := NewConstFst(v)
	assert.Equal(t, "const", c.Type())
	assert.Equal(t, v.Start(), c.Start())
	require.Equal(t, v.NumStates(), c.NumStates())
	for s := int32(0); s < int32(v.NumStates()); s++ {
		assert.Equal(t, v.Final(s), c.Final(s))
		assert.Equal(t, v.NumInputEpsilons(s), c.NumInputEpsilons(s))
		require.Len(t, c.Arcs(s), len(v.Arcs(s)))
		for i, a := range v.Arcs(s) {
			assert.Equal(t, a, c.Arcs(s)[i])
		}
	}
}

func TestWeightSemiring(t *testing.T) {
	assert.Equal(t, Weight(3), Times(1, 2))
	assert.Equal(t, Weight(1), Plus(1, 2))
	assert.Equal(t, Weight(1), Plus(2, 1))
	assert.True(t, WeightZero().IsZero())
	assert.False(t, WeightOne().IsZero())
	assert.True(t, Times(WeightZero(), 1).IsZero())
}

func TestReadText(t *testing.T) {
	const text = `
0 1 1 10 0.5
1 2 0 0 0.25
1 2 2 11 1
2 0.75
`
	g, err := ReadText(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, int32(0), g.Start())
	assert.Equal(t, 3, g.NumStates())
	assert.Equal(t, Weight(0.75), g.Final(2))
	require.Len(t, g.Arcs(0), 1)
	assert.Equal(t, Arc{ILabel: 1, OLabel: 10, Weight: 0.5, NextState: 1}, g.Arcs(0)[0])
	assert.Equal(t, 1, g.NumInputEpsilons(1))
}

func TestReadTextDefaults(t *testing.T) {
	// arcs without weight default to one, final lines without weight too
	g, err := ReadText(strings.NewReader("0 1 1 2\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, WeightOne(), g.Arcs(0)[0].Weight)
	assert.Equal(t, WeightOne(), g.Final(1))
}

func TestReadTextErrors(t *testing.T) {
	_, err := ReadText(strings.NewReader("0 1 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	_, err = ReadText(strings.NewReader("0 1 x 2 0.5\n"))
	require.Error(t, err)

	_, err = ReadText(strings.NewReader("0 1 1 2 nope\n"))
	require.Error(t, err)
}

func TestWriteTextRoundTrip(t *testing.T) {
	v := buildGraph(t)
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, v))

	g, err := ReadText(&buf)
	require.NoError(t, err)
	require.Equal(t, v.NumStates(), g.NumStates())
	assert.Equal(t, v.Start(), g.Start())
	for s := int32(0); s < int32(v.NumStates()); s++ {
		assert.Equal(t, v.Arcs(s), g.Arcs(s))
		assert.Equal(t, v.Final(s), g.Final(s))
	}
}
