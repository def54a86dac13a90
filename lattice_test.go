package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/lattice-go/decoder"
	"github.com/ieee0824/lattice-go/fst"
)

func twoWordGraph(t *testing.T) fst.Graph {
	t.Helper()
	v := fst.NewVectorFst()
	s0 := v.AddState()
	s1 := v.AddState()
	s2 := v.AddState()
	v.SetStart(s0)
	v.AddArc(s0, fst.Arc{ILabel: 1, OLabel: 1, Weight: 0.5, NextState: s1})
	v.AddArc(s1, fst.Arc{ILabel: 2, OLabel: 2, Weight: 0.5, NextState: s2})
	v.SetFinal(s2, fst.WeightOne())
	return fst.NewConstFst(v)
}

var testSyms = map[int32]string{1: "one", 2: "two"}

func TestDecodeOneShot(t *testing.T) {
	res, clat, err := Decode(twoWordGraph(t), [][]float64{{5, 0}, {0, 5}},
		WithSymbols(testSyms))
	require.NoError(t, err)
	assert.Equal(t, "one two", res.Text)
	require.Len(t, res.Words, 2)
	assert.Equal(t, 0, res.Words[0].StartFrame)
	assert.Equal(t, 1, res.Words[1].StartFrame)
	assert.Greater(t, clat.NumStates(), 0)
}

func TestSessionStreaming(t *testing.T) {
	s, err := NewSession(twoWordGraph(t), WithSymbols(testSyms))
	require.NoError(t, err)

	require.NoError(t, s.Feed([]float64{5, 0}))
	require.NoError(t, s.Advance())
	assert.Equal(t, 1, s.NumFramesDecoded())

	partial, err := s.BestPath()
	require.NoError(t, err)
	assert.Equal(t, "one", partial.Text)

	require.NoError(t, s.Feed([]float64{0, 5}))
	require.NoError(t, s.Finalize())
	assert.Equal(t, 2, s.NumFramesDecoded())

	final, err := s.BestPath()
	require.NoError(t, err)
	assert.Equal(t, "one two", final.Text)
}

func TestSessionFeedAfterFinalize(t *testing.T) {
	s, err := NewSession(twoWordGraph(t))
	require.NoError(t, err)
	require.NoError(t, s.Feed([]float64{5, 0}, []float64{0, 5}))
	require.NoError(t, s.Finalize())

	assert.ErrorIs(t, s.Feed([]float64{1, 1}), decoder.ErrFinalized)
	assert.ErrorIs(t, s.Advance(), decoder.ErrFinalized)
	// finalizing again is harmless
	assert.NoError(t, s.Finalize())
}

func TestSessionCustomConfig(t *testing.T) {
	cfg := decoder.DefaultConfig()
	cfg.Beam = 20
	s, err := NewSession(twoWordGraph(t), WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 20.0, s.DecCfg.Beam)

	cfg.Beam = -1
	_, err = NewSession(twoWordGraph(t), WithConfig(cfg))
	require.Error(t, err)
}

func TestDecodeNoSymbols(t *testing.T) {
	res, _, err := Decode(twoWordGraph(t), [][]float64{{5, 0}, {0, 5}})
	require.NoError(t, err)
	assert.Equal(t, "1 2", res.Text)
}
