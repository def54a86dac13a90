package decoder

import (
	"errors"
	"fmt"
	"math"

	"github.com/ieee0824/lattice-go/lat"
)

// ErrEpsilonCycle is returned when the decoding graph's epsilon
// transitions form a cycle, which makes the per-frame token graph
// unsortable.
var ErrEpsilonCycle = errors.New("decoder: epsilon cycles in decoding graph")

// ErrNoTokens marks a frame with no surviving tokens found during raw
// lattice extraction. GetLattice turns it into an empty lattice with a
// warning rather than returning it.
var ErrNoTokens = errors.New("decoder: no tokens active")

// topSortTokens orders the tokens of one frame so that every epsilon
// link goes from an earlier position to a later one. Tokens are seeded
// in reverse list order, which is close to topological already because
// new tokens are pushed at the front; violators are bumped past the
// current maximum and reprocessed until the order settles.
func topSortTokens(tokList *token) ([]*token, error) {
	pos := make(map[*token]int)
	numToks := 0
	for tok := tokList; tok != nil; tok = tok.next {
		numToks++
	}
	cur := 0
	for tok := tokList; tok != nil; tok = tok.next {
		cur++
		pos[tok] = numToks - cur
	}

	reprocess := make(map[*token]struct{})
	bump := func(tok *token) {
		p := pos[tok]
		for link := tok.links; link != nil; link = link.next {
			if link.ilabel != 0 {
				// Non-epsilon links cross into the next frame and do
				// not constrain the order within this one.
				continue
			}
			np, ok := pos[link.nextTok]
			if !ok {
				continue
			}
			if np < p {
				pos[link.nextTok] = cur
				cur++
				reprocess[link.nextTok] = struct{}{}
			}
		}
	}
	for tok := tokList; tok != nil; tok = tok.next {
		bump(tok)
		delete(reprocess, tok)
	}

	const maxLoop = 1000000
	for loop := 0; len(reprocess) > 0; loop++ {
		if loop >= maxLoop {
			return nil, ErrEpsilonCycle
		}
		batch := make([]*token, 0, len(reprocess))
		for tok := range reprocess {
			batch = append(batch, tok)
		}
		for _, tok := range batch {
			delete(reprocess, tok)
		}
		for _, tok := range batch {
			bump(tok)
		}
	}

	out := make([]*token, cur)
	for tok, p := range pos {
		out[p] = tok
	}
	return out, nil
}

// getRawLattice builds the state-level lattice for frames frameBegin
// through frameEnd out of the surviving tokens and forward links.
//
// With createInitialState (every chunk but the first), state 0 is a
// fresh initial state with one epsilon arc per first-frame token,
// labeled with the token's boundary label and weighted by its total
// cost, so the chunk can be stitched onto the previous one. With
// createFinalState (every chunk but the last), a fresh superfinal
// state collects one arc per last-frame token, labeled with a newly
// assigned boundary label and weighted by the token's final weight
// times its forward slack.
func (d *Decoder) getRawLattice(frameBegin, frameEnd int, createInitialState, createFinalState, useFinalProbs bool) (*lat.Lattice, error) {
	if d.finalized && !useFinalProbs {
		panic("decoder: getRawLattice without final probs after FinalizeDecoding")
	}
	if frameEnd <= 0 {
		panic("decoder: getRawLattice with empty frame range")
	}

	var finalCosts map[*token]float64
	if d.finalized {
		finalCosts = d.finalCosts
	} else if useFinalProbs {
		finalCosts, _, _ = d.computeFinalCosts(true)
	}

	ofst := lat.NewLattice()
	if createInitialState {
		ofst.AddState()
	}

	tokMap := make(map[*token]int32, d.numToks/2+3)
	for f := frameBegin; f <= frameEnd; f++ {
		if d.activeToks[f].toks == nil {
			return nil, fmt.Errorf("%w: frame %d", ErrNoTokens, f)
		}
		sorted, err := topSortTokens(d.activeToks[f].toks)
		if err != nil {
			return nil, err
		}
		for _, tok := range sorted {
			if tok != nil {
				tokMap[tok] = ofst.AddState()
			}
		}
	}
	ofst.SetStart(0)

	if createInitialState {
		for tok := d.activeToks[frameBegin].toks; tok != nil; tok = tok.next {
			id, ok := d.stateLabelMap[tok]
			if !ok {
				// No boundary label was recorded for this token when the
				// previous chunk ended; the path cannot be stitched, so
				// leave it to be trimmed.
				d.log.Warn("first-frame token has no boundary label", "frame", frameBegin)
				continue
			}
			// The token's total cost seeds the arc weight so pruned
			// determinization sees realistic path costs; the stitching
			// pass cancels it back out.
			costOffset := tok.totCost
			d.stateLabelInitialCost[id] = costOffset
			ofst.AddArc(0, lat.Arc{
				ILabel:    0,
				OLabel:    id,
				Weight:    lat.Weight{Graph: 0, Acoustic: costOffset},
				NextState: tokMap[tok],
			})
		}
	}

	for f := frameBegin; f <= frameEnd; f++ {
		for tok := d.activeToks[f].toks; tok != nil; tok = tok.next {
			curState := tokMap[tok]
			for link := tok.links; link != nil; link = link.next {
				if f == frameEnd && link.ilabel > 0 {
					// Emitting links out of the last frame belong to
					// the next chunk.
					continue
				}
				nextState, ok := tokMap[link.nextTok]
				if !ok {
					panic("decoder: forward link to unmapped token")
				}
				costOffset := 0.0
				if link.ilabel != 0 {
					costOffset = d.costOffsets[f]
				}
				ofst.AddArc(curState, lat.Arc{
					ILabel:    link.ilabel,
					OLabel:    link.olabel,
					Weight:    lat.Weight{Graph: link.graphCost, Acoustic: link.acousticCost - costOffset},
					NextState: nextState,
				})
			}
			if f == frameEnd {
				weight := lat.WeightOne()
				if useFinalProbs && len(finalCosts) != 0 {
					if fc, ok := finalCosts[tok]; ok {
						weight = lat.Weight{Graph: fc, Acoustic: 0}
					} else {
						weight = lat.WeightZero()
					}
				}
				ofst.SetFinal(curState, weight)
			}
		}
	}

	if createFinalState {
		endState := ofst.AddState()
		ofst.SetFinal(endState, lat.WeightOne())

		d.stateLabelMap = make(map[*token]int32)
		for tok := d.activeToks[frameEnd].toks; tok != nil; tok = tok.next {
			curState := tokMap[tok]
			id := d.stateLabelAvailable
			d.stateLabelAvailable++
			d.stateLabelMap[tok] = id
			finalWeight := ofst.Final(curState)
			if finalWeight.IsZero() {
				// The token has no final weight under the current final
				// costs; skip the boundary arc and let the stitching
				// pass treat it as pruned.
				d.log.Debug("last-frame token unreachable under final costs", "frame", frameEnd)
				continue
			}
			// The forward slack carries lookahead information from the
			// frames past this chunk; the stitching pass cancels it.
			costOffset := tok.extraCost
			if math.IsInf(costOffset, 1) {
				costOffset = 0
			}
			d.stateLabelFinalCost[id] = costOffset
			ofst.AddArc(curState, lat.Arc{
				ILabel:    0,
				OLabel:    id,
				Weight:    finalWeight.Times(lat.Weight{Graph: 0, Acoustic: costOffset}),
				NextState: endState,
			})
			ofst.SetFinal(curState, lat.WeightZero())
		}
	}
	if ofst.NumStates() == 0 {
		return nil, errors.New("decoder: empty raw lattice")
	}
	return ofst, nil
}
