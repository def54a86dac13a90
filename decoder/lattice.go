package decoder

import (
	"errors"

	"github.com/ieee0824/lattice-go/lat"
)

// GetLattice determinizes and appends any undeterminized chunk up to
// lastFrameOfChunk, then returns a snapshot of the accumulated compact
// lattice. After FinalizeDecoding the lattice is also finalized, with a
// full redeterminization if asked. A lattice with zero states and nil
// error means the search failed (no surviving path).
func (d *Decoder) GetLattice(useFinalProbs, redeterminize bool, lastFrameOfChunk int) (*lat.CompactLattice, error) {
	notFirstChunk := d.lastGetLatticeFrame != 0
	if d.lastGetLatticeFrame < lastFrameOfChunk {
		raw, err := d.getRawLattice(d.lastGetLatticeFrame, lastFrameOfChunk,
			notFirstChunk, !d.finalized, useFinalProbs)
		if errors.Is(err, ErrNoTokens) {
			d.log.Warn("search failed; returning an empty lattice", "err", err)
			return lat.NewCompactLattice(), nil
		}
		if err != nil {
			return nil, err
		}
		if err := d.det.processChunk(raw, d.lastGetLatticeFrame, lastFrameOfChunk,
			d.stateLabelInitialCost, d.stateLabelFinalCost); err != nil {
			return nil, err
		}
		d.lastGetLatticeFrame = lastFrameOfChunk
	} else if d.lastGetLatticeFrame > lastFrameOfChunk {
		d.log.Warn("lattice already determinized past requested frame",
			"requested", lastFrameOfChunk, "determinized", d.lastGetLatticeFrame)
	}
	if d.finalized {
		if err := d.det.finalize(redeterminize); err != nil {
			return nil, err
		}
	}
	return d.det.determinizedLattice(), nil
}

// GetRawLattice returns the state-level form of the lattice decoded so
// far, with transition-ids on input labels and words on output labels.
func (d *Decoder) GetRawLattice(useFinalProbs bool) (*lat.Lattice, error) {
	clat, err := d.GetLattice(useFinalProbs, d.cfg.Redeterminize, d.NumFramesDecoded())
	if err != nil {
		return nil, err
	}
	return lat.ConvertToLattice(clat), nil
}

// GetBestPath returns the single best path through the lattice decoded
// so far, as a linear compact lattice.
func (d *Decoder) GetBestPath(useFinalProbs bool) (*lat.CompactLattice, error) {
	clat, err := d.GetLattice(useFinalProbs, d.cfg.Redeterminize, d.NumFramesDecoded())
	if err != nil {
		return nil, err
	}
	return lat.ShortestPath(clat)
}

// BestPathBackpointers recovers the best word sequence directly from
// the token backpointers, without touching the lattice machinery. It
// reflects the tokens as pruned so far; call it any time after at
// least one frame has been decoded. With useFinalProbs the traceback
// starts from the best token reaching a graph final state when one
// exists.
func (d *Decoder) BestPathBackpointers(useFinalProbs bool) []int32 {
	framePlusOne := len(d.activeToks) - 1
	if framePlusOne < 0 || d.activeToks[framePlusOne].toks == nil {
		return nil
	}

	var best *token
	bestCost := 0.0
	if !d.finalized && useFinalProbs {
		finalCosts, _, _ := d.computeFinalCosts(true)
		for tok := d.activeToks[framePlusOne].toks; tok != nil; tok = tok.next {
			cost := tok.totCost
			if len(finalCosts) > 0 {
				fc, ok := finalCosts[tok]
				if !ok {
					continue
				}
				cost += fc
			}
			if best == nil || cost < bestCost {
				best, bestCost = tok, cost
			}
		}
	}
	if best == nil {
		for tok := d.activeToks[framePlusOne].toks; tok != nil; tok = tok.next {
			cost := tok.totCost
			if d.finalized && useFinalProbs && len(d.finalCosts) > 0 {
				fc, ok := d.finalCosts[tok]
				if !ok {
					continue
				}
				cost += fc
			}
			if best == nil || cost < bestCost {
				best, bestCost = tok, cost
			}
		}
	}

	// Walk backpointers to the start, collecting the word emitted by
	// the link between each consecutive token pair.
	var rev []int32
	for tok := best; tok != nil && tok.backpointer != nil; tok = tok.backpointer {
		prev := tok.backpointer
		bestWord := int32(0)
		bestLinkCost := 0.0
		found := false
		for link := prev.links; link != nil; link = link.next {
			if link.nextTok != tok {
				continue
			}
			cost := prev.totCost + link.graphCost + link.acousticCost - tok.totCost
			if !found || cost < bestLinkCost {
				found, bestLinkCost, bestWord = true, cost, link.olabel
			}
		}
		if bestWord != 0 && bestWord <= d.cfg.MaxWordID {
			rev = append(rev, bestWord)
		}
	}
	words := make([]int32, len(rev))
	for i, w := range rev {
		words[len(rev)-1-i] = w
	}
	return words
}
