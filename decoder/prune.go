package decoder

import (
	"math"

	"github.com/ieee0824/lattice-go/internal/mathutil"
)

// pruneForwardLinks removes forward links from tokens on frame
// framePlusOne whose slack versus the frame's best path exceeds the
// lattice beam, and recomputes each token's extra cost as the minimum
// slack over its surviving links. extraCostsChanged reports whether any
// extra cost moved by more than delta, which means the previous frame
// must be reprocessed.
func (d *Decoder) pruneForwardLinks(framePlusOne int, delta float64) (extraCostsChanged, linksPruned bool) {
	if framePlusOne < 0 || framePlusOne >= len(d.activeToks) {
		panic("decoder: pruneForwardLinks frame out of range")
	}
	if d.activeToks[framePlusOne].toks == nil {
		if !d.warned {
			d.log.Warn("no tokens alive; pruning is inconsistent", "frame", framePlusOne)
			d.warned = true
		}
	}

	// Iterate to a fixed point. The link structure on one frame is
	// acyclic apart from the epsilon closure, so a few sweeps settle it.
	for changed := true; changed; {
		changed = false
		for tok := d.activeToks[framePlusOne].toks; tok != nil; tok = tok.next {
			tokExtraCost := math.Inf(1)
			var prev *forwardLink
			for link := tok.links; link != nil; {
				next := link.nextTok
				linkExtraCost := next.extraCost +
					(tok.totCost + link.acousticCost + link.graphCost - next.totCost)
				if math.IsNaN(linkExtraCost) {
					panic("decoder: link cost is NaN")
				}
				if linkExtraCost > d.cfg.LatticeBeam {
					nl := link.next
					if prev == nil {
						tok.links = nl
					} else {
						prev.next = nl
					}
					link = nl
					linksPruned = true
					continue
				}
				if linkExtraCost < 0 { // numerical round-off
					if linkExtraCost < -0.01 {
						d.log.Warn("negative link slack", "cost", linkExtraCost)
					}
					linkExtraCost = 0
				}
				if linkExtraCost < tokExtraCost {
					tokExtraCost = linkExtraCost
				}
				prev = link
				link = link.next
			}
			if !mathutil.ApproxEqual(tokExtraCost, tok.extraCost, delta) {
				changed = true
			}
			// A token with no surviving links gets +Inf extra cost and
			// will be reaped by pruneTokensForFrame.
			tok.extraCost = tokExtraCost
		}
		if changed {
			extraCostsChanged = true
		}
	}
	return extraCostsChanged, linksPruned
}

// pruneForwardLinksFinal is the terminal counterpart of
// pruneForwardLinks for the last frame: each frontier token's extra
// cost additionally carries its distance from the best final-state
// path, so paths that never reach a final state fall outside the
// lattice beam when final states were reachable.
func (d *Decoder) pruneForwardLinksFinal() {
	framePlusOne := len(d.activeToks) - 1
	if d.activeToks[framePlusOne].toks == nil {
		if !d.warned {
			d.log.Warn("no tokens alive at end of utterance", "frame", framePlusOne)
			d.warned = true
		}
	}

	d.finalCosts, d.finalRelativeCost, d.finalBestCost = d.computeFinalCosts(true)
	d.finalized = true
	d.deleteElems(d.toks.clear())

	const delta = 1e-5
	for changed := true; changed; {
		changed = false
		for tok := d.activeToks[framePlusOne].toks; tok != nil; tok = tok.next {
			var finalCost float64
			if math.IsInf(d.finalRelativeCost, 1) {
				// No token reached a final state; treat every frontier
				// token as final so the best paths still survive.
				finalCost = 0
			} else if fc, ok := d.finalCosts[tok]; ok {
				finalCost = fc
			} else {
				finalCost = math.Inf(1)
			}
			tokExtraCost := tok.totCost + finalCost - d.finalBestCost
			var prev *forwardLink
			for link := tok.links; link != nil; {
				next := link.nextTok
				linkExtraCost := next.extraCost +
					(tok.totCost + link.acousticCost + link.graphCost - next.totCost)
				if linkExtraCost > d.cfg.LatticeBeam {
					nl := link.next
					if prev == nil {
						tok.links = nl
					} else {
						prev.next = nl
					}
					link = nl
					continue
				}
				if linkExtraCost < 0 { // numerical round-off
					linkExtraCost = 0
				}
				if linkExtraCost < tokExtraCost {
					tokExtraCost = linkExtraCost
				}
				prev = link
				link = link.next
			}
			// Token-level pruning happens here rather than in
			// pruneTokensForFrame, by scheduling deletion via +Inf.
			if tokExtraCost > d.cfg.LatticeBeam {
				tokExtraCost = math.Inf(1)
			}
			if !mathutil.ApproxEqual(tokExtraCost, tok.extraCost, delta) {
				changed = true
			}
			tok.extraCost = tokExtraCost
		}
	}
}

// pruneTokensForFrame deletes tokens on frame framePlusOne whose extra
// cost is +Inf, meaning no surviving forward link (or, on the last
// frame, no final path within the beam) leads through them.
func (d *Decoder) pruneTokensForFrame(framePlusOne int) {
	if framePlusOne < 0 || framePlusOne >= len(d.activeToks) {
		panic("decoder: pruneTokensForFrame frame out of range")
	}
	slot := &d.activeToks[framePlusOne]
	if slot.toks == nil {
		if !d.warned {
			d.log.Warn("no tokens alive; pruning is inconsistent", "frame", framePlusOne)
			d.warned = true
		}
	}
	var prev *token
	for tok := slot.toks; tok != nil; {
		if math.IsInf(tok.extraCost, 1) {
			next := tok.next
			if prev == nil {
				slot.toks = next
			} else {
				prev.next = next
			}
			// Forget any lattice state label handed out for this token.
			delete(d.stateLabelMap, tok)
			d.numToks--
			tok = next
			continue
		}
		prev = tok
		tok = tok.next
	}
}

// pruneActiveTokens is the periodic backward pruning walk over all
// frames decoded so far. The dirty flags on each frame slot confine the
// walk to frames whose extra costs may still move, so steady-state work
// is proportional to the frontier, not the utterance.
func (d *Decoder) pruneActiveTokens(delta float64) {
	curFramePlusOne := d.NumFramesDecoded()
	before := d.numToks

	for f := curFramePlusOne - 1; f >= 0; f-- {
		if d.activeToks[f].mustPruneForwardLinks {
			extraCostsChanged, linksPruned := d.pruneForwardLinks(f, delta)
			if extraCostsChanged && f > 0 {
				d.activeToks[f-1].mustPruneForwardLinks = true
			}
			if linksPruned {
				d.activeToks[f].mustPruneTokens = true
			}
			d.activeToks[f].mustPruneForwardLinks = false
		}
		if f+1 < curFramePlusOne && d.activeToks[f+1].mustPruneTokens {
			d.pruneTokensForFrame(f + 1)
			d.activeToks[f+1].mustPruneTokens = false
		}
	}
	d.log.Debug("pruned tokens", "from", before, "to", d.numToks)
}
