package decoder

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ieee0824/lattice-go/fst"
	"github.com/ieee0824/lattice-go/internal/mathutil"
	"github.com/ieee0824/lattice-go/lat"
)

// ErrFinalized is returned when an operation is not allowed after
// FinalizeDecoding.
var ErrFinalized = errors.New("decoder: decoding already finalized")

// Decoder is an incremental lattice-generating beam-search decoder
// over a weighted finite-state decoding graph. It maintains the active
// token set frame by frame and emits a determinized word lattice
// incrementally while decoding continues.
//
// A Decoder is not safe for concurrent use; decode one utterance at a
// time per instance. The graph may be shared read-only across
// instances.
type Decoder struct {
	graph fst.Graph
	cfg   Config
	log   *slog.Logger

	toks       *tokenStore
	activeToks []tokenList // indexed by frame-plus-one
	numToks    int

	queue    []int32   // scratch for the non-emitting closure
	tmpArray []float64 // scratch for cutoff selection

	costOffsets []float64
	warned      bool
	finalized   bool

	finalCosts        map[*token]float64
	finalRelativeCost float64
	finalBestCost     float64

	// incremental determinization state
	lastGetLatticeFrame   int
	stateLabelMap         map[*token]int32
	stateLabelAvailable   int32
	stateLabelInitialCost map[int32]float64
	stateLabelFinalCost   map[int32]float64
	det                   *incrementalDeterminizer
}

// New creates a decoder over a decoding graph. Call InitDecoding (or
// Decode) before feeding frames.
func New(graph fst.Graph, cfg Config) (*Decoder, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	d := &Decoder{
		graph: graph,
		cfg:   cfg,
		log:   slog.Default(),
		toks:  newTokenStore(),
	}
	// so on the first frame we do something reasonable
	d.toks.setSize(1000)
	d.det = newIncrementalDeterminizer(cfg, d.log)
	return d, nil
}

// SetLogger redirects the decoder's diagnostics.
func (d *Decoder) SetLogger(l *slog.Logger) {
	d.log = l
	d.det.log = l
}

// NumFramesDecoded returns the number of acoustic frames consumed so
// far.
func (d *Decoder) NumFramesDecoded() int { return len(d.activeToks) - 1 }

// NumActiveTokens returns the current total token count across frames.
func (d *Decoder) NumActiveTokens() int { return d.numToks }

// InitDecoding resets all per-utterance state, creates the start-state
// token and runs a non-emitting expansion at the configured beam.
func (d *Decoder) InitDecoding() {
	d.deleteElems(d.toks.clear())
	d.costOffsets = d.costOffsets[:0]
	d.clearActiveTokens()
	d.warned = false
	d.numToks = 0
	d.finalized = false
	d.finalCosts = nil

	start := d.graph.Start()
	if start == fst.NoState {
		panic("decoder: decoding graph has no start state")
	}
	d.activeToks = append(d.activeToks, tokenList{
		mustPruneForwardLinks: true,
		mustPruneTokens:       true,
	})
	startTok := newToken(0.0, 0.0, nil, nil, nil)
	d.activeToks[0].toks = startTok
	d.toks.insert(start, startTok)
	d.numToks++

	d.lastGetLatticeFrame = 0
	d.stateLabelMap = make(map[*token]int32)
	d.stateLabelAvailable = d.cfg.MaxWordID + 1
	d.stateLabelInitialCost = make(map[int32]float64)
	d.stateLabelFinalCost = make(map[int32]float64)
	d.det.init()

	d.processNonemitting(d.cfg.Beam)
}

// Decode decodes an entire utterance in one call and returns the final
// compact lattice. It reports an error on graph pathology; an empty
// lattice with nil error indicates a search failure (no surviving
// tokens).
func (d *Decoder) Decode(decodable Decodable) (*lat.CompactLattice, error) {
	d.InitDecoding()
	if err := d.AdvanceDecoding(decodable, -1); err != nil {
		return nil, err
	}
	d.FinalizeDecoding()
	return d.GetLattice(true, d.cfg.Redeterminize, d.NumFramesDecoded())
}

// AdvanceDecoding decodes up to maxFrames new frames (all ready frames
// if maxFrames < 0). Every PruneInterval frames it runs the periodic
// pruning pass, and once DeterminizeDelay frames have accumulated past
// the pruned prefix it determinizes and appends a lattice chunk.
func (d *Decoder) AdvanceDecoding(decodable Decodable, maxFrames int) error {
	if len(d.activeToks) == 0 || d.finalized {
		panic("decoder: InitDecoding must be called before AdvanceDecoding")
	}
	ready := decodable.NumFramesReady()
	if ready < d.NumFramesDecoded() {
		panic("decoder: decodable shrank between calls")
	}
	target := ready
	if maxFrames >= 0 && d.NumFramesDecoded()+maxFrames < target {
		target = d.NumFramesDecoded() + maxFrames
	}
	for d.NumFramesDecoded() < target {
		if d.NumFramesDecoded()%d.cfg.PruneInterval == 0 {
			d.pruneActiveTokens(d.cfg.LatticeBeam * d.cfg.PruneScale)
			if chunkEnd := d.NumFramesDecoded() - d.cfg.DeterminizeDelay; chunkEnd > 0 {
				if _, err := d.GetLattice(false, false, chunkEnd); err != nil {
					return err
				}
			}
		}
		cutoff := d.processEmitting(decodable)
		d.processNonemitting(cutoff)
	}
	return nil
}

// FinalizeDecoding runs the terminal pruning pass, taking the graph's
// final weights into account. After it returns the decoder is
// read-only: further AdvanceDecoding calls are disallowed.
func (d *Decoder) FinalizeDecoding() {
	finalFramePlusOne := d.NumFramesDecoded()
	before := d.numToks
	d.pruneForwardLinksFinal()
	for f := finalFramePlusOne - 1; f >= 0; f-- {
		// delta of zero means we must always update
		d.pruneForwardLinks(f, 0.0)
		d.pruneTokensForFrame(f + 1)
	}
	d.pruneTokensForFrame(0)
	d.log.Debug("finalize pruned tokens", "from", before, "to", d.numToks)
}

// FinalRelativeCost returns the cost difference between the best
// surviving path and the best path reaching a graph final state; +Inf
// if no token survives.
func (d *Decoder) FinalRelativeCost() float64 {
	if !d.finalized {
		_, rel, _ := d.computeFinalCosts(false)
		return rel
	}
	return d.finalRelativeCost
}

// findOrAddToken locates the token for a graph state on the frontier
// or inserts a fresh one, keeping the cheaper total cost on a revisit.
func (d *Decoder) findOrAddToken(state int32, framePlusOne int, totCost float64, backpointer *token) (tok *token, changed bool) {
	slot := &d.activeToks[framePlusOne]
	if e := d.toks.find(state); e != nil {
		tok = e.val
		if tok.totCost > totCost {
			tok.totCost = totCost
			tok.backpointer = backpointer
			// the old token stays linked in the frame list; stale
			// forward links leading to it are pruned later
			return tok, true
		}
		return tok, false
	}
	// tokens on the frontier have zero extra cost: any of them could
	// still end up on the winning path
	tok = newToken(totCost, 0.0, nil, slot.toks, backpointer)
	slot.toks = tok
	d.numToks++
	d.toks.insert(state, tok)
	return tok, true
}

func (d *Decoder) possiblyResizeHash(numToks int) {
	want := int(float64(numToks) * d.cfg.HashRatio)
	if want > d.toks.size() {
		d.toks.setSize(want)
	}
}

// getCutoff scans the detached frontier list, counts tokens, finds the
// best element and computes the expansion cutoff plus the adaptive
// beam per the max-active / min-active policy.
func (d *Decoder) getCutoff(listHead *elem) (cutoff float64, tokCount int, adaptiveBeam float64, bestElem *elem) {
	inf := math.Inf(1)
	best := inf
	count := 0
	if d.cfg.MaxActive == math.MaxInt32 && d.cfg.MinActive == 0 {
		for e := listHead; e != nil; e = e.tail {
			count++
			if e.val.totCost < best {
				best = e.val.totCost
				bestElem = e
			}
		}
		return best + d.cfg.Beam, count, d.cfg.Beam, bestElem
	}
	d.tmpArray = d.tmpArray[:0]
	for e := listHead; e != nil; e = e.tail {
		count++
		w := e.val.totCost
		d.tmpArray = append(d.tmpArray, w)
		if w < best {
			best = w
			bestElem = e
		}
	}
	beamCutoff := best + d.cfg.Beam
	minActiveCutoff := inf
	maxActiveCutoff := inf
	d.log.Debug("active tokens on frame", "frame", d.NumFramesDecoded(), "count", count)

	if len(d.tmpArray) > d.cfg.MaxActive {
		mathutil.NthElement(d.tmpArray, d.cfg.MaxActive)
		maxActiveCutoff = d.tmpArray[d.cfg.MaxActive]
	}
	if maxActiveCutoff < beamCutoff { // max-active is tighter than the beam
		return maxActiveCutoff, count, maxActiveCutoff - best + d.cfg.BeamDelta, bestElem
	}
	if len(d.tmpArray) > d.cfg.MinActive {
		if d.cfg.MinActive == 0 {
			minActiveCutoff = best
		} else {
			bound := d.tmpArray
			if len(d.tmpArray) > d.cfg.MaxActive {
				bound = d.tmpArray[:d.cfg.MaxActive]
			}
			mathutil.NthElement(bound, d.cfg.MinActive)
			minActiveCutoff = bound[d.cfg.MinActive]
		}
	}
	if minActiveCutoff > beamCutoff { // min-active is looser than the beam
		return minActiveCutoff, count, minActiveCutoff - best + d.cfg.BeamDelta, bestElem
	}
	return beamCutoff, count, d.cfg.Beam, bestElem
}

// processEmitting consumes one acoustic frame, expanding the detached
// frontier through all emitting arcs into a fresh frontier. Returns
// the cutoff for the following non-emitting pass.
func (d *Decoder) processEmitting(decodable Decodable) float64 {
	frame := len(d.activeToks) - 1 // zero-based frame for the decodable
	d.activeToks = append(d.activeToks, tokenList{
		mustPruneForwardLinks: true,
		mustPruneTokens:       true,
	})

	finalToks := d.toks.clear() // swap previous frontier for the new one
	curCutoff, tokCount, adaptiveBeam, bestElem := d.getCutoff(finalToks)
	d.log.Debug("adaptive beam", "frame", d.NumFramesDecoded(), "beam", adaptiveBeam)
	d.possiblyResizeHash(tokCount)

	nextCutoff := math.Inf(1)
	costOffset := 0.0

	// Lookahead over the best token's arcs to seed a reasonably tight
	// next cutoff before the main expansion.
	if bestElem != nil {
		state := bestElem.key
		tok := bestElem.val
		costOffset = -tok.totCost
		for _, arc := range d.graph.Arcs(state) {
			if arc.ILabel == fst.Epsilon {
				continue
			}
			newWeight := arc.Weight.Value() + costOffset -
				decodable.LogLikelihood(frame, arc.ILabel) + tok.totCost
			if newWeight+adaptiveBeam < nextCutoff {
				nextCutoff = newWeight + adaptiveBeam
			}
		}
	}

	for len(d.costOffsets) <= frame {
		d.costOffsets = append(d.costOffsets, 0.0)
	}
	d.costOffsets[frame] = costOffset

	for e := finalToks; e != nil; {
		state := e.key
		tok := e.val
		if tok.totCost <= curCutoff {
			for _, arc := range d.graph.Arcs(state) {
				if arc.ILabel == fst.Epsilon {
					continue
				}
				acCost := costOffset - decodable.LogLikelihood(frame, arc.ILabel)
				graphCost := arc.Weight.Value()
				totCost := tok.totCost + acCost + graphCost
				if totCost > nextCutoff {
					continue
				}
				if totCost+adaptiveBeam < nextCutoff {
					nextCutoff = totCost + adaptiveBeam // prune by best current token
				}
				nextTok, _ := d.findOrAddToken(arc.NextState, frame+1, totCost, tok)
				tok.links = &forwardLink{
					nextTok:      nextTok,
					ilabel:       arc.ILabel,
					olabel:       arc.OLabel,
					graphCost:    graphCost,
					acousticCost: acCost,
					next:         tok.links,
				}
			}
		}
		tail := e.tail
		d.toks.delete(e)
		e = tail
	}
	return nextCutoff
}

// processNonemitting runs the epsilon closure on the frontier: a
// worklist relaxation over input-epsilon arcs, regenerating a state's
// links whenever it is reprocessed.
func (d *Decoder) processNonemitting(cutoff float64) {
	framePlusOne := len(d.activeToks) - 1

	if d.toks.getList() == nil {
		if !d.warned {
			d.log.Warn("no surviving tokens", "frame", framePlusOne-1)
			d.warned = true
		}
	}

	d.queue = d.queue[:0]
	for e := d.toks.getList(); e != nil; e = e.tail {
		if d.graph.NumInputEpsilons(e.key) != 0 {
			d.queue = append(d.queue, e.key)
		}
	}

	for len(d.queue) > 0 {
		state := d.queue[len(d.queue)-1]
		d.queue = d.queue[:len(d.queue)-1]

		tok := d.toks.find(state).val
		curCost := tok.totCost
		if curCost > cutoff {
			continue
		}
		// Existing links are about to be regenerated, so the closure
		// graph stays clean on a revisit.
		tok.deleteForwardLinks()
		for _, arc := range d.graph.Arcs(state) {
			if arc.ILabel != fst.Epsilon {
				continue
			}
			graphCost := arc.Weight.Value()
			totCost := curCost + graphCost
			if totCost < cutoff {
				newTok, changed := d.findOrAddToken(arc.NextState, framePlusOne, totCost, tok)
				tok.links = &forwardLink{
					nextTok:   newTok,
					ilabel:    0,
					olabel:    arc.OLabel,
					graphCost: graphCost,
					next:      tok.links,
				}
				if changed && d.graph.NumInputEpsilons(arc.NextState) != 0 {
					d.queue = append(d.queue, arc.NextState)
				}
			}
		}
	}
}

// computeFinalCosts scans the frontier for tokens whose graph state is
// final, returning the per-token final costs (when wanted), the
// relative cost of the best final path versus the best surviving path,
// and the best final cost.
func (d *Decoder) computeFinalCosts(wantCosts bool) (finalCosts map[*token]float64, relativeCost, bestCost float64) {
	if d.finalized {
		panic("decoder: computeFinalCosts after FinalizeDecoding")
	}
	if wantCosts {
		finalCosts = make(map[*token]float64)
	}
	inf := math.Inf(1)
	best := inf
	bestWithFinal := inf
	for e := d.toks.getList(); e != nil; e = e.tail {
		state := e.key
		tok := e.val
		finalCost := d.graph.Final(state).Value()
		cost := tok.totCost
		if cost < best {
			best = cost
		}
		if cost+finalCost < bestWithFinal {
			bestWithFinal = cost + finalCost
		}
		if finalCosts != nil && !math.IsInf(finalCost, 1) {
			finalCosts[tok] = finalCost
		}
	}
	if math.IsInf(best, 1) && math.IsInf(bestWithFinal, 1) {
		relativeCost = inf
	} else {
		relativeCost = bestWithFinal - best
	}
	if !math.IsInf(bestWithFinal, 1) {
		bestCost = bestWithFinal
	} else {
		bestCost = best // no final state reached
	}
	return finalCosts, relativeCost, bestCost
}

func (d *Decoder) deleteElems(list *elem) {
	for e := list; e != nil; {
		tail := e.tail
		d.toks.delete(e)
		e = tail
	}
}

func (d *Decoder) clearActiveTokens() {
	for i := range d.activeToks {
		for tok := d.activeToks[i].toks; tok != nil; {
			next := tok.next
			tok.deleteForwardLinks()
			d.numToks--
			tok = next
		}
	}
	d.activeToks = d.activeToks[:0]
	if d.numToks != 0 {
		panic(fmt.Sprintf("decoder: token accounting leak: %d", d.numToks))
	}
}
