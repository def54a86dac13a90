package decoder

import (
	"fmt"
	"log/slog"

	"github.com/ieee0824/lattice-go/lat"
)

// finalArc locates one boundary arc in the appended lattice: the arc at
// position pos out of state whose output label is a boundary label and
// whose destination was the chunk's superfinal state.
type finalArc struct {
	state int32
	pos   int
}

// incrementalDeterminizer owns the growing determinized lattice. Each
// raw chunk is determinized on word labels and stitched onto the
// result: boundary arcs from the previous chunk are redirected to the
// matching first-frame states of the new one, cancelling the
// provisional costs that guided pruned determinization.
type incrementalDeterminizer struct {
	cfg Config
	log *slog.Logger

	clat          *lat.CompactLattice
	finalArcs     []finalArc // boundary arcs of the chunk just appended
	finalArcsPrev []finalArc
	finalized     bool
}

func newIncrementalDeterminizer(cfg Config, log *slog.Logger) *incrementalDeterminizer {
	return &incrementalDeterminizer{cfg: cfg, log: log, clat: lat.NewCompactLattice()}
}

func (det *incrementalDeterminizer) init() {
	det.finalArcs = det.finalArcs[:0]
	det.finalArcsPrev = det.finalArcsPrev[:0]
	det.clat = lat.NewCompactLattice()
	det.finalized = false
}

// processChunk determinizes one raw chunk and appends it. The beam here
// exceeds the lattice beam so no boundary arc can be pruned away by
// determinization itself.
func (det *incrementalDeterminizer) processChunk(raw *lat.Lattice, firstFrame, lastFrame int, initialCost, finalCost map[int32]float64) error {
	notFirstChunk := firstFrame != 0

	lat.Invert(raw) // determinize on word labels
	clat, complete, err := lat.DeterminizePruned(raw, det.cfg.Beam, det.cfg.DetOpts)
	if err != nil {
		return fmt.Errorf("decoder: chunk determinization: %w", err)
	}
	if !complete {
		det.log.Warn("determinization finished earlier than the beam",
			"firstFrame", firstFrame, "lastFrame", lastFrame)
	}

	det.finalArcs, det.finalArcsPrev = det.finalArcsPrev, det.finalArcs
	det.finalArcs = det.finalArcs[:0]

	det.appendChunk(clat, notFirstChunk, initialCost, finalCost)
	det.log.Debug("appended lattice chunk",
		"firstFrame", firstFrame, "lastFrame", lastFrame,
		"chunkStates", clat.NumStates(), "latticeStates", det.clat.NumStates())
	return nil
}

// appendChunk copies the determinized chunk onto the accumulated
// lattice and stitches the chunk boundary.
func (det *incrementalDeterminizer) appendChunk(clat *lat.CompactLattice, notFirstChunk bool, initialCost, finalCost map[int32]float64) {
	olat := det.clat
	stateOffset := int32(olat.NumStates())
	if notFirstChunk {
		// the chunk's initial state is not copied; it only exists to
		// carry the boundary arcs
		stateOffset--
	}

	// boundary label -> arc position out of the chunk's initial state
	initialArcMap := make(map[int32]int)
	for s := int32(0); s < int32(clat.NumStates()); s++ {
		stateAppended := int32(-1)
		if !notFirstChunk || s != 0 {
			stateAppended = s + stateOffset
			if got := olat.AddState(); got != stateAppended {
				panic("decoder: chunk state numbering out of sync")
			}
			olat.SetFinal(stateAppended, clat.Final(s))
		}
		for pos, arc := range clat.Arcs(s) {
			if !notFirstChunk || s != 0 {
				copied := arc
				copied.NextState += stateOffset
				olat.AddArc(stateAppended, copied)
			}
			if arc.Label > det.cfg.MaxWordID {
				if notFirstChunk && s == 0 {
					initialArcMap[arc.Label] = pos
				} else {
					// a boundary arc into the chunk's superfinal state,
					// to be redirected when the next chunk arrives
					if clat.Final(arc.NextState).IsZero() {
						det.log.Warn("boundary arc into non-final state", "label", arc.Label)
					}
					det.finalArcs = append(det.finalArcs, finalArc{state: stateAppended, pos: pos})
				}
			}
		}
	}

	if !notFirstChunk {
		olat.SetStart(0)
		return
	}

	if len(det.finalArcsPrev) == 0 {
		det.log.Warn("no boundary arcs recorded for previous chunk; lattice may be disconnected")
		return
	}
	var prevFinalStates []int32
	for _, fa := range det.finalArcsPrev {
		arcChunk1 := olat.Arc(fa.state, fa.pos)
		pos2, ok := initialArcMap[arcChunk1.Label]
		if !ok {
			// the matching token was pruned between the chunks
			continue
		}
		arcChunk2 := clat.Arc(0, pos2)
		if arcChunk2.Label != arcChunk1.Label {
			panic("decoder: boundary label mismatch while stitching")
		}
		stateChunk1 := arcChunk2.NextState + stateOffset
		prevFinalState := arcChunk1.NextState
		prevFinalStates = append(prevFinalStates, prevFinalState)

		// Redirect the boundary arc to the matching state of the new
		// chunk, multiplying in the new chunk's entry weight and the
		// old superfinal weight, and cancelling both provisional
		// offsets. The same token guarantees the labels match.
		mod := arcChunk1
		mod.NextState = stateChunk1
		ic, ok := initialCost[arcChunk1.Label]
		if !ok {
			panic("decoder: missing initial cost for boundary label")
		}
		fc, ok := finalCost[arcChunk1.Label]
		if !ok {
			panic("decoder: missing final cost for boundary label")
		}
		w := arcChunk2.Weight.
			Times(olat.Final(prevFinalState)).
			Times(lat.CompactWeight{Weight: lat.Weight{Acoustic: -ic}}).
			Times(lat.CompactWeight{Weight: lat.Weight{Acoustic: -fc}}).
			Times(mod.Weight)
		mod.Weight = w
		mod.Label = 0
		olat.SetArc(fa.state, fa.pos, mod)
	}
	if len(prevFinalStates) == 0 {
		det.log.Warn("no boundary arc survived between chunks; lattice may be disconnected")
	}
	// The old superfinal states stop being final; arcs still pointing at
	// them lead nowhere and fall away on Connect.
	for _, s := range prevFinalStates {
		olat.SetFinal(s, lat.CompactWeightZero())
	}
}

// finalize trims the accumulated lattice and, when asked, runs one full
// pruned determinization over it at the lattice beam. Idempotent.
func (det *incrementalDeterminizer) finalize(redeterminize bool) error {
	if det.finalized {
		return nil
	}
	if redeterminize {
		lat.Connect(det.clat)
		l := lat.ConvertToLattice(det.clat)
		lat.Invert(l)
		if err := lat.TopSort(l); err != nil {
			return fmt.Errorf("decoder: state-level lattice not sortable (empty words or epsilon cycles): %w", err)
		}
		clat, complete, err := lat.DeterminizePruned(l, det.cfg.LatticeBeam, det.cfg.DetOpts)
		if err != nil {
			return fmt.Errorf("decoder: redeterminization: %w", err)
		}
		if !complete {
			det.log.Warn("redeterminization finished earlier than the beam")
		}
		det.clat = clat
	}
	lat.Connect(det.clat)
	det.log.Debug("finalized lattice", "states", det.clat.NumStates())
	det.finalized = true
	return nil
}

// determinizedLattice returns a copy of the accumulated lattice so the
// caller's snapshot survives later chunk appends.
func (det *incrementalDeterminizer) determinizedLattice() *lat.CompactLattice {
	return det.clat.Clone()
}
