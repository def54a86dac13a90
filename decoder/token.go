package decoder

// forwardLink is a weighted transition between tokens on the same or
// the next frame. ILabel 0 marks a non-emitting link; olabel may carry
// a word-id or a synthetic boundary label.
type forwardLink struct {
	nextTok      *token
	ilabel       int32
	olabel       int32
	graphCost    float64
	acousticCost float64
	next         *forwardLink // next link from the same token
}

// token is the best hypothesis currently reaching one graph state on
// one frame.
type token struct {
	// totCost is the best path cost into this (state, frame) from the
	// start of the utterance.
	totCost float64
	// extraCost is the forward slack versus the best token on the
	// frame being decoded; +Inf means no surviving forward link and
	// schedules deletion. See the pruner for the precise definition.
	extraCost float64
	links     *forwardLink
	next      *token // next token on the same frame
	// backpointer is the best preceding token, kept for traceback
	// without building a lattice.
	backpointer *token
}

func newToken(totCost, extraCost float64, links *forwardLink, next, backpointer *token) *token {
	return &token{
		totCost:     totCost,
		extraCost:   extraCost,
		links:       links,
		next:        next,
		backpointer: backpointer,
	}
}

// deleteForwardLinks drops all outgoing links of a token.
func (t *token) deleteForwardLinks() {
	t.links = nil
}

// tokenList is the per-frame slot in activeToks: the head of the
// frame's token list plus the two dirty flags driving the backward
// pruning walk.
type tokenList struct {
	toks                  *token
	mustPruneForwardLinks bool
	mustPruneTokens       bool
}
