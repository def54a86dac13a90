package lattice

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ieee0824/lattice-go/decoder"
	"github.com/ieee0824/lattice-go/fst"
	"github.com/ieee0824/lattice-go/lat"
)

// Session is the top-level streaming decoding session: one utterance
// over one decoding graph, fed frame by frame.
type Session struct {
	Graph  fst.Graph
	DecCfg decoder.Config
	Syms   map[int32]string // word-id to surface form, may be nil

	log       *slog.Logger
	dec       *decoder.Decoder
	mat       *decoder.MatrixDecodable
	finalized bool
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets custom decoder parameters.
func WithConfig(cfg decoder.Config) Option {
	return func(s *Session) {
		s.DecCfg = cfg
	}
}

// WithLogger redirects the session's diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithSymbols sets the word symbol table used to render results.
func WithSymbols(syms map[int32]string) Option {
	return func(s *Session) {
		s.Syms = syms
	}
}

// NewSession creates a session over a decoding graph and starts
// decoding.
func NewSession(graph fst.Graph, opts ...Option) (*Session, error) {
	s := &Session{
		Graph:  graph,
		DecCfg: decoder.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	dec, err := decoder.New(graph, s.DecCfg)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if s.log != nil {
		dec.SetLogger(s.log)
	}
	s.dec = dec
	s.mat = decoder.NewStreamingMatrixDecodable()
	dec.InitDecoding()
	return s, nil
}

// Feed appends frames of per-transition-id log-likelihoods. Frames are
// buffered; call Advance to decode them.
func (s *Session) Feed(frames ...[]float64) error {
	if s.finalized {
		return decoder.ErrFinalized
	}
	s.mat.Append(frames...)
	return nil
}

// Advance decodes all buffered frames.
func (s *Session) Advance() error {
	if s.finalized {
		return decoder.ErrFinalized
	}
	return s.dec.AdvanceDecoding(s.mat, -1)
}

// Finalize consumes any remaining frames and runs the terminal pruning
// pass. No more frames may be fed afterwards.
func (s *Session) Finalize() error {
	if s.finalized {
		return nil
	}
	s.mat.SetDone()
	if err := s.dec.AdvanceDecoding(s.mat, -1); err != nil {
		return err
	}
	s.dec.FinalizeDecoding()
	s.finalized = true
	return nil
}

// Lattice returns a snapshot of the compact lattice decoded so far;
// after Finalize it is the complete utterance lattice.
func (s *Session) Lattice() (*lat.CompactLattice, error) {
	return s.dec.GetLattice(s.finalized, s.DecCfg.Redeterminize, s.dec.NumFramesDecoded())
}

// BestPath returns the current best hypothesis. Before Finalize it is a
// partial result over the frames decoded so far.
func (s *Session) BestPath() (*decoder.Result, error) {
	clat, err := s.Lattice()
	if err != nil {
		return nil, err
	}
	res, err := decoder.ExtractResult(clat, s.Syms)
	if err != nil {
		return nil, err
	}
	// Before Finalize the best path ends in a chunk-boundary arc whose
	// label lies above MaxWordID; it is not a word.
	words := res.Words[:0]
	texts := make([]string, 0, len(res.Words))
	for _, w := range res.Words {
		if w.ID > s.DecCfg.MaxWordID {
			continue
		}
		words = append(words, w)
		texts = append(texts, w.Text)
	}
	res.Words = words
	res.Text = strings.Join(texts, " ")
	return res, nil
}

// NumFramesDecoded returns the number of frames consumed so far.
func (s *Session) NumFramesDecoded() int { return s.dec.NumFramesDecoded() }

// Decode decodes a complete log-likelihood matrix in one call,
// returning the best hypothesis and the utterance lattice.
func Decode(graph fst.Graph, loglikes [][]float64, opts ...Option) (*decoder.Result, *lat.CompactLattice, error) {
	s, err := NewSession(graph, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Feed(loglikes...); err != nil {
		return nil, nil, err
	}
	if err := s.Finalize(); err != nil {
		return nil, nil, err
	}
	clat, err := s.Lattice()
	if err != nil {
		return nil, nil, err
	}
	res, err := decoder.ExtractResult(clat, s.Syms)
	if err != nil {
		return nil, nil, err
	}
	return res, clat, nil
}
