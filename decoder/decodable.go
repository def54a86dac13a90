package decoder

// Decodable supplies per-frame acoustic log-likelihoods to the decoder.
// Transition-ids are the input labels on decoding-graph arcs, numbered
// from 1.
type Decodable interface {
	// NumFramesReady returns how many frames are available. It must be
	// monotonically non-decreasing across calls on one instance.
	NumFramesReady() int
	// IsLastFrame reports whether frame t is the last one.
	IsLastFrame(t int) bool
	// LogLikelihood returns the acoustic log-likelihood of transition-id
	// tid on frame t.
	LogLikelihood(t int, tid int32) float64
}

// MatrixDecodable is a Decodable backed by a per-frame log-likelihood
// matrix, one row per frame, column tid-1. Rows may be appended between
// decoding calls for streaming use; call SetDone when no more frames
// will arrive.
type MatrixDecodable struct {
	rows [][]float64
	done bool
}

// NewMatrixDecodable wraps a complete log-likelihood matrix.
func NewMatrixDecodable(loglikes [][]float64) *MatrixDecodable {
	return &MatrixDecodable{rows: loglikes, done: true}
}

// NewStreamingMatrixDecodable starts an empty matrix for streaming use.
func NewStreamingMatrixDecodable() *MatrixDecodable {
	return &MatrixDecodable{}
}

// Append adds frames of log-likelihoods.
func (m *MatrixDecodable) Append(rows ...[]float64) {
	m.rows = append(m.rows, rows...)
}

// SetDone marks the input as complete.
func (m *MatrixDecodable) SetDone() { m.done = true }

// NumFramesReady implements Decodable.
func (m *MatrixDecodable) NumFramesReady() int { return len(m.rows) }

// IsLastFrame implements Decodable.
func (m *MatrixDecodable) IsLastFrame(t int) bool {
	return m.done && t == len(m.rows)-1
}

// LogLikelihood implements Decodable.
func (m *MatrixDecodable) LogLikelihood(t int, tid int32) float64 {
	return m.rows[t][tid-1]
}
