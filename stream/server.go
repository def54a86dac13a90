// Package stream serves streaming decoding sessions over websockets:
// per-frame log-likelihoods in, partial and final hypotheses out.
package stream

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	lattice "github.com/ieee0824/lattice-go"
	"github.com/ieee0824/lattice-go/decoder"
	"github.com/ieee0824/lattice-go/fst"
)

// Config holds the server parameters.
type Config struct {
	DecoderConfig   decoder.Config
	Symbols         map[int32]string // word-id to surface form, may be nil
	PartialInterval time.Duration    // how often partial results are emitted
}

// DefaultConfig returns reasonable server parameters.
func DefaultConfig() Config {
	return Config{
		DecoderConfig:   decoder.DefaultConfig(),
		PartialInterval: 300 * time.Millisecond,
	}
}

// Response is one decoding result message sent to the client.
type Response struct {
	Type      string         `json:"type"` // "PARTIAL" or "FINAL"
	Text      string         `json:"text"`
	Words     []decoder.Word `json:"words,omitempty"`
	SessionID string         `json:"session_id"`
}

// frameMessage is the JSON form of incoming frames. Binary messages
// carry a single frame of little-endian float64 instead. EOS marks the
// end of the utterance; the final result is sent in response.
type frameMessage struct {
	Frames [][]float64 `json:"frames"`
	EOS    bool        `json:"eos"`
}

// Server decodes one session per websocket connection against a shared
// read-only decoding graph.
type Server struct {
	graph    fst.Graph
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a streaming decoding server.
func NewServer(graph fst.Graph, cfg Config) *Server {
	if cfg.PartialInterval <= 0 {
		cfg.PartialInterval = DefaultConfig().PartialInterval
	}
	return &Server{
		graph: graph,
		cfg:   cfg,
		log:   slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetLogger redirects the server's diagnostics.
func (s *Server) SetLogger(l *slog.Logger) { s.log = l }

// ServeHTTP upgrades the connection and runs one decoding session until
// the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	s.handle(conn)
}

func (s *Server) handle(conn *websocket.Conn) {
	sessionID := uuid.New().String()
	log := s.log.With("session", sessionID)

	sess, err := lattice.NewSession(s.graph,
		lattice.WithConfig(s.cfg.DecoderConfig),
		lattice.WithSymbols(s.cfg.Symbols),
		lattice.WithLogger(log))
	if err != nil {
		log.Error("create session", "err", err)
		return
	}
	log.Info("client connected")

	// Defer the close reply until finish has sent the final result;
	// the default handler would reply immediately and block any
	// further writes.
	conn.SetCloseHandler(func(code int, text string) error { return nil })

	frames := make(chan [][]float64, 16)
	eos := make(chan struct{})
	done := make(chan struct{})

	// The reader goroutine only parses; the session is owned by the
	// loop below.
	go func() {
		defer close(done)
		for {
			msgType, p, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("websocket read", "err", err)
				}
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				frame, err := decodeBinaryFrame(p)
				if err != nil {
					log.Warn("bad binary frame", "err", err)
					return
				}
				frames <- [][]float64{frame}
			case websocket.TextMessage:
				var msg frameMessage
				if err := json.Unmarshal(p, &msg); err != nil {
					log.Warn("bad frame message", "err", err)
					return
				}
				if len(msg.Frames) > 0 {
					frames <- msg.Frames
				}
				if msg.EOS {
					close(eos)
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PartialInterval)
	defer ticker.Stop()
	lastText := ""
	for {
		select {
		case batch := <-frames:
			if err := sess.Feed(batch...); err != nil {
				log.Warn("feed", "err", err)
				return
			}
			if err := sess.Advance(); err != nil {
				log.Warn("advance", "err", err)
				return
			}
		case <-ticker.C:
			if sess.NumFramesDecoded() == 0 {
				continue
			}
			res, err := sess.BestPath()
			if err != nil {
				log.Warn("partial result", "err", err)
				continue
			}
			if res.Text == "" || res.Text == lastText {
				continue
			}
			lastText = res.Text
			if err := conn.WriteJSON(Response{
				Type: "PARTIAL", Text: res.Text, Words: res.Words, SessionID: sessionID,
			}); err != nil {
				log.Warn("send partial", "err", err)
				return
			}
		case <-eos:
			s.finish(conn, sess, frames, sessionID, log)
			return
		case <-done:
			// abrupt disconnect; finalize and attempt a final message
			s.finish(conn, sess, frames, sessionID, log)
			return
		}
	}
}

// finish drains pending frames, finalizes the session and sends the
// final result followed by a close frame.
func (s *Server) finish(conn *websocket.Conn, sess *lattice.Session, frames chan [][]float64, sessionID string, log *slog.Logger) {
	for {
		select {
		case batch := <-frames:
			if err := sess.Feed(batch...); err != nil {
				log.Warn("feed", "err", err)
				return
			}
			continue
		default:
		}
		break
	}
	if err := sess.Finalize(); err != nil {
		log.Warn("finalize", "err", err)
		return
	}
	res, err := sess.BestPath()
	if err != nil {
		log.Warn("final result", "err", err)
		return
	}
	if err := conn.WriteJSON(Response{
		Type: "FINAL", Text: res.Text, Words: res.Words, SessionID: sessionID,
	}); err != nil {
		log.Warn("send final", "err", err)
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	log.Info("session finished", "frames", sess.NumFramesDecoded())
}

func decodeBinaryFrame(p []byte) ([]float64, error) {
	if len(p)%8 != 0 {
		return nil, errOddFrame
	}
	frame := make([]float64, len(p)/8)
	for i := range frame {
		frame[i] = math.Float64frombits(binary.LittleEndian.Uint64(p[i*8:]))
	}
	return frame, nil
}

var errOddFrame = errors.New("stream: frame length not a multiple of 8")
