// Package livevoicetest provides an in-process live service for tests and
// local development. It speaks the same wire format as the real service:
// it acknowledges (or rejects) the setup frame, records client frames, and
// can push scripted frames or drop the connection on demand.
package livevoicetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/enesunal-m/livevoice"
)

// SetupMode controls how the server answers the setup frame.
type SetupMode int

const (
	// SetupAck acknowledges the setup frame.
	SetupAck SetupMode = iota
	// SetupIgnore never answers, so clients hit their setup deadline.
	SetupIgnore
	// SetupReject answers with an error frame and closes the connection.
	SetupReject
)

// Option configures a Handler.
type Option func(*Handler)

// WithAuthKey requires the "key" query credential to equal key.
func WithAuthKey(key string) Option {
	return func(h *Handler) { h.authKey = key }
}

// WithSetupMode selects how setup frames are answered.
func WithSetupMode(m SetupMode) Option {
	return func(h *Handler) { h.mode = m }
}

// WithRejectMessage sets the error message used by SetupReject.
func WithRejectMessage(msg string) Option {
	return func(h *Handler) { h.rejectMessage = msg }
}

// WithEcho makes the server answer text turns with a model text reply and
// echo audio chunks back as model audio, each followed by a turn boundary.
func WithEcho() Option {
	return func(h *Handler) { h.echo = true }
}

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(l *livevoice.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// Handler serves the live websocket protocol.
type Handler struct {
	authKey       string
	mode          SetupMode
	rejectMessage string
	echo          bool
	logger        *livevoice.Logger
	upgrader      websocket.Upgrader

	mu       sync.Mutex
	active   *peer
	conns    int
	setups   []livevoice.Setup
	received [][]byte
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) write(frame []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, frame)
}

func (p *peer) close(code int, reason string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	if err := p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(2*time.Second)); err != nil {
		return err
	}
	return p.conn.Close()
}

// NewHandler creates a handler with the given options.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		rejectMessage: "invalid argument: unsupported model",
		logger:        livevoice.DefaultLogger,
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authKey != "" && r.URL.Query().Get("key") != h.authKey {
		http.Error(w, "invalid API key", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("mock_upgrade_failed", map[string]any{"err": err})
		return
	}
	conn.SetReadLimit(16 << 20)
	p := &peer{conn: conn}
	defer conn.Close()

	h.mu.Lock()
	h.active = p
	h.conns++
	n := h.conns
	h.mu.Unlock()
	h.logger.Info("mock_connected", map[string]any{"conn": n, "remote": r.RemoteAddr})

	if !h.handshake(p) {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info("mock_disconnected", map[string]any{"conn": n, "err": err.Error()})
			return
		}
		h.mu.Lock()
		h.received = append(h.received, data)
		h.mu.Unlock()
		if h.echo {
			h.reply(p, data)
		}
	}
}

// handshake reads the setup frame and answers it per the configured mode.
func (h *Handler) handshake(p *peer) bool {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		return false
	}
	var msg livevoice.SetupMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Setup.Model == "" {
		_ = p.write(errorFrame("first frame must be a setup message"))
		_ = p.close(websocket.ClosePolicyViolation, "setup required")
		return false
	}
	h.mu.Lock()
	h.setups = append(h.setups, msg.Setup)
	mode := h.mode
	h.mu.Unlock()

	switch mode {
	case SetupReject:
		_ = p.write(errorFrame(h.rejectMessage))
		_ = p.close(websocket.CloseNormalClosure, "")
		return false
	case SetupIgnore:
		return true
	default:
		return p.write([]byte(`{"setupComplete":{}}`)) == nil
	}
}

func (h *Handler) reply(p *peer, data []byte) {
	var text livevoice.ClientContentMessage
	if err := json.Unmarshal(data, &text); err == nil && len(text.ClientContent.Turns) > 0 {
		var said []string
		for _, turn := range text.ClientContent.Turns {
			for _, part := range turn.Parts {
				said = append(said, part.Text)
			}
		}
		_ = p.write(TextFrame("You said: " + strings.Join(said, " ")))
		_ = p.write(TurnCompleteFrame())
		return
	}
	var audio livevoice.RealtimeInputMessage
	if err := json.Unmarshal(data, &audio); err == nil {
		for _, chunk := range audio.RealtimeInput.MediaChunks {
			pcm, err := livevoice.DecodeBase64(chunk.Data)
			if err != nil {
				continue
			}
			_ = p.write(AudioFrame(pcm))
		}
	}
}

// Send pushes a raw frame to the most recent connection.
func (h *Handler) Send(frame string) error {
	p := h.current()
	if p == nil {
		return livevoice.ErrClosed
	}
	return p.write([]byte(frame))
}

// CloseActive closes the most recent connection with a close frame.
func (h *Handler) CloseActive(code int, reason string) error {
	p := h.current()
	if p == nil {
		return livevoice.ErrClosed
	}
	return p.close(code, reason)
}

// DropActive closes the most recent connection without a close frame, which
// clients observe as an abnormal closure.
func (h *Handler) DropActive() error {
	p := h.current()
	if p == nil {
		return livevoice.ErrClosed
	}
	return p.conn.UnderlyingConn().Close()
}

// SetSetupMode changes how later setup frames are answered.
func (h *Handler) SetSetupMode(m SetupMode) {
	h.mu.Lock()
	h.mode = m
	h.mu.Unlock()
}

// Connections returns the number of accepted websocket connections.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

// Setups returns the setup payloads received so far.
func (h *Handler) Setups() []livevoice.Setup {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]livevoice.Setup(nil), h.setups...)
}

// Received returns the frames received after the setup frame.
func (h *Handler) Received() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.received...)
}

func (h *Handler) current() *peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Server is a Handler running on a local httptest server.
type Server struct {
	*Handler
	srv *httptest.Server
}

// NewServer starts a Server. Close it when done.
func NewServer(opts ...Option) *Server {
	h := NewHandler(opts...)
	return &Server{Handler: h, srv: httptest.NewServer(h)}
}

// URL returns the ws:// endpoint of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/live"
}

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// TextFrame builds a model text frame.
func TextFrame(text string) []byte {
	return mustJSON(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []any{map[string]any{"text": text}}},
		},
	})
}

// AudioFrame builds a model audio frame carrying PCM16 mono 24kHz audio.
func AudioFrame(pcm []byte) []byte {
	return mustJSON(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []any{map[string]any{
				"inlineData": map[string]any{
					"mimeType": "audio/pcm;rate=24000",
					"data":     livevoice.EncodeBase64(pcm),
				},
			}}},
		},
	})
}

// TurnCompleteFrame builds a turn boundary frame.
func TurnCompleteFrame() []byte {
	return []byte(`{"serverContent":{"turnComplete":true}}`)
}

// InterruptedFrame builds an interruption frame.
func InterruptedFrame() []byte {
	return []byte(`{"serverContent":{"interrupted":true}}`)
}

func errorFrame(msg string) []byte {
	return mustJSON(map[string]any{"error": map[string]any{"message": msg, "code": 400, "status": "INVALID_ARGUMENT"}})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
