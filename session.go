package livevoice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Session is one logical voice conversation with the live service. It owns a
// single transport at a time and keeps Config and Callbacks across
// transparent reconnects.
//
// Create one with NewSession when a conversation starts and call Disconnect
// when it ends. A Session can be connected again after Disconnect or after it
// entered StateError. All methods are safe for concurrent use.
type Session struct {
	id     string
	dialer Dialer
	logger *Logger

	mu             sync.Mutex
	state          State
	setupComplete  bool
	receivingAudio bool
	attempts       int
	cfg            Config
	cb             Callbacks
	dialURL        string
	header         http.Header

	// conn is bound to gen. Every teardown bumps gen so that a reader still
	// draining an old transport can no longer change session state.
	conn       Transport
	readCancel context.CancelFunc
	gen        uint64

	pending    *pendingConnect
	supervisor *reconnector
}

// pendingConnect is the single in-flight handshake. It is settled at most once,
// under Session.mu, by clearing Session.pending in the same critical section
// that stops the timer and delivers the result.
type pendingConnect struct {
	gen        uint64
	reconnect  bool
	result     chan error
	timer      *time.Timer
	cancelDial context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the default websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithLogger sets the diagnostic logger. Defaults to DefaultLogger.
func WithLogger(l *Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a disconnected session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		id:     fmt.Sprintf("sess_%d", time.Now().UnixNano()),
		dialer: WebSocketDialer{},
		logger: DefaultLogger,
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(map[string]any{"session": s.id})
	return s
}

// Connect opens a transport, sends the setup frame and blocks until the
// service acknowledges it, the setup deadline elapses, the attempt fails, or
// ctx is done.
//
// Configuration problems are returned as *ConfigError before anything is
// dialed. Handshake failures are returned as *ConnectError and are never
// retried automatically. Calling Connect while a connect is in flight or the
// session is connected does nothing and returns nil.
func (s *Session) Connect(ctx context.Context, cfg Config, cb Callbacks) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	dialURL, err := EndpointURL(cfg.Endpoint, cfg.AuthKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("connect_ignored", map[string]any{"state": state.String()})
		return nil
	}
	s.cfg = cfg.withDefaults()
	s.cb = cb
	s.dialURL = dialURL
	s.header = cfg.HandshakeHeaders.Clone()
	s.attempts = 0
	p, dialCtx := s.beginLocked(ctx, false)
	s.mu.Unlock()

	s.logger.Info("connecting", map[string]any{"url": RedactURL(dialURL), "model": cfg.Model})
	if err := s.await(ctx, dialCtx, p); err != nil {
		s.logger.Warn("connect_failed", map[string]any{"err": err})
		return newConnectError(err)
	}
	return nil
}

// Disconnect closes the session with a normal closure. It is safe to call from
// any state and more than once. A connect still waiting for its handshake
// fails with ErrCancelled, a pending reconnect is abandoned, and
// OnDisconnected("Client initiated") always fires.
func (s *Session) Disconnect() {
	const reason = "Client initiated"

	s.mu.Lock()
	if r := s.supervisor; r != nil {
		s.supervisor = nil
		r.cancel()
	}
	if p := s.pending; p != nil {
		s.settleLocked(p, ErrCancelled)
	}
	fx := effects{s.teardownLocked(CloseNormal, reason)}
	s.state = StateDisconnected
	s.attempts = 0
	if cb := s.cb.OnDisconnected; cb != nil {
		fx = append(fx, func() { cb(reason) })
	}
	s.mu.Unlock()

	s.logger.Info("client_disconnect", nil)
	fx.run()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session is connected and the setup
// handshake has completed, i.e. whether sends will reach the wire.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.setupComplete
}

// ReconnectAttempts returns the number of reconnects made since the last
// successful handshake.
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// IsReceivingAudio reports whether model audio is currently streaming, i.e.
// audio arrived and neither an interruption nor a turn boundary followed it.
func (s *Session) IsReceivingAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receivingAudio
}

// SendAudio streams one chunk of PCM16 mono 16kHz audio. It never fails: when
// the session is not connected the chunk is dropped.
func (s *Session) SendAudio(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	w, ok := s.writer()
	if !ok {
		s.logger.Debug("send_audio_dropped", map[string]any{"bytes": len(pcm)})
		return
	}
	frame, err := EncodeAudio(pcm)
	if err != nil {
		s.logger.Error("encode_audio", map[string]any{"err": err})
		return
	}
	if err := w.write(frame); err != nil {
		s.transportError(w.gen, err)
	}
}

// SendText sends one complete user turn. Because the service does not echo
// user text, OnTranscript(text, true, true) fires synchronously once the frame
// is written. When the session is not connected nothing is sent.
func (s *Session) SendText(text string) {
	w, ok := s.writer()
	if !ok {
		s.logger.Debug("send_text_dropped", map[string]any{"chars": len(text)})
		return
	}
	frame, err := EncodeText(text)
	if err != nil {
		s.logger.Error("encode_text", map[string]any{"err": err})
		return
	}
	if err := w.write(frame); err != nil {
		s.transportError(w.gen, err)
		return
	}
	if w.cb.OnTranscript != nil {
		w.cb.OnTranscript(text, true, true)
	}
}

type frameWriter struct {
	conn    Transport
	gen     uint64
	timeout time.Duration
	cb      Callbacks
}

func (w frameWriter) write(frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	return w.conn.Write(ctx, frame)
}

// writer snapshots the live transport when sends are allowed.
func (s *Session) writer() (frameWriter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || !s.setupComplete || s.conn == nil {
		return frameWriter{}, false
	}
	return frameWriter{conn: s.conn, gen: s.gen, timeout: s.cfg.WriteTimeout, cb: s.cb}, true
}

// beginLocked moves to StateConnecting and registers a new pending handshake
// with its deadline timer.
func (s *Session) beginLocked(ctx context.Context, reconnect bool) (*pendingConnect, context.Context) {
	s.gen++
	s.state = StateConnecting
	s.setupComplete = false
	s.receivingAudio = false

	dialCtx, cancel := context.WithCancel(ctx)
	p := &pendingConnect{
		gen:        s.gen,
		reconnect:  reconnect,
		result:     make(chan error, 1),
		cancelDial: cancel,
	}
	p.timer = time.AfterFunc(s.cfg.SetupTimeout, func() { s.expire(p) })
	s.pending = p
	return p, dialCtx
}

// await runs the handshake for p and waits for it to settle.
func (s *Session) await(ctx, dialCtx context.Context, p *pendingConnect) error {
	s.open(dialCtx, p)
	select {
	case err := <-p.result:
		return err
	case <-ctx.Done():
		s.abandon(p, ctx.Err())
		return <-p.result
	}
}

// open dials, binds the transport to p's generation, starts the reader and
// sends the setup frame.
func (s *Session) open(ctx context.Context, p *pendingConnect) {
	s.mu.Lock()
	dialURL, header, cfg := s.dialURL, s.header, s.cfg
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, dialURL, header)
	if err != nil {
		if !errors.Is(err, ErrConnectionFailed) {
			err = &ConnectionError{URL: RedactURL(dialURL), Operation: "dial", Cause: err}
		}
		s.abandonAs(p, err, StateError)
		return
	}

	s.mu.Lock()
	if s.pending != p || s.gen != p.gen {
		s.mu.Unlock()
		_ = conn.Close(CloseNormal, "superseded")
		return
	}
	readCtx, cancel := context.WithCancel(context.Background())
	s.conn, s.readCancel = conn, cancel
	s.mu.Unlock()

	s.logger.Info("ws_connected", map[string]any{"url": RedactURL(dialURL), "reconnect": p.reconnect})
	go s.readLoop(readCtx, p.gen, conn)

	frame, err := EncodeSetup(cfg.Model, cfg.VoiceName, cfg.SystemPrompt)
	if err == nil {
		err = frameWriter{conn: conn, timeout: cfg.WriteTimeout}.write(frame)
	}
	if err != nil {
		s.transportError(p.gen, err)
	}
}

// readLoop delivers frames from one transport until it closes.
func (s *Session) readLoop(ctx context.Context, gen uint64, conn Transport) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			var ce *CloseError
			if !errors.As(err, &ce) {
				ce = &CloseError{Code: CloseAbnormal, Reason: err.Error()}
			}
			s.closed(gen, ce)
			return
		}
		s.frame(gen, data)
	}
}

// frame parses and dispatches one inbound frame. Exactly one branch runs per
// frame.
func (s *Session) frame(gen uint64, data []byte) {
	msg, err := DecodeServerMessage(data)
	if err != nil {
		s.logger.Warn("bad_frame_json", map[string]any{"err": err, "bytes": len(data)})
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("stale_frame_dropped", map[string]any{"gen": gen})
		return
	}

	var fx effects
	switch kind := msg.Kind(); kind {
	case FrameError:
		serr := msg.ServerError()
		if p := s.pending; p != nil {
			s.settleLocked(p, serr)
		}
		s.state = StateError
		fx = append(fx, s.teardownLocked(CloseNormal, "server error"))
		if cb := s.cb.OnError; cb != nil {
			fx = append(fx, func() { cb(serr) })
		}
		s.logger.Error("server_error", map[string]any{"message": serr.Message, "status": serr.Status})

	case FrameSetupComplete:
		p := s.pending
		if p == nil || s.state != StateConnecting {
			s.logger.Debug("unexpected_setup_complete", map[string]any{"state": s.state.String()})
			break
		}
		s.state = StateConnected
		s.setupComplete = true
		s.attempts = 0
		s.settleLocked(p, nil)
		if cb := s.cb.OnConnected; cb != nil {
			fx = append(fx, cb)
		}
		s.logger.Info("setup_complete", map[string]any{"reconnect": p.reconnect})

	case FrameContent:
		fx = s.contentLocked(msg.Content())

	case FrameToolCall:
		s.logger.Debug("tool_call_ignored", nil)

	default:
		s.logger.Debug("unknown_frame", map[string]any{"bytes": len(data)})
	}
	s.mu.Unlock()
	fx.run()
}

func (s *Session) contentLocked(c *ServerContent) effects {
	var fx effects
	cb := s.cb
	if c.Interrupted {
		s.receivingAudio = false
		if cb.OnInterrupted != nil {
			fx = append(fx, cb.OnInterrupted)
		}
		return fx
	}
	if c.IsTurnComplete() {
		s.receivingAudio = false
		if cb.OnTurnComplete != nil {
			fx = append(fx, cb.OnTurnComplete)
		}
		return fx
	}
	for _, part := range c.Parts() {
		if text := part.Text; text != "" && cb.OnTranscript != nil {
			fx = append(fx, func() { cb.OnTranscript(text, true, false) })
		}
		if data := part.Audio(); data != "" {
			pcm, err := DecodeBase64(data)
			if err != nil {
				s.logger.Warn("bad_audio_payload", map[string]any{"err": err})
				continue
			}
			s.receivingAudio = true
			if cb.OnAudioResponse != nil {
				fx = append(fx, func() { cb.OnAudioResponse(pcm) })
			}
		}
	}
	return fx
}

// closed handles closure of the transport bound to gen.
func (s *Session) closed(gen uint64, ce *CloseError) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	wasConnected := s.state == StateConnected
	fx := effects{s.teardownLocked(CloseNormal, "")}
	reason := closeReason(ce)

	switch p := s.pending; {
	case p != nil:
		s.settleLocked(p, ce)
		if !p.reconnect {
			s.state = StateDisconnected
		}
	case !wasConnected:
	case ce.Normal():
		s.state = StateDisconnected
		fx = append(fx, s.disconnectedLocked(reason)...)
	case s.attempts < s.cfg.MaxReconnectAttempts:
		s.state = StateConnecting
		r := newReconnector()
		s.supervisor = r
		fx = append(fx, func() { go s.superviseReconnect(r, reason) })
	default:
		s.state = StateDisconnected
		fx = append(fx, s.disconnectedLocked(reason)...)
	}
	s.mu.Unlock()

	s.logger.Info("ws_closed", map[string]any{"code": ce.Code, "reason": ce.Reason})
	fx.run()
}

// transportError handles a write failure on the transport bound to gen.
func (s *Session) transportError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	fx := effects{s.teardownLocked(CloseNormal, "transport error")}
	if p := s.pending; p != nil {
		s.settleLocked(p, &ConnectionError{URL: RedactURL(s.dialURL), Operation: "setup", Cause: err})
		if !p.reconnect {
			s.state = StateError
		}
	} else {
		s.state = StateError
		if cb := s.cb.OnError; cb != nil {
			fx = append(fx, func() { cb(err) })
		}
	}
	s.mu.Unlock()

	s.logger.Error("transport_error", map[string]any{"err": err})
	fx.run()
}

// expire fires when the setup deadline of p elapses.
func (s *Session) expire(p *pendingConnect) {
	if s.abandonAs(p, ErrSetupTimeout, StateError) {
		s.logger.Warn("setup_timeout", map[string]any{"reconnect": p.reconnect})
	}
}

// abandon settles p after ctx cancellation.
func (s *Session) abandon(p *pendingConnect, err error) {
	s.abandonAs(p, err, StateDisconnected)
}

// abandonAs settles p with err, tears down its transport and, unless p is a
// reconnect attempt, moves to next. It reports false if p already settled.
func (s *Session) abandonAs(p *pendingConnect, err error, next State) bool {
	s.mu.Lock()
	if !s.settleLocked(p, err) {
		s.mu.Unlock()
		return false
	}
	fx := effects{s.teardownLocked(CloseNormal, "setup failed")}
	if !p.reconnect {
		s.state = next
	}
	s.mu.Unlock()
	fx.run()
	return true
}

// settleLocked delivers err to p if p is still the pending handshake.
func (s *Session) settleLocked(p *pendingConnect, err error) bool {
	if p == nil || s.pending != p {
		return false
	}
	s.pending = nil
	p.timer.Stop()
	p.cancelDial()
	p.result <- err
	return true
}

// teardownLocked detaches the current transport and returns the cleanup that
// closes it. Bumping gen makes events from the old reader stale.
func (s *Session) teardownLocked(code int, reason string) func() {
	conn, cancel := s.conn, s.readCancel
	s.conn, s.readCancel = nil, nil
	s.gen++
	s.setupComplete = false
	s.receivingAudio = false
	return func() {
		if conn != nil {
			_ = conn.Close(code, reason)
		}
		if cancel != nil {
			cancel()
		}
	}
}

func (s *Session) disconnectedLocked(reason string) effects {
	if cb := s.cb.OnDisconnected; cb != nil {
		return effects{func() { cb(reason) }}
	}
	return nil
}

func closeReason(ce *CloseError) string {
	if ce.Reason != "" {
		return fmt.Sprintf("%s (code %d)", ce.Reason, ce.Code)
	}
	return fmt.Sprintf("connection closed (code %d)", ce.Code)
}
