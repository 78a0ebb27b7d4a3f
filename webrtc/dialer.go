// Package webrtc carries live-session frames over a WebRTC data channel instead
// of a websocket. The SDP offer is POSTed to a signaling endpoint that answers
// with the remote description; afterwards the data channel carries the same
// JSON frames as the websocket transport.
package webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v3"

	"github.com/enesunal-m/livevoice"
)

// DefaultLabel is the data channel label used when Dialer.Label is empty.
const DefaultLabel = "live"

// Dialer implements livevoice.Dialer over a pion data channel.
type Dialer struct {
	ICEServers []pion.ICEServer
	// HTTPClient is used for the SDP exchange. Defaults to a 20 second timeout.
	HTTPClient *http.Client
	// Token, when set, is sent as a bearer credential on the SDP exchange.
	Token string
	Label string
}

// SignalingURL maps a session endpoint onto the SDP exchange URL: ws and wss
// become http and https. Other schemes are kept.
func SignalingURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return u.String(), nil
}

// Dial negotiates a peer connection and waits for the data channel to open.
func (d Dialer) Dial(ctx context.Context, rawURL string, header http.Header) (livevoice.Transport, error) {
	sigURL, err := SignalingURL(rawURL)
	if err != nil {
		return nil, livevoice.NewConfigError("Endpoint", "", "invalid URL format")
	}
	fail := func(op string, err error) error {
		return &livevoice.ConnectionError{URL: livevoice.RedactURL(sigURL), Operation: op, Cause: err}
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{ICEServers: d.ICEServers})
	if err != nil {
		return nil, fail("peer connection", err)
	}
	label := d.Label
	if label == "" {
		label = DefaultLabel
	}
	dc, err := pc.CreateDataChannel(label, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fail("data channel", err)
	}

	t := newTransport(pc, dc)
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fail("offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fail("offer", err)
	}

	answer, err := d.exchange(ctx, sigURL, header, offer.SDP)
	if err != nil {
		_ = pc.Close()
		return nil, fail("sdp exchange", err)
	}
	if err := pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer}); err != nil {
		_ = pc.Close()
		return nil, fail("sdp exchange", err)
	}

	select {
	case <-opened:
		return t, nil
	case <-t.done:
		_ = pc.Close()
		return nil, fail("data channel", t.closeErr)
	case <-ctx.Done():
		_ = pc.Close()
		return nil, fail("data channel", ctx.Err())
	}
}

func (d Dialer) exchange(ctx context.Context, sigURL string, header http.Header, sdp string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sigURL, bytes.NewBufferString(sdp))
	if err != nil {
		return "", err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/sdp")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = livevoice.RedactURL(uerr.URL)
		}
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("SDP exchange failed: %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	return string(b), nil
}

// transport adapts a data channel to livevoice.Transport.
type transport struct {
	pc   *pion.PeerConnection
	dc   *pion.DataChannel
	msgs chan []byte

	once     sync.Once
	done     chan struct{}
	closeErr *livevoice.CloseError
}

func newTransport(pc *pion.PeerConnection, dc *pion.DataChannel) *transport {
	t := &transport{
		pc:   pc,
		dc:   dc,
		msgs: make(chan []byte, 256),
		done: make(chan struct{}),
	}
	dc.OnMessage(func(m pion.DataChannelMessage) {
		select {
		case t.msgs <- m.Data:
		case <-t.done:
		}
	})
	dc.OnClose(func() {
		t.finish(&livevoice.CloseError{Code: livevoice.CloseAbnormal, Reason: "data channel closed"})
	})
	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) {
		switch s {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			t.finish(&livevoice.CloseError{Code: livevoice.CloseAbnormal, Reason: "peer connection " + s.String()})
		}
	})
	return t
}

// finish records the first closure cause.
func (t *transport) finish(ce *livevoice.CloseError) {
	t.once.Do(func() {
		t.closeErr = ce
		close(t.done)
	})
}

func (t *transport) Read(ctx context.Context) ([]byte, error) {
	// Deliver buffered frames before reporting closure.
	select {
	case m := <-t.msgs:
		return m, nil
	default:
	}
	select {
	case m := <-t.msgs:
		return m, nil
	case <-t.done:
		return nil, t.closeErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *transport) Write(ctx context.Context, frame []byte) error {
	select {
	case <-t.done:
		return t.closeErr
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return t.dc.SendText(string(frame))
}

func (t *transport) Close(code int, reason string) error {
	t.finish(&livevoice.CloseError{Code: code, Reason: reason})
	_ = t.dc.Close()
	return t.pc.Close()
}
