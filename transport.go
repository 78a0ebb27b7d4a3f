package livevoice

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"nhooyr.io/websocket"
)

// Websocket close codes used by the session.
const (
	CloseNormal   = int(websocket.StatusNormalClosure)
	CloseAbnormal = int(websocket.StatusAbnormalClosure)
)

// maxFrameSize bounds a single inbound frame. Audio responses are much larger
// than the websocket library's 32KiB default.
const maxFrameSize = 16 << 20

// Transport is one physical duplex connection. Read returns the next frame
// payload (text or binary) and reports closure as *CloseError. Implementations
// must allow Write and Close concurrently with a blocked Read.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close(code int, reason string) error
}

// Dialer opens transports. A successful Dial is the "opened" event.
type Dialer interface {
	Dial(ctx context.Context, rawURL string, header http.Header) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, rawURL string, header http.Header) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, rawURL string, header http.Header) (Transport, error) {
	return f(ctx, rawURL, header)
}

// WebSocketDialer dials the live service over a websocket.
type WebSocketDialer struct {
	// HTTPClient is used for the opening handshake. Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Transport, error) {
	ws, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = RedactURL(uerr.URL)
		}
		return nil, &ConnectionError{URL: RedactURL(rawURL), Operation: "dial", Cause: err}
	}
	ws.SetReadLimit(maxFrameSize)
	return &wsTransport{conn: ws}, nil
}

type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, closeErrorFrom(err)
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.Write(ctx, websocket.MessageText, frame)
}

func (t *wsTransport) Close(code int, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

// closeErrorFrom maps a read failure onto a CloseError. A failure without a
// close frame is reported as an abnormal closure.
func closeErrorFrom(err error) *CloseError {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: int(ce.Code), Reason: ce.Reason}
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}

// EndpointURL builds the dial URL: http(s) schemes become ws(s) and the auth
// key is appended as the "key" query credential.
func EndpointURL(endpoint, authKey string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", NewConfigError("Endpoint", endpoint, "invalid URL format")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws" // For local testing
	}
	q := u.Query()
	q.Set("key", authKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
