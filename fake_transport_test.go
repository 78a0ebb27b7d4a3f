package livevoice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"
)

// setupBehavior controls how fakeTransport answers the setup frame.
type setupBehavior int

const (
	setupAck setupBehavior = iota
	setupSilent
	setupReject
	setupClose
)

// fakeTransport is an in-memory Transport. Frames pushed with deliver are
// returned by Read; writes are recorded.
type fakeTransport struct {
	behavior setupBehavior

	inbound chan []byte
	done    chan struct{}

	mu        sync.Mutex
	written   [][]byte
	closed    bool
	closeErr  *CloseError
	closeCode int
	writeErr  error
}

func newFakeTransport(b setupBehavior) *fakeTransport {
	return &fakeTransport{
		behavior: b,
		inbound:  make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closeErr != nil {
			return nil, f.closeErr
		}
		return nil, &CloseError{Code: f.closeCode}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return err
	}
	f.written = append(f.written, append([]byte(nil), frame...))
	first := len(f.written) == 1
	f.mu.Unlock()

	if first {
		switch f.behavior {
		case setupAck:
			f.deliver(`{"setupComplete":{}}`)
		case setupReject:
			f.deliver(`{"error":{"message":"invalid argument: model not found","status":"INVALID_ARGUMENT","code":400}}`)
		case setupClose:
			f.remoteClose(1011, "internal error")
		}
	}
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.closeCode = code
	close(f.done)
	return nil
}

func (f *fakeTransport) deliver(frame string) {
	f.inbound <- []byte(frame)
}

// remoteClose simulates the peer closing with code.
func (f *fakeTransport) remoteClose(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.closeErr = &CloseError{Code: code, Reason: reason}
	close(f.done)
}

func (f *fakeTransport) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out transports from a script; once the script runs out the
// last behavior repeats. A non-nil entry in dialErrs makes that dial fail.
type fakeDialer struct {
	mu         sync.Mutex
	behaviors  []setupBehavior
	dialErrs   []error
	transports []*fakeTransport
	urls       []string
	headers    []http.Header
}

func (d *fakeDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.urls)
	d.urls = append(d.urls, rawURL)
	d.headers = append(d.headers, header)
	if n < len(d.dialErrs) && d.dialErrs[n] != nil {
		return nil, d.dialErrs[n]
	}
	b := setupAck
	if len(d.behaviors) > 0 {
		b = d.behaviors[len(d.behaviors)-1]
		if n < len(d.behaviors) {
			b = d.behaviors[n]
		}
	}
	t := newFakeTransport(b)
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

// testConfig returns a valid config with fast timings.
func testConfig() Config {
	return Config{
		Endpoint:           "wss://live.example.com/ws",
		AuthKey:            "test-key",
		Model:              "models/test-model",
		VoiceName:          "Puck",
		SystemPrompt:       "be brief",
		SetupTimeout:       200 * time.Millisecond,
		ReconnectBaseDelay: 5 * time.Millisecond,
	}
}

func quietLogger() *Logger { return NewLoggerWithWriter(LogLevelOff, io.Discard) }

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// decodeFrame unmarshals a written frame into a generic map.
func decodeFrame(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		t.Fatalf("frame is not JSON: %v (%s)", err, frame)
	}
	return m
}
