package webrtc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/enesunal-m/livevoice"
)

func TestSignalingURL(t *testing.T) {
	tests := map[string]string{
		"wss://relay.example.com/rtc?key=k": "https://relay.example.com/rtc?key=k",
		"ws://localhost:8080/rtc":           "http://localhost:8080/rtc",
		"https://relay.example.com/rtc":     "https://relay.example.com/rtc",
	}
	for in, want := range tests {
		got, err := SignalingURL(in)
		if err != nil {
			t.Fatalf("SignalingURL(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("SignalingURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDial_ExchangeRejected(t *testing.T) {
	var gotAuth, gotType, gotTrace string
	var gotOffer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotTrace = r.Header.Get("X-Trace")
		b, _ := io.ReadAll(r.Body)
		gotOffer = string(b)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rtc?key=secret"
	_, err := Dialer{Token: "eph"}.Dial(ctx, endpoint, http.Header{"X-Trace": {"t1"}})
	if !errors.Is(err, livevoice.ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status in error, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("key leaked into error: %q", err.Error())
	}
	if gotAuth != "Bearer eph" || gotType != "application/sdp" || gotTrace != "t1" {
		t.Errorf("unexpected request headers: auth=%q type=%q trace=%q", gotAuth, gotType, gotTrace)
	}
	if !strings.HasPrefix(gotOffer, "v=0") {
		t.Errorf("expected an SDP offer body, got %q", gotOffer)
	}
}

func TestTransport_ClosedBeforeRead(t *testing.T) {
	tr := &transport{msgs: make(chan []byte, 1), done: make(chan struct{})}
	tr.msgs <- []byte(`{"setupComplete":{}}`)
	tr.finish(&livevoice.CloseError{Code: livevoice.CloseNormal})

	b, err := tr.Read(context.Background())
	if err != nil || string(b) != `{"setupComplete":{}}` {
		t.Fatalf("expected buffered frame first, got %q, %v", b, err)
	}
	_, err = tr.Read(context.Background())
	var ce *livevoice.CloseError
	if !errors.As(err, &ce) || ce.Code != livevoice.CloseNormal {
		t.Errorf("expected normal CloseError, got %v", err)
	}
	if err := tr.Write(context.Background(), []byte("x")); !errors.Is(err, livevoice.ErrClosed) {
		t.Errorf("expected ErrClosed on write after close, got %v", err)
	}
}

func TestDial_UnreachableRelayRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rtc?key=secret"
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Dialer{}.Dial(ctx, endpoint, nil)
	if !errors.Is(err, livevoice.ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("key leaked into error: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "REDACTED") {
		t.Errorf("expected redacted URL in error, got %q", err.Error())
	}
}
