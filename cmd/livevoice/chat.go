package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/enesunal-m/livevoice"
	"github.com/enesunal-m/livevoice/credentials"
	"github.com/enesunal-m/livevoice/webrtc"
)

type chatOptions struct {
	configFile string
	tokenURL   string
	bearer     string
	transport  string
	audioFile  string
	outDir     string
	linger     time.Duration
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a session and talk to the model",
		Long: `Open a live session. Each line read from stdin is sent as a text turn;
--audio streams a PCM16 16kHz mono file (raw or WAV) as microphone input.
Model transcripts are printed and each spoken model turn is written to a WAV file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.configFile == "") == (opts.tokenURL == "") {
				return errors.New("exactly one of --config or --token-url is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), opts, root.logger())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "TOML session config")
	f.StringVar(&opts.tokenURL, "token-url", "", "credential endpoint returning connection parameters")
	f.StringVar(&opts.bearer, "bearer", os.Getenv("LIVEVOICE_BEARER"), "bearer token for the credential endpoint")
	f.StringVar(&opts.transport, "transport", "ws", "transport: ws or webrtc")
	f.StringVar(&opts.audioFile, "audio", "", "PCM16 16kHz mono file (raw or WAV) to stream")
	f.StringVar(&opts.outDir, "out-dir", ".", "directory for model audio turns")
	f.DurationVar(&opts.linger, "linger", 10*time.Second, "how long to wait for pending replies after input ends")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, opts *chatOptions, logger *livevoice.Logger) error {
	cfg, err := resolveConfig(ctx, opts)
	if err != nil {
		return err
	}

	sessOpts := []livevoice.Option{livevoice.WithLogger(logger)}
	switch opts.transport {
	case "ws", "":
	case "webrtc":
		sessOpts = append(sessOpts, livevoice.WithDialer(webrtc.Dialer{Token: opts.bearer}))
	default:
		return fmt.Errorf("unknown transport %q", opts.transport)
	}
	s := livevoice.NewSession(sessOpts...)

	p := &printer{out: out}
	turns := newTurnTracker()
	ended := make(chan string, 1)
	n := 0
	assembler := livevoice.NewAudioAssembler(func(pcm []byte) {
		n++
		path := filepath.Join(opts.outDir, fmt.Sprintf("turn-%03d.wav", n))
		if err := os.WriteFile(path, livevoice.WAVFromPCM16Mono(pcm, livevoice.OutputSampleRate), 0o644); err != nil {
			p.printf("! write %s: %v\n", path, err)
			return
		}
		p.printf("[audio] %s (%.1fs)\n", path, float64(len(pcm))/float64(2*livevoice.OutputSampleRate))
	})

	cb := assembler.Attach(livevoice.Callbacks{
		OnConnected: func() { p.printf("[connected]\n") },
		OnDisconnected: func(reason string) {
			select {
			case ended <- reason:
			default:
			}
		},
		OnError: func(err error) { p.printf("! %s\n", livevoice.FriendlyMessage(err)) },
		OnTranscript: func(text string, isFinal, isUser bool) {
			if !isFinal {
				return
			}
			if isUser {
				p.printf("you: %s\n", text)
			} else {
				p.printf("model: %s\n", text)
			}
		},
		OnInterrupted:  func() { p.printf("[interrupted]\n") },
		OnTurnComplete: turns.complete,
	})

	if err := s.Connect(ctx, cfg, cb); err != nil {
		p.printf("! %s\n", livevoice.FriendlyMessage(err))
		return err
	}
	defer s.Disconnect()

	if opts.audioFile != "" {
		if err := streamAudio(ctx, s, opts.audioFile); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-ended:
			p.printf("[disconnected] %s\n", reason)
			return nil
		case line, ok := <-lines:
			if !ok {
				turns.wait(ctx, opts.linger)
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				return nil
			}
			if !s.IsConnected() {
				p.printf("! not connected, dropped %q\n", line)
				continue
			}
			turns.sent()
			s.SendText(line)
		}
	}
}

func resolveConfig(ctx context.Context, opts *chatOptions) (livevoice.Config, error) {
	if opts.configFile != "" {
		return loadFileConfig(opts.configFile)
	}
	params, err := credentials.FetchWithRetry(ctx, opts.tokenURL, credentials.Options{Bearer: opts.bearer}, livevoice.DefaultRetryConfig())
	if err != nil {
		return livevoice.Config{}, err
	}
	return params.Config(), nil
}

// streamAudio sends the file in real time, one chunk per DefaultChunkMS.
func streamAudio(ctx context.Context, s *livevoice.Session, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pcm := data
	if strings.HasPrefix(string(data[:min(4, len(data))]), "RIFF") {
		var rate int
		pcm, rate, err = livevoice.PCM16FromWAV(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if rate != livevoice.InputSampleRate {
			return fmt.Errorf("%s: sample rate %d, want %d", path, rate, livevoice.InputSampleRate)
		}
	}

	tick := time.NewTicker(livevoice.DefaultChunkMS * time.Millisecond)
	defer tick.Stop()
	for _, chunk := range livevoice.ChunkPCM16(pcm, livevoice.DefaultChunkMS, livevoice.InputSampleRate) {
		s.SendAudio(chunk)
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
	return nil
}

// printer serializes output from callbacks running on different goroutines.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// turnTracker counts text turns still waiting for a turn boundary.
type turnTracker struct {
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

func newTurnTracker() *turnTracker { return &turnTracker{idle: make(chan struct{}, 1)} }

func (t *turnTracker) sent() {
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
}

func (t *turnTracker) complete() {
	t.mu.Lock()
	if t.pending > 0 {
		t.pending--
	}
	done := t.pending == 0
	t.mu.Unlock()
	if done {
		select {
		case t.idle <- struct{}{}:
		default:
		}
	}
}

// wait returns once no turn is pending, ctx ends or max elapses.
func (t *turnTracker) wait(ctx context.Context, max time.Duration) {
	timer := time.NewTimer(max)
	defer timer.Stop()
	for {
		t.mu.Lock()
		pending := t.pending
		t.mu.Unlock()
		if pending == 0 {
			return
		}
		select {
		case <-t.idle:
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		}
	}
}
