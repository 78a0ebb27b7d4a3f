package livevoice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestPCM16BytesFor(t *testing.T) {
	tests := []struct {
		name       string
		ms         int
		sampleRate int
		expected   int
	}{
		{"100ms at 16kHz", 100, InputSampleRate, 3200},
		{"200ms at 24kHz", 200, OutputSampleRate, 9600},
		{"1000ms at 16kHz", 1000, 16000, 32000},
		{"0ms", 0, 16000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PCM16BytesFor(tt.ms, tt.sampleRate); got != tt.expected {
				t.Errorf("PCM16BytesFor(%d, %d) = %d, want %d", tt.ms, tt.sampleRate, got, tt.expected)
			}
		})
	}
}

func TestChunkPCM16(t *testing.T) {
	pcm := make([]byte, 7000)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	chunks := ChunkPCM16(pcm, 100, InputSampleRate)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 3200 || len(chunks[1]) != 3200 || len(chunks[2]) != 600 {
		t.Errorf("unexpected chunk sizes %d %d %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if !bytes.Equal(bytes.Join(chunks, nil), pcm) {
		t.Error("chunks do not reassemble to the input")
	}

	if ChunkPCM16(nil, 100, InputSampleRate) != nil {
		t.Error("expected nil for empty input")
	}
	if ChunkPCM16(pcm, 0, InputSampleRate) != nil {
		t.Error("expected nil for zero duration")
	}
}

func TestAudioAssembler(t *testing.T) {
	var completed [][]byte
	a := NewAudioAssembler(func(pcm []byte) { completed = append(completed, pcm) })

	a.Append([]byte("Hello"))
	a.Append([]byte(" World"))
	if got := a.Complete(); string(got) != "Hello World" {
		t.Errorf("expected %q, got %q", "Hello World", got)
	}

	a.Append([]byte("dropped"))
	a.Interrupt()
	if got := a.Complete(); len(got) != 0 {
		t.Errorf("expected empty turn after interrupt, got %q", got)
	}

	if len(completed) != 1 || string(completed[0]) != "Hello World" {
		t.Errorf("expected one completed turn, got %q", completed)
	}
}

func TestAudioAssembler_Attach(t *testing.T) {
	var done []byte
	var chunks, turns, interrupts int
	a := NewAudioAssembler(func(pcm []byte) { done = pcm })

	cb := a.Attach(Callbacks{
		OnAudioResponse: func([]byte) { chunks++ },
		OnTurnComplete:  func() { turns++ },
		OnInterrupted:   func() { interrupts++ },
	})

	cb.OnAudioResponse([]byte{1, 2})
	cb.OnAudioResponse([]byte{3, 4})
	cb.OnTurnComplete()
	cb.OnAudioResponse([]byte{5, 6})
	cb.OnInterrupted()

	if !bytes.Equal(done, []byte{1, 2, 3, 4}) {
		t.Errorf("unexpected completed turn %v", done)
	}
	if chunks != 3 || turns != 1 || interrupts != 1 {
		t.Errorf("wrapped handlers not called: chunks=%d turns=%d interrupts=%d", chunks, turns, interrupts)
	}

	// Handlers are optional.
	bare := NewAudioAssembler(nil).Attach(Callbacks{})
	bare.OnAudioResponse([]byte{1})
	bare.OnInterrupted()
	bare.OnTurnComplete()
}

func TestWAVFromPCM16Mono(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	wav := WAVFromPCM16Mono(pcm, OutputSampleRate)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		t.Error("invalid WAV chunk markers")
	}
	if got := binary.LittleEndian.Uint32(wav[4:]); got != uint32(36+len(pcm)) {
		t.Errorf("RIFF size = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:]); got != OutputSampleRate {
		t.Errorf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:]); got != OutputSampleRate*2 {
		t.Errorf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d", got)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("PCM payload not copied")
	}
}

func TestPCM16FromWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	got, rate, err := PCM16FromWAV(WAVFromPCM16Mono(pcm, InputSampleRate))
	if err != nil {
		t.Fatalf("PCM16FromWAV failed: %v", err)
	}
	if rate != InputSampleRate || !bytes.Equal(got, pcm) {
		t.Errorf("got rate %d pcm %v", rate, got)
	}

	// A LIST chunk before the data chunk is skipped.
	wav := WAVFromPCM16Mono(pcm, OutputSampleRate)
	list := []byte("LIST\x03\x00\x00\x00abc\x00")
	withList := append(append(append([]byte(nil), wav[:36]...), list...), wav[36:]...)
	got, rate, err = PCM16FromWAV(withList)
	if err != nil || rate != OutputSampleRate || !bytes.Equal(got, pcm) {
		t.Errorf("with LIST chunk: got %v %d %v", got, rate, err)
	}

	stereo := WAVFromPCM16Mono(pcm, InputSampleRate)
	binary.LittleEndian.PutUint16(stereo[22:], 2)
	for name, in := range map[string][]byte{
		"empty":  nil,
		"raw":    pcm,
		"stereo": stereo,
	} {
		if _, _, err := PCM16FromWAV(in); !errors.Is(err, ErrInvalidWAV) {
			t.Errorf("%s: expected ErrInvalidWAV, got %v", name, err)
		}
	}
}
