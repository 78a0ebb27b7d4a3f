package livevoice

import (
	"encoding/binary"
	"errors"
	"sync"
)

// Audio format constants. Input is what SendAudio expects; output is what
// OnAudioResponse delivers. Both are 16-bit little-endian mono PCM.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

// DefaultChunkMS is the recommended microphone chunk duration for SendAudio.
const DefaultChunkMS = 100

// PCM16BytesFor calculates the number of bytes needed for PCM16 mono audio of
// the given duration.
// Formula: (milliseconds * sampleRate * 2 bytes per sample) / 1000
func PCM16BytesFor(ms int, sampleRate int) int { return (ms * sampleRate * 2) / 1000 }

// ChunkPCM16 splits pcm into chunks of ms milliseconds at sampleRate. The last
// chunk may be shorter. Chunks share pcm's backing array.
func ChunkPCM16(pcm []byte, ms, sampleRate int) [][]byte {
	size := PCM16BytesFor(ms, sampleRate)
	if size <= 0 || len(pcm) == 0 {
		return nil
	}
	if size%2 != 0 {
		size++ // keep samples whole
	}
	chunks := make([][]byte, 0, (len(pcm)+size-1)/size)
	for len(pcm) > size {
		chunks = append(chunks, pcm[:size:size])
		pcm = pcm[size:]
	}
	return append(chunks, pcm)
}

// AudioAssembler collects the audio of the current model turn. Wire its
// methods to OnAudioResponse, OnInterrupted and OnTurnComplete; the completed
// turn is handed to the done function given to NewAudioAssembler.
type AudioAssembler struct {
	mu   sync.Mutex
	buf  []byte
	done func(pcm []byte)
}

// NewAudioAssembler creates an assembler. done may be nil.
func NewAudioAssembler(done func(pcm []byte)) *AudioAssembler {
	return &AudioAssembler{done: done}
}

// Append adds one decoded chunk to the current turn.
func (a *AudioAssembler) Append(pcm []byte) {
	a.mu.Lock()
	a.buf = append(a.buf, pcm...)
	a.mu.Unlock()
}

// Interrupt discards the current turn; the model abandoned it.
func (a *AudioAssembler) Interrupt() {
	a.mu.Lock()
	a.buf = nil
	a.mu.Unlock()
}

// Complete ends the current turn and returns its audio. Empty turns are not
// passed to done.
func (a *AudioAssembler) Complete() []byte {
	a.mu.Lock()
	buf := a.buf
	a.buf = nil
	a.mu.Unlock()
	if len(buf) > 0 && a.done != nil {
		a.done(buf)
	}
	return buf
}

// Attach returns cb with the assembler wired in front of any existing audio,
// interruption and turn-complete handlers.
func (a *AudioAssembler) Attach(cb Callbacks) Callbacks {
	onAudio, onInterrupted, onTurn := cb.OnAudioResponse, cb.OnInterrupted, cb.OnTurnComplete
	cb.OnAudioResponse = func(pcm []byte) {
		a.Append(pcm)
		if onAudio != nil {
			onAudio(pcm)
		}
	}
	cb.OnInterrupted = func() {
		a.Interrupt()
		if onInterrupted != nil {
			onInterrupted()
		}
	}
	cb.OnTurnComplete = func() {
		a.Complete()
		if onTurn != nil {
			onTurn()
		}
	}
	return cb
}

// WAVFromPCM16Mono converts raw PCM16 audio data to a complete WAV file.
// This is useful for saving audio responses to disk or streaming to audio players.
// The input should be 16-bit little-endian PCM data (mono channel).
func WAVFromPCM16Mono(pcm []byte, sampleRate int) []byte {
	const blockAlign = 2
	byteRate := uint32(sampleRate) * blockAlign
	dataLen := uint32(len(pcm))
	out := make([]byte, 44+len(pcm))

	// RIFF header
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], 36+dataLen)
	copy(out[8:], "WAVE")

	// Format chunk
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16) // chunk size
	binary.LittleEndian.PutUint16(out[20:], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:], 1)  // mono
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], byteRate)
	binary.LittleEndian.PutUint16(out[32:], blockAlign)
	binary.LittleEndian.PutUint16(out[34:], 16) // bits per sample

	// Data chunk
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], dataLen)
	copy(out[44:], pcm)
	return out
}

// ErrInvalidWAV is returned by PCM16FromWAV for input that is not a PCM16 mono WAV file.
var ErrInvalidWAV = errors.New("livevoice: not a PCM16 mono WAV file")

// PCM16FromWAV extracts the sample data and sample rate from a PCM16 mono
// WAV file, skipping any chunks other than "fmt " and "data".
func PCM16FromWAV(wav []byte) (pcm []byte, sampleRate int, err error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, ErrInvalidWAV
	}
	var haveFmt bool
	rest := wav[12:]
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if size > len(rest) {
			size = len(rest) // tolerate streamed files with a placeholder length
		}
		body := rest[:size]
		switch id {
		case "fmt ":
			if size < 16 ||
				binary.LittleEndian.Uint16(body[0:2]) != 1 ||
				binary.LittleEndian.Uint16(body[2:4]) != 1 ||
				binary.LittleEndian.Uint16(body[14:16]) != 16 {
				return nil, 0, ErrInvalidWAV
			}
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, ErrInvalidWAV
			}
			return body, sampleRate, nil
		}
		// chunks are word aligned
		if size%2 == 1 && size < len(rest) {
			size++
		}
		rest = rest[size:]
	}
	return nil, 0, ErrInvalidWAV
}
