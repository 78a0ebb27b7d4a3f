package livevoice

// Callbacks receives session events. Every field is optional.
//
// Callbacks run outside the session lock on the goroutine that observed the
// event: the transport reader for inbound frames, the deadline timer, the
// reconnect supervisor, or the caller itself for SendText and Disconnect.
// They may call back into the Session but should not block.
type Callbacks struct {
	// OnConnected fires after each successful setup handshake, including
	// transparent reconnects.
	OnConnected func()

	// OnDisconnected fires on normal closure, on Disconnect, and once when
	// reconnection gives up.
	OnDisconnected func(reason string)

	// OnError fires for server error frames and for transport errors after
	// the session was connected.
	OnError func(err error)

	// OnTranscript delivers model text (isUser=false) and echoes text sent
	// with SendText (isUser=true). All transcripts are final.
	OnTranscript func(text string, isFinal, isUser bool)

	// OnAudioResponse delivers decoded PCM16 mono 24kHz audio.
	OnAudioResponse func(pcm []byte)

	// OnInterrupted fires when the service abandons output after barge-in.
	OnInterrupted func()

	// OnTurnComplete fires when the service finished the current turn.
	OnTurnComplete func()
}

// effects are callbacks and cleanup collected under the session lock and run
// in order after it is released.
type effects []func()

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}
