// Package livevoice is a client for realtime, bidirectional voice sessions
// with a streaming generative-AI live service.
//
// A Session owns one websocket at a time. Connect dials the endpoint, sends the
// setup frame (model, voice, system prompt) and blocks until the service
// acknowledges it or Config.SetupTimeout elapses. Once connected, microphone
// audio (PCM16 mono 16kHz) is streamed with SendAudio and text turns with
// SendText. Model audio (PCM16 mono 24kHz), transcripts, interruptions and
// turn boundaries are delivered through Callbacks.
//
// Basic Usage:
//
//	s := livevoice.NewSession()
//	err := s.Connect(ctx, livevoice.Config{
//		Endpoint:  "wss://example.com/ws/live",
//		AuthKey:   key,
//		Model:     "models/gemini-2.0-flash-exp",
//		VoiceName: "Puck",
//	}, livevoice.Callbacks{
//		OnAudioResponse: play,
//		OnTranscript: func(text string, final, user bool) { fmt.Println(text) },
//	})
//	if err != nil {
//		log.Println(livevoice.FriendlyMessage(err))
//		return
//	}
//	defer s.Disconnect()
//
// After a successful handshake, abnormal closures are retried up to
// Config.MaxReconnectAttempts times with a linearly growing delay. Handshake
// failures are never retried; Connect returns a *ConnectError whose Kind
// groups the cause into user-facing categories.
package livevoice
