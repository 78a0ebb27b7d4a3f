package livevoice

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

// InputMIMEType tags every outbound audio chunk.
const InputMIMEType = "audio/pcm;rate=16000"

// ResponseModalityAudio is the only response modality requested. The service
// rejects text or mixed modalities for native-audio sessions.
const ResponseModalityAudio = "AUDIO"

// Outbound message shapes. Field names are the exact wire names.

// SetupMessage is the first frame sent on every new transport.
type SetupMessage struct {
	Setup Setup `json:"setup"`
}

// Setup carries the session parameters.
type Setup struct {
	Model             string            `json:"model"`
	GenerationConfig  GenerationConfig  `json:"generation_config"`
	SystemInstruction SystemInstruction `json:"system_instruction"`
}

// GenerationConfig selects response modalities and the voice.
type GenerationConfig struct {
	ResponseModalities []string     `json:"response_modalities"`
	SpeechConfig       SpeechConfig `json:"speech_config"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voice_config"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuilt_voice_config"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

// SystemInstruction wraps the system prompt as a single text part.
type SystemInstruction struct {
	Parts []TextPart `json:"parts"`
}

// TextPart is a content part holding only text.
type TextPart struct {
	Text string `json:"text"`
}

// RealtimeInputMessage streams one chunk of microphone audio.
type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtime_input"`
}

type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"media_chunks"`
}

// MediaChunk is a base64-encoded blob tagged with its MIME type.
type MediaChunk struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// ClientContentMessage sends one complete user text turn.
type ClientContentMessage struct {
	ClientContent ClientContent `json:"client_content"`
}

type ClientContent struct {
	Turns        []Turn `json:"turns"`
	TurnComplete bool   `json:"turn_complete"`
}

// Turn is one conversational turn authored by Role.
type Turn struct {
	Role  string     `json:"role"`
	Parts []TextPart `json:"parts"`
}

// EncodeSetup builds the setup frame.
func EncodeSetup(model, voiceName, systemPrompt string) ([]byte, error) {
	msg := SetupMessage{Setup: Setup{
		Model: model,
		GenerationConfig: GenerationConfig{
			ResponseModalities: []string{ResponseModalityAudio},
			SpeechConfig: SpeechConfig{VoiceConfig: VoiceConfig{
				PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: voiceName},
			}},
		},
		SystemInstruction: SystemInstruction{Parts: []TextPart{{Text: systemPrompt}}},
	}}
	return json.Marshal(msg)
}

// EncodeAudio wraps one PCM16 mono 16kHz chunk. Chunks are never batched.
func EncodeAudio(pcm []byte) ([]byte, error) {
	msg := RealtimeInputMessage{RealtimeInput: RealtimeInput{
		MediaChunks: []MediaChunk{{MIMEType: InputMIMEType, Data: EncodeBase64(pcm)}},
	}}
	return json.Marshal(msg)
}

// EncodeText wraps one user text turn, always marked complete.
func EncodeText(text string) ([]byte, error) {
	msg := ClientContentMessage{ClientContent: ClientContent{
		Turns:        []Turn{{Role: "user", Parts: []TextPart{{Text: text}}}},
		TurnComplete: true,
	}}
	return json.Marshal(msg)
}

// EncodeBase64 encodes audio bytes for the wire.
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// DecodeBase64 decodes audio bytes from the wire.
func DecodeBase64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// FrameKind classifies an inbound frame. Every frame has exactly one kind.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameError
	FrameSetupComplete
	FrameContent
	FrameToolCall
)

func (k FrameKind) String() string {
	switch k {
	case FrameError:
		return "error"
	case FrameSetupComplete:
		return "setup_complete"
	case FrameContent:
		return "server_content"
	case FrameToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// ServerMessage is one inbound frame. The service has used both camelCase and
// snake_case spellings, so both are accepted.
type ServerMessage struct {
	Error         json.RawMessage `json:"error,omitempty"`
	SetupComplete json.RawMessage `json:"setupComplete,omitempty"`
	SetupDone     json.RawMessage `json:"setup_complete,omitempty"`
	ServerContent *ServerContent  `json:"serverContent,omitempty"`
	ServerContSnk *ServerContent  `json:"server_content,omitempty"`
	ToolCall      json.RawMessage `json:"toolCall,omitempty"`
	ToolCallSnk   json.RawMessage `json:"tool_call,omitempty"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
	// Code is a number on the native service and a string ("404" or
	// "NOT_FOUND") behind some gateways.
	Code json.RawMessage `json:"code,omitempty"`
}

// NumericCode returns the code as an integer, or 0 when it is absent or not numeric.
func (p ErrorPayload) NumericCode() int {
	raw := strings.Trim(strings.TrimSpace(string(p.Code)), `"`)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// ServerContent carries model output and turn signals.
type ServerContent struct {
	Interrupted       bool       `json:"interrupted,omitempty"`
	TurnComplete      bool       `json:"turnComplete,omitempty"`
	TurnCompleteSnake bool       `json:"turn_complete,omitempty"`
	ModelTurn         *ModelTurn `json:"modelTurn,omitempty"`
	ModelTurnSnake    *ModelTurn `json:"model_turn,omitempty"`
}

// ModelTurn is the model's partial output for the current turn.
type ModelTurn struct {
	Parts []ContentPart `json:"parts"`
}

// ContentPart may carry text, inline audio, or both.
type ContentPart struct {
	Text            string      `json:"text,omitempty"`
	InlineData      *InlineData `json:"inlineData,omitempty"`
	InlineDataSnake *InlineData `json:"inline_data,omitempty"`
}

// InlineData is a base64 blob, typically PCM16 mono 24kHz audio.
type InlineData struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

// DecodeServerMessage parses one inbound frame.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &EventError{EventType: "inbound", RawData: data, Cause: err}
	}
	return &m, nil
}

// Kind returns the frame's classification, checked in priority order:
// error, setup acknowledgement, content, tool call.
func (m *ServerMessage) Kind() FrameKind {
	switch {
	case present(m.Error):
		return FrameError
	case present(m.SetupComplete) || present(m.SetupDone):
		return FrameSetupComplete
	case m.Content() != nil:
		return FrameContent
	case present(m.ToolCall) || present(m.ToolCallSnk):
		return FrameToolCall
	default:
		return FrameUnknown
	}
}

// Content returns the server content regardless of spelling.
func (m *ServerMessage) Content() *ServerContent {
	if m.ServerContent != nil {
		return m.ServerContent
	}
	return m.ServerContSnk
}

// ServerError converts an error frame. The message falls back to the status
// and then to "Unknown API error".
func (m *ServerMessage) ServerError() *ServerError {
	if !present(m.Error) {
		return nil
	}
	var p ErrorPayload
	if err := json.Unmarshal(m.Error, &p); err != nil {
		// Some proxies send a bare string.
		_ = json.Unmarshal(m.Error, &p.Message)
	}
	msg := p.Message
	if msg == "" {
		msg = p.Status
	}
	if msg == "" {
		msg = "Unknown API error"
	}
	return &ServerError{Message: msg, Status: p.Status, Code: p.NumericCode()}
}

// IsTurnComplete reports either spelling of the turn-complete flag.
func (c *ServerContent) IsTurnComplete() bool { return c.TurnComplete || c.TurnCompleteSnake }

// Parts returns the model turn parts regardless of spelling.
func (c *ServerContent) Parts() []ContentPart {
	switch {
	case c.ModelTurn != nil:
		return c.ModelTurn.Parts
	case c.ModelTurnSnake != nil:
		return c.ModelTurnSnake.Parts
	}
	return nil
}

// Audio returns the inline base64 audio payload of the part, if any.
func (p ContentPart) Audio() string {
	if p.InlineData != nil {
		return p.InlineData.Data
	}
	if p.InlineDataSnake != nil {
		return p.InlineDataSnake.Data
	}
	return ""
}

// present reports whether a raw field was sent with a non-null value.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
