package bridge

import "github.com/lexiqai/voice-console/internal/conversation"

// Event types sent to presentation clients.
const (
	EventState       = "state"
	EventTranscript  = "transcript"
	EventCommitted   = "committed"
	EventActivity    = "activity"
	EventError       = "error"
	EventSessions    = "sessions"
	EventVoice       = "voice"
	EventMute        = "mute"
	EventScreenShare = "screen_share"
)

// Intent types accepted from presentation clients.
const (
	IntentConnect          = "connect"
	IntentDisconnect       = "disconnect"
	IntentToggleMute       = "toggle_mute"
	IntentChangeVoice      = "change_voice"
	IntentSendImage        = "send_image"
	IntentSendText         = "send_text"
	IntentUploadFile       = "upload_file"
	IntentStartScreenShare = "start_screen_share"
	IntentStopScreenShare  = "stop_screen_share"
	IntentNewSession       = "new_session"
	IntentSwitchSession    = "switch_session"
	IntentDeleteSession    = "delete_session"
	IntentGenerateReport   = "generate_report"
)

// Event is the envelope of every server to client message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StatePayload carries the connection state.
type StatePayload struct {
	State string `json:"state"`
}

// TranscriptPayload carries the uncommitted live transcript.
type TranscriptPayload struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// CommittedPayload carries messages that were just committed.
type CommittedPayload struct {
	Messages []conversation.Message `json:"messages"`
}

// ActivityPayload carries the 128 frequency bins, base64 encoded.
type ActivityPayload struct {
	Bins string `json:"bins"`
}

// ErrorPayload carries a user-facing failure.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionsPayload carries the full session list.
type SessionsPayload struct {
	Sessions []conversation.Session `json:"sessions"`
	ActiveID string                 `json:"activeId"`
}

// VoicePayload carries the selected voice and the choices.
type VoicePayload struct {
	Voice  string   `json:"voice"`
	Voices []string `json:"voices"`
}

// MutePayload carries the microphone mute flag.
type MutePayload struct {
	Muted bool `json:"muted"`
}

// ScreenSharePayload carries whether screen frames are being streamed.
type ScreenSharePayload struct {
	Active bool `json:"active"`
}

// Intent is a client request. Only the fields its type needs are set.
type Intent struct {
	Type      string `json:"type"`
	Voice     string `json:"voice,omitempty"`
	Text      string `json:"text,omitempty"`
	Name      string `json:"name,omitempty"`
	MIMEType  string `json:"mimeType,omitempty"`
	Data      string `json:"data,omitempty"` // base64
	SessionID string `json:"sessionId,omitempty"`
}
