package session

import (
	"errors"

	"github.com/lexiqai/voice-console/internal/capture"
	"github.com/lexiqai/voice-console/internal/config"
	"github.com/lexiqai/voice-console/internal/live"
	"github.com/lexiqai/voice-console/internal/playback"
	"github.com/lexiqai/voice-console/internal/screen"
)

var (
	// ErrAlreadyActive is returned by Connect while a connection is being
	// opened or is open.
	ErrAlreadyActive = errors.New("session already connecting or connected")
	// ErrNotConnected is returned by send operations without an open session.
	ErrNotConnected = errors.New("session not connected")

	errClosing = errors.New("session closing")
)

// Kind classifies failures for the user.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermission
	KindTransport
	KindConfiguration
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindTransport:
		return "transport"
	case KindConfiguration:
		return "configuration"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Classify maps an error onto a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, capture.ErrPermissionDenied), errors.Is(err, screen.ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, config.ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, capture.ErrDeviceUnavailable), errors.Is(err, playback.ErrSpeakerUnavailable):
		return KindAudio
	case errors.Is(err, live.ErrTransport):
		return KindTransport
	default:
		return KindTransport
	}
}

// UserMessage is the text shown for a failure.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, screen.ErrPermissionDenied):
		return "Screen sharing permission denied."
	case errors.Is(err, screen.ErrUnavailable):
		return "Screen sharing is not available on this machine."
	}
	switch Classify(err) {
	case KindPermission:
		return "Microphone access denied. Please allow permission."
	case KindConfiguration:
		return "API key not configured. Connection aborted."
	case KindAudio:
		return "Failed to connect to audio service."
	default:
		return "Network error. Please check your connection and API key."
	}
}
