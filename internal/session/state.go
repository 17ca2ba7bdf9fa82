package session

import "github.com/lexiqai/voice-console/internal/conversation"

// State is the connection state shown to the user.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Listener receives controller events. Nil fields are skipped. Callbacks run
// on controller goroutines and must not call back into the controller
// synchronously.
type Listener struct {
	OnState       func(State)
	OnTranscript  func(user, model string)
	OnCommit      func(msgs []conversation.Message)
	OnError       func(kind Kind, message string)
	OnScreenShare func(active bool)
}
