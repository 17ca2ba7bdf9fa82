// Package live abstracts the streaming conversational service behind a small
// session interface so the lifecycle code can be exercised without a network.
package live

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/lexiqai/voice-console/internal/audio"
)

// ErrTransport marks failures to open or keep a live session.
var ErrTransport = errors.New("live transport error")

// Config describes one live connection.
type Config struct {
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []*genai.FunctionDeclaration
	// ThinkingBudget < 0 leaves the service default.
	ThinkingBudget int
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse answers a ToolCall.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Message is one inbound service message, flattened. Fields are handled in
// declaration order.
type Message struct {
	Audio            []audio.Packet
	Text             []string
	Interrupted      bool
	TurnComplete     bool
	InputTranscript  string
	OutputTranscript string
	ToolCalls        []ToolCall
}

// Session is an open live connection. Receive blocks until a message arrives;
// it returns io.EOF when the service closes the connection cleanly.
type Session interface {
	SendAudio(pkt audio.Packet) error
	SendImage(pkt audio.Packet) error
	SendText(text string, turnComplete bool) error
	SendToolResponses(responses []ToolResponse) error
	Receive() (*Message, error)
	Close() error
}

// Dialer opens live sessions.
type Dialer interface {
	Connect(ctx context.Context, cfg Config) (Session, error)
}
