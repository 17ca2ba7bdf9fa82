// Package transcript accumulates streamed transcription fragments for the two
// speakers of a live session and turns them into chat messages at turn
// boundaries.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqai/voice-console/internal/conversation"
	"github.com/lexiqai/voice-console/internal/observability"
)

// LiveFunc receives the uncommitted user and model text after every change.
type LiveFunc func(user, model string)

// Accumulator holds one append-only buffer per speaker.
type Accumulator struct {
	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder

	onLive LiveFunc
	now    func() time.Time
}

// NewAccumulator creates an accumulator. onLive may be nil.
func NewAccumulator(onLive LiveFunc) *Accumulator {
	return &Accumulator{onLive: onLive, now: time.Now}
}

// AppendUser appends an input transcription fragment.
func (a *Accumulator) AppendUser(fragment string) {
	a.append(&a.user, fragment)
}

// AppendModel appends an output transcription or text fragment.
func (a *Accumulator) AppendModel(fragment string) {
	a.append(&a.model, fragment)
}

func (a *Accumulator) append(b *strings.Builder, fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	b.WriteString(fragment)
	user, model := a.user.String(), a.model.String()
	a.mu.Unlock()

	if a.onLive != nil {
		a.onLive(user, model)
	}
}

// Live returns the uncommitted text of both speakers.
func (a *Accumulator) Live() (user, model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String(), a.model.String()
}

// Commit turns the buffered text into chat messages, user first, and clears
// both buffers. A speaker whose buffer is blank yields no message. When both
// are blank nothing is emitted and the buffers are left as they are.
func (a *Accumulator) Commit() []conversation.Message {
	a.mu.Lock()
	userText, modelText := a.user.String(), a.model.String()
	hasUser := strings.TrimSpace(userText) != ""
	hasModel := strings.TrimSpace(modelText) != ""
	if !hasUser && !hasModel {
		a.mu.Unlock()
		return nil
	}
	a.user.Reset()
	a.model.Reset()
	ts := a.now().UnixMilli()
	a.mu.Unlock()

	msgs := make([]conversation.Message, 0, 2)
	if hasUser {
		msgs = append(msgs, conversation.Message{
			ID:         "u-" + uuid.NewString(),
			Role:       conversation.RoleUser,
			Text:       userText,
			IsComplete: true,
			Timestamp:  ts,
		})
		observability.RecordCommit(string(conversation.RoleUser))
	}
	if hasModel {
		msgs = append(msgs, conversation.Message{
			ID:         "m-" + uuid.NewString(),
			Role:       conversation.RoleModel,
			Text:       modelText,
			IsComplete: true,
			Timestamp:  ts + 1,
		})
		observability.RecordCommit(string(conversation.RoleModel))
	}

	if a.onLive != nil {
		a.onLive("", "")
	}
	return msgs
}

// Reset drops buffered text without committing it.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.user.Reset()
	a.model.Reset()
	a.mu.Unlock()

	if a.onLive != nil {
		a.onLive("", "")
	}
}
