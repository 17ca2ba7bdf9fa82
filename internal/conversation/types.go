package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one committed entry of a conversation. Once IsComplete is true
// the message is only rewritten through Manager.UpdateMessage, which the
// report placeholder flow uses.
type Message struct {
	ID         string `json:"id" bson:"id"`
	Role       Role   `json:"role" bson:"role"`
	Text       string `json:"text" bson:"text"`
	IsComplete bool   `json:"isComplete" bson:"is_complete"`
	Timestamp  int64  `json:"timestamp" bson:"timestamp"` // unix milliseconds
	Image      string `json:"image,omitempty" bson:"image,omitempty"`
}

// Session is a named, persisted conversation.
type Session struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Timestamp int64     `json:"timestamp" bson:"timestamp"`
	Messages  []Message `json:"messages" bson:"messages"`
}

// DefaultTitle is given to sessions until their first user message arrives.
const DefaultTitle = "New Session"

const titleLength = 30

// NowMillis returns the current time in unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// TitleFrom derives a session title from the first user message in msgs.
func TitleFrom(msgs []Message) (string, bool) {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		runes := []rune(m.Text)
		if len(runes) <= titleLength {
			return m.Text, true
		}
		return string(runes[:titleLength]) + "...", true
	}
	return "", false
}

// FormatHistory renders messages as "USER: ..." / "AI: ..." lines.
func FormatHistory(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		speaker := "USER"
		if m.Role == RoleModel {
			speaker = "AI"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, m.Text))
	}
	return strings.Join(lines, "\n")
}

// Transcript renders messages with upper-cased role prefixes, the form the
// report generator consumes.
func Transcript(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(m.Role)), m.Text))
	}
	return strings.Join(lines, "\n")
}
