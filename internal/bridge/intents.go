package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lexiqai/voice-console/internal/config"
	"github.com/lexiqai/voice-console/internal/conversation"
	"github.com/lexiqai/voice-console/internal/report"
	"github.com/lexiqai/voice-console/internal/session"
)

const kindInput = "input"

func (h *Hub) dispatch(c *client, in Intent) {
	c.logger.Debug().Str("intent", in.Type).Msg("Intent received")

	switch in.Type {
	case IntentConnect:
		h.spawn(func(ctx context.Context) {
			err := h.ctrl.Connect(ctx, h.mgr.History())
			if errors.Is(err, session.ErrAlreadyActive) {
				c.logger.Debug().Msg("Connect ignored, session already active")
			}
		})

	case IntentDisconnect:
		h.ctrl.Disconnect()

	case IntentToggleMute:
		h.broadcast(EventMute, MutePayload{Muted: h.ctrl.ToggleMute()})

	case IntentChangeVoice:
		if !config.IsSupportedVoice(in.Voice) {
			h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: fmt.Sprintf("Unsupported voice %q.", in.Voice)})
			return
		}
		h.broadcast(EventVoice, VoicePayload{Voice: in.Voice, Voices: config.SupportedVoices})
		h.spawn(func(ctx context.Context) {
			if err := h.ctrl.ChangeVoice(ctx, in.Voice, h.mgr.History()); err != nil {
				c.logger.Warn().Err(err).Str("voice", in.Voice).Msg("Voice change did not reconnect")
			}
		})

	case IntentSendImage:
		data, ok := h.decode(c, in.Data)
		if !ok {
			return
		}
		if err := h.ctrl.SendImage(data, in.MIMEType); err != nil {
			h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "Image could not be sent. Connect first."})
		}

	case IntentSendText:
		h.spawn(func(ctx context.Context) { h.sendText(ctx, c, in.Text) })

	case IntentUploadFile:
		data, ok := h.decode(c, in.Data)
		if !ok {
			return
		}
		h.spawn(func(ctx context.Context) { h.upload(ctx, c, in.Name, in.MIMEType, data) })

	case IntentStartScreenShare:
		h.spawn(func(ctx context.Context) {
			if err := h.ctrl.StartScreenShare(ctx); err != nil {
				h.sendTo(c, EventError, ErrorPayload{Kind: session.Classify(err).String(), Message: session.UserMessage(err)})
			}
		})

	case IntentStopScreenShare:
		h.ctrl.StopScreenShare()

	case IntentNewSession:
		h.leaveLive()
		if _, err := h.mgr.NewSession(h.ctx); err != nil {
			h.logger.Error().Err(err).Msg("Failed to create session")
		}

	case IntentSwitchSession:
		if in.SessionID == h.mgr.ActiveID() {
			return
		}
		h.leaveLive()
		if _, err := h.mgr.Switch(h.ctx, in.SessionID); err != nil {
			h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "Session not found."})
		}

	case IntentDeleteSession:
		if in.SessionID == h.mgr.ActiveID() {
			h.leaveLive()
		}
		if _, err := h.mgr.Delete(h.ctx, in.SessionID); err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "Session not found."})
				return
			}
			h.logger.Error().Err(err).Str("session_id", in.SessionID).Msg("Failed to delete session")
		}

	case IntentGenerateReport:
		if h.reports == nil {
			h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "Report generation is not configured."})
			return
		}
		h.spawn(func(ctx context.Context) {
			err := h.reports.Generate(ctx, h.mgr)
			if errors.Is(err, report.ErrEmptyHistory) {
				h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "No session history available to generate a report."})
			}
		})

	default:
		c.logger.Warn().Str("intent", in.Type).Msg("Unknown intent type")
		h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: fmt.Sprintf("Unknown request %q.", in.Type)})
	}
}

// leaveLive ends a live or pending session before the active conversation
// changes, so its last words land in the conversation they belong to.
func (h *Hub) leaveLive() {
	switch h.ctrl.State() {
	case session.StateConnected, session.StateConnecting:
		h.ctrl.Disconnect()
	}
}

func (h *Hub) decode(c *client, data string) ([]byte, bool) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to decode intent payload")
		h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "Malformed request."})
		return nil, false
	}
	return raw, true
}

func (h *Hub) sendText(ctx context.Context, c *client, text string) {
	if text == "" {
		return
	}
	if ok, _ := h.ctrl.SendText(ctx, text); !ok {
		h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "Text commands are unavailable."})
		return
	}
	ts := conversation.NowMillis()
	h.appendMessages(ctx, conversation.Message{
		ID:         "t-" + uuid.NewString(),
		Role:       conversation.RoleUser,
		Text:       text,
		IsComplete: true,
		Timestamp:  ts,
	})
}

// upload hands an image or a text file to the model and records it in the
// active conversation.
func (h *Hub) upload(ctx context.Context, c *client, name, mimeType string, data []byte) {
	switch {
	case isImageFile(mimeType):
		if err := h.ctrl.SendImage(data, mimeType); err != nil {
			c.logger.Debug().Err(err).Str("file", name).Msg("Image upload not delivered")
		}
		h.appendMessages(ctx, conversation.Message{
			ID:         "upload-" + uuid.NewString(),
			Role:       conversation.RoleUser,
			Text:       fmt.Sprintf("[Uploaded Image: %s]", name),
			Image:      dataURL(mimeType, data),
			IsComplete: true,
			Timestamp:  conversation.NowMillis(),
		})

	case isTextFile(name, mimeType):
		content := string(data)
		if content == "" {
			return
		}
		delivered, _ := h.ctrl.SendText(ctx, uploadEnvelope(name, content))

		ts := conversation.NowMillis()
		msgs := []conversation.Message{{
			ID:         "upload-" + uuid.NewString(),
			Role:       conversation.RoleUser,
			Text:       uploadSummary(name, content),
			IsComplete: true,
			Timestamp:  ts,
		}}
		if !delivered {
			msgs = append(msgs, conversation.Message{
				ID:         fmt.Sprintf("sys-err-%d", ts),
				Role:       conversation.RoleModel,
				Text:       uploadWarning,
				IsComplete: true,
				Timestamp:  ts + 1,
			})
		}
		h.appendMessages(ctx, msgs...)

	default:
		h.sendTo(c, EventError, ErrorPayload{Kind: kindInput, Message: "Unsupported file. Use Image or Text."})
	}
}

func (h *Hub) appendMessages(ctx context.Context, msgs ...conversation.Message) {
	if err := h.mgr.Append(ctx, msgs...); err != nil {
		h.logger.Error().Err(err).Msg("Failed to record messages")
	}
}
