package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/voice-console/internal/audio"
)

// GeminiDialer opens sessions on the Gemini Live API.
type GeminiDialer struct {
	client *genai.Client
	logger zerolog.Logger
}

// NewGeminiDialer creates a Gemini client for apiKey.
func NewGeminiDialer(ctx context.Context, apiKey string, logger zerolog.Logger) (*GeminiDialer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("failed to create Gemini client: API key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiDialer{
		client: client,
		logger: logger.With().Str("component", "gemini_live").Logger(),
	}, nil
}

// Client exposes the underlying genai client for non-streaming calls.
func (d *GeminiDialer) Client() *genai.Client {
	return d.client
}

// Connect opens a live session with audio responses and transcription in both
// directions.
func (d *GeminiDialer) Connect(ctx context.Context, cfg Config) (Session, error) {
	sess, err := d.client.Live.Connect(ctx, cfg.Model, ConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	d.logger.Info().
		Str("model", cfg.Model).
		Str("voice", cfg.Voice).
		Msg("Live session opened")
	return &geminiSession{sess: sess}, nil
}

// ConnectConfig translates cfg into the genai connect configuration.
func ConnectConfig(cfg Config) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if len(cfg.Tools) > 0 {
		lc.Tools = []*genai.Tool{{FunctionDeclarations: cfg.Tools}}
	}
	if cfg.ThinkingBudget >= 0 {
		lc.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(cfg.ThinkingBudget))}
	}
	return lc
}

type geminiSession struct {
	sess *genai.Session
	// genai writes straight to the websocket, which allows one writer.
	writeMu sync.Mutex
}

func (s *geminiSession) SendAudio(pkt audio.Packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pkt.Data, MIMEType: pkt.MIMEType},
	})
}

func (s *geminiSession) SendImage(pkt audio.Packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pkt.Data, MIMEType: pkt.MIMEType},
	})
}

func (s *geminiSession) SendText(text string, turnComplete bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.sess.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(turnComplete),
	})
}

func (s *geminiSession) SendToolResponses(responses []ToolResponse) error {
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

func (s *geminiSession) Receive() (*Message, error) {
	msg, err := s.sess.Receive()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return FromServerMessage(msg), nil
}

func (s *geminiSession) Close() error {
	return s.sess.Close()
}

// FromServerMessage flattens a genai server message. Thought parts are
// dropped.
func FromServerMessage(msg *genai.LiveServerMessage) *Message {
	out := &Message{}
	if msg == nil {
		return out
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.Thought {
					continue
				}
				if part.InlineData != nil && audio.IsAudio(part.InlineData.MIMEType) && len(part.InlineData.Data) > 0 {
					out.Audio = append(out.Audio, audio.Packet{
						MIMEType: part.InlineData.MIMEType,
						Data:     part.InlineData.Data,
					})
				}
				if part.Text != "" {
					out.Text = append(out.Text, part.Text)
				}
			}
		}
		out.Interrupted = sc.Interrupted
		out.TurnComplete = sc.TurnComplete
		if sc.InputTranscription != nil {
			out.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			out.OutputTranscript = sc.OutputTranscription.Text
		}
	}
	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return out
}
