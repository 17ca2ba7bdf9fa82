package live

import (
	"testing"

	"google.golang.org/genai"
)

func TestConnectConfig(t *testing.T) {
	cfg := ConnectConfig(Config{
		Model:             "gemini-live",
		Voice:             "Aoede",
		SystemInstruction: "be brief",
		Tools:             []*genai.FunctionDeclaration{{Name: "render_diagram"}},
		ThinkingBudget:    -1,
	})

	if len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("Expected audio response modality, got %v", cfg.ResponseModalities)
	}
	if cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Aoede" {
		t.Error("Expected voice to be passed through")
	}
	if cfg.InputAudioTranscription == nil || cfg.OutputAudioTranscription == nil {
		t.Error("Expected transcription in both directions")
	}
	if cfg.ThinkingConfig != nil {
		t.Error("Expected negative thinking budget to leave thinking config unset")
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].FunctionDeclarations[0].Name != "render_diagram" {
		t.Error("Expected tool declarations to be wrapped in one tool")
	}

	withBudget := ConnectConfig(Config{Voice: "Charon", ThinkingBudget: 0})
	if withBudget.ThinkingConfig == nil || *withBudget.ThinkingConfig.ThinkingBudget != 0 {
		t.Error("Expected zero thinking budget to be sent explicitly")
	}
	if withBudget.SystemInstruction != nil || withBudget.Tools != nil {
		t.Error("Expected empty instruction and tools to be omitted")
	}
}

func TestFromServerMessage(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{0, 1}}},
				{Text: "thinking...", Thought: true},
				{Text: "Hello"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{1}}},
			}},
			Interrupted:         true,
			TurnComplete:        true,
			InputTranscription:  &genai.Transcription{Text: "hi"},
			OutputTranscription: &genai.Transcription{Text: "Hello"},
		},
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "call-1", Name: "render_diagram", Args: map[string]any{"code": "graph TD;A-->B"}},
		}},
	}

	out := FromServerMessage(msg)
	if len(out.Audio) != 1 || out.Audio[0].MIMEType != "audio/pcm;rate=24000" {
		t.Errorf("Expected one audio packet, got %+v", out.Audio)
	}
	if len(out.Text) != 1 || out.Text[0] != "Hello" {
		t.Errorf("Expected thought parts dropped, got %v", out.Text)
	}
	if !out.Interrupted || !out.TurnComplete {
		t.Error("Expected interrupted and turnComplete flags")
	}
	if out.InputTranscript != "hi" || out.OutputTranscript != "Hello" {
		t.Error("Expected transcriptions to be carried")
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Args["code"] != "graph TD;A-->B" {
		t.Errorf("Unexpected tool calls %+v", out.ToolCalls)
	}
}

func TestFromServerMessage_Empty(t *testing.T) {
	out := FromServerMessage(&genai.LiveServerMessage{})
	if out.Interrupted || out.TurnComplete || len(out.Audio) != 0 || len(out.ToolCalls) != 0 {
		t.Errorf("Expected empty message, got %+v", out)
	}
	if FromServerMessage(nil) == nil {
		t.Error("Expected non-nil message for nil input")
	}
}
