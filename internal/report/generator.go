// Package report produces a Root Cause Analysis document from a committed
// conversation using a one-shot model call.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/voice-console/internal/conversation"
	"github.com/lexiqai/voice-console/internal/resilience"
)

const (
	commandText     = "⚡ GENERATE RCA REPORT"
	placeholderText = "Generating Root Cause Analysis Report based on session logs..."
	failurePrefix   = "⚠️ **RCA Generation Failed**: "
)

// ErrEmptyHistory is returned when there is nothing to report on.
var ErrEmptyHistory = errors.New("no session history available to generate a report")

// TextModel generates text for a prompt.
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiModel is a TextModel on the genai models API.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel wraps client for model.
func NewGeminiModel(client *genai.Client, model string) *GeminiModel {
	return &GeminiModel{client: client, model: model}
}

// GenerateText runs one non-streaming generation.
func (m *GeminiModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyError(fmt.Errorf("failed to generate content: %w", err))
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("model returned an empty report")
	}
	return text, nil
}

// classifyError marks rate limiting and server side API failures retryable.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == 429 || apiErr.Code >= 500) {
		return resilience.NewRetryableError(err)
	}
	return err
}

// Generator writes reports into the active conversation.
type Generator struct {
	model       TextModel
	instruction string
	retry       *resilience.RetryConfig
	logger      zerolog.Logger
}

// NewGenerator creates a generator. retry may be nil for the defaults.
func NewGenerator(model TextModel, instruction string, retry *resilience.RetryConfig, logger zerolog.Logger) *Generator {
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &Generator{
		model:       model,
		instruction: instruction,
		retry:       retry,
		logger:      logger.With().Str("component", "report").Logger(),
	}
}

// Prompt builds the report request for a transcript.
func Prompt(instruction string, history []conversation.Message) string {
	return instruction +
		"\n\n[TASK]\nBased on the following transcript, generate a formal Root Cause Analysis (RCA) report following the \"REPORT GENERATION PROTOCOLS\". Output strictly markdown." +
		"\n\n[TRANSCRIPT]\n" + conversation.Transcript(history)
}

// Generate appends a command message and a loading placeholder to the active
// session, then replaces the placeholder with the report or a failure notice.
// The result lands in that session even if another one becomes active while
// the model runs. It works with or without a live connection.
func (g *Generator) Generate(ctx context.Context, mgr *conversation.Manager) error {
	sessionID := mgr.ActiveID()
	history, err := mgr.SessionHistory(sessionID)
	if err != nil || len(history) == 0 {
		return ErrEmptyHistory
	}

	ts := conversation.NowMillis()
	placeholderID := fmt.Sprintf("rca-loading-%d", ts)
	err = mgr.AppendTo(ctx, sessionID,
		conversation.Message{
			ID:         fmt.Sprintf("sys-%d", ts),
			Role:       conversation.RoleUser,
			Text:       commandText,
			IsComplete: true,
			Timestamp:  ts,
		},
		conversation.Message{
			ID:         placeholderID,
			Role:       conversation.RoleModel,
			Text:       placeholderText,
			IsComplete: false,
			Timestamp:  ts + 1,
		},
	)
	if err != nil {
		return err
	}

	prompt := Prompt(g.instruction, history)
	var text string
	err = resilience.Retry(ctx, func(ctx context.Context) error {
		out, err := g.model.GenerateText(ctx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	}, g.retry, resilience.IsRetryableNetworkError)

	if err != nil {
		g.logger.Error().Err(err).Str("session_id", sessionID).Int("messages", len(history)).Msg("RCA generation failed")
		if uerr := mgr.UpdateMessageIn(ctx, sessionID, placeholderID, failurePrefix+err.Error(), true); uerr != nil {
			g.logger.Warn().Err(uerr).Msg("Failed to record RCA failure")
		}
		return err
	}

	g.logger.Info().Str("session_id", sessionID).Int("messages", len(history)).Int("report_chars", len(text)).Msg("RCA report generated")
	return mgr.UpdateMessageIn(ctx, sessionID, placeholderID, text, true)
}
