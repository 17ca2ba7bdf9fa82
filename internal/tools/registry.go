// Package tools routes function calls requested by the model to local
// handlers.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/voice-console/internal/live"
	"github.com/lexiqai/voice-console/internal/observability"
)

// Handler executes one call and returns the response payload.
type Handler func(ctx context.Context, call live.ToolCall) (map[string]any, error)

type entry struct {
	decl    *genai.FunctionDeclaration
	handler Handler
}

// Registry maps function names to handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]entry),
		logger:  logger.With().Str("component", "tools").Logger(),
	}
}

// Register adds or replaces the handler for decl.Name.
func (r *Registry) Register(decl *genai.FunctionDeclaration, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[decl.Name] = entry{decl: decl, handler: handler}
}

// Declarations returns every registered declaration ordered by name.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	decls := make([]*genai.FunctionDeclaration, 0, len(r.entries))
	for _, e := range r.entries {
		decls = append(decls, e.decl)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// Dispatch runs each call and returns one response per call, in order.
// Failures are reported to the model as an error payload.
func (r *Registry) Dispatch(ctx context.Context, calls []live.ToolCall) []live.ToolResponse {
	responses := make([]live.ToolResponse, 0, len(calls))
	for _, call := range calls {
		r.mu.RLock()
		e, ok := r.entries[call.Name]
		r.mu.RUnlock()

		var (
			payload map[string]any
			err     error
		)
		if !ok {
			err = fmt.Errorf("unknown tool %q", call.Name)
		} else {
			payload, err = e.handler(ctx, call)
		}

		if err != nil {
			r.logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool call failed")
			observability.RecordToolCall(call.Name, false)
			payload = map[string]any{"error": err.Error()}
		} else {
			r.logger.Debug().Str("tool", call.Name).Msg("Tool call handled")
			observability.RecordToolCall(call.Name, true)
		}
		responses = append(responses, live.ToolResponse{ID: call.ID, Name: call.Name, Response: payload})
	}
	return responses
}
