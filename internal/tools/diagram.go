package tools

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/lexiqai/voice-console/internal/live"
)

// RenderDiagram is the name of the Mermaid diagram tool.
const RenderDiagram = "render_diagram"

// RenderDiagramDeclaration describes render_diagram to the model.
func RenderDiagramDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        RenderDiagram,
		Description: "Render a visual diagram from Mermaid.js source. Use it whenever the user asks for an architecture, topology or flow chart.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"code": {
					Type:        genai.TypeString,
					Description: "Mermaid.js source without markdown backticks.",
				},
			},
			Required: []string{"code"},
		},
	}
}

// NewRenderDiagramHandler appends each diagram to the model transcript as a
// fenced mermaid block.
func NewRenderDiagramHandler(appendModel func(string)) Handler {
	return func(ctx context.Context, call live.ToolCall) (map[string]any, error) {
		code, _ := call.Args["code"].(string)
		if strings.TrimSpace(code) == "" {
			return nil, errors.New("missing diagram code")
		}
		appendModel("\n```mermaid\n" + code + "\n```\n")
		return map[string]any{"result": map[string]any{"success": true}}, nil
	}
}
