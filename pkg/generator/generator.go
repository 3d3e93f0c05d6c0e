// Package generator produces answers from a question and retrieved EPAS
// context. Implementations are chosen at startup; callers only see the
// Generator interface.
package generator

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

// Request is the input to a generation.
type Request struct {
	Question string
	// Context is the retrieved documents as rendered by
	// retriever.FormatForLLM.
	Context string
}

// Generator turns a request into prose.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

//go:embed prompt.tmpl
var promptText string

var promptTemplate = template.Must(template.New("prompt").Parse(promptText))

// Prompt renders the system instructions and the user message for req.
func Prompt(req Request) (system, user string, err error) {
	var sys, usr strings.Builder
	if err := promptTemplate.ExecuteTemplate(&sys, "system", req); err != nil {
		return "", "", fmt.Errorf("rendering system prompt: %w", err)
	}
	if err := promptTemplate.ExecuteTemplate(&usr, "user", req); err != nil {
		return "", "", fmt.Errorf("rendering user prompt: %w", err)
	}
	return strings.TrimSpace(sys.String()), strings.TrimSpace(usr.String()), nil
}
